package analyze

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
)

// slot is one pool member: an analysis worker plus its busy flag. The
// pool exclusively owns all slots.
type slot struct {
	idx      int
	analyzer core.Analyzer
	busy     atomic.Bool
}

// Pool is a fixed-size dispatcher of analysis jobs. Submission never
// blocks and never queues: when every slot is busy the caller is told
// immediately and decides what to do with the frame.
type Pool struct {
	slots []*slot

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPool builds size workers up front. The size is fixed for the
// pool's lifetime.
func NewPool(ctx context.Context, size int, factory core.AnalyzerFactory) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	p := &Pool{}
	for i := 0; i < size; i++ {
		a, err := factory(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("start analysis worker %d: %w", i, err)
		}
		p.slots = append(p.slots, &slot{idx: i, analyzer: a})
	}
	return p, nil
}

func (p *Pool) Size() int { return len(p.slots) }

// Submit leases the first idle slot (scanned in slot-creation order) and
// runs the job on it. The outcome arrives on the returned channel. With
// no idle slot it returns ErrNoCapacity without blocking.
func (p *Pool) Submit(ctx context.Context, job core.Job) (<-chan core.Outcome, error) {
	if p.closed.Load() {
		return nil, core.ErrPoolClosed
	}
	s := p.acquire()
	if s == nil {
		return nil, core.ErrNoCapacity
	}
	ch := make(chan core.Outcome, 1)
	go func() {
		// The slot is released exactly once, result or error.
		defer s.busy.Store(false)
		res, err := s.analyzer.Detect(ctx, job.Frame)
		ch <- core.Outcome{Result: res, Err: err}
	}()
	return ch, nil
}

func (p *Pool) acquire() *slot {
	for _, s := range p.slots {
		if s.busy.CompareAndSwap(false, true) {
			return s
		}
	}
	return nil
}

// Close terminates every slot's worker. Idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		for _, s := range p.slots {
			if err := s.analyzer.Close(); err != nil {
				log.Warn().Err(err).Str("module", "analyze.pool").Int("slot", s.idx).Msg("closing analysis worker")
			}
		}
	})
}
