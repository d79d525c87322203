package analyze

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// PipelineOptions wires one room's analysis branch together.
type PipelineOptions struct {
	Room       domain.RoomKey
	Pool       *Pool
	Transcoder core.Transcoder
	Sink       core.AnalysisSink
	Delimiter  DelimiterFactory
	SDPPath    string
	FS         afero.Fs
}

// Pipeline consumes the transcoder's frame stream for one room,
// dispatches each frame to the worker pool and re-emits outcomes to the
// session sink in submission order. It is the registry-tracked handle
// of the running analysis branch.
type Pipeline struct {
	id   string
	opts PipelineOptions

	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Uint64

	closeOnce sync.Once
}

type pendingOutcome struct {
	frame []byte
	ch    <-chan core.Outcome
}

// StartPipeline launches the transcoder against the already-persisted
// session description and begins streaming. The caller guarantees the
// description file exists before this is called.
func StartPipeline(ctx context.Context, opts PipelineOptions) (*Pipeline, error) {
	stream, err := opts.Transcoder.Start(ctx, opts.SDPPath)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		id:     uuid.NewString(),
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(runCtx, stream)
	log.Info().Str("module", "analyze.pipeline").Str("room", string(opts.Room)).Str("pipeline", p.id).Msg("analysis pipeline started")
	return p, nil
}

func (p *Pipeline) ID() string { return p.id }

// Dropped reports frames declined by the pool for lack of capacity.
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }

func (p *Pipeline) run(ctx context.Context, stream io.ReadCloser) {
	defer close(p.done)
	defer func() { _ = stream.Close() }()

	logger := log.With().Str("module", "analyze.pipeline").Str("room", string(p.opts.Room)).Logger()

	// Outcomes are re-emitted strictly in submission order: the emitter
	// drains this FIFO one entry at a time, waiting on each outcome.
	pending := make(chan pendingOutcome, p.opts.Pool.Size())
	emitterDone := make(chan struct{})
	go p.emitLoop(pending, emitterDone)

	delim := p.opts.Delimiter(stream)
	var terminal *core.AnalysisEvent

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		frame, err := delim.Next()
		if err != nil {
			if ctx.Err() != nil {
				// Torn down; the stream error is ours.
				break loop
			}
			if errors.Is(err, io.EOF) {
				if waitErr := p.opts.Transcoder.Wait(); waitErr != nil {
					logger.Warn().Err(waitErr).Msg("transcoder exited abnormally")
					terminal = &core.AnalysisEvent{Error: waitErr.Error()}
				} else {
					terminal = &core.AnalysisEvent{End: true}
				}
			} else {
				logger.Warn().Err(err).Msg("frame stream error")
				terminal = &core.AnalysisEvent{Error: err.Error()}
			}
			break loop
		}

		ch, err := p.opts.Pool.Submit(ctx, core.Job{Room: p.opts.Room, Frame: frame})
		if err != nil {
			if errors.Is(err, core.ErrNoCapacity) {
				// Back-pressure: the source drops the frame.
				p.dropped.Add(1)
				logger.Debug().Uint64("dropped", p.dropped.Load()).Msg("no idle worker, frame dropped")
				continue
			}
			break loop
		}

		select {
		case pending <- pendingOutcome{frame: frame, ch: ch}:
		case <-ctx.Done():
			break loop
		}
	}

	close(pending)
	<-emitterDone
	if terminal != nil {
		p.opts.Sink.AnalysisEvent(p.opts.Room, *terminal)
	}
}

func (p *Pipeline) emitLoop(pending <-chan pendingOutcome, done chan<- struct{}) {
	defer close(done)
	for po := range pending {
		out := <-po.ch
		ev := core.AnalysisEvent{Frame: po.frame}
		if out.Err != nil {
			ev.Error = out.Err.Error()
		} else {
			ev.Result = out.Result
		}
		p.opts.Sink.AnalysisEvent(p.opts.Room, ev)
	}
}

// Close stops dispatch, kills the transcoder, terminates the worker
// pool and deletes the persisted session description. Idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		_ = p.opts.Transcoder.Kill()
		<-p.done
		p.opts.Pool.Close()
		if err := p.opts.FS.Remove(p.opts.SDPPath); err != nil {
			log.Warn().Err(err).Str("module", "analyze.pipeline").Str("sdp", p.opts.SDPPath).Msg("removing session description")
		} else {
			log.Info().Str("module", "analyze.pipeline").Str("room", string(p.opts.Room)).Str("sdp", p.opts.SDPPath).Msg("session description deleted")
		}
	})
	return nil
}
