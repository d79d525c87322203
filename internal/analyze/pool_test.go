package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/peppoasap/InVeritas/internal/core"
)

// gateAnalyzer blocks every Detect until release is closed.
type gateAnalyzer struct {
	release chan struct{}
	closed  bool
}

func (a *gateAnalyzer) Detect(ctx context.Context, frame []byte) (json.RawMessage, error) {
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (a *gateAnalyzer) Close() error { a.closed = true; return nil }

func gateFactory(release chan struct{}, made *[]*gateAnalyzer) core.AnalyzerFactory {
	return func(context.Context) (core.Analyzer, error) {
		a := &gateAnalyzer{release: release}
		*made = append(*made, a)
		return a, nil
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	var made []*gateAnalyzer
	pool, err := NewPool(context.Background(), 2, gateFactory(release, &made))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	job := core.Job{Room: "room-1", Frame: []byte("frame")}
	ch1, err := pool.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	ch2, err := pool.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	// Both slots leased: the third frame is refused, not queued.
	if _, err := pool.Submit(context.Background(), job); !errors.Is(err, core.ErrNoCapacity) {
		t.Fatalf("saturated Submit: got %v, want ErrNoCapacity", err)
	}

	close(release)
	for _, ch := range []<-chan core.Outcome{ch1, ch2} {
		out := <-ch
		if out.Err != nil {
			t.Fatalf("outcome error: %v", out.Err)
		}
	}

	// Slots come back once the workers finish.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := pool.Submit(context.Background(), job); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slot never released")
		}
		time.Sleep(time.Millisecond)
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Detect(context.Context, []byte) (json.RawMessage, error) {
	return nil, errors.New("inference failed")
}
func (failingAnalyzer) Close() error { return nil }

func TestPoolReleasesSlotAfterWorkerError(t *testing.T) {
	pool, err := NewPool(context.Background(), 1, func(context.Context) (core.Analyzer, error) {
		return failingAnalyzer{}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	job := core.Job{Room: "room-1", Frame: []byte("frame")}
	ch, err := pool.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := <-ch
	if out.Err == nil {
		t.Fatal("expected a worker error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := pool.Submit(context.Background(), job); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("slot not released after worker error")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	release := make(chan struct{})
	close(release)
	var made []*gateAnalyzer
	pool, err := NewPool(context.Background(), 1, gateFactory(release, &made))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	pool.Close()
	pool.Close() // idempotent

	if _, err := pool.Submit(context.Background(), core.Job{}); !errors.Is(err, core.ErrPoolClosed) {
		t.Fatalf("got %v, want ErrPoolClosed", err)
	}
	if !made[0].closed {
		t.Fatal("worker not closed")
	}
}

func TestPoolFactoryFailureClosesStartedWorkers(t *testing.T) {
	release := make(chan struct{})
	var made []*gateAnalyzer
	boom := errors.New("spawn failed")
	calls := 0
	_, err := NewPool(context.Background(), 3, func(ctx context.Context) (core.Analyzer, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		a := &gateAnalyzer{release: release}
		made = append(made, a)
		return a, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if len(made) != 1 || !made[0].closed {
		t.Fatal("started worker not closed after factory failure")
	}
}

func TestPoolRejectsBadSize(t *testing.T) {
	if _, err := NewPool(context.Background(), 0, nil); err == nil {
		t.Fatal("expected an error for size 0")
	}
}
