package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

type fakeTranscoder struct {
	stream  io.ReadCloser
	waitErr error
	onKill  func()

	mu     sync.Mutex
	killed bool
}

func (t *fakeTranscoder) Start(context.Context, string) (io.ReadCloser, error) {
	return t.stream, nil
}

func (t *fakeTranscoder) Wait() error { return t.waitErr }

func (t *fakeTranscoder) Kill() error {
	t.mu.Lock()
	t.killed = true
	t.mu.Unlock()
	if t.onKill != nil {
		t.onKill()
	}
	return nil
}

func (t *fakeTranscoder) wasKilled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

type collectSink struct {
	mu     sync.Mutex
	events []core.AnalysisEvent
}

func (s *collectSink) AnalysisEvent(_ domain.RoomKey, ev core.AnalysisEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *collectSink) snapshot() []core.AnalysisEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AnalysisEvent, len(s.events))
	copy(out, s.events)
	return out
}

func waitForEvents(t *testing.T, s *collectSink, n int) []core.AnalysisEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := s.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(s.snapshot()))
	return nil
}

func frameStream(frames ...string) io.ReadCloser {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(lengthFrame([]byte(f)))
	}
	return io.NopCloser(&buf)
}

// scriptedAnalyzer stalls "slow" frames until the gate opens and
// reports which frame it saw.
type scriptedAnalyzer struct {
	slowGate <-chan struct{}
	fastDone chan<- struct{}
}

func (a *scriptedAnalyzer) Detect(ctx context.Context, frame []byte) (json.RawMessage, error) {
	if string(frame) == "slow" {
		select {
		case <-a.slowGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		close(a.fastDone)
	}
	return json.RawMessage(`{"frame":"` + string(frame) + `"}`), nil
}

func (a *scriptedAnalyzer) Close() error { return nil }

func newPipelineForTest(t *testing.T, pool *Pool, tc core.Transcoder, sink core.AnalysisSink) *Pipeline {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "tmp/sdp/room-1.sdp", []byte("v=0\n"), 0o644); err != nil {
		t.Fatalf("seeding sdp: %v", err)
	}
	p, err := StartPipeline(context.Background(), PipelineOptions{
		Room:       "room-1",
		Pool:       pool,
		Transcoder: tc,
		Sink:       sink,
		Delimiter:  NewLengthPrefixedDelimiter,
		SDPPath:    "tmp/sdp/room-1.sdp",
		FS:         fs,
	})
	if err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	return p
}

func TestPipelineEmitsInSubmissionOrder(t *testing.T) {
	slowGate := make(chan struct{})
	fastDone := make(chan struct{})

	pool, err := NewPool(context.Background(), 2, func(context.Context) (core.Analyzer, error) {
		return &scriptedAnalyzer{slowGate: slowGate, fastDone: fastDone}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	sink := &collectSink{}
	tc := &fakeTranscoder{stream: frameStream("slow", "fast")}
	p := newPipelineForTest(t, pool, tc, sink)
	defer p.Close()

	// The fast frame finishes while the slow one is still held: the
	// emitted order must still be slow first.
	<-fastDone
	close(slowGate)

	evs := waitForEvents(t, sink, 3)
	if got := string(evs[0].Result); !strings.Contains(got, "slow") {
		t.Fatalf("first event = %s, want the slow frame", got)
	}
	if got := string(evs[1].Result); !strings.Contains(got, "fast") {
		t.Fatalf("second event = %s, want the fast frame", got)
	}
	if !evs[2].End || evs[2].Error != "" {
		t.Fatalf("terminal event = %+v, want a clean end", evs[2])
	}
	if !bytes.Equal(evs[0].Frame, []byte("slow")) {
		t.Fatalf("first event frame = %q", evs[0].Frame)
	}
}

func TestPipelineDropsFramesWithoutCapacity(t *testing.T) {
	slowGate := make(chan struct{})
	fastDone := make(chan struct{}, 1)

	pool, err := NewPool(context.Background(), 1, func(context.Context) (core.Analyzer, error) {
		return &scriptedAnalyzer{slowGate: slowGate, fastDone: fastDone}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	sink := &collectSink{}
	tc := &fakeTranscoder{stream: frameStream("slow", "slow", "slow")}
	p := newPipelineForTest(t, pool, tc, sink)
	defer p.Close()

	// Frame one holds the only slot; the next two must be shed.
	waitForDropped(t, p, 2)
	close(slowGate)

	evs := waitForEvents(t, sink, 2)
	if !strings.Contains(string(evs[0].Result), "slow") {
		t.Fatalf("first event = %s", evs[0].Result)
	}
	if !evs[1].End {
		t.Fatalf("terminal event = %+v, want End", evs[1])
	}
	if p.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", p.Dropped())
	}
}

func waitForDropped(t *testing.T, p *Pipeline, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Dropped() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d dropped frames, have %d", n, p.Dropped())
}

func TestPipelineReportsTranscoderFailure(t *testing.T) {
	pool, err := NewPool(context.Background(), 1, func(context.Context) (core.Analyzer, error) {
		return failingAnalyzer{}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	sink := &collectSink{}
	tc := &fakeTranscoder{stream: frameStream(), waitErr: errors.New("exit status 1")}
	p := newPipelineForTest(t, pool, tc, sink)
	defer p.Close()

	evs := waitForEvents(t, sink, 1)
	if evs[0].Error == "" || evs[0].End {
		t.Fatalf("terminal event = %+v, want an error", evs[0])
	}
}

func TestPipelineWorkerErrorsTravelToSink(t *testing.T) {
	pool, err := NewPool(context.Background(), 1, func(context.Context) (core.Analyzer, error) {
		return failingAnalyzer{}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	sink := &collectSink{}
	tc := &fakeTranscoder{stream: frameStream("frame")}
	p := newPipelineForTest(t, pool, tc, sink)
	defer p.Close()

	evs := waitForEvents(t, sink, 2)
	if evs[0].Error == "" {
		t.Fatalf("frame event = %+v, want a per-frame error", evs[0])
	}
	if !evs[1].End {
		t.Fatalf("terminal event = %+v, want a clean end", evs[1])
	}
}

func TestPipelineCloseKillsTranscoderAndRemovesSDP(t *testing.T) {
	slowGate := make(chan struct{})
	fastDone := make(chan struct{}, 1)
	pool, err := NewPool(context.Background(), 1, func(context.Context) (core.Analyzer, error) {
		return &scriptedAnalyzer{slowGate: slowGate, fastDone: fastDone}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "tmp/sdp/room-1.sdp", []byte("v=0\n"), 0o644); err != nil {
		t.Fatalf("seeding sdp: %v", err)
	}

	// A stream that only ends when the process is killed, like a real
	// transcoder's stdout.
	pr, pw := io.Pipe()
	tc := &fakeTranscoder{stream: pr}
	tc.onKill = func() { _ = pw.CloseWithError(errors.New("killed")) }
	p, err := StartPipeline(context.Background(), PipelineOptions{
		Room:       "room-1",
		Pool:       pool,
		Transcoder: tc,
		Sink:       &collectSink{},
		Delimiter:  NewLengthPrefixedDelimiter,
		SDPPath:    "tmp/sdp/room-1.sdp",
		FS:         fs,
	})
	if err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if !tc.wasKilled() {
		t.Fatal("transcoder not killed")
	}
	if ok, _ := afero.Exists(fs, "tmp/sdp/room-1.sdp"); ok {
		t.Fatal("sdp file still present after Close")
	}
	if _, err := pool.Submit(context.Background(), core.Job{}); !errors.Is(err, core.ErrPoolClosed) {
		t.Fatal("pool still accepting work after Close")
	}
}
