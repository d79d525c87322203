package core

import (
	"context"
	"encoding/json"
	"io"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// Job is a single encoded frame bound to its room. Ephemeral: it lives
// from delimiting to the dispatcher's outcome.
type Job struct {
	Room  domain.RoomKey
	Frame []byte
}

// Outcome is the dispatcher's answer for one job.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// Analyzer is one inference worker. Detect is serialized per worker by
// the pool; implementations need not be safe for concurrent Detect.
type Analyzer interface {
	Detect(ctx context.Context, frame []byte) (json.RawMessage, error)
	Close() error
}

// AnalyzerFactory builds one pool member.
type AnalyzerFactory func(ctx context.Context) (Analyzer, error)

// Transcoder turns a persisted session description into a byte stream of
// encoded frames. Start must be called at most once per instance.
type Transcoder interface {
	Start(ctx context.Context, sdpPath string) (io.ReadCloser, error)
	// Wait reports the process exit condition once the stream has ended.
	Wait() error
	Kill() error
}

// TranscoderFactory builds one transcoder run.
type TranscoderFactory func() Transcoder

// AnalysisEvent is one entry of the pushed result stream. Frame is
// base64-encoded on the wire.
type AnalysisEvent struct {
	Frame  []byte          `json:"frame,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	End    bool            `json:"end,omitempty"`
}

// AnalysisSink receives the outbound event stream of one room. Emission
// must not block; slow sinks drop.
type AnalysisSink interface {
	AnalysisEvent(room domain.RoomKey, ev AnalysisEvent)
}

// AnalysisPipeline is the registry-tracked handle of a running analysis
// branch. Close stops dispatch, kills the transcoder and removes the
// persisted session description.
type AnalysisPipeline interface {
	Resource
}
