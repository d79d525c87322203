package analyze

import (
	"context"

	"github.com/spf13/afero"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// Launcher assembles a worker pool, a transcoder and a pipeline for
// one analysis run. Each run gets its own pool so a dying worker in
// one room never degrades another.
type Launcher struct {
	Workers     int
	Analyzers   core.AnalyzerFactory
	Transcoders core.TranscoderFactory
	Delimiters  DelimiterFactory
	FS          afero.Fs
}

// Start spins up the pool and the pipeline for room. The returned
// pipeline owns both; closing it stops the transcoder, drains the
// emitter and shuts the workers down.
//
// The run is deliberately detached from the caller's context: its
// lifetime is ownership-driven, ended only by an explicit Close or by
// the transcoder stream finishing.
func (l *Launcher) Start(_ context.Context, room domain.RoomKey, sdpPath string, sink core.AnalysisSink) (core.AnalysisPipeline, error) {
	runCtx := context.Background()

	pool, err := NewPool(runCtx, l.Workers, l.Analyzers)
	if err != nil {
		return nil, err
	}
	p, err := StartPipeline(runCtx, PipelineOptions{
		Room:       room,
		Pool:       pool,
		Transcoder: l.Transcoders(),
		Sink:       sink,
		Delimiter:  l.Delimiters,
		SDPPath:    sdpPath,
		FS:         l.FS,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}
