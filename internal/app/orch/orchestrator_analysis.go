package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// StartAnalysis forks the room's publisher into the recording branch
// and launches the frame pipeline, streaming results to sink. A room
// runs at most one analysis; a second request fails with
// ErrAnalysisActive and leaves the running one untouched.
//
// The session lock is held for the whole setup so teardown cannot
// interleave with it: a disconnect arriving mid-start waits, then
// drains the fully-registered branch.
func (o *Orchestrator) StartAnalysis(ctx context.Context, room domain.RoomKey, sink core.AnalysisSink) error {
	o.mu.Lock()
	s, ok := o.sessions[room]
	o.mu.Unlock()
	if !ok {
		return core.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state >= domain.StateClosing:
		return core.ErrSessionNotFound
	case s.state == domain.StateAnalyzing:
		return core.ErrAnalysisActive
	case s.state != domain.StateActive:
		return core.ErrNoActivePublisher
	}

	routerRes, ok := o.registry.Get(room, domain.KindRouter)
	if !ok {
		return core.ErrSessionNotFound
	}
	router := routerRes.(core.Router)

	prodRes, ok := o.registry.Get(room, domain.KindProducer)
	if !ok {
		return core.ErrNoActivePublisher
	}
	producer := prodRes.(core.Producer)

	transport, err := router.CreatePlainTransport(ctx)
	if err != nil {
		return err
	}
	if err := o.registry.Put(room, domain.KindRecordingTransport, transport); err != nil {
		_ = transport.Close()
		return core.ErrAnalysisActive
	}

	sdpPath, err := o.recorder.Start(ctx, room, transport, producer)
	if err != nil {
		o.unwindRecording(room)
		return err
	}

	pipeline, err := o.analysis.Start(ctx, room, sdpPath, sink)
	if err != nil {
		o.unwindRecording(room)
		_ = o.recorder.Delete(room)
		return err
	}
	if err := o.registry.Put(room, domain.KindAnalysis, pipeline); err != nil {
		_ = pipeline.Close()
		o.unwindRecording(room)
		return err
	}

	s.state = domain.StateAnalyzing

	log.Info().
		Str("module", "orchestrator").
		Str("room", string(room)).
		Msg("analysis started")
	return nil
}

// unwindRecording tears down a half-built recording branch. The
// session itself stays up; the client may retry.
func (o *Orchestrator) unwindRecording(room domain.RoomKey) {
	if res, ok := o.registry.Remove(room, domain.KindRecordingTransport); ok {
		if err := res.Close(); err != nil {
			log.Warn().
				Err(err).
				Str("module", "orchestrator").
				Str("room", string(room)).
				Msg("closing recording transport")
		}
	}
}
