package orch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/app"
	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// AnalysisStarter launches the frame pipeline for a room once its
// recording branch has an SDP on disk.
type AnalysisStarter interface {
	Start(ctx context.Context, room domain.RoomKey, sdpPath string, sink core.AnalysisSink) (core.AnalysisPipeline, error)
}

// Orchestrator drives room sessions through their lifecycle: router
// creation, transport negotiation, media flow, analysis and teardown.
// Media-engine calls happen outside the session lock so a slow
// negotiation never stalls other rooms; every resource handed back by
// the engine is captured into the registry under the lock, or closed
// on the spot when the session died in the meantime.
type Orchestrator struct {
	registry *app.Registry
	engine   core.Engine
	recorder *Recorder
	analysis AnalysisStarter

	mu       sync.Mutex
	sessions map[domain.RoomKey]*session
}

type session struct {
	room domain.RoomKey

	mu    sync.Mutex
	state domain.SessionState
}

func New(registry *app.Registry, engine core.Engine, recorder *Recorder, analysis AnalysisStarter) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		engine:   engine,
		recorder: recorder,
		analysis: analysis,
		sessions: make(map[domain.RoomKey]*session),
	}
}

// EnsureSession creates the session and its router on first use.
// Calling it again for a live room is a no-op.
func (o *Orchestrator) EnsureSession(ctx context.Context, room domain.RoomKey) error {
	o.mu.Lock()
	s, ok := o.sessions[room]
	if !ok {
		s = &session{room: room}
		o.sessions[room] = s
	}
	o.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state >= domain.StateClosing {
		return core.ErrSessionNotFound
	}
	if s.state != domain.StateNew {
		return nil
	}

	router, err := o.engine.CreateRouter(ctx, room)
	if err != nil {
		return err
	}
	if err := o.registry.Put(room, domain.KindRouter, router); err != nil {
		_ = router.Close()
		return err
	}
	s.state = domain.StateRouterReady

	log.Info().
		Str("module", "orchestrator").
		Str("room", string(room)).
		Msg("session ready")
	return nil
}

// live returns the session when it exists and has not begun teardown.
func (o *Orchestrator) live(room domain.RoomKey) (*session, error) {
	o.mu.Lock()
	s, ok := o.sessions[room]
	o.mu.Unlock()
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateNew || s.state >= domain.StateClosing {
		return nil, core.ErrSessionNotFound
	}
	return s, nil
}

// capture registers an engine resource created outside the session
// lock. When the session started closing while the call was in
// flight, the resource is closed immediately instead of leaking.
func (o *Orchestrator) capture(s *session, kind domain.ResourceKind, res core.Resource) error {
	s.mu.Lock()
	if s.state >= domain.StateClosing {
		s.mu.Unlock()
		_ = res.Close()
		return core.ErrSessionNotFound
	}
	if err := o.registry.Put(s.room, kind, res); err != nil {
		s.mu.Unlock()
		_ = res.Close()
		return err
	}
	s.mu.Unlock()
	return nil
}

// advance moves the session forward; it never regresses the state.
func (s *session) advance(st domain.SessionState) {
	s.mu.Lock()
	if st > s.state {
		s.state = st
	}
	s.mu.Unlock()
}

// State reports the current lifecycle state of a room's session.
func (o *Orchestrator) State(room domain.RoomKey) (domain.SessionState, bool) {
	o.mu.Lock()
	s, ok := o.sessions[room]
	o.mu.Unlock()
	if !ok {
		return domain.StateClosed, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

func (o *Orchestrator) router(room domain.RoomKey) (core.Router, error) {
	res, ok := o.registry.Get(room, domain.KindRouter)
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return res.(core.Router), nil
}

func (o *Orchestrator) transport(room domain.RoomKey, kind domain.ResourceKind) (core.WebRTCTransport, error) {
	res, ok := o.registry.Get(room, kind)
	if !ok {
		return nil, core.ErrTransportNotFound
	}
	return res.(core.WebRTCTransport), nil
}
