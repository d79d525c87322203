package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// CloseSession tears down everything the room owns, strictly from the
// edges inward: analysis first, then the recording branch, media, and
// finally the router. Close errors are logged and never abort the
// sweep. Safe to call more than once.
func (o *Orchestrator) CloseSession(room domain.RoomKey) {
	o.mu.Lock()
	s, ok := o.sessions[room]
	o.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.state >= domain.StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = domain.StateClosing
	drained := o.registry.DrainAll(room)
	s.mu.Unlock()

	for _, d := range drained {
		if err := d.Resource.Close(); err != nil {
			log.Warn().
				Err(err).
				Str("module", "orchestrator").
				Str("room", string(room)).
				Str("kind", string(d.Kind)).
				Msg("closing resource")
			continue
		}
		log.Debug().
			Str("module", "orchestrator").
			Str("room", string(room)).
			Str("kind", string(d.Kind)).
			Msg("resource closed")
	}

	s.mu.Lock()
	s.state = domain.StateClosed
	s.mu.Unlock()

	o.mu.Lock()
	delete(o.sessions, room)
	o.mu.Unlock()

	log.Info().
		Str("module", "orchestrator").
		Str("room", string(room)).
		Int("resources", len(drained)).
		Msg("session closed")
}
