package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// Drained is one entry of an atomic teardown snapshot.
type Drained struct {
	Kind     domain.ResourceKind
	Resource core.Resource
}

// Registry is the per-room map of live resources: the single source of
// truth for what must be torn down. It only mutates the map; it never
// calls into the engine or the analysis branch.
type Registry struct {
	mu    sync.Mutex
	rooms map[domain.RoomKey]map[domain.ResourceKind]core.Resource
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomKey]map[domain.ResourceKind]core.Resource),
	}
}

// Put registers a resource under (room, kind). A second live resource of
// the same kind is refused with ErrResourceExists; replacing without
// closing is never done here.
func (r *Registry) Put(room domain.RoomKey, kind domain.ResourceKind, res core.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds, ok := r.rooms[room]
	if !ok {
		kinds = make(map[domain.ResourceKind]core.Resource)
		r.rooms[room] = kinds
	}
	if _, busy := kinds[kind]; busy {
		return core.ErrResourceExists
	}
	kinds[kind] = res
	log.Debug().Str("module", "app.registry").Str("room", string(room)).Str("kind", string(kind)).Str("id", res.ID()).Msg("registered resource")
	return nil
}

func (r *Registry) Get(room domain.RoomKey, kind domain.ResourceKind) (core.Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds, ok := r.rooms[room]
	if !ok {
		return nil, false
	}
	res, ok := kinds[kind]
	return res, ok
}

// Remove unregisters and returns the resource under (room, kind), if any.
// The caller owns the returned handle and is responsible for closing it.
func (r *Registry) Remove(room domain.RoomKey, kind domain.ResourceKind) (core.Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds, ok := r.rooms[room]
	if !ok {
		return nil, false
	}
	res, ok := kinds[kind]
	if ok {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(r.rooms, room)
		}
	}
	return res, ok
}

// DrainAll atomically removes and returns every resource registered for a
// room, ordered by teardown dependency order. After DrainAll no other
// party can observe a half-torn-down session through the registry.
func (r *Registry) DrainAll(room domain.RoomKey) []Drained {
	r.mu.Lock()
	kinds, ok := r.rooms[room]
	delete(r.rooms, room)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	out := make([]Drained, 0, len(kinds))
	for _, kind := range domain.TeardownOrder {
		if res, ok := kinds[kind]; ok {
			out = append(out, Drained{Kind: kind, Resource: res})
		}
	}
	log.Info().Str("module", "app.registry").Str("room", string(room)).Int("resources", len(out)).Msg("drained session resources")
	return out
}
