package sfu

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// router scopes transports, producers and consumers to one room.
type router struct {
	id       string
	room     domain.RoomKey
	api      *webrtc.API
	listenIP string
	caps     domain.RTPCapabilities

	mu        sync.Mutex
	closed    bool
	children  []core.Resource
	producers map[string]*producer
}

func (r *router) ID() string { return r.id }

func (r *router) Capabilities() domain.RTPCapabilities { return r.caps }

func (r *router) CanConsume(producerID string, caps domain.RTPCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, p.params.MimeType) {
			return true
		}
	}
	return false
}

func (r *router) CreateWebRTCTransport(ctx context.Context) (core.WebRTCTransport, error) {
	t, err := newWebRTCTransport(ctx, r)
	if err != nil {
		return nil, err
	}
	r.addChild(t)
	return t, nil
}

func (r *router) CreatePlainTransport(ctx context.Context) (core.PlainTransport, error) {
	t, err := newPlainTransport(r)
	if err != nil {
		return nil, err
	}
	r.addChild(t)
	return t, nil
}

func (r *router) addChild(res core.Resource) {
	r.mu.Lock()
	r.children = append(r.children, res)
	r.mu.Unlock()
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	if r.producers == nil {
		r.producers = make(map[string]*producer)
	}
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) unregisterProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *router) producerByID(id string) (*producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

// Close releases every transport still owned by the router. Children
// closed individually beforehand are no-ops here.
func (r *router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	children := r.children
	r.children = nil
	r.mu.Unlock()

	for _, child := range children {
		if err := child.Close(); err != nil {
			log.Warn().Err(err).Str("module", "sfu").Str("router", r.id).Str("child", child.ID()).Msg("closing router child")
		}
	}
	log.Info().Str("module", "sfu").Str("room", string(r.room)).Str("router", r.id).Msg("router closed")
	return nil
}

func newID() string { return uuid.NewString() }
