package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// RouterCapabilities returns the RTP capabilities clients need before
// they can negotiate transports for the room.
func (o *Orchestrator) RouterCapabilities(room domain.RoomKey) (domain.RTPCapabilities, error) {
	if _, err := o.live(room); err != nil {
		return domain.RTPCapabilities{}, err
	}
	router, err := o.router(room)
	if err != nil {
		return domain.RTPCapabilities{}, err
	}
	return router.Capabilities(), nil
}

// CreateProducerTransport allocates the room's send-side transport and
// returns the parameters the client needs to connect to it.
func (o *Orchestrator) CreateProducerTransport(ctx context.Context, room domain.RoomKey) (domain.TransportInfo, error) {
	return o.createTransport(ctx, room, domain.KindProducerTransport)
}

// CreateConsumerTransport allocates the room's receive-side transport.
func (o *Orchestrator) CreateConsumerTransport(ctx context.Context, room domain.RoomKey) (domain.TransportInfo, error) {
	return o.createTransport(ctx, room, domain.KindConsumerTransport)
}

func (o *Orchestrator) createTransport(ctx context.Context, room domain.RoomKey, kind domain.ResourceKind) (domain.TransportInfo, error) {
	s, err := o.live(room)
	if err != nil {
		return domain.TransportInfo{}, err
	}
	router, err := o.router(room)
	if err != nil {
		return domain.TransportInfo{}, err
	}

	t, err := router.CreateWebRTCTransport(ctx)
	if err != nil {
		return domain.TransportInfo{}, err
	}

	// An engine-initiated death (ICE failure, DTLS close) tears the
	// whole session down, same as a client disconnect.
	t.OnClosed(func() {
		log.Warn().
			Str("module", "orchestrator").
			Str("room", string(room)).
			Str("transport", t.ID()).
			Msg("transport died, closing session")
		go o.CloseSession(room)
	})

	if err := o.capture(s, kind, t); err != nil {
		return domain.TransportInfo{}, err
	}
	s.advance(domain.StateNegotiating)

	log.Debug().
		Str("module", "orchestrator").
		Str("room", string(room)).
		Str("kind", string(kind)).
		Str("transport", t.ID()).
		Msg("transport created")
	return t.Info(), nil
}

// ConnectProducerTransport finishes DTLS/ICE setup on the send side.
func (o *Orchestrator) ConnectProducerTransport(ctx context.Context, room domain.RoomKey, connect domain.TransportConnect) error {
	return o.connectTransport(ctx, room, domain.KindProducerTransport, connect)
}

// ConnectConsumerTransport finishes DTLS/ICE setup on the receive side.
func (o *Orchestrator) ConnectConsumerTransport(ctx context.Context, room domain.RoomKey, connect domain.TransportConnect) error {
	return o.connectTransport(ctx, room, domain.KindConsumerTransport, connect)
}

func (o *Orchestrator) connectTransport(ctx context.Context, room domain.RoomKey, kind domain.ResourceKind, connect domain.TransportConnect) error {
	if _, err := o.live(room); err != nil {
		return err
	}
	t, err := o.transport(room, kind)
	if err != nil {
		return err
	}
	return t.Connect(ctx, connect)
}

// Produce attaches the client's outgoing media stream to the room and
// returns the producer id. The engine call runs outside the session
// lock; when the session closes mid-call the fresh producer is closed
// instead of registered.
func (o *Orchestrator) Produce(ctx context.Context, room domain.RoomKey, kind domain.MediaKind, params domain.RTPParameters) (string, error) {
	s, err := o.live(room)
	if err != nil {
		return "", err
	}
	t, err := o.transport(room, domain.KindProducerTransport)
	if err != nil {
		return "", err
	}

	producer, err := t.Produce(ctx, kind, params)
	if err != nil {
		return "", err
	}
	if err := o.capture(s, domain.KindProducer, producer); err != nil {
		return "", err
	}
	s.advance(domain.StateActive)

	log.Info().
		Str("module", "orchestrator").
		Str("room", string(room)).
		Str("producer", producer.ID()).
		Str("media", string(kind)).
		Msg("producing")
	return producer.ID(), nil
}

// Consume subscribes the room's viewer to the active publisher. The
// consumer starts unpaused.
func (o *Orchestrator) Consume(ctx context.Context, room domain.RoomKey, caps domain.RTPCapabilities) (domain.ConsumerInfo, error) {
	s, err := o.live(room)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	router, err := o.router(room)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	prodRes, ok := o.registry.Get(room, domain.KindProducer)
	if !ok {
		return domain.ConsumerInfo{}, core.ErrNoActivePublisher
	}
	producer := prodRes.(core.Producer)

	if !router.CanConsume(producer.ID(), caps) {
		return domain.ConsumerInfo{}, core.ErrCannotConsume
	}
	t, err := o.transport(room, domain.KindConsumerTransport)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}

	consumer, err := t.Consume(ctx, producer, caps, false)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	if err := o.capture(s, domain.KindConsumer, consumer); err != nil {
		return domain.ConsumerInfo{}, err
	}

	log.Info().
		Str("module", "orchestrator").
		Str("room", string(room)).
		Str("consumer", consumer.ID()).
		Msg("consuming")
	return consumer.Info(), nil
}
