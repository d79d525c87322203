package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// webrtcTransport is an ICE/DTLS path negotiated without SDP: the local
// half is handed out as TransportInfo, the remote half arrives through
// Connect.
type webrtcTransport struct {
	id       string
	router   *router
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	info     domain.TransportInfo

	mu        sync.Mutex
	onClosed  func()
	notified  bool
	closeOnce sync.Once
}

func newWebRTCTransport(ctx context.Context, r *router) (*webrtcTransport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("new ice gatherer: %w", err)
	}
	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, fmt.Errorf("new dtls transport: %w", err)
	}

	gatherDone := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gatherDone)
		}
	})
	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("ice gather: %w", err)
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		return nil, fmt.Errorf("local ice candidates: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	t := &webrtcTransport{
		id:       newID(),
		router:   r,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}
	t.info = domain.TransportInfo{
		ID:             t.id,
		ICEParameters:  iceParamsOut(iceParams),
		ICECandidates:  iceCandidatesOut(candidates),
		DTLSParameters: dtlsParamsOut(dtlsParams),
	}

	ice.OnConnectionStateChange(func(state webrtc.ICETransportState) {
		log.Debug().Str("module", "sfu").Str("transport", t.id).Str("state", state.String()).Msg("ice state")
		switch state {
		case webrtc.ICETransportStateFailed, webrtc.ICETransportStateDisconnected, webrtc.ICETransportStateClosed:
			t.fireClosed()
		}
	})

	return t, nil
}

func (t *webrtcTransport) ID() string { return t.id }

func (t *webrtcTransport) Info() domain.TransportInfo { return t.info }

func (t *webrtcTransport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = fn
	t.mu.Unlock()
}

// fireClosed delivers the unsolicited-death notification at most once.
// An explicit Close never fires it; the closer already knows.
func (t *webrtcTransport) fireClosed() {
	t.mu.Lock()
	fn := t.onClosed
	fired := t.notified
	t.notified = true
	t.mu.Unlock()
	if fn != nil && !fired {
		fn()
	}
}

func (t *webrtcTransport) Connect(ctx context.Context, remote domain.TransportConnect) error {
	candidates, err := iceCandidatesIn(remote.ICECandidates)
	if err != nil {
		return err
	}
	if err := t.ice.SetRemoteCandidates(candidates); err != nil {
		return fmt.Errorf("set remote candidates: %w", err)
	}
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, iceParamsIn(remote.ICEParameters), &role); err != nil {
		return fmt.Errorf("ice start: %w", err)
	}
	if err := t.dtls.Start(dtlsParamsIn(remote.DTLSParameters)); err != nil {
		return fmt.Errorf("dtls start: %w", err)
	}
	log.Info().Str("module", "sfu").Str("transport", t.id).Msg("transport connected")
	return nil
}

func (t *webrtcTransport) Produce(ctx context.Context, kind domain.MediaKind, params domain.RTPParameters) (core.Producer, error) {
	receiver, err := t.router.api.NewRTPReceiver(webrtc.NewRTPCodecType(string(kind)), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new rtp receiver: %w", err)
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(params.SSRC),
				PayloadType: webrtc.PayloadType(params.PayloadType),
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("rtp receive: %w", err)
	}

	p := newProducer(t, kind, params, receiver)
	t.router.registerProducer(p)
	log.Info().Str("module", "sfu").Str("transport", t.id).Str("producer", p.id).Str("kind", string(kind)).Msg("producer created")
	return p, nil
}

func (t *webrtcTransport) Consume(ctx context.Context, prod core.Producer, caps domain.RTPCapabilities, paused bool) (core.Consumer, error) {
	p, ok := prod.(*producer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrProducerNotFound, prod.ID())
	}
	if !t.router.CanConsume(p.id, caps) {
		return nil, core.ErrCannotConsume
	}

	consumerID := newID()
	localTrack, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  p.params.MimeType,
		ClockRate: p.params.ClockRate,
	}, consumerID, "inveritas")
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := t.router.api.NewRTPSender(localTrack, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new rtp sender: %w", err)
	}
	sendParams := sender.GetParameters()
	if err := sender.Send(sendParams); err != nil {
		return nil, fmt.Errorf("rtp send: %w", err)
	}

	outParams := p.params
	if len(sendParams.Encodings) > 0 {
		outParams.SSRC = uint32(sendParams.Encodings[0].SSRC)
	}

	out := p.relay.attach(consumerID, paused, localTrack.WriteRTP)
	c := &consumer{
		id:    consumerID,
		kind:  p.kind,
		relay: p.relay,
		out:   out,
		info: domain.ConsumerInfo{
			ID:            consumerID,
			ProducerID:    p.id,
			Kind:          p.kind,
			RTPParameters: outParams,
			Type:          "simple",
		},
		stop: func() { _ = sender.Stop() },
	}
	log.Info().Str("module", "sfu").Str("transport", t.id).Str("consumer", consumerID).Bool("paused", paused).Msg("consumer created")
	return c, nil
}

func (t *webrtcTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.notified = true // suppress the unsolicited notification
		t.mu.Unlock()
		if stopErr := t.dtls.Stop(); stopErr != nil {
			err = stopErr
		}
		if stopErr := t.ice.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		if stopErr := t.gatherer.Close(); stopErr != nil && err == nil {
			err = stopErr
		}
		log.Info().Str("module", "sfu").Str("transport", t.id).Msg("transport closed")
	})
	return err
}
