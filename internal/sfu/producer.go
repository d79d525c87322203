package sfu

import (
	"context"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// producer owns the single read loop on its remote track and fans the
// packets out to whatever consumers are attached to its relay.
type producer struct {
	id        string
	kind      domain.MediaKind
	params    domain.RTPParameters
	transport *webrtcTransport
	receiver  *webrtc.RTPReceiver
	relay     *relay

	cancel context.CancelFunc
	once   sync.Once
}

func newProducer(t *webrtcTransport, kind domain.MediaKind, params domain.RTPParameters, receiver *webrtc.RTPReceiver) *producer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &producer{
		id:        newID(),
		kind:      kind,
		params:    params,
		transport: t,
		receiver:  receiver,
		relay:     newRelay(receiver.Track()),
		cancel:    cancel,
	}
	go p.relay.loop(ctx, p.id)
	return p
}

func (p *producer) ID() string                   { return p.id }
func (p *producer) Kind() domain.MediaKind       { return p.kind }
func (p *producer) Params() domain.RTPParameters { return p.params }

// writeRTCP sends feedback toward the producing peer over the owning
// transport. Used for keyframe requests from the recording branch.
func (p *producer) writeRTCP(pkts []rtcp.Packet) error {
	_, err := p.transport.dtls.WriteRTCP(pkts)
	return err
}

func (p *producer) Close() error {
	p.once.Do(func() {
		p.cancel()
		_ = p.receiver.Stop()
		p.relay.markAllDead()
		p.transport.router.unregisterProducer(p.id)
	})
	return nil
}
