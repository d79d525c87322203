package sfu

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

const keyframeInterval = 2 * time.Second

// plainTransport pushes a producer's RTP to a fixed local sink over
// plain UDP. This is the recording branch's network leg; the transcoder
// listens on the remote side.
type plainTransport struct {
	id       string
	router   *router
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	mu         sync.Mutex
	remoteRTP  *net.UDPAddr
	remoteRTCP *net.UDPAddr
	consumer   *consumer
	cancelPLI  context.CancelFunc

	once sync.Once
}

func newPlainTransport(r *router) (*plainTransport, error) {
	listenIP := net.ParseIP(r.listenIP)
	if listenIP == nil {
		return nil, fmt.Errorf("invalid listen ip %q", r.listenIP)
	}
	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP})
	if err != nil {
		return nil, fmt.Errorf("listen rtp: %w", err)
	}
	rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP})
	if err != nil {
		_ = rtpConn.Close()
		return nil, fmt.Errorf("listen rtcp: %w", err)
	}
	return &plainTransport{
		id:       newID(),
		router:   r,
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
	}, nil
}

func (t *plainTransport) ID() string { return t.id }

func (t *plainTransport) Tuple() domain.TransportTuple {
	local := t.rtpConn.LocalAddr().(*net.UDPAddr)
	tuple := domain.TransportTuple{
		LocalIP:   local.IP.String(),
		LocalPort: local.Port,
		Protocol:  "udp",
	}
	t.mu.Lock()
	if t.remoteRTP != nil {
		tuple.RemoteIP = t.remoteRTP.IP.String()
		tuple.RemotePort = t.remoteRTP.Port
	}
	t.mu.Unlock()
	return tuple
}

func (t *plainTransport) Connect(ctx context.Context, remote domain.PlainConnect) error {
	rtpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", remote.IP, remote.Port))
	if err != nil {
		return fmt.Errorf("resolve rtp sink: %w", err)
	}
	rtcpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", remote.IP, remote.RTCPPort))
	if err != nil {
		return fmt.Errorf("resolve rtcp sink: %w", err)
	}
	t.mu.Lock()
	t.remoteRTP = rtpAddr
	t.remoteRTCP = rtcpAddr
	t.mu.Unlock()

	// Whatever the sink reports back on RTCP is drained and discarded.
	go t.drainRTCP()

	tuple := t.Tuple()
	log.Info().Str("module", "sfu").Str("transport", t.id).
		Str("local", fmt.Sprintf("%s:%d", tuple.LocalIP, tuple.LocalPort)).
		Str("remote", fmt.Sprintf("%s:%d", tuple.RemoteIP, tuple.RemotePort)).
		Int("rtcp_port", remote.RTCPPort).
		Msg("plain transport connected")
	return nil
}

func (t *plainTransport) drainRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := t.rtcpConn.ReadFromUDP(buf); err != nil {
			return
		}
	}
}

func (t *plainTransport) Consume(ctx context.Context, prod core.Producer, paused bool) (core.Consumer, error) {
	p, ok := prod.(*producer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrProducerNotFound, prod.ID())
	}
	t.mu.Lock()
	if t.remoteRTP == nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("plain transport %s is not connected", t.id)
	}
	if t.consumer != nil {
		t.mu.Unlock()
		return nil, core.ErrResourceExists
	}
	remote := t.remoteRTP
	t.mu.Unlock()

	consumerID := newID()
	out := p.relay.attach(consumerID, paused, func(pkt *rtp.Packet) error {
		buf, err := pkt.Marshal()
		if err != nil {
			return err
		}
		_, err = t.rtpConn.WriteToUDP(buf, remote)
		return err
	})

	pliCtx, cancel := context.WithCancel(context.Background())
	go t.keyframeLoop(pliCtx, p)

	c := &consumer{
		id:    consumerID,
		kind:  p.kind,
		relay: p.relay,
		out:   out,
		info: domain.ConsumerInfo{
			ID:            consumerID,
			ProducerID:    p.id,
			Kind:          p.kind,
			RTPParameters: p.params,
			Type:          "plain",
		},
		stop: cancel,
	}

	t.mu.Lock()
	t.consumer = c
	t.cancelPLI = cancel
	t.mu.Unlock()

	log.Info().Str("module", "sfu").Str("transport", t.id).Str("consumer", consumerID).Bool("paused", paused).Msg("plain consumer created")
	return c, nil
}

// keyframeLoop periodically asks the producing peer for a keyframe so
// the downstream decoder can always sync onto the stream.
func (t *plainTransport) keyframeLoop(ctx context.Context, p *producer) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pli := &rtcp.PictureLossIndication{MediaSSRC: p.params.SSRC}
			if err := p.writeRTCP([]rtcp.Packet{pli}); err != nil {
				log.Debug().Err(err).Str("module", "sfu").Str("transport", t.id).Msg("keyframe request failed")
			}
		}
	}
}

func (t *plainTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		c := t.consumer
		cancel := t.cancelPLI
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if c != nil {
			_ = c.Close()
		}
		if closeErr := t.rtpConn.Close(); closeErr != nil {
			err = closeErr
		}
		if closeErr := t.rtcpConn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		log.Info().Str("module", "sfu").Str("transport", t.id).Msg("plain transport closed")
	})
	return err
}
