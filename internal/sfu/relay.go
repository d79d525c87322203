package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type outputState int32

const (
	outputLive outputState = iota
	outputPaused
	outputDead
)

// relayOutput is one attached packet sink. The state flag is the
// pause/resume and detach mechanism; the relay loop skips paused outputs
// and drops dead ones on its next pass.
type relayOutput struct {
	id    string
	write func(*rtp.Packet) error
	state atomic.Int32
}

func (o *relayOutput) getState() outputState  { return outputState(o.state.Load()) }
func (o *relayOutput) setState(s outputState) { o.state.Store(int32(s)) }

// relay reads RTP packets from one source track and forwards them to all
// live outputs.
type relay struct {
	src *webrtc.TrackRemote

	mu      sync.RWMutex
	outputs map[string]*relayOutput
}

func newRelay(src *webrtc.TrackRemote) *relay {
	return &relay{
		src:     src,
		outputs: make(map[string]*relayOutput),
	}
}

func (r *relay) attach(id string, paused bool, write func(*rtp.Packet) error) *relayOutput {
	out := &relayOutput{id: id, write: write}
	if paused {
		out.setState(outputPaused)
	}
	r.mu.Lock()
	r.outputs[id] = out
	r.mu.Unlock()
	return out
}

func (r *relay) detach(id string) {
	r.mu.Lock()
	if out, ok := r.outputs[id]; ok {
		out.setState(outputDead)
		delete(r.outputs, id)
	}
	r.mu.Unlock()
}

func (r *relay) loop(ctx context.Context, producerID string) {
	logger := log.With().Str("module", "sfu.relay").Str("producer", producerID).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done")
			r.markAllDead()
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay read RTP ended")
			r.markAllDead()
			return
		}
		r.forward(pkt, &logger)
	}
}

func (r *relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	snapshot := make(map[string]*relayOutput, len(r.outputs))
	r.mu.RLock()
	maps.Copy(snapshot, r.outputs)
	r.mu.RUnlock()

	var dirty []string
	for id, out := range snapshot {
		switch out.getState() {
		case outputDead:
			dirty = append(dirty, id)
		case outputPaused:
		case outputLive:
			if err := out.write(pkt); err != nil {
				logger.Warn().Err(err).Str("output", id).Msg("relay write error, dropping output")
				out.setState(outputDead)
				dirty = append(dirty, id)
			}
		}
	}

	// Cleanup happens outside the RLock.
	if len(dirty) > 0 {
		r.mu.Lock()
		for _, id := range dirty {
			delete(r.outputs, id)
		}
		r.mu.Unlock()
	}
}

func (r *relay) markAllDead() {
	r.mu.Lock()
	for _, out := range r.outputs {
		out.setState(outputDead)
	}
	r.mu.Unlock()
}
