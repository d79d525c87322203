package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/config"
	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// Engine is the shared SFU worker. The underlying webrtc machinery is
// built lazily, once, on the first router request and shared across
// rooms.
type Engine struct {
	cfg config.SFUConfig

	once    sync.Once
	api     *webrtc.API
	caps    domain.RTPCapabilities
	initErr error
}

func NewEngine(cfg config.SFUConfig) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) init() {
	mediaEngine := &webrtc.MediaEngine{}
	for _, c := range e.cfg.Codecs {
		codecType := webrtc.NewRTPCodecType(c.Kind)
		err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  c.MimeType,
				ClockRate: c.ClockRate,
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}, codecType)
		if err != nil {
			e.initErr = fmt.Errorf("register codec %s: %w", c.MimeType, err)
			return
		}
		e.caps.Codecs = append(e.caps.Codecs, domain.RTPCodecCapability{
			Kind:        domain.MediaKind(c.Kind),
			MimeType:    c.MimeType,
			PayloadType: c.PayloadType,
			ClockRate:   c.ClockRate,
		})
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		e.initErr = fmt.Errorf("register interceptors: %w", err)
		return
	}

	settings := webrtc.SettingEngine{}
	if err := settings.SetEphemeralUDPPortRange(e.cfg.RTCMinPort, e.cfg.RTCMaxPort); err != nil {
		e.initErr = fmt.Errorf("set rtc port range: %w", err)
		return
	}
	if e.cfg.AnnouncedIP != "" {
		settings.SetNAT1To1IPs([]string{e.cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	e.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)
	log.Info().Str("module", "sfu").
		Uint16("rtc_min_port", e.cfg.RTCMinPort).
		Uint16("rtc_max_port", e.cfg.RTCMaxPort).
		Int("codecs", len(e.cfg.Codecs)).
		Msg("sfu worker initialized")
}

// CreateRouter builds a room-scoped routing context.
func (e *Engine) CreateRouter(ctx context.Context, room domain.RoomKey) (core.Router, error) {
	e.once.Do(e.init)
	if e.initErr != nil {
		return nil, e.initErr
	}
	r := &router{
		id:       uuid.NewString(),
		room:     room,
		api:      e.api,
		listenIP: e.cfg.ListenIP,
		caps:     e.caps,
	}
	log.Info().Str("module", "sfu").Str("room", string(room)).Str("router", r.id).Msg("router created")
	return r, nil
}
