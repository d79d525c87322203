package orch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/peppoasap/InVeritas/internal/config"
	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// Recorder wires a room's publisher into the fixed local RTP sink the
// transcoder reads from. The consumer is created paused, the session
// description is persisted first, and only then does media start
// flowing: the transcoder must never race its own input description.
type Recorder struct {
	cfg config.RecordingConfig
	fs  afero.Fs
}

func NewRecorder(cfg config.RecordingConfig, fs afero.Fs) *Recorder {
	return &Recorder{cfg: cfg, fs: fs}
}

// Start connects the plain transport to the sink, forks the producer
// into it and writes the room's SDP. It returns the SDP path. The
// transport is owned by the caller; on error the caller unwinds it.
func (r *Recorder) Start(ctx context.Context, room domain.RoomKey, transport core.PlainTransport, producer core.Producer) (string, error) {
	err := transport.Connect(ctx, domain.PlainConnect{
		IP:       r.cfg.IP,
		Port:     r.cfg.Port,
		RTCPPort: r.cfg.RTCPPort,
	})
	if err != nil {
		return "", fmt.Errorf("connect recording transport: %w", err)
	}

	consumer, err := transport.Consume(ctx, producer, true)
	if err != nil {
		return "", fmt.Errorf("fork producer: %w", err)
	}

	params := producer.Params()
	desc := domain.SessionDescriptor{
		Room:        room,
		Address:     r.cfg.IP,
		Port:        r.cfg.Port,
		RTCPPort:    r.cfg.RTCPPort,
		Kind:        producer.Kind(),
		CodecName:   codecName(params.MimeType),
		ClockRate:   params.ClockRate,
		PayloadType: params.PayloadType,
	}
	path, err := r.persist(desc)
	if err != nil {
		_ = consumer.Close()
		return "", err
	}

	if err := consumer.Resume(); err != nil {
		_ = consumer.Close()
		_ = r.Delete(room)
		return "", fmt.Errorf("resume recording consumer: %w", err)
	}

	log.Info().
		Str("module", "recorder").
		Str("room", string(room)).
		Str("sdp", path).
		Msg("recording branch started")
	return path, nil
}

// Path returns where the room's SDP lives on the recorder filesystem.
func (r *Recorder) Path(room domain.RoomKey) string {
	return filepath.Join(r.cfg.SDPDir, string(room)+".sdp")
}

// Delete removes the room's SDP file.
func (r *Recorder) Delete(room domain.RoomKey) error {
	return r.fs.Remove(r.Path(room))
}

func (r *Recorder) persist(desc domain.SessionDescriptor) (string, error) {
	body, err := marshalDescriptor(desc)
	if err != nil {
		return "", err
	}
	if err := r.fs.MkdirAll(r.cfg.SDPDir, 0o755); err != nil {
		return "", fmt.Errorf("create sdp dir: %w", err)
	}
	path := r.Path(desc.Room)
	if err := afero.WriteFile(r.fs, path, body, 0o644); err != nil {
		return "", fmt.Errorf("write sdp: %w", err)
	}
	return path, nil
}

func marshalDescriptor(desc domain.SessionDescriptor) ([]byte, error) {
	pt := strconv.Itoa(int(desc.PayloadType))
	sd := sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: desc.Address,
		},
		SessionName: sdp.SessionName("InVeritas " + string(desc.Room)),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: desc.Address},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   string(desc.Kind),
				Port:    sdp.RangedPort{Value: desc.Port},
				Protos:  []string{"RTP", "AVPF"},
				Formats: []string{pt},
			},
			Attributes: []sdp.Attribute{
				sdp.NewAttribute("rtcp", strconv.Itoa(desc.RTCPPort)),
				sdp.NewAttribute("rtpmap", fmt.Sprintf("%s %s/%d", pt, desc.CodecName, desc.ClockRate)),
				sdp.NewAttribute("rtcp-fb", pt+" nack pli"),
				sdp.NewPropertyAttribute("recvonly"),
			},
		}},
	}
	return sd.Marshal()
}

// codecName extracts the SDP codec name from a mime type, so
// "video/VP8" becomes "VP8".
func codecName(mime string) string {
	if i := strings.IndexByte(mime, '/'); i >= 0 {
		return mime[i+1:]
	}
	return mime
}
