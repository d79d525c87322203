package orch

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/peppoasap/InVeritas/internal/config"
	"github.com/peppoasap/InVeritas/internal/domain"
)

func TestRecorderWritesSessionDescription(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := NewRecorder(config.RecordingConfig{
		IP:       "127.0.0.1",
		Port:     5006,
		RTCPPort: 5007,
		SDPDir:   "tmp/sdp",
	}, fs)

	transport := &fakePlainTransport{fakeResource: fakeResource{id: "plain"}}
	producer := &fakeProducer{
		fakeResource: fakeResource{id: "prod"},
		kind:         domain.MediaVideo,
		params:       domain.RTPParameters{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000, SSRC: 42},
	}

	path, err := rec.Start(context.Background(), "room-1", transport, producer)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if path != rec.Path("room-1") {
		t.Fatalf("path = %q, want %q", path, rec.Path("room-1"))
	}

	body, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading sdp: %v", err)
	}
	sdp := string(body)
	for _, want := range []string{
		"c=IN IP4 127.0.0.1",
		"m=video 5006 RTP/AVPF 96",
		"a=rtcp:5007",
		"a=rtpmap:96 VP8/90000",
		"a=recvonly",
	} {
		if !strings.Contains(sdp, want) {
			t.Errorf("sdp missing %q:\n%s", want, sdp)
		}
	}

	if transport.remote.IP != "127.0.0.1" || transport.remote.Port != 5006 || transport.remote.RTCPPort != 5007 {
		t.Fatalf("transport connected to %+v", transport.remote)
	}
	if transport.consumer == nil {
		t.Fatal("no recording consumer created")
	}
	if transport.consumer.paused {
		t.Fatal("recording consumer still paused after Start")
	}
}

func TestRecorderDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := NewRecorder(config.RecordingConfig{IP: "127.0.0.1", Port: 5006, RTCPPort: 5007, SDPDir: "tmp/sdp"}, fs)

	transport := &fakePlainTransport{fakeResource: fakeResource{id: "plain"}}
	producer := &fakeProducer{
		fakeResource: fakeResource{id: "prod"},
		kind:         domain.MediaVideo,
		params:       domain.RTPParameters{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
	}
	if _, err := rec.Start(context.Background(), "room-1", transport, producer); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Delete("room-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := afero.Exists(fs, rec.Path("room-1")); ok {
		t.Fatal("sdp file still present after Delete")
	}
}
