package transcode

import (
	"reflect"
	"testing"

	"github.com/peppoasap/InVeritas/internal/config"
)

func TestFFmpegArgs(t *testing.T) {
	f := NewFFmpeg(config.TranscoderConfig{
		FFmpegPath: "ffmpeg",
		OutputSize: "320x240",
		FPS:        10,
	})

	got := f.args("tmp/sdp/room-1.sdp")
	want := []string{
		"-nostdin",
		"-protocol_whitelist", "file,udp,rtp",
		"-f", "sdp",
		"-i", "tmp/sdp/room-1.sdp",
		"-an",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-s", "320x240",
		"-r", "10",
		"-f", "image2pipe",
		"pipe:1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestFFmpegKillBeforeStart(t *testing.T) {
	f := NewFFmpeg(config.TranscoderConfig{FFmpegPath: "ffmpeg"})
	if err := f.Kill(); err != nil {
		t.Fatalf("Kill before Start: %v", err)
	}
}
