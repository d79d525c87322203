package transcode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/config"
	"github.com/peppoasap/InVeritas/internal/core"
)

// FFmpeg decodes the recording branch's RTP stream into a sequence of
// JPEG frames on stdout, driven by a persisted session description.
// One instance runs one transcode; it implements core.Transcoder.
type FFmpeg struct {
	cfg config.TranscoderConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	killed bool

	waited  chan struct{}
	waitErr error
}

func NewFFmpeg(cfg config.TranscoderConfig) *FFmpeg {
	return &FFmpeg{cfg: cfg, waited: make(chan struct{})}
}

// Factory returns a core.TranscoderFactory producing one FFmpeg run per
// call.
func Factory(cfg config.TranscoderConfig) core.TranscoderFactory {
	return func() core.Transcoder { return NewFFmpeg(cfg) }
}

func (f *FFmpeg) args(sdpPath string) []string {
	return []string{
		"-nostdin",
		"-protocol_whitelist", "file,udp,rtp",
		"-f", "sdp",
		"-i", sdpPath,
		"-an",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-s", f.cfg.OutputSize,
		"-r", fmt.Sprintf("%d", f.cfg.FPS),
		"-f", "image2pipe",
		"pipe:1",
	}
}

// Start spawns the transcoder and returns its frame stream. The stream
// ends when the process exits; Wait reports how it went.
func (f *FFmpeg) Start(ctx context.Context, sdpPath string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd != nil {
		return nil, fmt.Errorf("transcoder already started")
	}

	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath, f.args(sdpPath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transcoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start transcoder: %w", err)
	}
	f.cmd = cmd

	log.Info().Str("module", "transcode").Str("sdp", sdpPath).Int("pid", cmd.Process.Pid).Msg("transcoder started")

	go func() {
		err := cmd.Wait()
		f.mu.Lock()
		f.waitErr = err
		f.mu.Unlock()
		close(f.waited)
		log.Info().Err(err).Str("module", "transcode").Str("sdp", sdpPath).Msg("transcoder exited")
	}()

	return stdout, nil
}

// Wait blocks until the process has exited and returns its exit error.
// A kill requested through Kill is reported as a clean end.
func (f *FFmpeg) Wait() error {
	<-f.waited
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.killed {
		return nil
	}
	return f.waitErr
}

// Kill terminates the transcoder process. Idempotent; safe to call
// before Start.
func (f *FFmpeg) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil || f.killed {
		return nil
	}
	f.killed = true
	if f.cmd.Process != nil {
		return f.cmd.Process.Kill()
	}
	return nil
}
