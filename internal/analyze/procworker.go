package analyze

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
)

// procWorker is one inference subprocess. Frames go down stdin as a
// 4-byte big-endian length plus payload; the worker answers with one
// JSON line per frame on stdout. The pool holds the slot for the whole
// round trip, so the exchange is a plain request/response.
type procWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// CommandAnalyzerFactory spawns one worker subprocess per pool slot
// running the configured command.
func CommandAnalyzerFactory(command []string) core.AnalyzerFactory {
	return func(ctx context.Context) (core.Analyzer, error) {
		return startProcWorker(ctx, command)
	}
}

func startProcWorker(ctx context.Context, command []string) (*procWorker, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty analysis worker command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start analysis worker: %w", err)
	}
	log.Info().Str("module", "analyze.worker").Str("command", command[0]).Int("pid", cmd.Process.Pid).Msg("analysis worker started")
	return &procWorker{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

func (w *procWorker) Detect(ctx context.Context, frame []byte) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.stdin.Write(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("send frame header: %w", err)
	}
	if _, err := w.stdin.Write(frame); err != nil {
		return nil, fmt.Errorf("send frame: %w", err)
	}

	line, err := w.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read worker result: %w", err)
	}
	return json.RawMessage(bytes.TrimSpace(line)), nil
}

func (w *procWorker) Close() error {
	w.closeOnce.Do(func() {
		_ = w.stdin.Close()
		if w.cmd.Process != nil {
			_ = w.cmd.Process.Kill()
		}
		w.closeErr = w.cmd.Wait()
	})
	return w.closeErr
}
