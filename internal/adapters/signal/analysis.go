package signal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

func (ctl *SignalWSController) handleStartAnalysis(ctx context.Context, room domain.RoomKey, c *WsSignalConn) {
	sink := &analysisSink{conn: c}
	err := ctl.Orch.StartAnalysis(ctx, room, sink)
	switch {
	case errors.Is(err, core.ErrAnalysisActive):
		ctl.sendJSON(c, struct {
			Type          string `json:"type"`
			AlreadyActive bool   `json:"alreadyActive"`
		}{Type: "analysisStarted", AlreadyActive: true})
	case err != nil:
		ctl.sendError(c, "startAnalysis", err)
	default:
		ctl.sendJSON(c, struct {
			Type string `json:"type"`
		}{Type: "analysisStarted"})
	}
}

// analysisSink pushes pipeline results onto the room's socket. Frames
// travel base64-encoded inside the JSON envelope; a full send buffer
// drops the event rather than stalling the pipeline.
type analysisSink struct {
	conn *WsSignalConn
}

func (s *analysisSink) AnalysisEvent(room domain.RoomKey, ev core.AnalysisEvent) {
	out := struct {
		Type   string          `json:"type"`
		Frame  string          `json:"frame,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
		Error  string          `json:"error,omitempty"`
		End    bool            `json:"end,omitempty"`
	}{
		Type:   "analysisResult",
		Result: ev.Result,
		Error:  ev.Error,
		End:    ev.End,
	}
	if len(ev.Frame) > 0 {
		out.Frame = base64.StdEncoding.EncodeToString(ev.Frame)
	}

	b, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("analysis event marshal")
		return
	}
	if err := s.conn.TrySend(b); err != nil {
		log.Warn().
			Str("module", "signal").
			Str("room", string(room)).
			Msg("analysis event dropped")
	}
}
