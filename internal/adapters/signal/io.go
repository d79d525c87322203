package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, room domain.RoomKey, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("room", string(room)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.limiter.Forget(room)
		ctl.Orch.CloseSession(room)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("room", string(room)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("room", string(room)).Msg("readPump read error")
				return
			}
			if !ctl.limiter.Allow(room) {
				log.Warn().Str("module", "signal").Str("room", string(room)).Msg("rate limited")
				continue
			}
			ctl.handleSignal(ctx, room, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, room domain.RoomKey, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "getRouterCapabilities":
		ctl.handleRouterCapabilities(room, c)
	case "createProducerTransport":
		ctl.handleCreateTransport(ctx, room, c, sendSide)
	case "createConsumerTransport":
		ctl.handleCreateTransport(ctx, room, c, recvSide)
	case "connectProducerTransport":
		ctl.handleConnectTransport(ctx, room, c, sendSide, data)
	case "connectConsumerTransport":
		ctl.handleConnectTransport(ctx, room, c, recvSide, data)
	case "produce":
		ctl.handleProduce(ctx, room, c, data)
	case "consume":
		ctl.handleConsume(ctx, room, c, data)
	case "startAnalysis", "startRecording":
		ctl.handleStartAnalysis(ctx, room, c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, map[string]string{"type": "pong"})
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, op string, err error) {
	ctl.sendJSON(c, struct {
		Type  string `json:"type"`
		Op    string `json:"op"`
		Error string `json:"error"`
	}{Type: "error", Op: op, Error: err.Error()})
}
