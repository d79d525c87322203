package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// side selects which of the room's two WebRTC transports a message
// addresses.
type side int

const (
	sendSide side = iota
	recvSide
)

func (s side) String() string {
	if s == sendSide {
		return "producer"
	}
	return "consumer"
}

func (ctl *SignalWSController) handleRouterCapabilities(room domain.RoomKey, c *WsSignalConn) {
	caps, err := ctl.Orch.RouterCapabilities(room)
	if err != nil {
		ctl.sendError(c, "getRouterCapabilities", err)
		return
	}
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
		domain.RTPCapabilities
	}{Type: "routerCapabilities", RTPCapabilities: caps})
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, room domain.RoomKey, c *WsSignalConn, s side) {
	op := "create" + capitalized(s) + "Transport"

	var info domain.TransportInfo
	var err error
	if s == sendSide {
		info, err = ctl.Orch.CreateProducerTransport(ctx, room)
	} else {
		info, err = ctl.Orch.CreateConsumerTransport(ctx, room)
	}
	if err != nil {
		ctl.sendError(c, op, err)
		return
	}

	ctl.sendJSON(c, struct {
		Type string `json:"type"`
		domain.TransportInfo
	}{Type: s.String() + "TransportCreated", TransportInfo: info})
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, room domain.RoomKey, c *WsSignalConn, s side, data []byte) {
	op := "connect" + capitalized(s) + "Transport"

	var p domain.TransportConnect
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connect payload")
		ctl.sendError(c, op, err)
		return
	}

	var err error
	if s == sendSide {
		err = ctl.Orch.ConnectProducerTransport(ctx, room, p)
	} else {
		err = ctl.Orch.ConnectConsumerTransport(ctx, room, p)
	}
	if err != nil {
		ctl.sendError(c, op, err)
		return
	}

	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: s.String() + "TransportConnected"})
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, room domain.RoomKey, c *WsSignalConn, data []byte) {
	var p struct {
		Kind          domain.MediaKind     `json:"kind"`
		RTPParameters domain.RTPParameters `json:"rtpParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad produce payload")
		ctl.sendError(c, "produce", err)
		return
	}

	id, err := ctl.Orch.Produce(ctx, room, p.Kind, p.RTPParameters)
	if err != nil {
		ctl.sendError(c, "produce", err)
		return
	}
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: "produced", ID: id})
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, room domain.RoomKey, c *WsSignalConn, data []byte) {
	var p struct {
		RTPCapabilities domain.RTPCapabilities `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consume payload")
		ctl.sendError(c, "consume", err)
		return
	}

	info, err := ctl.Orch.Consume(ctx, room, p.RTPCapabilities)
	if err != nil {
		ctl.sendError(c, "consume", err)
		return
	}
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
		domain.ConsumerInfo
	}{Type: "consumed", ConsumerInfo: info})
}

func capitalized(s side) string {
	if s == sendSide {
		return "Producer"
	}
	return "Consumer"
}
