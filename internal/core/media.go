package core

import (
	"context"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// Resource is the common surface of every handle tracked by the session
// registry. A handle is an opaque capability: the session stores it,
// forwards calls to it and releases it exactly once.
type Resource interface {
	ID() string
	Close() error
}

// Engine is the shared SFU worker. The implementation creates the actual
// media machinery lazily, once, on first router request.
type Engine interface {
	CreateRouter(ctx context.Context, room domain.RoomKey) (Router, error)
}

// Router scopes a set of transports, producers and consumers to one room.
type Router interface {
	Resource
	Capabilities() domain.RTPCapabilities
	CanConsume(producerID string, caps domain.RTPCapabilities) bool
	CreateWebRTCTransport(ctx context.Context) (WebRTCTransport, error)
	CreatePlainTransport(ctx context.Context) (PlainTransport, error)
}

// WebRTCTransport is a negotiated ICE/DTLS path to one peer.
type WebRTCTransport interface {
	Resource
	Info() domain.TransportInfo
	Connect(ctx context.Context, remote domain.TransportConnect) error
	Produce(ctx context.Context, kind domain.MediaKind, params domain.RTPParameters) (Producer, error)
	Consume(ctx context.Context, producer Producer, caps domain.RTPCapabilities, paused bool) (Consumer, error)
	// OnClosed fires once when the transport dies underneath the session
	// (ICE failure, engine shutdown). Used for unsolicited teardown.
	OnClosed(func())
}

// PlainTransport is a raw RTP/RTCP path to a local media sink, used by
// the recording branch.
type PlainTransport interface {
	Resource
	Tuple() domain.TransportTuple
	Connect(ctx context.Context, remote domain.PlainConnect) error
	Consume(ctx context.Context, producer Producer, paused bool) (Consumer, error)
}

// Producer is the receiving endpoint of one inbound media track.
type Producer interface {
	Resource
	Kind() domain.MediaKind
	Params() domain.RTPParameters
}

// Consumer is the sending endpoint of one outbound media track. A
// consumer created paused forwards nothing until Resume.
type Consumer interface {
	Resource
	Kind() domain.MediaKind
	Info() domain.ConsumerInfo
	Resume() error
}
