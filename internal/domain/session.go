package domain

// RoomKey identifies one logical media session.
type RoomKey string

// SessionState is the lifecycle position of a room's session.
type SessionState int32

const (
	StateNew SessionState = iota
	StateRouterReady
	StateNegotiating
	StateActive
	StateAnalyzing
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRouterReady:
		return "router_ready"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateAnalyzing:
		return "analyzing"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ResourceKind names one slot in a session's resource set.
// At most one resource of each kind is live per room.
type ResourceKind string

const (
	KindRouter             ResourceKind = "router"
	KindProducerTransport  ResourceKind = "producerTransport"
	KindConsumerTransport  ResourceKind = "consumerTransport"
	KindProducer           ResourceKind = "producer"
	KindConsumer           ResourceKind = "consumer"
	KindRecordingTransport ResourceKind = "recordingTransport"
	KindAnalysis           ResourceKind = "analysis"
)

// TeardownOrder lists resource kinds in close dependency order: the
// analysis branch first, the router last. A resource is always closed
// before anything it depends on.
var TeardownOrder = []ResourceKind{
	KindAnalysis,
	KindRecordingTransport,
	KindConsumer,
	KindProducer,
	KindConsumerTransport,
	KindProducerTransport,
	KindRouter,
}
