package domain

// SessionDescriptor is the minimal contract the transcoder consumes to
// locate and decode a recording branch's RTP stream. It is persisted per
// room and deleted on teardown.
type SessionDescriptor struct {
	Room        RoomKey
	Address     string
	Port        int
	RTCPPort    int
	Kind        MediaKind
	CodecName   string
	ClockRate   uint32
	PayloadType uint8
}
