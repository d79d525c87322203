package domain

// MediaKind is the track type of a producer or consumer.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DTLSRole string

const (
	DTLSRoleAuto   DTLSRole = "auto"
	DTLSRoleClient DTLSRole = "client"
	DTLSRoleServer DTLSRole = "server"
)

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         DTLSRole          `json:"role"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// TransportInfo is the negotiation payload handed to the remote peer
// when a transport is created. No SDP is exchanged; this is the whole
// contract.
type TransportInfo struct {
	ID             string         `json:"id"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

type RTPCodecCapability struct {
	Kind        MediaKind `json:"kind"`
	MimeType    string    `json:"mimeType"`
	PayloadType uint8     `json:"preferredPayloadType"`
	ClockRate   uint32    `json:"clockRate"`
	Channels    uint16    `json:"channels,omitempty"`
}

type RTPCapabilities struct {
	Codecs []RTPCodecCapability `json:"codecs"`
}

// RTPParameters describes one media stream: what the peer sends on
// produce, and what a consumer must expect on consume.
type RTPParameters struct {
	MimeType    string `json:"mimeType"`
	PayloadType uint8  `json:"payloadType"`
	ClockRate   uint32 `json:"clockRate"`
	SSRC        uint32 `json:"ssrc"`
}

type ConsumerInfo struct {
	ID            string        `json:"id"`
	ProducerID    string        `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RTPParameters RTPParameters `json:"rtpParameters"`
	Type          string        `json:"type"`
}

// TransportTuple is the resolved address pair of a plain RTP transport.
type TransportTuple struct {
	LocalIP    string `json:"localIp"`
	LocalPort  int    `json:"localPort"`
	RemoteIP   string `json:"remoteIp"`
	RemotePort int    `json:"remotePort"`
	Protocol   string `json:"protocol"`
}

// TransportConnect carries the peer's half of the negotiation. The
// engine is a full ICE agent, so the peer's ICE credentials and
// candidates travel with its DTLS parameters.
type TransportConnect struct {
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
}

// PlainConnect binds a plain transport to its remote media sink.
type PlainConnect struct {
	IP       string
	Port     int
	RTCPPort int
}
