package sfu

import (
	"reflect"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/peppoasap/InVeritas/internal/domain"
)

func TestICEParametersRoundTrip(t *testing.T) {
	in := webrtc.ICEParameters{UsernameFragment: "ufrag", Password: "pwd", ICELite: true}
	if got := iceParamsIn(iceParamsOut(in)); got != in {
		t.Fatalf("round trip: got %+v, want %+v", got, in)
	}
}

func TestICECandidatesRoundTrip(t *testing.T) {
	in := []webrtc.ICECandidate{{
		Foundation: "foundation",
		Priority:   4242,
		Address:    "192.168.1.10",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       10042,
		Typ:        webrtc.ICECandidateTypeHost,
	}}
	got, err := iceCandidatesIn(iceCandidatesOut(in))
	if err != nil {
		t.Fatalf("iceCandidatesIn: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip: got %+v, want %+v", got, in)
	}
}

func TestICECandidatesInRejectsBadValues(t *testing.T) {
	if _, err := iceCandidatesIn([]domain.ICECandidate{{Protocol: "quic", Type: "host"}}); err == nil {
		t.Fatal("expected an error for an unknown protocol")
	}
	if _, err := iceCandidatesIn([]domain.ICECandidate{{Protocol: "udp", Type: "wormhole"}}); err == nil {
		t.Fatal("expected an error for an unknown candidate type")
	}
}

func TestDTLSParametersRoundTrip(t *testing.T) {
	in := webrtc.DTLSParameters{
		Role: webrtc.DTLSRoleServer,
		Fingerprints: []webrtc.DTLSFingerprint{
			{Algorithm: "sha-256", Value: "AA:BB:CC"},
		},
	}
	if got := dtlsParamsIn(dtlsParamsOut(in)); !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip: got %+v, want %+v", got, in)
	}
}

func TestDTLSRoleMapping(t *testing.T) {
	cases := []struct {
		pion   webrtc.DTLSRole
		domain domain.DTLSRole
	}{
		{webrtc.DTLSRoleAuto, domain.DTLSRoleAuto},
		{webrtc.DTLSRoleClient, domain.DTLSRoleClient},
		{webrtc.DTLSRoleServer, domain.DTLSRoleServer},
	}
	for _, c := range cases {
		if got := dtlsRoleOut(c.pion); got != c.domain {
			t.Errorf("dtlsRoleOut(%v) = %v, want %v", c.pion, got, c.domain)
		}
		if got := dtlsRoleIn(c.domain); got != c.pion {
			t.Errorf("dtlsRoleIn(%v) = %v, want %v", c.domain, got, c.pion)
		}
	}
}
