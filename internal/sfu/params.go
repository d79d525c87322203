package sfu

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/peppoasap/InVeritas/internal/domain"
)

func iceParamsOut(p webrtc.ICEParameters) domain.ICEParameters {
	return domain.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.ICELite,
	}
}

func iceParamsIn(p domain.ICEParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.ICELite,
	}
}

func iceCandidatesOut(cands []webrtc.ICECandidate) []domain.ICECandidate {
	out := make([]domain.ICECandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, domain.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return out
}

func iceCandidatesIn(cands []domain.ICECandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(cands))
	for _, c := range cands {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate protocol %q: %w", c.Protocol, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate type %q: %w", c.Type, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
		})
	}
	return out, nil
}

func dtlsParamsOut(p webrtc.DTLSParameters) domain.DTLSParameters {
	fps := make([]domain.DTLSFingerprint, 0, len(p.Fingerprints))
	for _, f := range p.Fingerprints {
		fps = append(fps, domain.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return domain.DTLSParameters{Role: dtlsRoleOut(p.Role), Fingerprints: fps}
}

func dtlsParamsIn(p domain.DTLSParameters) webrtc.DTLSParameters {
	fps := make([]webrtc.DTLSFingerprint, 0, len(p.Fingerprints))
	for _, f := range p.Fingerprints {
		fps = append(fps, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return webrtc.DTLSParameters{Role: dtlsRoleIn(p.Role), Fingerprints: fps}
}

func dtlsRoleOut(r webrtc.DTLSRole) domain.DTLSRole {
	switch r {
	case webrtc.DTLSRoleClient:
		return domain.DTLSRoleClient
	case webrtc.DTLSRoleServer:
		return domain.DTLSRoleServer
	}
	return domain.DTLSRoleAuto
}

func dtlsRoleIn(r domain.DTLSRole) webrtc.DTLSRole {
	switch r {
	case domain.DTLSRoleClient:
		return webrtc.DTLSRoleClient
	case domain.DTLSRoleServer:
		return webrtc.DTLSRoleServer
	}
	return webrtc.DTLSRoleAuto
}
