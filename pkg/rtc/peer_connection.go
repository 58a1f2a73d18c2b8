package rtc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// peerConnection はリモートSDPが設定されるまでICE候補を保留するPeerConnectionです。
type peerConnection struct {
	pc     *webrtc.PeerConnection
	target ConnectionType

	candidatesMu      sync.Mutex
	pendingCandidates []webrtc.ICECandidateInit
}

func newPeerConnection(api *webrtc.API, cfg webrtc.Configuration, target ConnectionType) (*peerConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s peer connection: %w", target, err)
	}

	return &peerConnection{pc: pc, target: target}, nil
}

func (p *peerConnection) Close() error {
	return p.pc.Close()
}

// CreateOffer はOfferを作成してローカルSDPに設定します。ICE候補はトリクルで送ります。
func (p *peerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	return offer, nil
}

func (p *peerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	return answer, nil
}

// SetRemoteDescription はリモートSDPを設定し、保留していたICE候補を追加します。
func (p *peerConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	p.candidatesMu.Lock()
	defer p.candidatesMu.Unlock()

	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	for _, candidate := range p.pendingCandidates {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			slog.Warn("failed to add pending ICE candidate", "target", p.target, "error", err)
		}
	}
	p.pendingCandidates = nil

	return nil
}

func (p *peerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.candidatesMu.Lock()
	defer p.candidatesMu.Unlock()

	if p.pc.RemoteDescription() == nil {
		p.pendingCandidates = append(p.pendingCandidates, candidate)
		return nil
	}

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}
