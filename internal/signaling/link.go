package signaling

import (
	"log/slog"

	"github.com/pion/webrtc/v3"

	"github.com/feliven/coffeetable/lib/logger/sl"
)

// LinkState is the lifecycle of one media link. Absent is represented by
// the link not existing in the coordinator's map.
type LinkState string

const (
	StateAbsent    LinkState = "absent"
	StateOffering  LinkState = "offering"
	StateAnswering LinkState = "answering"
	StateConnected LinkState = "connected"
	StateClosed    LinkState = "closed"
)

// Link is the media-transport seam of one participant pair. The production
// implementation wraps a pion PeerConnection; tests use fakes.
type Link interface {
	// CreateOffer generates and stores the local session description.
	CreateOffer() (*webrtc.SessionDescription, error)
	// CreateAnswer applies the remote offer, then generates and stores the
	// local answer.
	CreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer applies the remote answer to a link that offered.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddCandidate applies one remote ICE candidate. Callers must only
	// invoke it after a remote description has been applied.
	AddCandidate(cand webrtc.ICECandidateInit) error
	Close() error
}

// LinkFactory builds a link to one remote participant. Locally gathered
// candidates surface through onCandidate; media-layer state transitions
// (connected, failed) through onState.
type LinkFactory func(remoteID string, onCandidate func(webrtc.ICECandidateInit), onState func(LinkState)) (Link, error)

type pionLink struct {
	pc *webrtc.PeerConnection
}

// NewPionLinkFactory builds real WebRTC links. Local tracks, when present,
// are attached to every new link so the remote side receives audio/video.
func NewPionLinkFactory(stunServers []string, tracks []webrtc.TrackLocal, log *slog.Logger) LinkFactory {
	if log == nil {
		log = slog.Default()
	}
	cfg := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}

	return func(remoteID string, onCandidate func(webrtc.ICECandidateInit), onState func(LinkState)) (Link, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}

		for _, track := range tracks {
			if _, err := pc.AddTrack(track); err != nil {
				log.Warn("failed to attach local track", "remote", remoteID, sl.Err(err))
			}
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			onCandidate(c.ToJSON())
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateConnected:
				onState(StateConnected)
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
				onState(StateClosed)
			}
		})

		return &pionLink{pc: pc}, nil
	}
}

func (l *pionLink) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (l *pionLink) CreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (l *pionLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(answer)
}

func (l *pionLink) AddCandidate(cand webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(cand)
}

func (l *pionLink) Close() error {
	return l.pc.Close()
}
