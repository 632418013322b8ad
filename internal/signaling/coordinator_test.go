package signaling

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feliven/coffeetable/internal/domain"
)

type fakeLink struct {
	mu         sync.Mutex
	offerErr   error
	answerErr  error
	applyErr   error
	candErr    error
	candidates []webrtc.ICECandidateInit
	closed     bool
}

func (l *fakeLink) CreateOffer() (*webrtc.SessionDescription, error) {
	if l.offerErr != nil {
		return nil, l.offerErr
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) CreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if l.answerErr != nil {
		return nil, l.answerErr
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	return l.applyErr
}

func (l *fakeLink) AddCandidate(cand webrtc.ICECandidateInit) error {
	if l.candErr != nil {
		return l.candErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, cand)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) candidateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.candidates)
}

type meshHarness struct {
	self  domain.Participant
	links map[string]*fakeLink
	fail  map[string]error

	mu   sync.Mutex
	sent []domain.Envelope

	coord *Coordinator
}

func newMeshHarness() *meshHarness {
	h := &meshHarness{
		self:  domain.NewParticipant(),
		links: make(map[string]*fakeLink),
		fail:  make(map[string]error),
	}
	factory := func(remoteID string, onCandidate func(webrtc.ICECandidateInit), onState func(LinkState)) (Link, error) {
		if err := h.fail[remoteID]; err != nil {
			return nil, err
		}
		link := &fakeLink{}
		h.links[remoteID] = link
		return link, nil
	}
	h.coord = NewCoordinator(h.self, func(env domain.Envelope) {
		h.mu.Lock()
		h.sent = append(h.sent, env)
		h.mu.Unlock()
	}, factory, nil)
	return h
}

func (h *meshHarness) sentSignals() []domain.SignalPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.SignalPayload, 0, len(h.sent))
	for _, env := range h.sent {
		if env.Signal != nil {
			out = append(out, *env.Signal)
		}
	}
	return out
}

func candidate(s string) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: s}
}

func TestCoordinatorCallSendsOffer(t *testing.T) {
	h := newMeshHarness()

	h.coord.Call("remote-1")

	signals := h.sentSignals()
	require.Len(t, signals, 1)
	assert.Equal(t, domain.SignalOffer, signals[0].Type)
	assert.Equal(t, "remote-1", signals[0].Target)
	require.NotNil(t, signals[0].SDP)
	assert.Equal(t, StateOffering, h.coord.State("remote-1"))
}

func TestCoordinatorAnswersInboundOffer(t *testing.T) {
	h := newMeshHarness()
	remote := domain.NewParticipant()

	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target: h.self.ID,
		Type:   domain.SignalOffer,
		SDP:    &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	signals := h.sentSignals()
	require.Len(t, signals, 1)
	assert.Equal(t, domain.SignalAnswer, signals[0].Type)
	assert.Equal(t, remote.ID, signals[0].Target)
	assert.Equal(t, StateAnswering, h.coord.State(remote.ID))
}

func TestCoordinatorBuffersEarlyCandidates(t *testing.T) {
	h := newMeshHarness()
	remote := domain.NewParticipant()

	// Candidates race ahead of the offer on the broadcast bus.
	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target:    h.self.ID,
		Type:      domain.SignalCandidate,
		Candidate: candidate("cand-1"),
	})
	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target:    h.self.ID,
		Type:      domain.SignalCandidate,
		Candidate: candidate("cand-2"),
	})

	link := h.links[remote.ID]
	require.NotNil(t, link)
	assert.Equal(t, 0, link.candidateCount())

	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target: h.self.ID,
		Type:   domain.SignalOffer,
		SDP:    &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	// Buffered candidates flushed after the remote description landed.
	assert.Equal(t, 2, link.candidateCount())
	assert.Equal(t, StateConnected, h.coord.State(remote.ID))
}

func TestCoordinatorConnectedAfterAnswerAndCandidate(t *testing.T) {
	h := newMeshHarness()
	remote := domain.NewParticipant()

	h.coord.Call(remote.ID)
	require.Equal(t, StateOffering, h.coord.State(remote.ID))

	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target: h.self.ID,
		Type:   domain.SignalAnswer,
		SDP:    &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	})
	assert.Equal(t, StateOffering, h.coord.State(remote.ID))

	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target:    h.self.ID,
		Type:      domain.SignalCandidate,
		Candidate: candidate("cand-1"),
	})
	assert.Equal(t, StateConnected, h.coord.State(remote.ID))
}

func TestCoordinatorStaleAnswerDropped(t *testing.T) {
	h := newMeshHarness()
	remote := domain.NewParticipant()

	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target: h.self.ID,
		Type:   domain.SignalAnswer,
		SDP:    &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	})

	assert.Equal(t, StateAbsent, h.coord.State(remote.ID))
	assert.Empty(t, h.links)
}

func TestCoordinatorFailureIsolation(t *testing.T) {
	h := newMeshHarness()
	h.fail["broken"] = errors.New("no media device")

	h.coord.Call("broken")
	h.coord.Call("healthy")

	assert.Equal(t, StateAbsent, h.coord.State("broken"))
	assert.Equal(t, StateOffering, h.coord.State("healthy"))

	signals := h.sentSignals()
	require.Len(t, signals, 1)
	assert.Equal(t, "healthy", signals[0].Target)
}

func TestCoordinatorLinkErrorDropsOnlyThatLink(t *testing.T) {
	h := newMeshHarness()
	remoteA := domain.NewParticipant()

	h.coord.Call("healthy")
	h.coord.HandleSignal(remoteA, domain.SignalPayload{
		Target: h.self.ID,
		Type:   domain.SignalOffer,
		SDP:    &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})
	link := h.links[remoteA.ID]
	require.NotNil(t, link)

	link.candErr = errors.New("ice failure")
	h.coord.HandleSignal(remoteA, domain.SignalPayload{
		Target:    h.self.ID,
		Type:      domain.SignalCandidate,
		Candidate: candidate("bad"),
	})

	assert.Equal(t, StateAbsent, h.coord.State(remoteA.ID))
	assert.True(t, link.closed)
	assert.Equal(t, StateOffering, h.coord.State("healthy"))
}

func TestCoordinatorHangup(t *testing.T) {
	h := newMeshHarness()

	h.coord.Call("remote-1")
	link := h.links["remote-1"]
	require.NotNil(t, link)

	h.coord.Hangup("remote-1")

	assert.True(t, link.closed)
	assert.Equal(t, StateAbsent, h.coord.State("remote-1"))

	signals := h.sentSignals()
	require.Len(t, signals, 2)
	assert.Equal(t, domain.SignalHangup, signals[1].Type)
}

func TestCoordinatorInboundHangup(t *testing.T) {
	h := newMeshHarness()
	remote := domain.NewParticipant()

	h.coord.Call(remote.ID)
	link := h.links[remote.ID]
	require.NotNil(t, link)

	h.coord.HandleSignal(remote, domain.SignalPayload{
		Target: h.self.ID,
		Type:   domain.SignalHangup,
	})

	assert.True(t, link.closed)
	assert.Equal(t, StateAbsent, h.coord.State(remote.ID))
}

func TestCoordinatorCallAllSkipsSelf(t *testing.T) {
	h := newMeshHarness()

	records := []domain.PresenceRecord{
		{Participant: h.self},
		{Participant: domain.Participant{ID: "remote-1"}},
		{Participant: domain.Participant{ID: "remote-2"}},
	}
	h.coord.CallAll(records)

	assert.Len(t, h.links, 2)
	assert.Equal(t, StateAbsent, h.coord.State(h.self.ID))
}

func TestCoordinatorCloseAll(t *testing.T) {
	h := newMeshHarness()

	h.coord.Call("remote-1")
	h.coord.Call("remote-2")

	h.coord.CloseAll()

	assert.True(t, h.links["remote-1"].closed)
	assert.True(t, h.links["remote-2"].closed)
	assert.Equal(t, StateAbsent, h.coord.State("remote-1"))

	// Idempotent.
	h.coord.CloseAll()
}
