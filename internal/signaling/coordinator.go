// Package signaling maintains the full call mesh: one media link per remote
// participant, driven by call_signal envelopes routed off the room's
// broadcast bus. Every signal carries an explicit target; the router only
// forwards signals addressed to the local participant.
package signaling

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/lib/logger/sl"
)

type linkEntry struct {
	link  Link
	state LinkState

	// Remote candidates arriving before the remote description are
	// buffered here and flushed once it is applied; dropping them would
	// stall ICE on the fast path.
	remoteApplied bool
	pending       []webrtc.ICECandidateInit
}

// Coordinator owns the mesh. A signaling fault on one pair closes and
// removes only that pair's link; other links and the transport are never
// affected.
type Coordinator struct {
	self    domain.Participant
	send    func(domain.Envelope)
	newLink LinkFactory
	log     *slog.Logger

	mu    sync.Mutex
	links map[string]*linkEntry
}

func NewCoordinator(self domain.Participant, send func(domain.Envelope), newLink LinkFactory, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		self:    self,
		send:    send,
		newLink: newLink,
		log:     log,
		links:   make(map[string]*linkEntry),
	}
}

// Call initiates the offer leg toward one remote participant, creating the
// link if absent. Failures close that link only.
func (c *Coordinator) Call(remoteID string) {
	entry, err := c.ensureLink(remoteID)
	if err != nil {
		c.log.Warn("failed to create media link", "remote", remoteID, sl.Err(err))
		return
	}

	offer, err := entry.link.CreateOffer()
	if err != nil {
		c.dropLink(remoteID, err)
		return
	}

	c.setState(remoteID, StateOffering)
	c.send(domain.NewCallSignal(c.self, domain.SignalPayload{
		Target: remoteID,
		Type:   domain.SignalOffer,
		SDP:    offer,
	}))
}

// CallAll offers to every participant currently known to the presence
// store snapshot handed in.
func (c *Coordinator) CallAll(participants []domain.PresenceRecord) {
	for _, rec := range participants {
		if rec.Participant.ID == c.self.ID {
			continue
		}
		c.Call(rec.Participant.ID)
	}
}

// Hangup tears down the pair's link and tells the remote side to do the
// same.
func (c *Coordinator) Hangup(remoteID string) {
	c.send(domain.NewCallSignal(c.self, domain.SignalPayload{
		Target: remoteID,
		Type:   domain.SignalHangup,
	}))
	c.closeLink(remoteID)
}

// HandleSignal consumes one inbound signal addressed to the local
// participant. Malformed or out-of-order signals are logged and dropped.
func (c *Coordinator) HandleSignal(from domain.Participant, sig domain.SignalPayload) {
	switch sig.Type {
	case domain.SignalOffer:
		c.handleOffer(from.ID, sig)
	case domain.SignalAnswer:
		c.handleAnswer(from.ID, sig)
	case domain.SignalCandidate:
		c.handleCandidate(from.ID, sig)
	case domain.SignalHangup:
		c.closeLink(from.ID)
	default:
		c.log.Warn("unknown signal type", "type", string(sig.Type), "from", from.ID)
	}
}

// State reports the link state for a remote participant; StateAbsent when
// no link exists.
func (c *Coordinator) State(remoteID string) LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.links[remoteID]; ok {
		return entry.state
	}
	return StateAbsent
}

// CloseAll tears down every link; part of room teardown, idempotent.
func (c *Coordinator) CloseAll() {
	c.mu.Lock()
	links := c.links
	c.links = make(map[string]*linkEntry)
	c.mu.Unlock()

	for remoteID, entry := range links {
		if err := entry.link.Close(); err != nil {
			c.log.Debug("link close", "remote", remoteID, sl.Err(err))
		}
	}
}

func (c *Coordinator) handleOffer(remoteID string, sig domain.SignalPayload) {
	if sig.SDP == nil {
		c.log.Warn("offer without description", "from", remoteID)
		return
	}

	entry, err := c.ensureLink(remoteID)
	if err != nil {
		c.log.Warn("failed to create media link", "remote", remoteID, sl.Err(err))
		return
	}

	answer, err := entry.link.CreateAnswer(*sig.SDP)
	if err != nil {
		c.dropLink(remoteID, err)
		return
	}

	// State first: flushing buffered candidates inside markRemoteApplied may
	// already promote the link to connected.
	c.setState(remoteID, StateAnswering)
	c.markRemoteApplied(remoteID)
	c.send(domain.NewCallSignal(c.self, domain.SignalPayload{
		Target: remoteID,
		Type:   domain.SignalAnswer,
		SDP:    answer,
	}))
}

func (c *Coordinator) handleAnswer(remoteID string, sig domain.SignalPayload) {
	if sig.SDP == nil {
		c.log.Warn("answer without description", "from", remoteID)
		return
	}

	c.mu.Lock()
	entry, ok := c.links[remoteID]
	c.mu.Unlock()
	if !ok {
		// Out-of-order or stale; the offer side may already have hung up.
		c.log.Warn("answer for unknown media link", "from", remoteID)
		return
	}

	if err := entry.link.ApplyAnswer(*sig.SDP); err != nil {
		c.dropLink(remoteID, err)
		return
	}
	c.markRemoteApplied(remoteID)
}

func (c *Coordinator) handleCandidate(remoteID string, sig domain.SignalPayload) {
	if sig.Candidate == nil {
		c.log.Warn("candidate signal without candidate", "from", remoteID)
		return
	}

	entry, err := c.ensureLink(remoteID)
	if err != nil {
		c.log.Warn("failed to create media link", "remote", remoteID, sl.Err(err))
		return
	}

	c.mu.Lock()
	applied := entry.remoteApplied
	if !applied {
		entry.pending = append(entry.pending, *sig.Candidate)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := entry.link.AddCandidate(*sig.Candidate); err != nil {
		c.dropLink(remoteID, err)
		return
	}
	c.candidateApplied(remoteID)
}

// markRemoteApplied records that the pair's remote description landed and
// flushes any candidates buffered before it.
func (c *Coordinator) markRemoteApplied(remoteID string) {
	c.mu.Lock()
	entry, ok := c.links[remoteID]
	if !ok {
		c.mu.Unlock()
		return
	}
	entry.remoteApplied = true
	pending := entry.pending
	entry.pending = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := entry.link.AddCandidate(cand); err != nil {
			c.dropLink(remoteID, err)
			return
		}
		c.candidateApplied(remoteID)
	}
}

// candidateApplied promotes an offering/answering link to connected once
// the first candidate of the pair lands after the descriptions.
func (c *Coordinator) candidateApplied(remoteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.links[remoteID]
	if !ok {
		return
	}
	if entry.state == StateOffering || entry.state == StateAnswering {
		entry.state = StateConnected
	}
}

func (c *Coordinator) ensureLink(remoteID string) (*linkEntry, error) {
	c.mu.Lock()
	if entry, ok := c.links[remoteID]; ok {
		c.mu.Unlock()
		return entry, nil
	}
	c.mu.Unlock()

	link, err := c.newLink(remoteID,
		func(cand webrtc.ICECandidateInit) {
			candCopy := cand
			c.send(domain.NewCallSignal(c.self, domain.SignalPayload{
				Target:    remoteID,
				Type:      domain.SignalCandidate,
				Candidate: &candCopy,
			}))
		},
		func(state LinkState) {
			if state == StateClosed {
				c.closeLink(remoteID)
				return
			}
			c.setState(remoteID, state)
		},
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.links[remoteID]; ok {
		// Lost the race with an inbound signal for the same pair.
		go link.Close()
		return existing, nil
	}
	entry := &linkEntry{link: link, state: StateAbsent}
	c.links[remoteID] = entry
	return entry, nil
}

func (c *Coordinator) setState(remoteID string, state LinkState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.links[remoteID]; ok {
		entry.state = state
	}
}

func (c *Coordinator) dropLink(remoteID string, err error) {
	c.log.Warn("media link failed", "remote", remoteID, sl.Err(err))
	c.closeLink(remoteID)
}

func (c *Coordinator) closeLink(remoteID string) {
	c.mu.Lock()
	entry, ok := c.links[remoteID]
	if ok {
		delete(c.links, remoteID)
	}
	c.mu.Unlock()

	if ok {
		entry.link.Close()
	}
}
