package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// Kind discriminates the envelope payload.
type Kind string

const (
	KindHello      Kind = "hello"
	KindPresence   Kind = "presence"
	KindChat       Kind = "chat"
	KindCallSignal Kind = "call_signal"
	KindLifecycle  Kind = "lifecycle"
)

// SignalType discriminates call_signal payloads.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "ice-candidate"
	SignalHangup    SignalType = "hangup"
)

const (
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

// Envelope is the wire-level unit exchanged between room participants.
// Exactly one payload field is set, matching Kind. Envelopes are immutable
// once sent; ID is a sender-minted nonce used for at-least-once dedup, Seq
// is assigned by the relay log and drives the pull cursor.
type Envelope struct {
	ID     string      `json:"id,omitempty"`
	Kind   Kind        `json:"type"`
	From   Participant `json:"user"`
	Seq    int64       `json:"seq,omitempty"`
	SentAt time.Time   `json:"ts,omitempty"`

	Presence *PresencePayload `json:"presence,omitempty"`
	Chat     *ChatPayload     `json:"chat,omitempty"`
	Signal   *SignalPayload   `json:"signal,omitempty"`
}

type PresencePayload struct {
	// Event is "join" or "leave"; empty for plain head updates.
	Event string `json:"event,omitempty"`
	Head  *Head  `json:"head,omitempty"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

// SignalPayload carries one leg of the offer/answer/ICE exchange. Delivery
// is broadcast to the whole room; recipients other than Target must ignore
// it.
type SignalPayload struct {
	Target    string                     `json:"target"`
	Type      SignalType                 `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func newEnvelope(kind Kind, from Participant) Envelope {
	return Envelope{
		ID:     uuid.New().String(),
		Kind:   kind,
		From:   from,
		SentAt: time.Now().UTC(),
	}
}

// NewHello announces the local participant to the room.
func NewHello(from Participant) Envelope {
	return newEnvelope(KindHello, from)
}

// NewPresence carries a head position/size update.
func NewPresence(from Participant, head Head) Envelope {
	env := newEnvelope(KindPresence, from)
	h := head
	env.Presence = &PresencePayload{Head: &h}
	return env
}

// NewLeave announces an explicit departure; it is the only presence event
// that removes a record on the receiving side.
func NewLeave(from Participant) Envelope {
	env := newEnvelope(KindPresence, from)
	env.Presence = &PresencePayload{Event: PresenceLeave}
	return env
}

func NewChat(from Participant, text string) Envelope {
	env := newEnvelope(KindChat, from)
	env.Chat = &ChatPayload{Text: text}
	return env
}

func NewCallSignal(from Participant, sig SignalPayload) Envelope {
	env := newEnvelope(KindCallSignal, from)
	s := sig
	env.Signal = &s
	return env
}

// NewLifecycle signals room termination; every receiving client tears down.
func NewLifecycle(from Participant) Envelope {
	return newEnvelope(KindLifecycle, from)
}
