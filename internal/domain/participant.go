package domain

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var (
	defaultGlyphs = []string{"😀", "🙂", "🤠", "🦊", "🐼", "🐧", "🦄", "🐶"}
	defaultColors = []string{"#8b5cf6", "#06b6d4", "#f59e0b", "#ef4444", "#22c55e"}
)

// Participant is a client-minted identity. It is created once per profile
// and is immutable afterwards; it travels inside every envelope.
type Participant struct {
	ID    string `json:"id"`
	Glyph string `json:"glyph"`
	Color string `json:"color"`
}

// NewParticipant mints a participant with a random avatar glyph and color.
func NewParticipant() Participant {
	return Participant{
		ID:    uuid.New().String(),
		Glyph: defaultGlyphs[rand.Intn(len(defaultGlyphs))],
		Color: defaultColors[rand.Intn(len(defaultColors))],
	}
}

// Position is a screen coordinate of an avatar head.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Head is the rendered position and size of a participant's avatar.
type Head struct {
	Pos  Position `json:"pos"`
	Size int      `json:"size"`
}

// DefaultHead is the first-seen placement for a participant that has not
// reported a position yet.
func DefaultHead() Head {
	return Head{Pos: Position{X: 24, Y: 24}, Size: 64}
}

// PresenceRecord is the last-known avatar state of one remote participant.
type PresenceRecord struct {
	Participant Participant
	Head        Head
	LastSeen    time.Time
}

// ChatMessage is one entry of the append-only chat sequence. LocalEcho marks
// a message rendered optimistically before transport confirmation.
type ChatMessage struct {
	Nonce       string
	Participant Participant
	Text        string
	LocalEcho   bool
	ReceivedAt  time.Time
}
