package domain

import (
	"math/rand"
	"strings"
	"time"
)

const codeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Session is the handle of one remote-controlled browser session. EmbedURL
// is opaque to the core: it is handed to the rendering shell untouched.
type Session struct {
	ID         string         `json:"session_uuid"`
	EmbedURL   string         `json:"embed_url"`
	CreatedAt  time.Time      `json:"created_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ProviderID string         `json:"-"`
	Active     bool           `json:"-"`
}

// Room is the shared context participants join: a short human-typable code
// bound to a session handle. Exactly one Room is active per client at a
// time; destroying it is terminal.
type Room struct {
	Code      string    `json:"code"`
	SessionID string    `json:"session_uuid"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRoom binds a freshly generated code to a session.
func NewRoom(sessionID, label string) *Room {
	return &Room{
		Code:      GenerateCode(),
		SessionID: sessionID,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
}

// GenerateCode mints a 6-character uppercase alphanumeric room code.
func GenerateCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return b.String()
}
