// Package chat keeps the append-only message sequence for the active room.
// Messages are never mutated or removed; Clear replaces the sequence on
// room teardown.
package chat

import (
	"sync"
	"time"

	"github.com/feliven/coffeetable/internal/domain"
)

// fallbackWindow bounds the participant+text dedup used for envelopes that
// carry no nonce.
const fallbackWindow = 5 * time.Second

type Log struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	seen     map[string]struct{}
}

func NewLog() *Log {
	return &Log{
		seen: make(map[string]struct{}),
	}
}

// Append adds a message in arrival order. It reports false for duplicates:
// same nonce, or for nonce-less messages the same participant and text
// inside fallbackWindow. The server copy of a locally echoed message is
// ignored, not appended twice.
func (l *Log) Append(msg domain.ChatMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.Nonce != "" {
		if _, dup := l.seen[msg.Nonce]; dup {
			return false
		}
	} else if l.recentDuplicate(msg) {
		return false
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	if msg.Nonce != "" {
		l.seen[msg.Nonce] = struct{}{}
	}
	l.messages = append(l.messages, msg)
	return true
}

func (l *Log) recentDuplicate(msg domain.ChatMessage) bool {
	now := time.Now()
	for i := len(l.messages) - 1; i >= 0; i-- {
		prev := l.messages[i]
		if now.Sub(prev.ReceivedAt) > fallbackWindow {
			return false
		}
		if prev.Participant.ID == msg.Participant.ID && prev.Text == msg.Text {
			return true
		}
	}
	return false
}

// Messages returns a copy of the sequence in arrival order.
func (l *Log) Messages() []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Clear resets the sequence and the dedup set on room teardown.
func (l *Log) Clear() {
	l.mu.Lock()
	l.messages = nil
	l.seen = make(map[string]struct{})
	l.mu.Unlock()
}
