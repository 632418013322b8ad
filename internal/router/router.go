// Package router classifies inbound envelopes by kind and dispatches them
// to the presence store, the chat log, the signaling coordinator, or the
// lifecycle teardown. It owns no participant or room state of its own.
package router

import (
	"log/slog"

	"github.com/feliven/coffeetable/internal/chat"
	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/presence"
)

// SignalSink receives call_signal envelopes addressed to the local
// participant.
type SignalSink interface {
	HandleSignal(from domain.Participant, sig domain.SignalPayload)
}

type Router struct {
	self     domain.Participant
	presence *presence.Store
	chat     *chat.Log
	signals  SignalSink
	log      *slog.Logger

	// onLifecycle tears the room down; it must be idempotent because
	// lifecycle envelopes arrive at-least-once.
	onLifecycle func()
	// notify plays the incoming-chat cue; fired on its own goroutine so a
	// slow side effect can never block dispatch.
	notify func(domain.ChatMessage)
}

func New(self domain.Participant, store *presence.Store, chatLog *chat.Log, signals SignalSink, onLifecycle func(), log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		self:        self,
		presence:    store,
		chat:        chatLog,
		signals:     signals,
		onLifecycle: onLifecycle,
		log:         log,
	}
}

// SetNotify installs the chat notification side effect.
func (r *Router) SetNotify(fn func(domain.ChatMessage)) {
	r.notify = fn
}

// DeliverLocalEcho appends an optimistic copy of an outbound chat envelope
// before transport confirmation. The envelope keeps its nonce, so the
// server-delivered copy arriving later through Deliver is dropped as a
// duplicate instead of appearing twice. No notification cue fires for the
// sender's own message.
func (r *Router) DeliverLocalEcho(env domain.Envelope) {
	if env.Kind != domain.KindChat || env.Chat == nil {
		return
	}
	r.chat.Append(domain.ChatMessage{
		Nonce:       env.ID,
		Participant: env.From,
		Text:        env.Chat.Text,
		LocalEcho:   true,
		ReceivedAt:  env.SentAt,
	})
}

// Deliver routes one inbound envelope. Unknown kinds are logged and
// dropped, never fatal.
func (r *Router) Deliver(env domain.Envelope) {
	switch env.Kind {
	case domain.KindHello:
		r.deliverHello(env)
	case domain.KindPresence:
		r.deliverPresence(env)
	case domain.KindChat:
		r.deliverChat(env)
	case domain.KindCallSignal:
		r.deliverSignal(env)
	case domain.KindLifecycle:
		r.onLifecycle()
	default:
		r.log.Warn("unknown envelope kind", "kind", string(env.Kind), "from", env.From.ID)
	}
}

func (r *Router) deliverHello(env domain.Envelope) {
	if env.From.ID == r.self.ID {
		return
	}
	r.presence.Upsert(env.From, nil)
}

func (r *Router) deliverPresence(env domain.Envelope) {
	if env.Presence == nil {
		r.log.Warn("presence envelope without payload", "from", env.From.ID)
		return
	}
	if env.Presence.Event == domain.PresenceLeave {
		r.presence.Remove(env.From.ID)
		return
	}
	if env.From.ID == r.self.ID {
		return
	}
	r.presence.Upsert(env.From, env.Presence.Head)
}

func (r *Router) deliverChat(env domain.Envelope) {
	if env.Chat == nil {
		r.log.Warn("chat envelope without payload", "from", env.From.ID)
		return
	}

	msg := domain.ChatMessage{
		Nonce:       env.ID,
		Participant: env.From,
		Text:        env.Chat.Text,
		ReceivedAt:  env.SentAt,
	}
	if !r.chat.Append(msg) {
		return
	}

	if env.From.ID != r.self.ID && r.notify != nil {
		go r.notify(msg)
	}
}

func (r *Router) deliverSignal(env domain.Envelope) {
	if env.Signal == nil {
		r.log.Warn("call signal without payload", "from", env.From.ID)
		return
	}
	// Broadcast echoes of our own signals would feed back into the mesh.
	if env.From.ID == r.self.ID {
		return
	}
	// Mesh signaling rides a broadcast bus; only the addressed participant
	// acts on a signal.
	if env.Signal.Target != r.self.ID {
		return
	}
	if r.signals != nil {
		r.signals.HandleSignal(env.From, *env.Signal)
	}
}
