package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/registry"
)

var ErrAlreadyJoined = errors.New("transport: already joined a room")

// Factories build the two channel variants for a room membership. Tests
// inject fakes; production wiring comes from DefaultFactories.
type Factories struct {
	Push func(code string, recv Receiver, onFailure func(error)) Channel
	Pull func(code string, recv Receiver) Channel
}

// DefaultFactories wires the gorilla push channel and the registry-backed
// pull channel.
func DefaultFactories(self domain.Participant, reg *registry.Client, pollInterval time.Duration, log *slog.Logger) Factories {
	return Factories{
		Push: func(code string, recv Receiver, onFailure func(error)) Channel {
			return NewPushChannel(reg.WSURL(code), self, recv, onFailure, log)
		},
		Pull: func(code string, recv Receiver) Channel {
			return NewPullChannel(code, reg, recv, pollInterval, log)
		},
	}
}

// Manager owns exactly one active channel per room membership and performs
// the push to pull downgrade. Once push has failed for a membership it is
// never attempted again until the next Join.
type Manager struct {
	self      domain.Participant
	factories Factories
	recv      Receiver
	log       *slog.Logger

	presenceMin time.Duration

	mu           sync.Mutex
	mode         Mode
	active       Channel
	code         string
	epoch        int
	pushFailed   bool
	lastPresence time.Time

	observers []func(Mode)

	// echo delivers the optimistic local copy of an outbound chat envelope
	// when sending over pull. The envelope keeps its nonce so the chat log
	// drops the server copy.
	echo func(domain.Envelope)
}

func NewManager(self domain.Participant, factories Factories, presenceMin time.Duration, recv Receiver, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if presenceMin <= 0 {
		presenceMin = 240 * time.Millisecond
	}
	return &Manager{
		self:        self,
		factories:   factories,
		recv:        recv,
		log:         log,
		presenceMin: presenceMin,
		mode:        ModeDisconnected,
	}
}

// SetLocalEcho installs the optimistic chat echo sink.
func (m *Manager) SetLocalEcho(fn func(domain.Envelope)) {
	m.mu.Lock()
	m.echo = fn
	m.mu.Unlock()
}

// OnModeChange registers an observer fired after every mode transition.
func (m *Manager) OnModeChange(fn func(Mode)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Join connects the transport for one room membership. Push is attempted
// first; any construction or connect failure downgrades to pull, which by
// design cannot fail. Join itself only errors when a membership is already
// active.
func (m *Manager) Join(ctx context.Context, code string) error {
	m.mu.Lock()
	if m.mode != ModeDisconnected {
		m.mu.Unlock()
		return ErrAlreadyJoined
	}
	m.epoch++
	epoch := m.epoch
	m.code = code
	m.pushFailed = false
	m.mu.Unlock()

	push := m.factories.Push(code, m.recv, func(err error) {
		m.downgrade(epoch)
	})
	if err := push.Connect(ctx); err != nil {
		m.log.Info("push connect failed, falling back to pull", "room", code)
		m.enterPull(epoch)
		return nil
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// Left while connecting; the membership is gone.
		m.mu.Unlock()
		push.Close()
		return nil
	}
	if m.pushFailed {
		// The channel's failure callback beat us here; it only reports
		// once, so commit pull now instead of push.
		m.mu.Unlock()
		push.Close()
		m.enterPull(epoch)
		return nil
	}
	m.active = push
	m.setModeLocked(ModePush)
	return nil
}

// Leave closes the active channel and returns to disconnected. Safe to call
// repeatedly; late callbacks from the previous membership become no-ops.
func (m *Manager) Leave() {
	m.mu.Lock()
	m.epoch++
	ch := m.active
	m.active = nil
	m.code = ""
	if m.mode == ModeDisconnected {
		m.mu.Unlock()
		return
	}
	m.setModeLocked(ModeDisconnected)

	if ch != nil {
		ch.Close()
	}
}

// Send transmits one envelope over whichever channel is active. In pull
// mode chat envelopes additionally get the optimistic local echo.
func (m *Manager) Send(env domain.Envelope) {
	m.mu.Lock()
	ch := m.active
	mode := m.mode
	echo := m.echo
	m.mu.Unlock()

	if ch == nil || mode == ModeDisconnected {
		m.log.Debug("send dropped, transport disconnected", "kind", string(env.Kind))
		return
	}

	ch.Send(env)

	if mode == ModePull && env.Kind == domain.KindChat && echo != nil {
		echo(env)
	}
}

// SendChat broadcasts a chat message from the local participant.
func (m *Manager) SendChat(text string) {
	m.Send(domain.NewChat(m.self, text))
}

// SendPresence broadcasts a head update, throttled to one envelope per
// presenceMin. Superseded intermediate positions are dropped, not queued.
func (m *Manager) SendPresence(head domain.Head) {
	m.mu.Lock()
	now := time.Now()
	if now.Sub(m.lastPresence) < m.presenceMin {
		m.mu.Unlock()
		return
	}
	m.lastPresence = now
	m.mu.Unlock()

	m.Send(domain.NewPresence(m.self, head))
}

// downgrade is the push channel's failure callback. It must put the manager
// in pull mode immediately; a stale epoch means the membership already
// ended and the failure is moot.
func (m *Manager) downgrade(epoch int) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.pushFailed = true
	if m.mode != ModePush {
		// Join has not committed push yet; the flag makes it enter pull.
		m.mu.Unlock()
		return
	}
	old := m.active
	m.active = nil
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	m.enterPull(epoch)
}

func (m *Manager) enterPull(epoch int) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	pull := m.factories.Pull(m.code, m.recv)
	pull.Connect(context.Background())
	m.active = pull
	m.setModeLocked(ModePull)

	// Announce the join over the log; the push hello never made it.
	pull.Send(domain.NewHello(m.self))
}

// setModeLocked transitions the mode and notifies observers. It releases
// m.mu; callers must hold it and must not touch state afterwards.
func (m *Manager) setModeLocked(mode Mode) {
	m.mode = mode
	observers := make([]func(Mode), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(mode)
	}
}
