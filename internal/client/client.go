// Package client is the membership façade of the sync core. One Client is
// one participant's view of at most one room at a time; it wires the
// transport manager, the envelope router, the presence store, the chat log,
// the call coordinator and the inactivity watchdog into a single lifecycle.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feliven/coffeetable/internal/chat"
	"github.com/feliven/coffeetable/internal/config"
	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/idle"
	"github.com/feliven/coffeetable/internal/presence"
	"github.com/feliven/coffeetable/internal/registry"
	"github.com/feliven/coffeetable/internal/router"
	"github.com/feliven/coffeetable/internal/session"
	"github.com/feliven/coffeetable/internal/signaling"
	"github.com/feliven/coffeetable/internal/transport"
	"github.com/feliven/coffeetable/lib/logger/sl"
)

var (
	ErrAlreadyInRoom = errors.New("client: already in a room")
	ErrNotInRoom     = errors.New("client: not in a room")
)

// membership is everything that lives and dies with one room join. A fresh
// struct per join keeps cursor, presence, chat and mesh state from leaking
// between rooms.
type membership struct {
	epoch   int
	room    *domain.Room
	session *domain.Session

	manager     *transport.Manager
	router      *router.Router
	presence    *presence.Store
	chat        *chat.Log
	coordinator *signaling.Coordinator
	watchdog    *idle.Watchdog
}

type Client struct {
	cfg  *config.Config
	log  *slog.Logger
	self domain.Participant

	registry *registry.Client
	provider *session.Provider
	newLink  signaling.LinkFactory

	// factories overrides transport construction in tests; nil means
	// transport.DefaultFactories against the registry.
	factories *transport.Factories

	mu      sync.Mutex
	epoch   int
	current *membership

	onTerminated func()
	onModeChange func(transport.Mode)
	onChat       func(domain.ChatMessage)
	onWarning    func(remaining time.Duration)
	onCountdown  func(secondsLeft int)
	onActive     func()
}

func New(cfg *config.Config, self domain.Participant, provider *session.Provider, log *slog.Logger) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		log:      log,
		self:     self,
		registry: registry.New(cfg.Client.RelayBase),
		provider: provider,
		newLink:  signaling.NewPionLinkFactory(cfg.WebRTC.STUNServers, nil, log),
	}
}

// SetLinkFactory replaces the WebRTC link constructor, e.g. to attach local
// media tracks or to fake links in tests. Only valid before joining.
func (c *Client) SetLinkFactory(f signaling.LinkFactory) {
	c.newLink = f
}

// SetTransportFactories replaces transport construction; tests use this to
// join rooms without a live relay.
func (c *Client) SetTransportFactories(f transport.Factories) {
	c.factories = &f
}

func (c *Client) Self() domain.Participant { return c.self }

// OnTerminated fires once per membership after teardown completes, whatever
// triggered it: an explicit leave, a lifecycle envelope, or idle expiry.
func (c *Client) OnTerminated(fn func()) { c.onTerminated = fn }

// OnModeChange reports transport transitions (push, pull, disconnected).
func (c *Client) OnModeChange(fn func(transport.Mode)) { c.onModeChange = fn }

// OnChat fires for each chat message from a remote participant.
func (c *Client) OnChat(fn func(domain.ChatMessage)) { c.onChat = fn }

// OnIdleWarning, OnIdleCountdown and OnIdleActive surface the inactivity
// state machine for display.
func (c *Client) OnIdleWarning(fn func(remaining time.Duration)) { c.onWarning = fn }
func (c *Client) OnIdleCountdown(fn func(secondsLeft int))       { c.onCountdown = fn }
func (c *Client) OnIdleActive(fn func())                         { c.onActive = fn }

// CreateRoom provisions a browser session with the provider, registers a
// share code for it and joins the resulting room.
func (c *Client) CreateRoom(ctx context.Context, opts session.CreateOptions) (*domain.Room, error) {
	const op = "client.createRoom"

	if c.provider == nil {
		return nil, fmt.Errorf("%s: no session provider configured", op)
	}
	if opts.TimeoutAbsolute == 0 {
		opts.TimeoutAbsolute = c.cfg.Provider.TimeoutAbsolute
	}
	if opts.TimeoutInactive == 0 {
		opts.TimeoutInactive = c.cfg.Provider.TimeoutInactive
	}

	sess, err := c.provider.Create(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	room, err := c.registry.CreateRoom(ctx, sess.ID, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := c.join(ctx, room, sess); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return room, nil
}

// JoinRoom resolves a share code and joins the room behind it.
func (c *Client) JoinRoom(ctx context.Context, code string) (*domain.Session, error) {
	const op = "client.joinRoom"

	sess, err := c.registry.Resolve(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	room := &domain.Room{Code: code, SessionID: sess.ID}
	if err := c.join(ctx, room, sess); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// join assembles one membership and connects its transport. The epoch guard
// makes every callback wired here a no-op once the membership ends.
func (c *Client) join(ctx context.Context, room *domain.Room, sess *domain.Session) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyInRoom
	}
	c.epoch++
	epoch := c.epoch

	m := &membership{
		epoch:    epoch,
		room:     room,
		session:  sess,
		presence: presence.NewStore(),
		chat:     chat.NewLog(),
	}

	m.manager = transport.NewManager(c.self, c.transportFactories(), c.cfg.Client.PresenceMinInterval, func(env domain.Envelope) {
		c.deliver(epoch, env)
	}, c.log)
	m.coordinator = signaling.NewCoordinator(c.self, func(env domain.Envelope) {
		c.sendFrom(epoch, env)
	}, c.newLink, c.log)
	m.router = router.New(c.self, m.presence, m.chat, m.coordinator, func() {
		// Lifecycle envelope from another participant: the session is gone,
		// tear down locally without broadcasting another one.
		go c.teardown(epoch)
	}, c.log)
	m.router.SetNotify(func(msg domain.ChatMessage) {
		if c.onChat != nil {
			c.onChat(msg)
		}
	})
	m.manager.SetLocalEcho(m.router.DeliverLocalEcho)
	if c.onModeChange != nil {
		m.manager.OnModeChange(c.onModeChange)
	}

	m.watchdog = idle.NewWatchdog(c.cfg.Idle, idle.Callbacks{
		OnWarning: func(remaining time.Duration) {
			if c.onWarning != nil {
				c.onWarning(remaining)
			}
		},
		OnCountdown: func(secondsLeft int) {
			if c.onCountdown != nil {
				c.onCountdown(secondsLeft)
			}
		},
		OnActive: func() {
			if c.onActive != nil {
				c.onActive()
			}
		},
		OnExpire: func() {
			go c.expire(epoch)
		},
	}, c.log)

	c.current = m
	c.mu.Unlock()

	if err := m.manager.Join(ctx, room.Code); err != nil {
		c.mu.Lock()
		if c.current == m {
			c.current = nil
		}
		c.mu.Unlock()
		return err
	}
	m.watchdog.Start()

	c.log.Info("joined room", "room", room.Code, "mode", string(m.manager.Mode()))
	return nil
}

func (c *Client) transportFactories() transport.Factories {
	if c.factories != nil {
		return *c.factories
	}
	return transport.DefaultFactories(c.self, c.registry, c.cfg.Client.PollInterval, c.log)
}

// Leave announces departure and tears the membership down. The session keeps
// running for the remaining participants.
func (c *Client) Leave() error {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}

	m.manager.Send(domain.NewLeave(c.self))
	c.teardown(m.epoch)
	return nil
}

// EndSession terminates the shared browser session for everyone: destroy
// the provider session, broadcast a lifecycle envelope, end the local
// membership. Teardown happens regardless of provider errors.
func (c *Client) EndSession(ctx context.Context) error {
	const op = "client.endSession"

	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}

	m.manager.Send(domain.NewLifecycle(c.self))

	var destroyErr error
	if c.provider != nil {
		destroyErr = c.provider.Destroy(ctx, m.session.ID)
	}

	c.teardown(m.epoch)

	if destroyErr != nil {
		return fmt.Errorf("%s: %w", op, destroyErr)
	}
	return nil
}

// expire is the watchdog's terminal callback: end the session exactly as an
// explicit EndSession would, but never surface errors to a user action.
func (c *Client) expire(epoch int) {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil || m.epoch != epoch {
		return
	}

	c.log.Info("session expired from inactivity", "room", m.room.Code)

	m.manager.Send(domain.NewLifecycle(c.self))
	if c.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.provider.Destroy(ctx, m.session.ID); err != nil {
			c.log.Warn("provider terminate failed on expiry", sl.Err(err))
		}
	}
	c.teardown(epoch)
}

// teardown ends one membership. Idempotent per epoch: lifecycle envelopes
// arrive at-least-once and expiry can race an explicit leave.
func (c *Client) teardown(epoch int) {
	c.mu.Lock()
	m := c.current
	if m == nil || m.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.epoch++
	c.mu.Unlock()

	m.watchdog.Stop()
	m.coordinator.CloseAll()
	m.manager.Leave()
	m.presence.Clear()
	m.chat.Clear()

	c.log.Info("left room", "room", m.room.Code)
	if c.onTerminated != nil {
		c.onTerminated()
	}
}

// deliver routes an inbound envelope into the membership it belongs to;
// envelopes from an ended membership are dropped.
func (c *Client) deliver(epoch int, env domain.Envelope) {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil || m.epoch != epoch {
		return
	}
	m.router.Deliver(env)
}

// sendFrom transmits an envelope minted by a membership-scoped component
// (the coordinator), dropping it if that membership has ended.
func (c *Client) sendFrom(epoch int, env domain.Envelope) {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil || m.epoch != epoch {
		return
	}
	m.manager.Send(env)
}

// SendChat broadcasts a chat message and counts as activity.
func (c *Client) SendChat(text string) error {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}
	m.watchdog.Touch()
	m.manager.SendChat(text)
	return nil
}

// MoveHead broadcasts the local head position, throttled by the transport
// manager. Head movement counts as activity.
func (c *Client) MoveHead(head domain.Head) error {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}
	m.watchdog.Touch()
	m.manager.SendPresence(head)
	return nil
}

// Activity records local input that is not otherwise visible to the core
// (pointer movement over the embed, key presses, scrolling).
func (c *Client) Activity() {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m != nil {
		m.watchdog.Touch()
	}
}

// Call starts the offer leg toward one participant.
func (c *Client) Call(remoteID string) error {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}
	m.coordinator.Call(remoteID)
	return nil
}

// CallAll offers to every participant currently present.
func (c *Client) CallAll() error {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}
	m.coordinator.CallAll(m.presence.Snapshot())
	return nil
}

// Hangup closes the link to one participant on both sides.
func (c *Client) Hangup(remoteID string) error {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return ErrNotInRoom
	}
	m.coordinator.Hangup(remoteID)
	return nil
}

// CallState reports the media link state toward one participant.
func (c *Client) CallState(remoteID string) signaling.LinkState {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return signaling.StateAbsent
	}
	return m.coordinator.State(remoteID)
}

// Mode reports the current transport mode.
func (c *Client) Mode() transport.Mode {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return transport.ModeDisconnected
	}
	return m.manager.Mode()
}

// Room returns the current room, or nil when not joined.
func (c *Client) Room() *domain.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.room
}

// Session returns the current session handle, or nil when not joined.
func (c *Client) Session() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.session
}

// Participants snapshots the remote participants currently present.
func (c *Client) Participants() []domain.PresenceRecord {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.presence.Snapshot()
}

// Messages snapshots the chat history of the current membership.
func (c *Client) Messages() []domain.ChatMessage {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.chat.Messages()
}

// IdlePhase reports the inactivity state machine phase.
func (c *Client) IdlePhase() idle.Phase {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return idle.PhaseActive
	}
	return m.watchdog.Phase()
}
