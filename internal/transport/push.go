package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/lib/logger/sl"
)

const (
	pushWriteWait      = 10 * time.Second
	pushMaxMessageSize = 64 * 1024
)

// PushChannel is the duplex websocket variant. On open it announces the
// local participant with a hello envelope; on any read or write breakage it
// reports the failure upward exactly once and stops. It never retries;
// recovery is the manager's downgrade decision.
type PushChannel struct {
	url  string
	self domain.Participant
	recv Receiver
	log  *slog.Logger

	// onFailure is invoked at most once, from the channel's goroutine.
	onFailure func(error)
	failOnce  sync.Once

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeMu sync.Mutex
	closed  bool
}

func NewPushChannel(url string, self domain.Participant, recv Receiver, onFailure func(error), log *slog.Logger) *PushChannel {
	if log == nil {
		log = slog.Default()
	}
	return &PushChannel{
		url:       url,
		self:      self,
		recv:      recv,
		onFailure: onFailure,
		log:       log,
	}
}

func (c *PushChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(pushMaxMessageSize)
	c.conn = conn

	// The hello doubles as the join announcement; the relay rebroadcasts
	// it to everyone already in the room.
	if err := c.write(domain.NewHello(c.self)); err != nil {
		conn.Close()
		return err
	}

	go c.readLoop()
	return nil
}

func (c *PushChannel) Send(env domain.Envelope) {
	if err := c.write(env); err != nil {
		c.log.Warn("push send failed", "kind", string(env.Kind), sl.Err(err))
	}
}

func (c *PushChannel) Close() error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()

	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *PushChannel) write(env domain.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	return c.conn.WriteJSON(env)
}

func (c *PushChannel) readLoop() {
	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.fail(err)
			return
		}
		c.recv(env)
	}
}

func (c *PushChannel) fail(err error) {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return
	}

	c.failOnce.Do(func() {
		c.log.Warn("push channel failed", sl.Err(err))
		if c.onFailure != nil {
			c.onFailure(err)
		}
	})
}
