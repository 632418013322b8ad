package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/lib/logger/sl"
)

// EventLog is the slice of the registry API the pull channel needs.
// *registry.Client satisfies it.
type EventLog interface {
	AppendEvent(ctx context.Context, code string, env domain.Envelope) error
	FetchSince(ctx context.Context, code string, since int64) ([]domain.Envelope, int64, error)
}

// PullChannel is the durable fallback: a fixed-interval fetch of every
// envelope past the locally held cursor. A failed tick is skipped silently
// and retried on the next interval; the pull channel never fails upward.
// The cursor starts at zero for each membership and is never persisted.
type PullChannel struct {
	code     string
	events   EventLog
	recv     Receiver
	interval time.Duration
	log      *slog.Logger

	cursor int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPullChannel(code string, events EventLog, recv Receiver, interval time.Duration, log *slog.Logger) *PullChannel {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 1200 * time.Millisecond
	}
	return &PullChannel{
		code:     code,
		events:   events,
		recv:     recv,
		interval: interval,
		log:      log,
	}
}

func (c *PullChannel) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.loop()
	return nil
}

func (c *PullChannel) Send(env domain.Envelope) {
	ctx, cancel := context.WithTimeout(c.context(), 10*time.Second)
	defer cancel()

	if err := c.events.AppendEvent(ctx, c.code, env); err != nil {
		c.log.Warn("pull send failed", "kind", string(env.Kind), sl.Err(err))
	}
}

func (c *PullChannel) Close() error {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
	return nil
}

// Cursor returns the current high-water mark; zero until the first
// successful fetch.
func (c *PullChannel) Cursor() int64 {
	return c.cursor
}

func (c *PullChannel) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *PullChannel) tick() {
	ctx, cancel := context.WithTimeout(c.ctx, c.interval)
	defer cancel()

	envs, last, err := c.events.FetchSince(ctx, c.code, c.cursor)
	if err != nil {
		// Transient by assumption; next tick retries with the same cursor.
		c.log.Debug("pull tick skipped", sl.Err(err))
		return
	}

	for _, env := range envs {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		c.recv(env)
	}
	c.cursor = last
}

func (c *PullChannel) context() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}
