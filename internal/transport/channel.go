// Package transport delivers envelopes between room participants over an
// upgradeable channel: a persistent websocket when the relay allows it, a
// cursor-based poll of the room's event log when it does not.
package transport

import (
	"context"

	"github.com/feliven/coffeetable/internal/domain"
)

// Receiver consumes one inbound envelope. Channels call it from their own
// read goroutine, in delivery order.
type Receiver func(domain.Envelope)

// Channel is one live conduit for a single room membership. Send failures
// are logged inside the channel and never returned: transport faults are
// resolved by downgrade or retry, not by the caller.
type Channel interface {
	Connect(ctx context.Context) error
	Send(env domain.Envelope)
	Close() error
}

// Mode is the externally observable transport state. It feeds status
// display only; correctness never depends on it.
type Mode string

const (
	ModeDisconnected Mode = "disconnected"
	ModePush         Mode = "push"
	ModePull         Mode = "pull"
)
