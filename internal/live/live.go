// Package live keeps a server-push connection open and turns REFRESH
// messages into invalidation events for cached financial data.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrConnectionLost is reported when an open push connection drops.
var ErrConnectionLost = errors.New("push connection lost")

// RefreshMessage is the server's invalidation signal.
const RefreshMessage = "REFRESH"

// DefaultReconnectDelay is the fixed wait between connection attempts.
const DefaultReconnectDelay = 3000 * time.Millisecond

// Status is the connection phase.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ConnectionState is the observable channel state.
type ConnectionState struct {
	Status     Status
	RetryCount int
}

// Event tells subscribers that cached balances and history are stale.
type Event struct {
	At time.Time
}

// Conn is an open push connection.
type Conn interface {
	// ReadMessage blocks until the next message or an error.
	ReadMessage() (string, error)
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Timer is a stoppable one-shot wait.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// Option configures a Channel.
type Option func(*Channel)

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.delay = d }
}

// WithTimer replaces the reconnect timer factory.
func WithTimer(newTimer func(time.Duration) Timer) Option {
	return func(c *Channel) { c.newTimer = newTimer }
}

// Channel is a self-healing push subscription. Run owns the whole
// lifecycle; cancelling its context is the only way to stop it.
type Channel struct {
	url      string
	dialer   Dialer
	delay    time.Duration
	newTimer func(time.Duration) Timer
	log      *slog.Logger

	events chan Event
	states chan ConnectionState

	mu     sync.Mutex
	state  ConnectionState
	cancel context.CancelFunc
	closed bool
}

// New creates a channel for url. Nothing is dialed until Run.
func New(url string, dialer Dialer, log *slog.Logger, opts ...Option) *Channel {
	c := &Channel{
		url:      url,
		dialer:   dialer,
		delay:    DefaultReconnectDelay,
		newTimer: func(d time.Duration) Timer { return realTimer{time.NewTimer(d)} },
		log:      log,
		events:   make(chan Event, 16),
		states:   make(chan ConnectionState, 1),
		state:    ConnectionState{Status: StatusClosed},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events delivers one event per REFRESH, in arrival order. It is closed
// when Run returns.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// States delivers the latest connection state. Intermediate states may be
// skipped when the reader is slow. It is closed when Run returns.
func (c *Channel) States() <-chan ConnectionState {
	return c.states
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops Run. Safe to call more than once and before Run.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
}

// Run connects and reconnects until ctx is cancelled or Close is called.
// It must be called at most once.
func (c *Channel) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		close(c.events)
		close(c.states)
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	defer close(c.events)
	defer close(c.states)
	defer cancel()

	for {
		c.setStatus(StatusConnecting, false)
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.setStatus(StatusClosed, false)
			c.log.Info("push channel stopped")
			return
		}

		c.setStatus(StatusClosed, true)
		c.log.Warn("push channel down, retrying",
			"error", err, "retry", c.State().RetryCount, "delay", c.delay)

		t := c.newTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			c.log.Info("push channel stopped")
			return
		case <-t.C():
		}
	}
}

// session dials once and reads until the connection fails.
func (c *Channel) session(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			conn.Close()
		}
	}()

	c.setStatus(StatusOpen, false)
	c.log.Info("push channel open", "url", c.url)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		if msg != RefreshMessage {
			c.log.Debug("ignoring push message", "message", msg)
			continue
		}
		select {
		case c.events <- Event{At: time.Now()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) setStatus(s Status, retry bool) {
	c.mu.Lock()
	c.state.Status = s
	if retry {
		c.state.RetryCount++
	}
	st := c.state
	c.mu.Unlock()

	// Latest wins.
	select {
	case <-c.states:
	default:
	}
	select {
	case c.states <- st:
	default:
	}
}
