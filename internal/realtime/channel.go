// Package realtime keeps a live connection to the backend's notification stream for the
// signed-in session and turns every event into a local notification.
package realtime

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const DefaultReconnectDelay = 5 * time.Second

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is one established event stream.
type Conn interface {
	Receive() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Notifier interface {
	Schedule(ctx context.Context, n Notification) error
}

type Options struct {
	Dialer         Dialer
	Notifier       Notifier
	Clock          Clock
	ReconnectDelay time.Duration
}

// Channel owns the connection, the reconnect timer and the session token. At most one
// reconnect timer is pending at any time.
type Channel struct {
	dialer   Dialer
	notifier Notifier
	clock    Clock
	delay    time.Duration

	mu       sync.Mutex
	state    State
	token    string
	conn     Conn
	cancel   context.CancelFunc
	timer    Timer
	timerSeq uint64
	// epoch changes on every connect attempt and teardown; goroutines from an older epoch
	// must not touch the channel.
	epoch uint64
}

func New(opts Options) *Channel {
	c := &Channel{
		dialer:   opts.Dialer,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		delay:    opts.ReconnectDelay,
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.delay <= 0 {
		c.delay = DefaultReconnectDelay
	}
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetToken starts a session. An empty token ends it. Setting the token of the session
// already running is a no-op.
func (c *Channel) SetToken(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		c.ClearToken()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token == c.token && c.state != Disconnected {
		return
	}
	c.teardownLocked()
	c.token = token
	c.connectLocked()
}

// ClearToken ends the session: the connection is closed, any pending reconnect is
// canceled and the channel stays disconnected until a new token arrives.
func (c *Channel) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.teardownLocked()
}

func (c *Channel) Close() error {
	c.ClearToken()
	return nil
}

func (c *Channel) setStateLocked(state State) {
	if c.state == state {
		return
	}
	log.Printf("realtime: %s -> %s", c.state, state)
	c.state = state
}

func (c *Channel) teardownLocked() {
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stopTimerLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(Disconnected)
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Channel) connectLocked() {
	c.epoch++
	epoch := c.epoch
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(Connecting)
	go c.run(ctx, epoch, c.token)
}

func (c *Channel) run(ctx context.Context, epoch uint64, token string) {
	conn, err := c.dialer.Dial(ctx, token)
	if err != nil {
		c.fail(epoch, fmt.Errorf("dial: %w", err))
		return
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.setStateLocked(Connected)
	c.mu.Unlock()

	for {
		msg, err := conn.Receive()
		if err != nil {
			c.fail(epoch, fmt.Errorf("receive: %w", err))
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *Channel) handle(ctx context.Context, msg []byte) {
	n, err := ParseEvent(msg)
	if err != nil {
		log.Printf("realtime: drop malformed event: %v", err)
		return
	}
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Schedule(ctx, n); err != nil {
		log.Printf("realtime: schedule notification: %v", err)
	}
}

// fail handles a dial or connection error from the attempt started in epoch.
func (c *Channel) fail(epoch uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.token == "" {
		return
	}
	log.Printf("realtime: connection failed, retrying in %s: %v", c.delay, err)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.scheduleReconnectLocked()
}

func (c *Channel) scheduleReconnectLocked() {
	c.stopTimerLocked()
	seq := c.timerSeq
	c.setStateLocked(Reconnecting)
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq != c.timerSeq || c.token == "" {
			return
		}
		c.timer = nil
		c.connectLocked()
	})
}
