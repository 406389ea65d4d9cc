package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"event-chat-service/internal/models"
)

// State is the connectivity signal exposed to the UI.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected       = errors.New("not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrClosed             = errors.New("connection closed")
)

// Options controls reconnection.
type Options struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = time.Second
	}
	if o.MaxInterval < o.InitialInterval {
		o.MaxInterval = 5 * o.InitialInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.InitialInterval
	b.MaxInterval = o.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, o.MaxAttempts-1), ctx)
}

// Handler receives push frames. Handlers run on the connection's read
// goroutine, in delivery order.
type Handler func(models.Frame)

// Connection is the process-wide push channel. It is created by a
// Supervisor and reconnects on its own until closed or out of attempts.
type Connection struct {
	token      string
	transports []Transport
	opts       Options
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// notifyMu orders state callbacks: a watcher's first call and every
	// later change are delivered one at a time, in transition order.
	notifyMu sync.Mutex

	mu       sync.Mutex
	state    State
	err      error
	session  Session
	watchers map[int]func(State)
	handlers map[int]handlerEntry
	nextID   int
}

type handlerEntry struct {
	frameType string
	fn        Handler
}

func newConnection(token string, transports []Transport, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		token:      token,
		transports: transports,
		opts:       opts,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		watchers:   make(map[int]func(State)),
		handlers:   make(map[int]handlerEntry),
	}
}

func (c *Connection) start() {
	go c.run()
}

// State returns the current connectivity state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns why the connection last went disconnected, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the run loop has stopped for good.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Watch calls fn with the current state and then on every change. The
// returned function stops the notifications. fn runs on the connection's
// goroutine and must not call Watch.
func (c *Connection) Watch(fn func(State)) func() {
	c.notifyMu.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	current := c.state
	c.mu.Unlock()
	fn(current)
	c.notifyMu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// On registers fn for frames of the given type; an empty type matches every
// frame.
func (c *Connection) On(frameType string, fn Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handlerEntry{frameType: frameType, fn: fn}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// Join asks the server to add this connection to the event's group. It fails
// with ErrNotConnected unless the connection is connected; callers retry
// from a Watch callback.
func (c *Connection) Join(ctx context.Context, eventID int) error {
	return c.sendID(ctx, models.FrameJoinEvent, eventID)
}

// Leave asks the server to drop the event's group membership.
func (c *Connection) Leave(ctx context.Context, eventID int) error {
	return c.sendID(ctx, models.FrameLeaveEvent, eventID)
}

func (c *Connection) sendID(ctx context.Context, frameType string, eventID int) error {
	c.mu.Lock()
	session := c.session
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || session == nil {
		return ErrNotConnected
	}

	frame, err := models.NewFrame(frameType, eventID)
	if err != nil {
		return err
	}
	return session.Send(ctx, frame)
}

// Close stops reconnecting, drops the current session and waits for the run
// loop to finish or ctx to expire.
func (c *Connection) Close(ctx context.Context) error {
	c.cancel()
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) run() {
	defer close(c.done)
	for {
		session, err := c.connect()
		if err != nil {
			if c.ctx.Err() != nil {
				err = ErrClosed
			}
			c.setState(StateDisconnected, nil, err)
			return
		}
		c.setState(StateConnected, session, nil)
		if c.ctx.Err() != nil {
			// Close ran before the session was published
			_ = session.Close()
			c.setState(StateDisconnected, nil, ErrClosed)
			return
		}

		err = c.readLoop(session)
		_ = session.Close()
		if c.ctx.Err() != nil {
			c.setState(StateDisconnected, nil, ErrClosed)
			return
		}
		c.logger.Warn("push channel lost, reconnecting", "err", err)
		c.setState(StateDisconnected, nil, err)
	}
}

func (c *Connection) connect() (Session, error) {
	var session Session
	attempt := 0
	op := func() error {
		attempt++
		c.setState(StateConnecting, nil, nil)
		s, err := c.dial()
		if errors.Is(err, ErrAuthRejected) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		session = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Info("push channel connect failed", "attempt", attempt, "retry_in", wait, "err", err)
	}

	err := backoff.RetryNotify(op, c.opts.backOff(c.ctx), notify)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, ErrAuthRejected), c.ctx.Err() != nil:
		return nil, err
	default:
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempt, err)
	}
}

// dial tries every transport in order; a rejected credential stops the
// fallback since every transport checks the same token.
func (c *Connection) dial() (Session, error) {
	var lastErr error
	for _, t := range c.transports {
		s, err := t.Dial(c.ctx, c.token)
		if err == nil {
			c.logger.Info("push channel connected", "transport", t.Name())
			return s, nil
		}
		if errors.Is(err, ErrAuthRejected) {
			return nil, err
		}
		c.logger.Debug("transport unavailable", "transport", t.Name(), "err", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no transports configured")
	}
	return nil, lastErr
}

func (c *Connection) readLoop(session Session) error {
	for {
		frame, err := session.Recv()
		if errors.Is(err, errMalformedPush) {
			c.logger.Warn("dropping malformed push frame", "err", err)
			continue
		}
		if err != nil {
			return err
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame models.Frame) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		if h.frameType == "" || h.frameType == frame.Type {
			handlers = append(handlers, h.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		c.safeCall(fn, frame)
	}
}

func (c *Connection) safeCall(fn Handler, frame models.Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("push handler panicked", "type", frame.Type, "panic", r)
		}
	}()
	fn(frame)
}

func (c *Connection) setState(state State, session Session, err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.session = session
	if state != StateConnecting {
		c.err = err
	}
	watchers := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range watchers {
		fn(state)
	}
}
