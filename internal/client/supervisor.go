package client

import (
	"context"
	"errors"
	"sync"
)

// ErrNoCredential is returned by Acquire when the token is empty.
var ErrNoCredential = errors.New("no credential")

// Supervisor owns the single push channel of a process. Callers acquire it
// with their credential and release it when done; a different credential
// replaces the connection, closing the old one first. A new connection is
// only opened once the previous run loop has stopped, so two connections are
// never live at once.
type Supervisor struct {
	transports []Transport
	opts       Options

	// life serializes opening and closing; mu only guards the fields so
	// Current never waits on a teardown.
	life sync.Mutex

	mu    sync.Mutex
	conn  *Connection
	token string
	refs  int
}

// NewSupervisor creates a supervisor dialing the transports in order.
func NewSupervisor(opts Options, transports ...Transport) *Supervisor {
	return &Supervisor{transports: transports, opts: opts.withDefaults()}
}

// Acquire returns the shared connection for token. ctx bounds the wait for
// an old connection to shut down when the token changed; if it expires the
// old connection stays the current one and is closed again next time.
func (s *Supervisor) Acquire(ctx context.Context, token string) (*Connection, error) {
	if token == "" {
		if err := s.Logout(ctx); err != nil {
			return nil, err
		}
		return nil, ErrNoCredential
	}

	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	old := s.conn
	if old != nil && s.token == token && !finished(old) {
		s.refs++
		s.mu.Unlock()
		return old, nil
	}
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(ctx); err != nil {
			return nil, err
		}
	}

	conn := newConnection(token, s.transports, s.opts)
	conn.start()
	s.set(conn, token, 1)
	return conn, nil
}

// Release drops one reference to conn and closes it when none remain.
// Releasing a connection that was already replaced is a no-op.
func (s *Supervisor) Release(ctx context.Context, conn *Connection) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if conn == nil || conn != s.conn {
		s.mu.Unlock()
		return nil
	}
	if s.refs > 0 {
		s.refs--
	}
	last := s.refs == 0
	s.mu.Unlock()
	if !last {
		return nil
	}
	return s.closeCurrent(ctx, conn)
}

// Logout closes the shared connection regardless of outstanding references
// and clears the handle.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return s.closeCurrent(ctx, conn)
}

// closeCurrent clears the handle once conn's run loop has stopped. Callers
// hold life.
func (s *Supervisor) closeCurrent(ctx context.Context, conn *Connection) error {
	if err := conn.Close(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.conn == conn {
		s.conn, s.token, s.refs = nil, "", 0
	}
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) set(conn *Connection, token string, refs int) {
	s.mu.Lock()
	s.conn, s.token, s.refs = conn, token, refs
	s.mu.Unlock()
}

// Current returns the shared connection, if any.
func (s *Supervisor) Current() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// finished reports whether c is closing or stopped and cannot be shared.
func finished(c *Connection) bool {
	if c.ctx.Err() != nil {
		return true
	}
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
