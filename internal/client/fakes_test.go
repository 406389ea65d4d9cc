package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"event-chat-service/internal/models"
)

type fakeSession struct {
	frames chan models.Frame
	sent   chan models.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		frames: make(chan models.Frame, 16),
		sent:   make(chan models.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Send(_ context.Context, f models.Frame) error {
	select {
	case <-s.closed:
		return ErrTransportLost
	default:
	}
	s.sent <- f
	return nil
}

func (s *fakeSession) Recv() (models.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return models.Frame{}, fmt.Errorf("%w: closed", ErrTransportLost)
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	name     string
	fail     func(attempt int) error
	sessions chan *fakeSession

	mu     sync.Mutex
	dials  int
	tokens []string
}

func newFakeTransport(name string, fail func(int) error) *fakeTransport {
	return &fakeTransport{name: name, fail: fail, sessions: make(chan *fakeSession, 16)}
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Dial(_ context.Context, token string) (Session, error) {
	t.mu.Lock()
	t.dials++
	n := t.dials
	t.tokens = append(t.tokens, token)
	t.mu.Unlock()

	if t.fail != nil {
		if err := t.fail(n); err != nil {
			return nil, err
		}
	}
	s := newFakeSession()
	t.sessions <- s
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) nextSession(tb testing.TB) *fakeSession {
	tb.Helper()
	select {
	case s := <-t.sessions:
		return s
	case <-time.After(2 * time.Second):
		tb.Fatalf("no session dialed on %s", t.name)
		return nil
	}
}

func fastOptions() Options {
	return Options{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func waitState(t *testing.T, c *Connection, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, 5*time.Millisecond, "want state %s", want)
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection run loop did not stop")
	}
}

func expectSent(t *testing.T, s *fakeSession, frameType string, id int) {
	t.Helper()
	select {
	case f := <-s.sent:
		require.Equal(t, frameType, f.Type)
		got, err := f.ID()
		require.NoError(t, err)
		require.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s frame", frameType)
	}
}

// stuckSession ignores Close: Recv only returns once release is closed,
// like a transport whose teardown hangs.
type stuckSession struct {
	release chan struct{}
}

func (s *stuckSession) Send(context.Context, models.Frame) error { return nil }

func (s *stuckSession) Recv() (models.Frame, error) {
	<-s.release
	return models.Frame{}, ErrTransportLost
}

func (s *stuckSession) Close() error { return nil }

// stuckTransport hands out one stuckSession, then dials through next.
type stuckTransport struct {
	release chan struct{}
	next    *fakeTransport

	mu   sync.Mutex
	used bool
}

func (t *stuckTransport) Name() string { return "stuck" }

func (t *stuckTransport) Dial(ctx context.Context, token string) (Session, error) {
	t.mu.Lock()
	first := !t.used
	t.used = true
	t.mu.Unlock()
	if first {
		return &stuckSession{release: t.release}, nil
	}
	return t.next.Dial(ctx, token)
}
