// Package client is the client side of the push channel: transports, the
// per-process connection supervisor, event rooms and the REST API.
package client

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"event-chat-service/internal/models"
)

var (
	// ErrAuthRejected means the server refused the credential. It is never
	// retried.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrTransportLost wraps network failures of an established session.
	ErrTransportLost = errors.New("transport lost")

	// errMalformedPush is returned by Recv for a frame that could not be
	// decoded; the session stays usable.
	errMalformedPush = errors.New("malformed push frame")
)

// Session is one established push channel.
type Session interface {
	Send(ctx context.Context, frame models.Frame) error
	// Recv blocks until the next frame arrives or the session fails. Close
	// unblocks it.
	Recv() (models.Frame, error)
	Close() error
}

// Transport opens sessions of one physical kind.
type Transport interface {
	Name() string
	Dial(ctx context.Context, token string) (Session, error)
}

// endpoint joins a base URL and a path, switching the scheme when ws is set.
func endpoint(base, path string, ws bool) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	if ws {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
	}
	u.Path += path
	return u.String(), nil
}
