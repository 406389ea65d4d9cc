package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"event-chat-service/internal/models"
)

// PollTransport is the long-poll fallback against /poll/sessions.
type PollTransport struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewPollTransport creates a long-poll transport. Requests carry trace
// context through otelhttp.
func NewPollTransport(baseURL string) *PollTransport {
	return &PollTransport{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (t *PollTransport) Name() string { return "polling" }

func (t *PollTransport) Dial(ctx context.Context, token string) (Session, error) {
	target, err := endpoint(t.BaseURL, "/poll/sessions", false)
	if err != nil {
		return nil, fmt.Errorf("poll url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open poll session: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusUnauthorized:
		return nil, ErrAuthRejected
	default:
		return nil, fmt.Errorf("open poll session: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.SID == "" {
		return nil, fmt.Errorf("open poll session: bad response: %v", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &pollSession{
		client: t.HTTPClient,
		url:    target + "/" + body.SID,
		ctx:    sctx,
		cancel: cancel,
	}, nil
}

type pollSession struct {
	client *http.Client
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []json.RawMessage
	once    sync.Once
}

func (s *pollSession) Send(ctx context.Context, frame models.Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: send status %d", ErrTransportLost, resp.StatusCode)
	}
	return nil
}

func (s *pollSession) Recv() (models.Frame, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			raw := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			var frame models.Frame
			if err := json.Unmarshal(raw, &frame); err != nil {
				return models.Frame{}, fmt.Errorf("%w: %v", errMalformedPush, err)
			}
			return frame, nil
		}
		s.mu.Unlock()

		frames, err := s.poll()
		if err != nil {
			return models.Frame{}, err
		}
		s.mu.Lock()
		s.pending = append(s.pending, frames...)
		s.mu.Unlock()
	}
}

func (s *pollSession) poll() ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: poll status %d", ErrTransportLost, resp.StatusCode)
	}

	var body struct {
		Frames []json.RawMessage `json:"frames"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	return body.Frames, nil
}

func (s *pollSession) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodDelete, s.url, nil)
		if reqErr != nil {
			err = reqErr
			return
		}
		resp, doErr := s.client.Do(req)
		if doErr != nil {
			err = doErr
			return
		}
		_ = resp.Body.Close()
	})
	return err
}
