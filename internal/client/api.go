package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"event-chat-service/internal/models"
)

var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
)

// APIError is a failed request/response call.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %d", e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// API is the request/response client for messages and events.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a client for the server at baseURL. A nil httpClient gets a
// traced client with a 15s timeout.
func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// FetchMessages returns an event's chat in creation order.
func (a *API) FetchMessages(ctx context.Context, eventID int) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/events/%d/messages", eventID), nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateMessage posts text to an event's chat.
func (a *API) CreateMessage(ctx context.Context, eventID int, text string) (models.Message, error) {
	var msg models.Message
	body := map[string]string{"message": text}
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/events/%d/messages", eventID), body, http.StatusCreated, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// DeleteMessage deletes one of the caller's messages.
func (a *API) DeleteMessage(ctx context.Context, messageID int) error {
	return a.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), nil, http.StatusNoContent, nil)
}

// FetchEvent returns an event with its participants.
func (a *API) FetchEvent(ctx context.Context, eventID int) (models.Event, error) {
	var ev models.Event
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/events/%d", eventID), nil, http.StatusOK, &ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// FetchUserEvents returns the events a user created or attends.
func (a *API) FetchUserEvents(ctx context.Context, userID int, kind models.UserEventsKind) ([]models.Event, error) {
	var resp struct {
		Events []models.Event `json:"events"`
	}
	path := "/users/" + strconv.Itoa(userID) + "/events?type=" + url.QueryEscape(string(kind))
	if err := a.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (a *API) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	apiErr := &APIError{Status: resp.StatusCode, Message: body.Error}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		apiErr.Err = ErrAuthRejected
	case http.StatusForbidden:
		apiErr.Err = ErrNotAuthorized
	case http.StatusNotFound:
		apiErr.Err = ErrNotFound
	}
	return apiErr
}
