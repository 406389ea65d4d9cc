package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"event-chat-service/internal/observability"
	"event-chat-service/internal/telemetry"
)

// ErrChannelClosed is returned by Publish once the broker closed the channel.
var ErrChannelClosed = errors.New("amqp channel closed")

// Publisher publishes audit records and push channel lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Options configures the broker connection. An empty URL disables AMQP.
type Options struct {
	URL          string
	Exchange     string
	DialAttempts uint64
	DialInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Exchange == "" {
		o.Exchange = "events"
	}
	if o.DialAttempts == 0 {
		o.DialAttempts = 3
	}
	if o.DialInterval <= 0 {
		o.DialInterval = time.Second
	}
	return o
}

// NewPublisher connects to the broker and declares the topic exchange. When
// AMQP is disabled or the broker stays unreachable it returns a noop
// publisher, so the service runs without a broker.
func NewPublisher(ctx context.Context, opts Options) Publisher {
	opts = opts.withDefaults()
	if opts.URL == "" {
		slog.Info("rabbitmq disabled, using noop", "reason", "empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	var conn *amqp.Connection
	dial := func() error {
		c, err := amqp.Dial(opts.URL)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.DialInterval), opts.DialAttempts-1), ctx)
	notify := func(err error, wait time.Duration) {
		slog.Warn("rabbitmq dial failed, retrying", "retry_in", wait, "err", err)
	}
	if err := backoff.RetryNotify(dial, policy, notify); err != nil {
		slog.Warn("rabbitmq disabled, using noop", "reason", err)
		return noopPublisher{reason: err.Error()}
	}

	p, err := newAMQPPublisher(conn, opts.Exchange)
	if err != nil {
		slog.Warn("rabbitmq disabled, using noop", "reason", err)
		_ = conn.Close()
		return noopPublisher{reason: err.Error()}
	}
	slog.Info("rabbitmq connected", "exchange", opts.Exchange)
	return p
}

type amqpPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool
}

func newAMQPPublisher(conn *amqp.Connection, exchange string) (*amqpPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
	go p.watch(ch.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

// watch marks the publisher closed when the broker drops the channel.
// Publishing then fails fast instead of blocking request handlers.
func (p *amqpPublisher) watch(closes <-chan *amqp.Error) {
	amqpErr, ok := <-closes
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if ok && amqpErr != nil {
		slog.Error("rabbitmq channel closed", "code", amqpErr.Code, "reason", amqpErr.Reason)
	}
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrChannelClosed
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         eventType(event),
		Headers:      headersFor(event),
		Body:         body,
	})
	if err != nil {
		slog.Error("rabbitmq publish failed", "routing_key", routingKey, "err", err)
	}
	return err
}

func eventType(event any) string {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType
	case observability.EventEnvelope:
		return envelope.EventName
	default:
		return ""
	}
}

func headersFor(event any) amqp.Table {
	envelope, ok := event.(observability.EventEnvelope)
	if !ok || len(envelope.Headers) == 0 {
		return nil
	}
	table := amqp.Table{}
	for key, value := range envelope.Headers {
		table[key] = value
	}
	return table
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	ch := p.ch
	p.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
	return p.conn.Close()
}

// noopPublisher stands in when no broker is configured; it only logs.
type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	slog.Debug("rabbitmq noop publish", "routing_key", routingKey, "type", eventType(event))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why the noop publisher is in use.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
