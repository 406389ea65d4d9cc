package observability

import (
	"context"
	"sync/atomic"
)

// Publisher is the transport used for lifecycle events, normally the
// rabbitmq publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type publisherHolder struct {
	Publisher
}

var defaultPublisher atomic.Pointer[publisherHolder]

// SetPublisher installs the process-wide event publisher. Passing nil
// disables event publishing.
func SetPublisher(publisher Publisher) {
	if publisher == nil {
		defaultPublisher.Store(nil)
		return
	}
	defaultPublisher.Store(&publisherHolder{Publisher: publisher})
}

// PublishEvent sends an envelope when a publisher is installed.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope) error {
	holder := defaultPublisher.Load()
	if holder == nil {
		return nil
	}

	err := holder.Publish(ctx, routingKey, envelope)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
