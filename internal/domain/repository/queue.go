package repository

import "context"

// EventPublisher publishes an already-serialized payload to the broker under
// a routing key, used by the C6 relay to drain OutboxEvent rows (§4.6).
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}
