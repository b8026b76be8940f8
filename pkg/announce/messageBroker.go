package announce

import "context"

// MessageBroker defines the operations to publish dead-letter notices to a
// broker topic for operational alerting.
type MessageBroker interface {
	// Publish sends the message to the specified topic or exchange with optional headers.
	Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error
	// Close cleans up any resources (connections).
	Close() error
}
