package announce

import (
	"context"
	"fmt"

	"github.com/zoff-tech/guest-sync/pkg/config"
)

// NewBroker builds the dead-letter announcer selected by configuration. An
// empty broker type returns (nil, nil): announcing is optional and the queue
// runs memory-only without it.
func NewBroker(ctx context.Context, cfg *config.BrokerSettings) (MessageBroker, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMqAnnouncer(ctx, cfg)
	case "gcp-pubsub":
		return NewPubSubAnnouncer(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}
