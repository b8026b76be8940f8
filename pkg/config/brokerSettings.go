package config

// BrokerSettings holds configuration for connecting to a message broker.
// An empty Type disables broker announcements.
type BrokerSettings struct {
	Type      string `mapstructure:"type" validate:"omitempty,oneof=rabbitmq gcp-pubsub"`
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	ProjectID string `mapstructure:"projectID"` // Optional for brokers like GCP Pub/Sub
}
