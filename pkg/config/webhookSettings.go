package config

import "time"

// WebhookSettings holds the delivery-side configuration: where to deliver,
// how to sign, and how aggressively to retry.
type WebhookSettings struct {
	// URL and Secret may both be empty, in which case delivery is a
	// documented no-op (events are skipped with a warning).
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	Secret string `mapstructure:"secret"`

	Timeout        time.Duration `mapstructure:"timeout"`
	MaxSkewSeconds int           `mapstructure:"max_skew_seconds" validate:"gte=0"`

	MaxRetries  int             `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelays []time.Duration `mapstructure:"retry_delays"`

	BreakerThreshold int           `mapstructure:"breaker_threshold" validate:"gt=0"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`

	WorkerPool int `mapstructure:"worker_pool" validate:"gt=0"`
}

// DeadLetterSettings controls the holding area for events that exhausted
// their retries.
type DeadLetterSettings struct {
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxCycles bounds how many times a dead-lettered event may re-exhaust
	// retries and re-queue before it is parked for inspection.
	MaxCycles int            `mapstructure:"max_cycles" validate:"gt=0"`
	Topic     string         `mapstructure:"topic"`
	Broker    BrokerSettings `mapstructure:"broker"`
}
