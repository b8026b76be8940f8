package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Settings struct {
	Server        ServerSettings     `mapstructure:"server"`
	Webhook       WebhookSettings    `mapstructure:"webhook"`
	Database      DbSettings         `mapstructure:"database"`
	Outbox        OutboxSettings     `mapstructure:"outbox"`
	DeadLetter    DeadLetterSettings `mapstructure:"deadletter"`
	Observability Observability      `mapstructure:"observability"`
}

// OutboxSettings controls the producer-side relay loop.
type OutboxSettings struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func LoadFromFile(filePath string) (*Settings, error) {

	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	viper.SetConfigType("yaml") // Set the config type to YAML
	viper.SetConfigName("guest-sync")
	viper.AddConfigPath(filePath) // path to config
	viper.AddConfigPath(".")      // current directory

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("No config file found or read error: %v (will rely on env)", err)
	}

	err := mergeConfig(filePath, "guest-sync."+env)
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error merging dev config: %s\n", err)
			os.Exit(1)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatalf("Failed to load from env: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like SYNC_WEBHOOK_SECRET

	// Bind environment variables explicitly to ensure they map correctly
	viper.BindEnv("server.port")
	viper.BindEnv("server.base_path")
	viper.BindEnv("webhook.url")
	viper.BindEnv("webhook.secret")
	viper.BindEnv("webhook.timeout")
	viper.BindEnv("webhook.max_skew_seconds")
	viper.BindEnv("webhook.max_retries")
	viper.BindEnv("webhook.breaker_threshold")
	viper.BindEnv("webhook.breaker_cooldown")
	viper.BindEnv("webhook.worker_pool")
	viper.BindEnv("database.type")
	viper.BindEnv("database.dsn")
	viper.BindEnv("database.uri")
	viper.BindEnv("database.db_name")
	viper.BindEnv("database.collection")
	viper.BindEnv("outbox.poll_interval")
	viper.BindEnv("outbox.batch_size")
	viper.BindEnv("outbox.max_retries")
	viper.BindEnv("deadletter.retry_delay")
	viper.BindEnv("deadletter.sweep_interval")
	viper.BindEnv("deadletter.max_cycles")
	viper.BindEnv("deadletter.topic")
	viper.BindEnv("deadletter.broker.type")
	viper.BindEnv("deadletter.broker.url")
	viper.BindEnv("deadletter.broker.projectID")
	viper.BindEnv("observability.service_name")
	viper.BindEnv("observability.tracing_url")

	if err := viper.Unmarshal(&c); err != nil {
		return err
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 5001)
	viper.SetDefault("server.base_path", "/api/v1")
	viper.SetDefault("webhook.timeout", 10*time.Second)
	viper.SetDefault("webhook.max_skew_seconds", 300)
	viper.SetDefault("webhook.max_retries", 5)
	viper.SetDefault("webhook.retry_delays", []time.Duration{
		time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
	})
	viper.SetDefault("webhook.breaker_threshold", 5)
	viper.SetDefault("webhook.breaker_cooldown", time.Minute)
	viper.SetDefault("webhook.worker_pool", 64)
	viper.SetDefault("outbox.poll_interval", 5*time.Second)
	viper.SetDefault("outbox.batch_size", 10)
	viper.SetDefault("outbox.max_retries", 3)
	viper.SetDefault("deadletter.retry_delay", 5*time.Minute)
	viper.SetDefault("deadletter.sweep_interval", time.Minute)
	viper.SetDefault("deadletter.max_cycles", 10)
	viper.SetDefault("observability.service_name", "guest-sync")
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	err := viper.MergeInConfig()
	if err != nil {
		return err
	}
	return nil
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
