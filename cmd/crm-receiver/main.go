package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/config"
	"github.com/zoff-tech/guest-sync/pkg/receive"
	"github.com/zoff-tech/guest-sync/pkg/store"
	"github.com/zoff-tech/guest-sync/pkg/telemetry"
)

func main() {
	ctx := context.Background()

	// Load configuration from file or environment
	cfg, err := config.LoadFromFile("./cmd/crm-receiver")
	if err != nil {
		log.Fatal("Error loading configuration: ", err)
	}

	// Validate the configuration
	err = cfg.Validate()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	// Initialize telemetry (tracing)
	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		log.Fatal("Failed to initialize telemetry: ", err)
	}
	defer shutdownTelemetry()

	// Initialize the durable event store
	st, err := store.NewEventStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize event store: ", err)
	}
	defer st.Close(ctx)

	handler := receive.NewHandler(cfg.Webhook.Secret, cfg.Webhook.MaxSkewSeconds, st, logger)
	router := receive.NewRouter(cfg.Server.BasePath, handler)

	logger.Info("crm receiver listening",
		zap.Int("port", cfg.Server.Port),
		zap.String("base_path", cfg.Server.BasePath),
	)
	if err := router.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatal("Server error: ", err)
	}
}
