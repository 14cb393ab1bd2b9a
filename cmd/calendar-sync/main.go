package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"consultbook/internal/calendar"
	"consultbook/internal/events"
	"consultbook/internal/stores"
	"consultbook/pkg/config"
	"consultbook/pkg/kafka"
	kafka_config "consultbook/pkg/kafka/config"
	kafka_middleware "consultbook/pkg/kafka/middleware"
	"consultbook/pkg/obs"

	"google.golang.org/api/option"
)

const ServiceName = "calendar-sync"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()

	cfg.Log.Info("Starting Calendar sync", "calendar_id", cfg.GoogleCalendarID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, ServiceName, cfg.OTLPEndpoint, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize tracing", "error", err)
	}

	var opts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	provider, err := calendar.NewGoogleProvider(ctx, cfg.GoogleCalendarID, cfg.Location, opts...)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize calendar provider", "error", err)
	}

	st := stores.New(cfg)
	router := events.NewRouter()
	calendar.NewSyncer(provider, st.Bookings, st.Slots, cfg).Subscribe(router)

	kcfg, err := kafka_config.Load(ServiceName)
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log)
	consumer, err := kafka.NewConsumer(kcfg, router.Topics(), router.HandleMessage, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	metrics := kafka_middleware.NewMetrics()
	if kcfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(metrics.ConsumerMiddleware())
	}

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Kafka consumer stopped", "error", err)
	}

	cfg.Log.Info("Shutting down calendar sync", metrics.Snapshot().LogAttrs()...)
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close Kafka consumer", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		cfg.Log.Error("Tracer shutdown failed", "error", err)
	}
	cfg.GracefulShutdown()
}
