package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"consultbook/internal/events"
	"consultbook/internal/notifications"
	"consultbook/internal/reminders/queue"
	"consultbook/internal/reminders/service"
	"consultbook/internal/stores"
	"consultbook/pkg/config"
	"consultbook/pkg/kafka"
	kafka_config "consultbook/pkg/kafka/config"
	"consultbook/pkg/obs"
)

const ServiceName = "reminders"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()
	cfg.SetRedis()

	cfg.Log.Info("Starting Reminders worker", "concurrency", cfg.ReminderWorkerConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, ServiceName, cfg.OTLPEndpoint, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize tracing", "error", err)
	}

	st := stores.New(cfg)
	publisher, closePublisher := initPublisher(cfg)

	notifier, err := notifications.FromConfig(ctx, cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize notifications", "error", err)
	}
	dispatcher := service.NewDispatcher(st.Reminders, st.Bookings, st.Slots, notifier, publisher, cfg)
	worker := queue.NewWorker(dispatcher, cfg.Log)

	go queue.MonitorRedis(ctx, cfg.Client.Redis, cfg.Log)

	srv := queue.NewServer(cfg)
	if err := srv.Start(worker.Mux()); err != nil {
		cfg.Log.Fatal("Failed to start reminder worker", "error", err)
	}

	<-ctx.Done()
	cfg.Log.Info("Shutdown signal received")

	srv.Shutdown()
	closePublisher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		cfg.Log.Error("Tracer shutdown failed", "error", err)
	}
	cfg.GracefulShutdown()
	cfg.Log.Info("Reminders worker stopped")
}

// initPublisher carries reminder events to Kafka. The local bus has no
// subscribers in this process.
func initPublisher(cfg *config.Config) (events.Publisher, func()) {
	if cfg.EventBus == config.EventBusLocal {
		return events.NewLocalBus(events.NewRouter(), cfg.Log), func() {}
	}

	kcfg, err := kafka_config.Load(ServiceName)
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log)
	producer, err := kafka.NewProducer(kcfg, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	return events.NewKafkaBus(producer, ServiceName), func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	}
}
