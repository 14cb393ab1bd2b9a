package main

import (
	"context"
	"time"

	"consultbook/internal/bookings/handler"
	"consultbook/internal/bookings/service"
	"consultbook/internal/bookings/validator"
	"consultbook/internal/calendar"
	"consultbook/internal/events"
	"consultbook/internal/notifications"
	reminderhandler "consultbook/internal/reminders/handler"
	"consultbook/internal/reminders/queue"
	reminderservice "consultbook/internal/reminders/service"
	rescheduleservice "consultbook/internal/reschedule/service"
	"consultbook/internal/stores"
	"consultbook/pkg/app"
	"consultbook/pkg/config"
	"consultbook/pkg/kafka"
	kafka_config "consultbook/pkg/kafka/config"
	kafka_middleware "consultbook/pkg/kafka/middleware"
	"consultbook/pkg/obs"

	"google.golang.org/api/option"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()
	cfg.SetRedis()

	cfg.Log.Info("Starting Bookings service")
	ctx := context.Background()

	shutdownTracer, err := obs.InitTracer(ctx, ServiceName, cfg.OTLPEndpoint, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize tracing", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	bookingHandler, reminderHandler := initServices(ctx, cfg, serverApp)
	serverApp.SetApp(bookingHandler, reminderHandler)
	serverApp.OnShutdown(shutdownTracer)
	serverApp.Run()
}

func initServices(ctx context.Context, cfg *config.Config, serverApp *app.Application) (*handler.BookingHandler, *reminderhandler.ReminderHandler) {
	st := stores.New(cfg)

	router := events.NewRouter()

	enqueuer := queue.NewEnqueuer(queue.RedisOpt(cfg))
	serverApp.OnShutdown(func(context.Context) error { return enqueuer.Close() })
	scheduler := reminderservice.NewScheduler(st.Reminders, st.Bookings, st.Slots, enqueuer, cfg)
	scheduler.Subscribe(router)

	publisher := initEvents(ctx, cfg, router, st, serverApp)

	guards := service.NewGuards(st.Consultants, cfg.Location, cfg.BookingWindowDays)
	policy := service.NewInitialStatusPolicy(cfg.ConfirmationRequiredTypes)
	bookingValidator := validator.NewBookingValidator(cfg.Log)

	bookingService := service.NewBookingService(service.Dependencies{
		Repo:      st.Bookings,
		Slots:     st.Slots,
		Guards:    guards,
		Policy:    policy,
		Reminders: scheduler,
		Tx:        st.Tx,
		Events:    publisher,
		Validator: bookingValidator,
	}, cfg)

	rescheduleService := rescheduleservice.NewRescheduleService(rescheduleservice.Dependencies{
		Bookings:  bookingService,
		Repo:      st.Bookings,
		Slots:     st.Slots,
		Guards:    guards,
		Policy:    policy,
		Reminders: scheduler,
		Tx:        st.Tx,
		Events:    publisher,
		Validator: bookingValidator,
	}, cfg)

	notifier, err := notifications.FromConfig(ctx, cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize notifications", "error", err)
	}
	dispatcher := reminderservice.NewDispatcher(st.Reminders, st.Bookings, st.Slots, notifier, publisher, cfg)

	cfg.Log.Info("Booking service initialized",
		"store", cfg.StoreBackend,
		"event_bus", cfg.EventBus,
	)
	return handler.NewBookingHandler(bookingService, rescheduleService, cfg.Log),
		reminderhandler.NewReminderHandler(dispatcher, scheduler, cfg.Log)
}

const (
	calendarWorkers   = 2
	calendarQueueSize = 256
	calendarCallLimit = 10 * time.Second
)

// calendarSyncTimeout covers every attempt of one sync plus the backoff
// between attempts.
func calendarSyncTimeout(cfg *config.Config) time.Duration {
	n := time.Duration(cfg.CalendarSyncAttempts)
	return n*calendarCallLimit + n*(n-1)/2*cfg.CalendarSyncBackoff
}

// initEvents always delivers to the in-process router so reminders are
// scheduled right after commit. With Kafka the same events also leave the
// process for calendar-sync.
func initEvents(ctx context.Context, cfg *config.Config, router *events.Router, st *stores.Stores, serverApp *app.Application) events.Publisher {
	local := events.NewLocalBus(router, cfg.Log)

	if cfg.EventBus == config.EventBusLocal {
		if cfg.GoogleCredentialsFile != "" {
			provider, err := calendar.NewGoogleProvider(ctx, cfg.GoogleCalendarID, cfg.Location,
				option.WithCredentialsFile(cfg.GoogleCredentialsFile))
			if err != nil {
				cfg.Log.Fatal("Failed to initialize calendar provider", "error", err)
			}
			detached := events.NewDetached(router, calendarWorkers, calendarQueueSize, calendarSyncTimeout(cfg), cfg.Log)
			serverApp.OnShutdown(detached.Close)
			calendar.NewSyncer(provider, st.Bookings, st.Slots, cfg).Subscribe(detached)
			cfg.Log.Info("Calendar sync running in-process", "calendar_id", cfg.GoogleCalendarID)
		}
		return local
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
	metrics := kafka_middleware.NewMetrics()
	if kcfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(metrics.ProducerMiddleware())
	}
	serverApp.OnShutdown(func(context.Context) error {
		cfg.Log.Info("Kafka producer stats", metrics.Snapshot().LogAttrs()...)
		return producer.Close()
	})

	return events.Fanout{events.NewKafkaBus(producer, ServiceName), local}
}
