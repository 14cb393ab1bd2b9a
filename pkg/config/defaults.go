package config

import "time"

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"

	EventBusKafka = "kafka"
	EventBusLocal = "local"
)

const (
	DefaultStoreBackend      = StoreMongo
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "consultbook"
	DefaultMongoConnTimeout  = 10 * time.Second
	DefaultPostgresDSN       = "host=localhost user=consultbook dbname=consultbook sslmode=disable"

	DefaultPort     = "8080"
	DefaultLogLevel = "INFO"
	DefaultTimezone = "Europe/London"

	DefaultBookingWindowDays         = 90
	DefaultConfirmationRequiredTypes = "HOME_MEASUREMENT"
	DefaultReminderChannels          = "EMAIL,SMS"
	DefaultPhoneRegions              = "GB"

	DefaultRedisAddr                 = "localhost:6379"
	DefaultRedisReminderDB           = 0
	DefaultReminderWorkerConcurrency = 10

	DefaultEventBus = EventBusKafka

	DefaultSMSSenderName = "CONSULTBOOK"

	DefaultGoogleCalendarID     = "primary"
	DefaultCalendarSyncAttempts = 3
	DefaultCalendarSyncBackoff  = 500 * time.Millisecond

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)
