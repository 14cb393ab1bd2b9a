package config

const (
	EnvStoreBackend      = "STORE_BACKEND"
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"
	EnvPostgresDSN       = "POSTGRES_DSN"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvTimezone = "APP_TIMEZONE"

	EnvBookingWindowDays         = "BOOKING_WINDOW_DAYS"
	EnvConfirmationRequiredTypes = "CONFIRMATION_REQUIRED_TYPES"
	EnvReminderChannels          = "REMINDER_CHANNELS"
	EnvPhoneRegions              = "PHONE_REGIONS"

	EnvRedisAddr                 = "REDIS_ADDR"
	EnvRedisPassword             = "REDIS_PASSWORD"
	EnvRedisReminderDB           = "REDIS_REMINDER_DB"
	EnvReminderWorkerConcurrency = "REMINDER_WORKER_CONCURRENCY"

	EnvEventBus = "EVENT_BUS"

	EnvEmailGatewayURL         = "EMAIL_GATEWAY_URL"
	EnvEmailGatewayKey         = "EMAIL_GATEWAY_KEY"
	EnvSMSGatewayURL           = "SMS_GATEWAY_URL"
	EnvSMSGatewayKey           = "SMS_GATEWAY_KEY"
	EnvSMSSenderName           = "SMS_SENDER_NAME"
	EnvFirebaseCredentialsFile = "FIREBASE_CREDENTIALS_FILE"

	EnvGoogleCalendarID      = "GOOGLE_CALENDAR_ID"
	EnvGoogleCredentialsFile = "GOOGLE_CREDENTIALS_FILE"
	EnvCalendarSyncAttempts  = "CALENDAR_SYNC_ATTEMPTS"
	EnvCalendarSyncBackoff   = "CALENDAR_SYNC_BACKOFF"

	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
