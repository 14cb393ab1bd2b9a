package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"consultbook/pkg/client"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"github.com/joho/godotenv"
)

type Config struct {
	StoreBackend      string
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration
	PostgresDSN       string

	Port     string
	Timezone string
	Location *time.Location

	BookingWindowDays         int
	ConfirmationRequiredTypes []model.AppointmentType
	ReminderChannels          []model.Channel
	PhoneRegions              []string

	RedisAddr                 string
	RedisPassword             string
	RedisReminderDB           int
	ReminderWorkerConcurrency int

	EventBus string

	EmailGatewayURL         string
	EmailGatewayKey         string
	SMSGatewayURL           string
	SMSGatewayKey           string
	SMSSenderName           string
	FirebaseCredentialsFile string

	GoogleCalendarID      string
	GoogleCredentialsFile string
	CalendarSyncAttempts  int
	CalendarSyncBackoff   time.Duration

	OTLPEndpoint string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads configuration from the environment, after merging an optional
// .env file. It exits the process when the configuration is invalid.
func Load(serviceName string) *Config {
	log := logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	cfg := FromEnv()
	cfg.Log = log
	cfg.Client = client.NewClient()

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds the configuration without validating it or touching any
// connection.
func FromEnv() *Config {
	cfg := &Config{
		StoreBackend:      strings.ToLower(getEnvStr(EnvStoreBackend, DefaultStoreBackend)),
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),
		PostgresDSN:       getEnvStr(EnvPostgresDSN, DefaultPostgresDSN),

		Port:     getEnvStr(EnvPort, DefaultPort),
		Timezone: getEnvStr(EnvTimezone, DefaultTimezone),

		BookingWindowDays: getEnvNum(EnvBookingWindowDays, DefaultBookingWindowDays),
		PhoneRegions:      getEnvList(EnvPhoneRegions, DefaultPhoneRegions),

		RedisAddr:                 getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:             getEnvStr(EnvRedisPassword, ""),
		RedisReminderDB:           getEnvNum(EnvRedisReminderDB, DefaultRedisReminderDB),
		ReminderWorkerConcurrency: getEnvNum(EnvReminderWorkerConcurrency, DefaultReminderWorkerConcurrency),

		EventBus: strings.ToLower(getEnvStr(EnvEventBus, DefaultEventBus)),

		EmailGatewayURL:         getEnvStr(EnvEmailGatewayURL, ""),
		EmailGatewayKey:         getEnvStr(EnvEmailGatewayKey, ""),
		SMSGatewayURL:           getEnvStr(EnvSMSGatewayURL, ""),
		SMSGatewayKey:           getEnvStr(EnvSMSGatewayKey, ""),
		SMSSenderName:           getEnvStr(EnvSMSSenderName, DefaultSMSSenderName),
		FirebaseCredentialsFile: getEnvStr(EnvFirebaseCredentialsFile, ""),

		GoogleCalendarID:      getEnvStr(EnvGoogleCalendarID, DefaultGoogleCalendarID),
		GoogleCredentialsFile: getEnvStr(EnvGoogleCredentialsFile, ""),
		CalendarSyncAttempts:  getEnvNum(EnvCalendarSyncAttempts, DefaultCalendarSyncAttempts),
		CalendarSyncBackoff:   getEnvDuration(EnvCalendarSyncBackoff, DefaultCalendarSyncBackoff),

		OTLPEndpoint: getEnvStr(EnvOTLPEndpoint, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),
	}

	for _, t := range getEnvList(EnvConfirmationRequiredTypes, DefaultConfirmationRequiredTypes) {
		cfg.ConfirmationRequiredTypes = append(cfg.ConfirmationRequiredTypes, model.AppointmentType(strings.ToUpper(t)))
	}
	for _, ch := range getEnvList(EnvReminderChannels, DefaultReminderChannels) {
		cfg.ReminderChannels = append(cfg.ReminderChannels, model.Channel(strings.ToUpper(ch)))
	}

	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, cfg.MongoConnTimeout)
}

// SetStore connects the configured primary store.
func (cfg *Config) SetStore() {
	if cfg.StoreBackend == StorePostgres {
		cfg.SetPostgres()
		return
	}
	cfg.SetMongo()
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisReminderDB)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if loc, err := time.LoadLocation(cfg.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("Timezone must be a valid IANA zone, got: %s", cfg.Timezone))
	} else {
		cfg.Location = loc
	}

	switch cfg.StoreBackend {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			errors = append(errors, "PostgresDSN cannot be empty")
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreBackend must be one of [mongo, postgres], got: %s", cfg.StoreBackend))
	}

	if cfg.EventBus != EventBusKafka && cfg.EventBus != EventBusLocal {
		errors = append(errors, fmt.Sprintf("EventBus must be one of [kafka, local], got: %s", cfg.EventBus))
	}

	if cfg.BookingWindowDays <= 0 {
		errors = append(errors, fmt.Sprintf("BookingWindowDays must be positive, got: %d", cfg.BookingWindowDays))
	}

	for _, t := range cfg.ConfirmationRequiredTypes {
		switch t {
		case model.AppointmentHomeMeasurement, model.AppointmentOnline, model.AppointmentShowroom:
		default:
			errors = append(errors, fmt.Sprintf("ConfirmationRequiredTypes contains unknown appointment type: %s", t))
		}
	}

	if len(cfg.ReminderChannels) == 0 {
		errors = append(errors, "ReminderChannels must list at least one channel")
	}
	for _, ch := range cfg.ReminderChannels {
		switch ch {
		case model.ChannelEmail, model.ChannelSMS, model.ChannelPush:
		default:
			errors = append(errors, fmt.Sprintf("ReminderChannels contains unknown channel: %s", ch))
		}
	}

	if len(cfg.PhoneRegions) == 0 {
		errors = append(errors, "PhoneRegions must list at least one region")
	}

	if cfg.ReminderWorkerConcurrency <= 0 {
		errors = append(errors, fmt.Sprintf("ReminderWorkerConcurrency must be positive, got: %d", cfg.ReminderWorkerConcurrency))
	}
	if cfg.RedisReminderDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisReminderDB cannot be negative, got: %d", cfg.RedisReminderDB))
	}

	if cfg.CalendarSyncAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("CalendarSyncAttempts must be positive, got: %d", cfg.CalendarSyncAttempts))
	}
	if cfg.CalendarSyncBackoff < 0 {
		errors = append(errors, fmt.Sprintf("CalendarSyncBackoff cannot be negative, got: %s", cfg.CalendarSyncBackoff))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_backend", cfg.StoreBackend,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn_set", cfg.PostgresDSN != "",
		"port", cfg.Port,
		"timezone", cfg.Timezone,
		"booking_window_days", cfg.BookingWindowDays,
		"confirmation_required_types", cfg.ConfirmationRequiredTypes,
		"reminder_channels", cfg.ReminderChannels,
		"phone_regions", cfg.PhoneRegions,
		"redis_addr", cfg.RedisAddr,
		"redis_reminder_db", cfg.RedisReminderDB,
		"reminder_worker_concurrency", cfg.ReminderWorkerConcurrency,
		"event_bus", cfg.EventBus,
		"email_gateway_set", cfg.EmailGatewayURL != "",
		"sms_gateway_set", cfg.SMSGatewayURL != "",
		"firebase_credentials_set", cfg.FirebaseCredentialsFile != "",
		"google_calendar_id", cfg.GoogleCalendarID,
		"calendar_sync_attempts", cfg.CalendarSyncAttempts,
		"calendar_sync_backoff", cfg.CalendarSyncBackoff,
		"otlp_endpoint", cfg.OTLPEndpoint,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnvStr(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
