package kafka_config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"consultbook/pkg/logger"
)

// Config holds all Kafka configuration
type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 = all, 0 = none, 1 = leader only
	ProducerCompression  string // "none", "gzip", "snappy", "lz4", "zstd"
	ProducerAsync        bool

	ConsumerStartOffset       int64 // -1 = newest, -2 = oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int
	ConsumerGroupID           string
	ConsumerRetryBackoff      time.Duration

	// Shared by producer and consumer, empty disables the DLQ
	DLQTopic               string
	AllowAutoTopicCreation bool

	EnableMiddleware bool
}

var compressions = []string{"none", "gzip", "snappy", "lz4", "zstd"}

// Load creates a Kafka config from environment variables. groupID is the
// consumer group used when the process consumes; producers ignore it.
// Unparsable values are reported rather than replaced by defaults.
func Load(groupID string) (*Config, error) {
	env := &envReader{}

	cfg := &Config{
		Brokers: splitBrokers(env.getStr(EnvKafkaBrokers, DefaultKafkaBrokers)),

		ProducerMaxAttempts:  env.getInt(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts),
		ProducerBatchTimeout: env.getDuration(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout),
		ProducerRequireAcks:  env.getInt(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks),
		ProducerCompression:  strings.ToLower(env.getStr(EnvKafkaProducerCompression, DefaultProducerCompression)),
		ProducerAsync:        env.getBool(EnvKafkaProducerAsync, DefaultProducerAsync),

		ConsumerStartOffset:       int64(env.getInt(EnvKafkaConsumerStartOffset, DefaultConsumerStartOffset)),
		ConsumerMinBytes:          env.getInt(EnvKafkaConsumerMinBytes, DefaultConsumerMinBytes),
		ConsumerMaxBytes:          env.getInt(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes),
		ConsumerMaxWait:           env.getDuration(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait),
		ConsumerCommitInterval:    env.getDuration(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval),
		ConsumerHeartbeatInterval: env.getDuration(EnvKafkaConsumerHeartbeatInterval, DefaultConsumerHeartbeatInterval),
		ConsumerSessionTimeout:    env.getDuration(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout),
		ConsumerRebalanceTimeout:  env.getDuration(EnvKafkaConsumerRebalanceTimeout, DefaultConsumerRebalanceTimeout),
		ConsumerMaxRetries:        env.getInt(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries),
		ConsumerGroupID:           env.getStr(EnvKafkaConsumerGroupID, groupID),
		ConsumerRetryBackoff:      env.getDuration(EnvKafkaConsumerRetryBackoff, DefaultConsumerRetryBackoff),

		DLQTopic:               env.getStr(EnvKafkaDLQTopic, DefaultDLQTopic),
		AllowAutoTopicCreation: env.getBool(EnvKafkaAllowAutoTopicCreation, DefaultAllowAutoTopicCreation),

		EnableMiddleware: env.getBool(EnvKafkaEnableMiddleware, DefaultEnableMiddleware),
	}

	if err := errors.Join(append(env.errs, cfg.Validate())...); err != nil {
		return nil, fmt.Errorf("kafka configuration: %w", err)
	}
	return cfg, nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate reports every invalid setting at once.
func (cfg *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(len(cfg.Brokers) > 0, "at least one broker is required")
	check(cfg.ProducerMaxAttempts > 0, "producer max attempts must be positive, got %d", cfg.ProducerMaxAttempts)
	check(cfg.ProducerBatchTimeout > 0, "producer batch timeout must be positive, got %s", cfg.ProducerBatchTimeout)
	check(cfg.ProducerRequireAcks >= -1 && cfg.ProducerRequireAcks <= 1, "producer require acks must be -1, 0 or 1, got %d", cfg.ProducerRequireAcks)
	check(contains(compressions, cfg.ProducerCompression), "producer compression must be one of %v, got %q", compressions, cfg.ProducerCompression)

	check(cfg.ConsumerStartOffset >= -2, "consumer start offset must be -1 (newest), -2 (oldest) or >= 0, got %d", cfg.ConsumerStartOffset)
	check(cfg.ConsumerMinBytes > 0 && cfg.ConsumerMinBytes <= cfg.ConsumerMaxBytes,
		"consumer bytes must satisfy 0 < min <= max, got min %d max %d", cfg.ConsumerMinBytes, cfg.ConsumerMaxBytes)
	for name, d := range map[string]time.Duration{
		"max wait":           cfg.ConsumerMaxWait,
		"commit interval":    cfg.ConsumerCommitInterval,
		"heartbeat interval": cfg.ConsumerHeartbeatInterval,
		"session timeout":    cfg.ConsumerSessionTimeout,
		"rebalance timeout":  cfg.ConsumerRebalanceTimeout,
	} {
		check(d > 0, "consumer %s must be positive, got %s", name, d)
	}
	check(cfg.ConsumerHeartbeatInterval < cfg.ConsumerSessionTimeout, "consumer heartbeat interval must be shorter than the session timeout")
	check(cfg.ConsumerRetryBackoff >= 0, "consumer retry backoff cannot be negative, got %s", cfg.ConsumerRetryBackoff)
	check(cfg.ConsumerMaxRetries >= 0, "consumer max retries cannot be negative, got %d", cfg.ConsumerMaxRetries)

	return errors.Join(problems...)
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka configuration loaded",
		"brokers", cfg.Brokers,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"consumer_group_id", cfg.ConsumerGroupID,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"dlq_topic", cfg.DLQTopic,
		"enable_middleware", cfg.EnableMiddleware,
	)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// envReader reads typed variables and collects the parse failures.
type envReader struct {
	errs []error
}

func (r *envReader) getStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) parse(key string, parse func(string) error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if err := parse(v); err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
	}
}

func (r *envReader) getInt(key string, def int) int {
	out := def
	r.parse(key, func(s string) error {
		v, err := strconv.Atoi(s)
		if err == nil {
			out = v
		}
		return err
	})
	return out
}

func (r *envReader) getBool(key string, def bool) bool {
	out := def
	r.parse(key, func(s string) error {
		v, err := strconv.ParseBool(s)
		if err == nil {
			out = v
		}
		return err
	})
	return out
}

func (r *envReader) getDuration(key string, def time.Duration) time.Duration {
	out := def
	r.parse(key, func(s string) error {
		v, err := time.ParseDuration(s)
		if err == nil {
			out = v
		}
		return err
	})
	return out
}
