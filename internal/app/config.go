package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Драйверы хранилища снимков, outbox и ключей идемпотентности.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
)

// Транспорт публикации событий витрины.
const (
	EventTransportNone     = "none"
	EventTransportKafka    = "kafka"
	EventTransportRabbitMQ = "rabbitmq"
)

const (
	envPrefix     = "STOREFRONT"
	envConfigFile = "STOREFRONT_CONFIG"
)

// Config описывает настройки витрины и демона.
type Config struct {
	BackendURL     string
	BackendTimeout time.Duration
	BackendRetries int

	PaymentProxyURL string
	PublicOrigin    string

	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	SnapshotTTL         time.Duration

	EventTransport   string
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaDLQTopic    string
	RabbitMQURL      string
	RabbitMQExchange string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	QuantityDebounce time.Duration

	SessionRateLimit float64
	SessionRateBurst int

	LogLevel string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		BackendURL:     "http://localhost:8000",
		BackendTimeout: 15 * time.Second,
		BackendRetries: 3,

		PaymentProxyURL: "http://localhost:8080",
		PublicOrigin:    "http://localhost:3000",

		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		GRPCAddr:    ":50051",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		RedisAddr:           "localhost:6379",
		SnapshotTTL:         30 * 24 * time.Hour,

		EventTransport:   EventTransportNone,
		KafkaTopic:       "storefront.events",
		KafkaDLQTopic:    "storefront.dlq",
		RabbitMQExchange: "storefront.events",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   500 * time.Millisecond,
		OutboxMaxPending:   5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		QuantityDebounce: 500 * time.Millisecond,

		SessionRateLimit: 10,
		SessionRateBurst: 20,

		LogLevel: "info",
	}
}

// LoadConfig читает STOREFRONT_* из окружения и, если задан STOREFRONT_CONFIG, файл конфигурации.
func LoadConfig() (Config, error) {
	return loadConfig(viper.New(), os.Getenv(envConfigFile))
}

func loadConfig(v *viper.Viper, configFile string) (Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		BackendURL:     strings.TrimSpace(v.GetString("backend.url")),
		BackendTimeout: v.GetDuration("backend.timeout"),
		BackendRetries: v.GetInt("backend.retries"),

		PaymentProxyURL: strings.TrimSpace(v.GetString("proxy.url")),
		PublicOrigin:    strings.TrimSpace(v.GetString("public.origin")),

		HTTPAddr:    v.GetString("http.addr"),
		MetricsAddr: v.GetString("metrics.addr"),
		GRPCAddr:    v.GetString("grpc.addr"),

		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		PostgresDSN:         strings.TrimSpace(v.GetString("postgres.dsn")),
		PostgresAutoMigrate: v.GetBool("postgres.automigrate"),
		RedisAddr:           strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword:       v.GetString("redis.password"),
		RedisDB:             v.GetInt("redis.db"),
		SnapshotTTL:         v.GetDuration("snapshot.ttl"),

		EventTransport:   strings.ToLower(strings.TrimSpace(v.GetString("events.transport"))),
		KafkaBrokers:     splitList(v.GetString("kafka.brokers")),
		KafkaTopic:       v.GetString("kafka.topic"),
		KafkaDLQTopic:    v.GetString("kafka.dlq_topic"),
		RabbitMQURL:      strings.TrimSpace(v.GetString("rabbitmq.url")),
		RabbitMQExchange: v.GetString("rabbitmq.exchange"),

		OutboxPollInterval: v.GetDuration("outbox.poll_interval"),
		OutboxBatchSize:    v.GetInt("outbox.batch_size"),
		OutboxMaxAttempts:  v.GetInt("outbox.max_attempts"),
		OutboxRetryDelay:   v.GetDuration("outbox.retry_delay"),
		OutboxMaxPending:   v.GetDuration("outbox.max_pending_age"),

		IdempotencyTTL:              v.GetDuration("idempotency.ttl"),
		IdempotencyCleanupInterval:  v.GetDuration("idempotency.cleanup_interval"),
		IdempotencyCleanupBatchSize: v.GetInt("idempotency.cleanup_batch_size"),

		QuantityDebounce: v.GetDuration("cart.debounce"),

		SessionRateLimit: v.GetFloat64("proxy.rate_limit"),
		SessionRateBurst: v.GetInt("proxy.rate_burst"),

		LogLevel: strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("backend.url", cfg.BackendURL)
	v.SetDefault("backend.timeout", cfg.BackendTimeout)
	v.SetDefault("backend.retries", cfg.BackendRetries)
	v.SetDefault("proxy.url", cfg.PaymentProxyURL)
	v.SetDefault("public.origin", cfg.PublicOrigin)
	v.SetDefault("http.addr", cfg.HTTPAddr)
	v.SetDefault("metrics.addr", cfg.MetricsAddr)
	v.SetDefault("grpc.addr", cfg.GRPCAddr)
	v.SetDefault("storage.driver", cfg.StorageDriver)
	v.SetDefault("postgres.dsn", cfg.PostgresDSN)
	v.SetDefault("postgres.automigrate", cfg.PostgresAutoMigrate)
	v.SetDefault("redis.addr", cfg.RedisAddr)
	v.SetDefault("redis.password", cfg.RedisPassword)
	v.SetDefault("redis.db", cfg.RedisDB)
	v.SetDefault("snapshot.ttl", cfg.SnapshotTTL)
	v.SetDefault("events.transport", cfg.EventTransport)
	v.SetDefault("kafka.brokers", strings.Join(cfg.KafkaBrokers, ","))
	v.SetDefault("kafka.topic", cfg.KafkaTopic)
	v.SetDefault("kafka.dlq_topic", cfg.KafkaDLQTopic)
	v.SetDefault("rabbitmq.url", cfg.RabbitMQURL)
	v.SetDefault("rabbitmq.exchange", cfg.RabbitMQExchange)
	v.SetDefault("outbox.poll_interval", cfg.OutboxPollInterval)
	v.SetDefault("outbox.batch_size", cfg.OutboxBatchSize)
	v.SetDefault("outbox.max_attempts", cfg.OutboxMaxAttempts)
	v.SetDefault("outbox.retry_delay", cfg.OutboxRetryDelay)
	v.SetDefault("outbox.max_pending_age", cfg.OutboxMaxPending)
	v.SetDefault("idempotency.ttl", cfg.IdempotencyTTL)
	v.SetDefault("idempotency.cleanup_interval", cfg.IdempotencyCleanupInterval)
	v.SetDefault("idempotency.cleanup_batch_size", cfg.IdempotencyCleanupBatchSize)
	v.SetDefault("cart.debounce", cfg.QuantityDebounce)
	v.SetDefault("proxy.rate_limit", cfg.SessionRateLimit)
	v.SetDefault("proxy.rate_burst", cfg.SessionRateBurst)
	v.SetDefault("log.level", cfg.LogLevel)
}

func (c Config) validate() error {
	var errs []error

	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be > 0"))
	}
	if c.BackendRetries < 1 {
		errs = append(errs, errors.New("backend.retries must be >= 1"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for postgres storage"))
		}
	case StorageDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis.addr is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.StorageDriver))
	}

	switch c.EventTransport {
	case EventTransportNone:
	case EventTransportKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required for kafka transport"))
		}
	case EventTransportRabbitMQ:
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("rabbitmq.url is required for rabbitmq transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events.transport %q", c.EventTransport))
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox.poll_interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox.batch_size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox.max_attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox.retry_delay must be >= 0"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency.ttl must be > 0"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("idempotency.cleanup_interval must be > 0"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency.cleanup_batch_size must be > 0"))
	}
	if c.QuantityDebounce < 0 {
		errs = append(errs, errors.New("cart.debounce must be >= 0"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// SetupLogger настраивает формат и уровень логирования.
func SetupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
