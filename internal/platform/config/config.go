package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultShutdownTimeout    = 20 * time.Second
	defaultDBMaxConns         = 20
	defaultDBMinConns         = 2
	defaultDBStatementTimeout = 10 * time.Second
	defaultTxTimeout          = 15 * time.Second
	defaultEventsTopic        = "commerce.events"
	defaultRelayInterval      = 2 * time.Second
	defaultRelayBatch         = 100
	defaultRelayMaxAttempts   = 10
	defaultRelayBackoff       = 5 * time.Second
	defaultCacheTTL           = 30 * time.Second
	defaultInvoicePrefix      = "VN-"
	defaultInvoiceAttempts    = 5
	defaultCurrencySymbol     = "₫"
	defaultInvoiceTimezone    = "Asia/Ho_Chi_Minh"
	defaultPlacementRateLimit = 10
	defaultPlacementWindow    = time.Minute
	defaultLogLevel           = "info"
	defaultEnvironment        = "local"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Counter backends.
const (
	CounterBackendPostgres  = "postgres"
	CounterBackendFirestore = "firestore"
	CounterBackendMemory    = "memory"
)

// Event drivers.
const (
	EventsDriverLog      = "log"
	EventsDriverPubSub   = "pubsub"
	EventsDriverKafka    = "kafka"
	EventsDriverRabbitMQ = "rabbitmq"
	EventsDriverWebhook  = "webhook"
)

// Cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Counters      CounterConfig
	Firestore     FirestoreConfig
	Events        EventsConfig
	Cache         CacheConfig
	Orders        OrdersConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver           string
	URL              string
	MaxConns         int
	MinConns         int
	StatementTimeout time.Duration
	TxTimeout        time.Duration
	AutoMigrate      bool
}

// CounterConfig selects where invoice sequences live.
type CounterConfig struct {
	Backend string
}

// FirestoreConfig stores Firestore parameters for the firestore counter backend.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// EventsConfig controls the outbox relay and the broker it publishes to.
type EventsConfig struct {
	Driver        string
	Topic         string
	RelayInterval time.Duration
	RelayBatch    int
	// RelayMaxAttempts is how many failed deliveries dead-letter a message.
	RelayMaxAttempts int
	// RelayBackoff is the first retry delay. It doubles per failure.
	RelayBackoff time.Duration
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	RabbitMQ     RabbitMQConfig
	Webhook      WebhookConfig
}

// PubSubConfig configures the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID    string
	EmulatorHost string
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
}

// RabbitMQConfig configures the AMQP publisher.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// WebhookConfig configures HTTP delivery of events.
type WebhookConfig struct {
	URL           string
	SigningSecret string
	Timeout       time.Duration
}

// CacheConfig configures the pricing rule cache.
type CacheConfig struct {
	Driver        string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// OrdersConfig holds order assembly and lifecycle settings.
type OrdersConfig struct {
	InvoicePrefix      string
	MaxInvoiceAttempts int
	StatusMessagesFile string
	CurrencySymbol     string
	// InvoiceTimezone is the IANA zone whose calendar date goes into invoice codes.
	InvoiceTimezone string
	// PlacementRateLimit caps placements per account within PlacementRateWindow. Zero disables it.
	PlacementRateLimit  int
	PlacementRateWindow time.Duration
}

// StorageConfig lists buckets used for order image snapshots.
type StorageConfig struct {
	ImagesBucket string
	OrdersBucket string
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	SigningKey string
	Issuer     string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns a single raw value using the same precedence as Load. It lets
// callers read bootstrap settings (e.g. the secrets project) before Load runs.
func Lookup(key string, opts ...Option) (string, bool, error) {
	lookup, err := newLookup(opts...)
	if err != nil {
		return "", false, err
	}
	value, ok := lookup.get(key)
	return value, ok, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	lookup, err := newLookup(opts...)
	if err != nil {
		return Config{}, err
	}
	get := lookup.get

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(get, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(get, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(get, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(get, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(get, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(get, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Database: DatabaseConfig{
			Driver:           strings.ToLower(stringWithDefault(get, "API_STORAGE_DRIVER", StorageDriverPostgres)),
			URL:              stringWithDefault(get, "API_DATABASE_URL", ""),
			MaxConns:         intWithDefault(get, "API_DATABASE_MAX_CONNS", defaultDBMaxConns),
			MinConns:         intWithDefault(get, "API_DATABASE_MIN_CONNS", defaultDBMinConns),
			StatementTimeout: durationWithDefault(get, "API_DATABASE_STATEMENT_TIMEOUT", defaultDBStatementTimeout),
			TxTimeout:        durationWithDefault(get, "API_DATABASE_TX_TIMEOUT", defaultTxTimeout),
			AutoMigrate:      boolWithDefault(get, "API_DATABASE_AUTO_MIGRATE", false),
		},
		Counters: CounterConfig{
			Backend: strings.ToLower(stringWithDefault(get, "API_COUNTER_BACKEND", CounterBackendPostgres)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(get, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(get, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Events: EventsConfig{
			Driver:           strings.ToLower(stringWithDefault(get, "API_EVENTS_DRIVER", EventsDriverLog)),
			Topic:            stringWithDefault(get, "API_EVENTS_TOPIC", defaultEventsTopic),
			RelayInterval:    durationWithDefault(get, "API_EVENTS_RELAY_INTERVAL", defaultRelayInterval),
			RelayBatch:       intWithDefault(get, "API_EVENTS_RELAY_BATCH", defaultRelayBatch),
			RelayMaxAttempts: intWithDefault(get, "API_EVENTS_RELAY_MAX_ATTEMPTS", defaultRelayMaxAttempts),
			RelayBackoff:     durationWithDefault(get, "API_EVENTS_RELAY_BACKOFF", defaultRelayBackoff),
			PubSub: PubSubConfig{
				ProjectID:    stringWithDefault(get, "API_PUBSUB_PROJECT_ID", ""),
				EmulatorHost: stringWithDefault(get, "API_PUBSUB_EMULATOR_HOST", ""),
			},
			Kafka: KafkaConfig{
				Brokers: csvWithDefault(get, "API_KAFKA_BROKERS"),
			},
			RabbitMQ: RabbitMQConfig{
				URL:      stringWithDefault(get, "API_RABBITMQ_URL", ""),
				Exchange: stringWithDefault(get, "API_RABBITMQ_EXCHANGE", "commerce"),
			},
			Webhook: WebhookConfig{
				URL:           stringWithDefault(get, "API_WEBHOOK_URL", ""),
				SigningSecret: stringWithDefault(get, "API_WEBHOOK_SIGNING_SECRET", ""),
				Timeout:       durationWithDefault(get, "API_WEBHOOK_TIMEOUT", 5*time.Second),
			},
		},
		Cache: CacheConfig{
			Driver:        strings.ToLower(stringWithDefault(get, "API_CACHE_DRIVER", CacheDriverMemory)),
			TTL:           durationWithDefault(get, "API_CACHE_TTL", defaultCacheTTL),
			RedisAddr:     stringWithDefault(get, "API_REDIS_ADDR", ""),
			RedisPassword: stringWithDefault(get, "API_REDIS_PASSWORD", ""),
			RedisDB:       intWithDefault(get, "API_REDIS_DB", 0),
		},
		Orders: OrdersConfig{
			InvoicePrefix:       stringWithDefault(get, "API_ORDERS_INVOICE_PREFIX", defaultInvoicePrefix),
			MaxInvoiceAttempts:  intWithDefault(get, "API_ORDERS_MAX_INVOICE_ATTEMPTS", defaultInvoiceAttempts),
			StatusMessagesFile:  stringWithDefault(get, "API_ORDERS_STATUS_MESSAGES_FILE", ""),
			CurrencySymbol:      stringWithDefault(get, "API_ORDERS_CURRENCY_SYMBOL", defaultCurrencySymbol),
			InvoiceTimezone:     stringWithDefault(get, "API_ORDERS_INVOICE_TIMEZONE", defaultInvoiceTimezone),
			PlacementRateLimit:  intWithDefault(get, "API_ORDERS_PLACEMENT_RATE_LIMIT", defaultPlacementRateLimit),
			PlacementRateWindow: durationWithDefault(get, "API_ORDERS_PLACEMENT_RATE_WINDOW", defaultPlacementWindow),
		},
		Storage: StorageConfig{
			ImagesBucket: stringWithDefault(get, "API_STORAGE_IMAGES_BUCKET", ""),
			OrdersBucket: stringWithDefault(get, "API_STORAGE_ORDERS_BUCKET", ""),
		},
		Auth: AuthConfig{
			SigningKey: stringWithDefault(get, "API_AUTH_SIGNING_KEY", ""),
			Issuer:     stringWithDefault(get, "API_AUTH_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel: strings.ToLower(stringWithDefault(get, "LOG_LEVEL", defaultLogLevel)),
		},
	}

	if cfg.Storage.OrdersBucket == "" {
		cfg.Storage.OrdersBucket = cfg.Storage.ImagesBucket
	}
	if cfg.Events.PubSub.ProjectID == "" {
		cfg.Events.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Database.URL,
		&cfg.Events.RabbitMQ.URL,
		&cfg.Events.Webhook.SigningSecret,
		&cfg.Cache.RedisPassword,
		&cfg.Auth.SigningKey,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, lookup.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envLookup struct {
	options loaderOptions
	dotEnv  map[string]string
	secret  SecretResolver
}

func newLookup(opts ...Option) (*envLookup, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	secret := options.secret
	if secret == nil {
		secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		})
	}
	return &envLookup{options: options, dotEnv: dotEnv, secret: secret}, nil
}

func (l *envLookup) get(key string) (string, bool) {
	if l.options.envMap != nil {
		if value, ok := l.options.envMap[key]; ok {
			return value, true
		}
	}
	if l.options.useSystemEnv {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	if l.dotEnv != nil {
		if value, ok := l.dotEnv[key]; ok {
			return value, true
		}
	}
	return "", false
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Database.Driver {
	case StorageDriverPostgres:
		if cfg.Database.URL == "" {
			invalid = append(invalid, "Database.URL")
		}
	case StorageDriverMemory:
	default:
		invalid = append(invalid, "Database.Driver")
	}
	if cfg.Database.MaxConns <= 0 || cfg.Database.MinConns < 0 || cfg.Database.MinConns > cfg.Database.MaxConns {
		invalid = append(invalid, "Database.MaxConns")
	}
	switch cfg.Counters.Backend {
	case CounterBackendPostgres:
		if cfg.Database.Driver != StorageDriverPostgres {
			invalid = append(invalid, "Counters.Backend")
		}
	case CounterBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case CounterBackendMemory:
	default:
		invalid = append(invalid, "Counters.Backend")
	}
	switch cfg.Events.Driver {
	case EventsDriverLog:
	case EventsDriverPubSub:
		if cfg.Events.PubSub.ProjectID == "" {
			invalid = append(invalid, "Events.PubSub.ProjectID")
		}
	case EventsDriverKafka:
		if len(cfg.Events.Kafka.Brokers) == 0 {
			invalid = append(invalid, "Events.Kafka.Brokers")
		}
	case EventsDriverRabbitMQ:
		if cfg.Events.RabbitMQ.URL == "" {
			invalid = append(invalid, "Events.RabbitMQ.URL")
		}
	case EventsDriverWebhook:
		if cfg.Events.Webhook.URL == "" {
			invalid = append(invalid, "Events.Webhook.URL")
		}
	default:
		invalid = append(invalid, "Events.Driver")
	}
	if strings.TrimSpace(cfg.Events.Topic) == "" {
		invalid = append(invalid, "Events.Topic")
	}
	if cfg.Events.RelayInterval <= 0 {
		invalid = append(invalid, "Events.RelayInterval")
	}
	if cfg.Events.RelayBatch <= 0 {
		invalid = append(invalid, "Events.RelayBatch")
	}
	if cfg.Events.RelayMaxAttempts < 0 {
		invalid = append(invalid, "Events.RelayMaxAttempts")
	}
	if cfg.Events.RelayBackoff < 0 {
		invalid = append(invalid, "Events.RelayBackoff")
	}
	switch cfg.Cache.Driver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if cfg.Cache.RedisAddr == "" {
			invalid = append(invalid, "Cache.RedisAddr")
		}
	default:
		invalid = append(invalid, "Cache.Driver")
	}
	if cfg.Orders.MaxInvoiceAttempts <= 0 {
		invalid = append(invalid, "Orders.MaxInvoiceAttempts")
	}
	if _, err := time.LoadLocation(cfg.Orders.InvoiceTimezone); err != nil {
		invalid = append(invalid, "Orders.InvoiceTimezone")
	}
	if cfg.Orders.PlacementRateLimit < 0 {
		invalid = append(invalid, "Orders.PlacementRateLimit")
	}
	if cfg.Orders.PlacementRateLimit > 0 && cfg.Orders.PlacementRateWindow <= 0 {
		invalid = append(invalid, "Orders.PlacementRateWindow")
	}
	if cfg.Environment != defaultEnvironment && cfg.Auth.SigningKey == "" {
		invalid = append(invalid, "Auth.SigningKey")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

// IsSecretReference reports whether value points at Secret Manager rather than holding a literal.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
