package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Auth      AuthConfig
	Payment   PaymentConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
}

// StoreBackend selects where orders, responses and payment claims live.
type StoreBackend string

const (
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendMemory   StoreBackend = "memory"
)

type DatabaseConfig struct {
	Backend        StoreBackend
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers []string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	OTelInsecure  bool
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type PaymentConfig struct {
	GatewayURL        string
	GatewayAPIKey     string
	GatewayTimeout    time.Duration
	TransientPolicy   string
	ClaimTTL          time.Duration
	ResponseRetention time.Duration
}

const (
	defaultHTTPPort       = 8080
	defaultShutdownGrace  = 15
	defaultMigrationsPath = "migrations"
	defaultAutoMigrate    = true
	defaultServiceName    = "shopdash-api"
	defaultServiceVersion = "0.1.0"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOTelSampleRate = 1.0
	defaultStoreBackend   = StoreBackendPostgres
	defaultJWTIssuer      = "shopdash"

	defaultGatewayTimeout    = 10 * time.Second
	defaultTransientPolicy   = "release"
	defaultClaimTTL          = 5 * time.Minute
	defaultResponseRetention = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	kafkaCfg := loadKafkaConfig()
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()
	authCfg := loadAuthConfig()

	paymentCfg, err := loadPaymentConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}

	cfg := &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Kafka:     kafkaCfg,
		Telemetry: telCfg,
		Service:   serviceCfg,
		Auth:      authCfg,
		Payment:   paymentCfg,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that individual loaders cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Payment.GatewayURL == "" {
		errs = append(errs, errors.New("PAYMENT_GATEWAY_URL is required"))
	}
	if c.Payment.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_GATEWAY_TIMEOUT must be positive"))
	}
	// a claim must outlive the gateway call it guards
	if c.Payment.ClaimTTL <= c.Payment.GatewayTimeout {
		errs = append(errs, fmt.Errorf("PAYMENT_CLAIM_TTL (%s) must exceed PAYMENT_GATEWAY_TIMEOUT (%s)", c.Payment.ClaimTTL, c.Payment.GatewayTimeout))
	}
	switch c.Payment.TransientPolicy {
	case "release", "retain":
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_TRANSIENT_POLICY must be release or retain, got %q", c.Payment.TransientPolicy))
	}
	return errors.Join(errs...)
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	backend := StoreBackend(strings.ToLower(getEnvOrDefault("STORE_BACKEND", string(defaultStoreBackend))))
	switch backend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return DatabaseConfig{}, fmt.Errorf("invalid STORE_BACKEND %q", backend)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	autoMigrate := defaultAutoMigrate
	if value, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		autoMigrate = value == "true"
	}

	migrationsPath := getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath)

	return DatabaseConfig{
		Backend:        backend,
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: migrationsPath,
	}, nil
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return KafkaConfig{
		Brokers: brokers,
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	otelInsecure := getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true)
	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		OTelInsecure:  otelInsecure,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer: getEnvOrDefault("AUTH_JWT_ISSUER", defaultJWTIssuer),
	}
}

func loadPaymentConfig() (PaymentConfig, error) {
	timeout, err := getDurationEnv("PAYMENT_GATEWAY_TIMEOUT", defaultGatewayTimeout)
	if err != nil {
		return PaymentConfig{}, err
	}
	claimTTL, err := getDurationEnv("PAYMENT_CLAIM_TTL", defaultClaimTTL)
	if err != nil {
		return PaymentConfig{}, err
	}
	retention, err := getDurationEnv("IDEMPOTENCY_RETENTION", defaultResponseRetention)
	if err != nil {
		return PaymentConfig{}, err
	}

	return PaymentConfig{
		GatewayURL:        os.Getenv("PAYMENT_GATEWAY_URL"),
		GatewayAPIKey:     os.Getenv("PAYMENT_GATEWAY_API_KEY"),
		GatewayTimeout:    timeout,
		TransientPolicy:   strings.ToLower(getEnvOrDefault("PAYMENT_TRANSIENT_POLICY", defaultTransientPolicy)),
		ClaimTTL:          claimTTL,
		ResponseRetention: retention,
	}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "shopdash")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
