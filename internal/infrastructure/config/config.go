package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Access    AccessConfig
	Payment   PaymentConfig
	Inference InferenceConfig
	Stream    StreamConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// AccessConfig holds access gate settings
type AccessConfig struct {
	FreeDailyLimit int64  // free tier daily allowance
	DayLocation    string // IANA location for day boundaries, e.g. "UTC" or "America/New_York"
}

// PaymentConfig holds settlement settings
type PaymentConfig struct {
	AllowConnectingCancel bool          // permit cancelling while contacting the provider
	IdempotencyTTL        time.Duration // fast-path duplicate confirmation window
	LedgerBaseURL         string        // external payment ledger endpoint
	LedgerAPIKey          string
	LedgerTimeout         time.Duration
}

// InferenceConfig holds upstream inference provider settings
type InferenceConfig struct {
	BaseURL         string // empty enables the canned offline responder
	APIKey          string
	Timeout         time.Duration
	MaxReplyTokens  int
	FallbackEnabled bool // serve canned replies when the upstream fails at call time
}

// StreamConfig holds event stream settings
type StreamConfig struct {
	HistoryLimit    int           // retained events returned per topic
	SubscriberQueue int           // per-subscriber buffered events before it is dropped
	WriteWait       time.Duration // websocket write deadline
	PongWait        time.Duration // websocket pong deadline
	ReconnectBase   time.Duration // client reconnect backoff base
	ReconnectMax    time.Duration // client reconnect backoff ceiling
	ReconnectJitter float64       // backoff jitter fraction (0-1)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with AGENTMARKET_ prefix (e.g., AGENTMARKET_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("AGENTMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Access: AccessConfig{
			FreeDailyLimit: v.GetInt64("access.free_daily_limit"),
			DayLocation:    v.GetString("access.day_location"),
		},
		Payment: PaymentConfig{
			AllowConnectingCancel: v.GetBool("payment.allow_connecting_cancel"),
			IdempotencyTTL:        v.GetDuration("payment.idempotency_ttl"),
			LedgerBaseURL:         v.GetString("payment.ledger_base_url"),
			LedgerAPIKey:          v.GetString("payment.ledger_api_key"),
			LedgerTimeout:         v.GetDuration("payment.ledger_timeout"),
		},
		Inference: InferenceConfig{
			BaseURL:         v.GetString("inference.base_url"),
			APIKey:          v.GetString("inference.api_key"),
			Timeout:         v.GetDuration("inference.timeout"),
			MaxReplyTokens:  v.GetInt("inference.max_reply_tokens"),
			FallbackEnabled: v.GetBool("inference.fallback_enabled"),
		},
		Stream: StreamConfig{
			HistoryLimit:    v.GetInt("stream.history_limit"),
			SubscriberQueue: v.GetInt("stream.subscriber_queue"),
			WriteWait:       v.GetDuration("stream.write_wait"),
			PongWait:        v.GetDuration("stream.pong_wait"),
			ReconnectBase:   v.GetDuration("stream.reconnect_base"),
			ReconnectMax:    v.GetDuration("stream.reconnect_max"),
			ReconnectJitter: v.GetFloat64("stream.reconnect_jitter"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "agentmarket-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "agentmarket"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB, invocation prompts are text
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Buyer-ID"}
	}
	if cfg.Access.FreeDailyLimit == 0 {
		cfg.Access.FreeDailyLimit = 5
	}
	if cfg.Access.DayLocation == "" {
		cfg.Access.DayLocation = "UTC"
	}
	if cfg.Payment.IdempotencyTTL == 0 {
		cfg.Payment.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Payment.LedgerTimeout == 0 {
		cfg.Payment.LedgerTimeout = 10 * time.Second
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = 30 * time.Second
	}
	if cfg.Inference.MaxReplyTokens == 0 {
		cfg.Inference.MaxReplyTokens = 1024
	}
	if cfg.Stream.HistoryLimit == 0 {
		cfg.Stream.HistoryLimit = 200
	}
	if cfg.Stream.SubscriberQueue == 0 {
		cfg.Stream.SubscriberQueue = 256
	}
	if cfg.Stream.WriteWait == 0 {
		cfg.Stream.WriteWait = 10 * time.Second
	}
	if cfg.Stream.PongWait == 0 {
		cfg.Stream.PongWait = 60 * time.Second
	}
	if cfg.Stream.ReconnectBase == 0 {
		cfg.Stream.ReconnectBase = 5 * time.Second
	}
	if cfg.Stream.ReconnectMax == 0 {
		cfg.Stream.ReconnectMax = 5 * time.Minute
	}
	if cfg.Stream.ReconnectJitter == 0 {
		cfg.Stream.ReconnectJitter = 0.1
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "agentmarket-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Access.FreeDailyLimit < 0 {
		return fmt.Errorf("access.free_daily_limit cannot be negative")
	}
	if _, err := time.LoadLocation(c.Access.DayLocation); err != nil {
		return fmt.Errorf("access.day_location %q is not a valid IANA location: %w", c.Access.DayLocation, err)
	}

	if c.Stream.ReconnectJitter < 0 || c.Stream.ReconnectJitter > 1 {
		return fmt.Errorf("stream.reconnect_jitter must be between 0 and 1")
	}
	if c.Stream.ReconnectBase > c.Stream.ReconnectMax {
		return fmt.Errorf("stream.reconnect_base cannot exceed stream.reconnect_max")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Payment.LedgerBaseURL == "" {
			return fmt.Errorf("payment.ledger_base_url is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DayLocationOrUTC resolves the configured day boundary location
func (a *AccessConfig) DayLocationOrUTC() *time.Location {
	loc, err := time.LoadLocation(a.DayLocation)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
