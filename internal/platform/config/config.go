// Package config loads server configuration from environment variables, with
// an optional YAML file named by PACTLINE_CONFIG layered underneath. Values
// resolve in the order: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything the server binary needs.
type Config struct {
	Addr            string        `yaml:"addr"`
	Environment     string        `yaml:"environment"`
	LogLevel        string        `yaml:"log_level"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Auth      AuthConfig      `yaml:"auth"`
	Identity  IdentityConfig  `yaml:"identity"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Agreement AgreementConfig `yaml:"agreement"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	JWTAudience   string `yaml:"jwt_audience"`
	AdminToken    string `yaml:"admin_token"`
}

// IdentityConfig points at the identity provider. An empty ProviderURL uses
// the in-process provider.
type IdentityConfig struct {
	ProviderURL     string        `yaml:"provider_url"`
	ProviderToken   string        `yaml:"provider_token"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	VerifyTimeout   time.Duration `yaml:"verify_timeout"`
	ResponseWindow  time.Duration `yaml:"response_window"`
}

type LedgerConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type AgreementConfig struct {
	VerifyLease   time.Duration `yaml:"verify_lease"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// IssueOn lists the terminal statuses that mint a verification code.
	IssueOn []string `yaml:"issue_on"`
}

// PostgresConfig selects durable storage. An empty DSN uses the in-memory
// store.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// RedisConfig enables the shared rate limiter. An empty URL keeps limits in
// process.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig enables the notification publisher. Without brokers,
// notifications are logged.
type KafkaConfig struct {
	Brokers           []string      `yaml:"brokers"`
	ClientID          string        `yaml:"client_id"`
	Topic             string        `yaml:"topic"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replication_factor"`
	Linger            time.Duration `yaml:"linger"`
}

type NotifyConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

type RateLimitConfig struct {
	VerifyPerWindow int           `yaml:"verify_per_window"`
	Window          time.Duration `yaml:"window"`
}

const devSigningKey = "dev-secret-key-change-in-production"

// Default returns the development configuration.
func Default() Config {
	return Config{
		Addr:            ":8080",
		Environment:     "development",
		LogLevel:        "info",
		RequestTimeout:  40 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		Auth: AuthConfig{
			JWTSigningKey: devSigningKey,
			JWTIssuer:     "pactline",
			JWTAudience:   "pactline-api",
		},
		Identity: IdentityConfig{
			ProviderTimeout: 5 * time.Second,
			VerifyTimeout:   30 * time.Second,
			ResponseWindow:  2 * time.Minute,
		},
		Ledger: LedgerConfig{
			Timeout:     5 * time.Second,
			MaxAttempts: 5,
			Backoff:     5 * time.Millisecond,
		},
		Agreement: AgreementConfig{
			VerifyLease:   time.Minute,
			SweepInterval: time.Minute,
			IssueOn:       []string{"completed", "declined"},
		},
		Postgres: PostgresConfig{MaxConns: 10},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			ClientID:          "pactline",
			Topic:             "pactline.agreements",
			Partitions:        3,
			ReplicationFactor: 1,
			Linger:            5 * time.Millisecond,
		},
		Notify: NotifyConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    50,
			MaxBackoff:   5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			VerifyPerWindow: 60,
			Window:          time.Minute,
		},
	}
}

// FromEnv builds the configuration so main stays lean.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("PACTLINE_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.overlayEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(buf))), c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	list := func(key string, dst *[]string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			var out []string
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			*dst = out
		}
	}

	str("PACTLINE_ADDR", &c.Addr)
	str("PACTLINE_ENV", &c.Environment)
	str("LOG_LEVEL", &c.LogLevel)
	dur("REQUEST_TIMEOUT", &c.RequestTimeout)
	dur("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)

	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("JWT_ISSUER", &c.Auth.JWTIssuer)
	str("JWT_AUDIENCE", &c.Auth.JWTAudience)
	str("ADMIN_TOKEN", &c.Auth.AdminToken)

	str("IDENTITY_PROVIDER_URL", &c.Identity.ProviderURL)
	str("IDENTITY_PROVIDER_TOKEN", &c.Identity.ProviderToken)
	dur("VERIFY_TIMEOUT", &c.Identity.VerifyTimeout)
	dur("VERIFY_RESPONSE_WINDOW", &c.Identity.ResponseWindow)

	dur("LEDGER_TIMEOUT", &c.Ledger.Timeout)
	num("LEDGER_MAX_ATTEMPTS", &c.Ledger.MaxAttempts)

	dur("VERIFY_LEASE", &c.Agreement.VerifyLease)
	dur("SWEEP_INTERVAL", &c.Agreement.SweepInterval)
	list("ISSUE_ON", &c.Agreement.IssueOn)

	str("DATABASE_URL", &c.Postgres.DSN)
	str("REDIS_URL", &c.Redis.URL)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	num("VERIFY_RATE_LIMIT", &c.RateLimit.VerifyPerWindow)
	dur("VERIFY_RATE_WINDOW", &c.RateLimit.Window)

	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Environment == "production" && (c.Auth.JWTSigningKey == "" || c.Auth.JWTSigningKey == devSigningKey) {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, errors.New("ledger max_attempts must be at least 1"))
	}
	if c.Ledger.Timeout <= 0 || c.Identity.VerifyTimeout <= 0 {
		errs = append(errs, errors.New("ledger and verify timeouts must be positive"))
	}
	// The identity check runs inside the request; it has to give up first so
	// the caller sees verification_timeout and the attempt is audited.
	if c.RequestTimeout <= 0 || c.Identity.VerifyTimeout >= c.RequestTimeout {
		errs = append(errs, errors.New("request_timeout must be positive and exceed verify_timeout"))
	}
	if c.Agreement.SweepInterval <= 0 || c.Notify.PollInterval <= 0 {
		errs = append(errs, errors.New("sweep and notify poll intervals must be positive"))
	}
	if c.RateLimit.VerifyPerWindow < 1 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit must allow at least one request per positive window"))
	}
	for _, s := range c.Agreement.IssueOn {
		switch s {
		case "completed", "declined", "expired":
		default:
			errs = append(errs, fmt.Errorf("issue_on: %q is not a terminal status", s))
		}
	}
	return errors.Join(errs...)
}
