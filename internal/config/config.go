package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env file loaded by LoadDotEnv).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Voice VoiceConfig
	Sync  SyncConfig
}

type AppConfig struct {
	Env  string
	Port int

	// RequestTimeout bounds every API request handler.
	RequestTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// VoiceConfig configures the voice-agent platform client and webhook.
type VoiceConfig struct {
	BaseURL           string
	APIKey            string
	WebhookSecret     string
	WebhookTolerance  time.Duration
	RejectAuditPerMin int
	HTTPTimeout       time.Duration
	RatePerSec        float64
	PhoneRegion       string
}

type SyncConfig struct {
	// ConcurrencyLimit is the number of concurrent syncs allowed per batch.
	ConcurrencyLimit int
	LockTTL          time.Duration
}

// LoadDotEnv loads variables from the given env files (".env" when none are
// given). Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	c := Config{}
	p := &envParser{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = p.mustInt("APP_PORT")
	c.App.RequestTimeout = p.optDuration("APP_REQUEST_TIMEOUT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = p.mustInt("DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxConns = p.optInt("DB_MAX_CONNS")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = p.mustInt("REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = p.optInt("REDIS_DB")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = p.optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = p.optDuration("JWT_REFRESH_TTL")

	c.Voice.BaseURL = strings.TrimSpace(os.Getenv("VOICE_API_BASE_URL"))
	c.Voice.APIKey = strings.TrimSpace(os.Getenv("VOICE_API_KEY"))
	c.Voice.WebhookSecret = os.Getenv("VOICE_WEBHOOK_SECRET")
	c.Voice.WebhookTolerance = p.optDuration("VOICE_WEBHOOK_TOLERANCE")
	c.Voice.RejectAuditPerMin = p.optInt("VOICE_REJECT_AUDIT_PER_MIN")
	c.Voice.HTTPTimeout = p.optDuration("VOICE_HTTP_TIMEOUT")
	c.Voice.RatePerSec = p.optFloat("VOICE_RATE_PER_SEC")
	c.Voice.PhoneRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("VOICE_PHONE_REGION")))

	c.Sync.ConcurrencyLimit = p.optInt("SYNC_CONCURRENCY_LIMIT")
	c.Sync.LockTTL = p.optDuration("SYNC_LOCK_TTL")

	if err := joinErrors(p.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.RequestTimeout <= 0 {
		c.App.RequestTimeout = 20 * time.Second
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must not be negative, got %d", c.DB.MaxConns))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Voice.APIKey == "" {
		errs = append(errs, errors.New("VOICE_API_KEY is required"))
	}
	// Without a secret every webhook is rejected with 401; tolerated outside
	// production so the batch API can run on its own.
	if c.Voice.WebhookSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("VOICE_WEBHOOK_SECRET is required in production"))
	}
	if c.Voice.WebhookTolerance <= 0 {
		c.Voice.WebhookTolerance = 30 * time.Minute
	}
	// Rejected deliveries are unauthenticated; cap how many reach the audit log.
	if c.Voice.RejectAuditPerMin < 0 {
		errs = append(errs, fmt.Errorf("VOICE_REJECT_AUDIT_PER_MIN must not be negative, got %d", c.Voice.RejectAuditPerMin))
	} else if c.Voice.RejectAuditPerMin == 0 {
		c.Voice.RejectAuditPerMin = 60
	}
	if c.Voice.HTTPTimeout <= 0 {
		c.Voice.HTTPTimeout = 15 * time.Second
	}
	if c.Voice.RatePerSec < 0 {
		errs = append(errs, fmt.Errorf("VOICE_RATE_PER_SEC must not be negative, got %v", c.Voice.RatePerSec))
	} else if c.Voice.RatePerSec == 0 {
		c.Voice.RatePerSec = 5
	}
	if c.Voice.PhoneRegion == "" {
		c.Voice.PhoneRegion = "DE"
	} else if len(c.Voice.PhoneRegion) != 2 {
		errs = append(errs, fmt.Errorf("VOICE_PHONE_REGION must be a two-letter region code, got %q", c.Voice.PhoneRegion))
	}

	if c.Sync.ConcurrencyLimit < 0 {
		errs = append(errs, fmt.Errorf("SYNC_CONCURRENCY_LIMIT must not be negative, got %d", c.Sync.ConcurrencyLimit))
	} else if c.Sync.ConcurrencyLimit == 0 {
		c.Sync.ConcurrencyLimit = 1
	}
	if c.Sync.LockTTL <= 0 {
		c.Sync.LockTTL = 2 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func optDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s, got %q", key, v)
	}
	return d, nil
}

// envParser collects parse errors so Load can report all of them at once.
type envParser struct {
	errs []error
}

func (p *envParser) keep(err error) {
	if err != nil {
		p.errs = append(p.errs, err)
	}
}

func (p *envParser) mustInt(key string) int {
	n, err := mustInt(key)
	p.keep(err)
	return n
}

func (p *envParser) optInt(key string) int {
	n, err := optInt(key)
	p.keep(err)
	return n
}

func (p *envParser) optFloat(key string) float64 {
	f, err := optFloat(key)
	p.keep(err)
	return f
}

func (p *envParser) optDuration(key string) time.Duration {
	d, err := optDuration(key)
	p.keep(err)
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
