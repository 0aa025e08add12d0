package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the API process needs. It is built once in main and
// handed to components; nothing else reads the environment.
type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	DB     DBConfig
	Redis  RedisConfig
	Bland  BlandConfig
	Agent  AgentConfig
	Poller PollerConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type HTTPConfig struct {
	// AllowedOrigins is a comma separated CORS allow list; "*" allows all.
	AllowedOrigins []string
	// PublicBaseURL is where the provider can reach POST /webhook. Optional.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	AutoMigrate bool
}

// RedisConfig is optional. Without a host, reconciliation locks are process-local.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type BlandConfig struct {
	APIKey       string
	EncryptedKey string
	BaseURL      string
	Timeout      time.Duration
}

// AgentConfig shapes the outbound call placed for every demo request.
type AgentConfig struct {
	Name                string
	Company             string
	TransferPhoneNumber string
	VoiceID             int
	Language            string
	Temperature         float64
}

// PollerConfig bounds the reconciliation loop.
type PollerConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxInterval  time.Duration
	Backoff      float64
	MaxAttempts  int
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	c := Config{}

	c.App.Env = r.str("APP_ENV", "local")
	c.App.Port = r.integer("PORT", 4000)

	c.HTTP.AllowedOrigins = splitList(r.str("ALLOWED_ORIGINS", "*"))
	c.HTTP.PublicBaseURL = strings.TrimRight(r.str("PUBLIC_BASE_URL", ""), "/")

	c.DB.Host = r.str("DB_HOST", "")
	c.DB.Port = r.integer("DB_PORT", 5432)
	c.DB.User = r.str("DB_USER", "")
	c.DB.Password = getenv("DB_PASSWORD")
	c.DB.Name = r.str("DB_NAME", "")
	c.DB.SSLMode = r.str("DB_SSLMODE", "")
	c.DB.AutoMigrate = r.flag("DB_AUTO_MIGRATE", true)

	c.Redis.Host = r.str("REDIS_HOST", "")
	c.Redis.Port = r.integer("REDIS_PORT", 6379)
	c.Redis.Password = getenv("REDIS_PASSWORD")

	c.Bland.APIKey = r.str("BLAND_API_KEY", "")
	c.Bland.EncryptedKey = r.str("ENCRYPTED_KEY", "")
	c.Bland.BaseURL = strings.TrimRight(r.str("BLAND_BASE_URL", "https://api.bland.ai"), "/")
	c.Bland.Timeout = r.duration("BLAND_TIMEOUT", 20*time.Second)

	c.Agent.Name = r.str("AGENT_NAME", "Jonathan")
	c.Agent.Company = r.str("AGENT_COMPANY", "Babou Cooperations")
	c.Agent.TransferPhoneNumber = r.str("TRANSFER_PHONE_NUMBER", "+18506084580")
	c.Agent.VoiceID = r.integer("VOICE_ID", 1)
	c.Agent.Language = r.str("CALL_LANGUAGE", "en")
	c.Agent.Temperature = r.number("CALL_TEMPERATURE", 0.7)

	c.Poller.InitialDelay = r.duration("POLL_INITIAL_DELAY", 30*time.Second)
	c.Poller.Interval = r.duration("POLL_INTERVAL", 30*time.Second)
	c.Poller.MaxInterval = r.duration("POLL_MAX_INTERVAL", 5*time.Minute)
	c.Poller.Backoff = r.number("POLL_BACKOFF", 1.0)
	c.Poller.MaxAttempts = r.integer("POLL_MAX_ATTEMPTS", 120)

	if err := joinErrors(r.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once. It fills the local-only sslmode default,
// hence the pointer receiver.
func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port, got %d", c.App.Port))
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
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Bland.APIKey == "" {
		errs = append(errs, errors.New("BLAND_API_KEY is required"))
	}
	if c.Bland.BaseURL == "" {
		errs = append(errs, errors.New("BLAND_BASE_URL must not be empty"))
	}
	if c.Bland.Timeout <= 0 {
		errs = append(errs, errors.New("BLAND_TIMEOUT must be positive"))
	}

	if c.Agent.Name == "" || c.Agent.Company == "" {
		errs = append(errs, errors.New("AGENT_NAME and AGENT_COMPANY must not be empty"))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		errs = append(errs, fmt.Errorf("CALL_TEMPERATURE must be within [0,1], got %v", c.Agent.Temperature))
	}

	if c.Poller.InitialDelay < 0 {
		errs = append(errs, errors.New("POLL_INITIAL_DELAY must not be negative"))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Poller.MaxInterval < c.Poller.Interval {
		errs = append(errs, errors.New("POLL_MAX_INTERVAL must be >= POLL_INTERVAL"))
	}
	if c.Poller.Backoff < 1 {
		errs = append(errs, fmt.Errorf("POLL_BACKOFF must be >= 1, got %v", c.Poller.Backoff))
	}
	if c.Poller.MaxAttempts <= 0 {
		errs = append(errs, errors.New("POLL_MAX_ATTEMPTS must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PostgresDSN contains the password. Do not log it.
func (c Config) PostgresDSN() string {
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

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// WebhookURL is the callback handed to the provider, empty when no public URL is set.
func (c Config) WebhookURL() string {
	if c.HTTP.PublicBaseURL == "" {
		return ""
	}
	return c.HTTP.PublicBaseURL + "/webhook"
}

// Presence reports which secrets are configured without revealing them.
func (c Config) Presence() map[string]string {
	state := func(v string) string {
		if v == "" {
			return "missing"
		}
		return "present"
	}
	return map[string]string{
		"BLAND_API_KEY": state(c.Bland.APIKey),
		"ENCRYPTED_KEY": state(c.Bland.EncryptedKey),
	}
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (r *reader) number(key string, def float64) float64 {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return def
	}
	return f
}

func (r *reader) flag(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration like 30s, got %q", key, v))
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
