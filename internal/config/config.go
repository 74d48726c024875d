package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/postify/drip-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Drip        DripConfig        `yaml:"drip"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	DeliveryLog DeliveryLogConfig `yaml:"delivery_log"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Worker      WorkerConfig      `yaml:"worker"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// AdminToken guards /api/admin. Empty leaves the admin routes open,
	// which is only meant for local development.
	AdminToken string `yaml:"admin_token"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
// Driver "memory" runs the engine on in-process stores (dev and demos).
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds the Redis connection used for the sweep lease.
// Empty Addr means the Postgres advisory lock is used instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FailurePolicyConfig selects what happens to a step whose send failed.
type FailurePolicyConfig struct {
	Mode              string `yaml:"mode"` // "advance" or "retry"
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryDelayMinutes int    `yaml:"retry_delay_minutes"`
}

// RetryDelay returns the configured retry delay as a duration
func (c FailurePolicyConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// DripConfig holds the campaign script and its timing rules.
type DripConfig struct {
	TriggerAfterHours      int                     `yaml:"trigger_after_hours"`
	CooldownDays           int                     `yaml:"cooldown_days"`
	Steps                  []domain.StepDefinition `yaml:"steps"`
	PaidPlans              []string                `yaml:"paid_plans"`
	BatchSize              int                     `yaml:"batch_size"`
	ClaimTTLSeconds        int                     `yaml:"claim_ttl_seconds"`
	DeliveryTimeoutSeconds int                     `yaml:"delivery_timeout_seconds"`
	FrontendURL            string                  `yaml:"frontend_url"`
	FailurePolicy          FailurePolicyConfig     `yaml:"failure_policy"`
}

// TriggerAfter returns the pending-check delay as a duration
func (c DripConfig) TriggerAfter() time.Duration {
	return time.Duration(c.TriggerAfterHours) * time.Hour
}

// Cooldown returns the minimum gap between sequence creations
func (c DripConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownDays) * 24 * time.Hour
}

// ClaimTTL returns how long a claimed step stays invisible to other sweeps
func (c DripConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}

// DeliveryTimeout returns the per-send deadline
func (c DripConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

// DeliveryConfig selects and configures the outbound gateway.
type DeliveryConfig struct {
	Provider        string `yaml:"provider"` // "mock", "ses", "sparkpost"
	SenderEmail     string `yaml:"sender_email"`
	SenderName      string `yaml:"sender_name"`
	SESRegion       string `yaml:"ses_region"`
	SESAccessKey    string `yaml:"ses_access_key"`
	SESSecretKey    string `yaml:"ses_secret_key"`
	SparkPostAPIKey string `yaml:"sparkpost_api_key"`
	SparkPostURL    string `yaml:"sparkpost_base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	// RateLimit is shared by every process through Redis and ignored
	// without it.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps provider sends per window. Zero disables a window.
type RateLimitConfig struct {
	PerSecond int `yaml:"per_second"`
	PerMinute int `yaml:"per_minute"`
	PerDay    int `yaml:"per_day"`
}

// Timeout returns the configured timeout as a duration
func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeliveryLogConfig selects where the delivery audit trail lives.
type DeliveryLogConfig struct {
	Backend       string `yaml:"backend"` // "postgres" or "dynamodb"
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
}

// TrackingConfig holds the SQS queue that receives sequence lifecycle events.
// Empty QueueURL disables publishing.
type TrackingConfig struct {
	QueueURL  string `yaml:"queue_url"`
	AWSRegion string `yaml:"aws_region"`
}

// WorkerConfig holds the sweep loop settings
type WorkerConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	StartupDelaySeconds int `yaml:"startup_delay_seconds"`
	LeaseTTLSeconds     int `yaml:"lease_ttl_seconds"`
	// Embedded runs the sweep loop inside cmd/server as well.
	Embedded bool `yaml:"embedded"`
}

// Interval returns the sweep interval as a duration
func (c WorkerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LeaseTTL returns the sweep lease expiry as a duration
func (c WorkerConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := presets()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file.
func Default() *Config {
	cfg := presets()
	cfg.applyDefaults()
	return &cfg
}

// presets holds defaults for fields where zero is a valid setting. They are
// filled in before the file is parsed so an explicit 0 survives.
func presets() Config {
	var cfg Config
	cfg.Drip.TriggerAfterHours = 72
	cfg.Drip.CooldownDays = 30
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if len(cfg.Drip.Steps) == 0 {
		cfg.Drip.Steps = domain.DefaultSteps()
	}
	if len(cfg.Drip.PaidPlans) == 0 {
		cfg.Drip.PaidPlans = append([]string(nil), domain.DefaultPaidPlans...)
	}
	if cfg.Drip.BatchSize == 0 {
		cfg.Drip.BatchSize = 100
	}
	if cfg.Drip.ClaimTTLSeconds == 0 {
		cfg.Drip.ClaimTTLSeconds = 600
	}
	if cfg.Drip.DeliveryTimeoutSeconds == 0 {
		cfg.Drip.DeliveryTimeoutSeconds = 15
	}
	if cfg.Drip.FrontendURL == "" {
		cfg.Drip.FrontendURL = "http://localhost:3000"
	}
	if cfg.Drip.FailurePolicy.Mode == "" {
		cfg.Drip.FailurePolicy.Mode = "advance"
	}
	if cfg.Drip.FailurePolicy.MaxAttempts == 0 {
		cfg.Drip.FailurePolicy.MaxAttempts = 3
	}
	if cfg.Drip.FailurePolicy.RetryDelayMinutes == 0 {
		cfg.Drip.FailurePolicy.RetryDelayMinutes = 30
	}
	if cfg.Delivery.Provider == "" {
		cfg.Delivery.Provider = "mock"
	}
	if cfg.Delivery.SenderEmail == "" {
		cfg.Delivery.SenderEmail = "hello@postify.ai"
	}
	if cfg.Delivery.SenderName == "" {
		cfg.Delivery.SenderName = "Postify AI"
	}
	if cfg.Delivery.SESRegion == "" {
		cfg.Delivery.SESRegion = "us-east-1"
	}
	if cfg.Delivery.SparkPostURL == "" {
		cfg.Delivery.SparkPostURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.Delivery.TimeoutSeconds == 0 {
		cfg.Delivery.TimeoutSeconds = 10
	}
	if cfg.DeliveryLog.Backend == "" {
		cfg.DeliveryLog.Backend = "postgres"
	}
	if cfg.DeliveryLog.DynamoDBTable == "" {
		cfg.DeliveryLog.DynamoDBTable = "drip_delivery_logs"
	}
	if cfg.DeliveryLog.AWSRegion == "" {
		cfg.DeliveryLog.AWSRegion = "us-east-1"
	}
	if cfg.Tracking.AWSRegion == "" {
		cfg.Tracking.AWSRegion = "us-east-1"
	}
	if cfg.Worker.IntervalSeconds == 0 {
		cfg.Worker.IntervalSeconds = 300
	}
	if cfg.Worker.LeaseTTLSeconds == 0 {
		cfg.Worker.LeaseTTLSeconds = 600
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects configurations the engine cannot run with.
func (cfg *Config) Validate() error {
	if len(cfg.Drip.Steps) == 0 {
		return fmt.Errorf("drip.steps: at least one step is required")
	}
	for i, s := range cfg.Drip.Steps {
		if s.DelayHours < 0 {
			return fmt.Errorf("drip.steps[%d]: delay_hours must not be negative", i)
		}
		if strings.TrimSpace(s.Template) == "" {
			return fmt.Errorf("drip.steps[%d]: template is required", i)
		}
	}
	if cfg.Drip.TriggerAfterHours < 0 || cfg.Drip.CooldownDays < 0 {
		return fmt.Errorf("drip: trigger_after_hours and cooldown_days must not be negative")
	}
	switch cfg.Drip.FailurePolicy.Mode {
	case "advance", "retry":
	default:
		return fmt.Errorf("drip.failure_policy.mode: unknown mode %q", cfg.Drip.FailurePolicy.Mode)
	}
	switch cfg.Delivery.Provider {
	case "mock", "ses", "sparkpost":
	default:
		return fmt.Errorf("delivery.provider: unknown provider %q", cfg.Delivery.Provider)
	}
	switch cfg.DeliveryLog.Backend {
	case "postgres", "dynamodb":
	default:
		return fmt.Errorf("delivery_log.backend: unknown backend %q", cfg.DeliveryLog.Backend)
	}
	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", cfg.Database.Driver)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// An empty path skips the file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Mock mode wins unless explicitly disabled, matching the legacy default.
	if v := os.Getenv("EMAIL_MOCK_MODE"); strings.EqualFold(v, "true") {
		cfg.Delivery.Provider = "mock"
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Delivery.Provider = v
	}
	if v := os.Getenv("SENDER_EMAIL"); v != "" {
		cfg.Delivery.SenderEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Delivery.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Delivery.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Delivery.SESRegion = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.Delivery.SparkPostAPIKey = v
	}
	if v := os.Getenv("SPARKPOST_BASE_URL"); v != "" {
		cfg.Delivery.SparkPostURL = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Drip.FrontendURL = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if os.Getenv("WORKER_EMBEDDED") == "true" {
		cfg.Worker.Embedded = true
	}
	if n, ok := envInt("DRIP_TRIGGER_AFTER_HOURS"); ok {
		cfg.Drip.TriggerAfterHours = n
	}
	if n, ok := envInt("DRIP_COOLDOWN_DAYS"); ok {
		cfg.Drip.CooldownDays = n
	}
	if n, ok := envInt("SWEEP_INTERVAL_SECONDS"); ok {
		cfg.Worker.IntervalSeconds = n
	}
	if v := os.Getenv("TRACKING_QUEUE_URL"); v != "" {
		cfg.Tracking.QueueURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
