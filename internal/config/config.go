package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server          Server          `yaml:"server"`
	Database        Database        `yaml:"database"`
	S3              S3              `yaml:"s3"`
	ProfileProvider ProfileProvider `yaml:"profile_provider"`
	Publisher       Publisher       `yaml:"publisher"`
	Orchestrator    Orchestrator    `yaml:"orchestrator"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// Address returns the full server address
func (s Server) Address() string {
	return s.Host + ":" + s.Port
}

// Database holds database configuration
type Database struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`

	MaxConns     int           `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"25"`
	MinConns     int           `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"DB_CONN_LIFETIME" env-default:"5m"`
}

// S3 holds S3/MinIO media store configuration
type S3 struct {
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"media"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	CacheDir        string `yaml:"cache_dir" env:"S3_CACHE_DIR"`
}

// ProfileProvider holds browser-profile provider configuration
type ProfileProvider struct {
	BaseURL  string `yaml:"base_url" env:"PROFILE_PROVIDER_BASE_URL" env-default:"http://localhost:3001"`
	APIToken string `yaml:"api_token" env:"PROFILE_PROVIDER_API_TOKEN"`
}

// Publisher holds publish worker configuration
type Publisher struct {
	BaseURL  string `yaml:"base_url" env:"PUBLISHER_BASE_URL" env-default:"http://localhost:3002"`
	APIToken string `yaml:"api_token" env:"PUBLISHER_API_TOKEN"`
}

// Orchestrator holds automation loop configuration
type Orchestrator struct {
	TickInterval          time.Duration `yaml:"tick_interval" env:"ORCH_TICK_INTERVAL" env-default:"1m"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions" env:"ORCH_MAX_CONCURRENT_SESSIONS" env-default:"5"`
	AcquireTimeout        time.Duration `yaml:"acquire_timeout" env:"ORCH_ACQUIRE_TIMEOUT" env-default:"30s"`
	SessionMaxLifetime    time.Duration `yaml:"session_max_lifetime" env:"ORCH_SESSION_MAX_LIFETIME" env-default:"30m"`
	PublishingTimeout     time.Duration `yaml:"publishing_timeout" env:"ORCH_PUBLISHING_TIMEOUT" env-default:"10m"`

	MaxAttempts      int           `yaml:"max_attempts" env:"ORCH_MAX_ATTEMPTS" env-default:"3"`
	RetryAttempts    int           `yaml:"retry_attempts" env:"ORCH_RETRY_ATTEMPTS" env-default:"3"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay" env:"ORCH_RETRY_BASE_DELAY" env-default:"2s"`
	BackoffFactor    float64       `yaml:"backoff_factor" env:"ORCH_BACKOFF_FACTOR" env-default:"2.0"`
	FailureThreshold int           `yaml:"failure_threshold" env:"ORCH_FAILURE_THRESHOLD" env-default:"5"`
	EventBufferSize  int           `yaml:"event_buffer_size" env:"ORCH_EVENT_BUFFER_SIZE" env-default:"100"`

	// Per-account defaults applied when the account record leaves them unset.
	DefaultMaxPostsPerDay int           `yaml:"default_max_posts_per_day" env:"ORCH_DEFAULT_MAX_POSTS_PER_DAY" env-default:"3"`
	DefaultMinDelay       time.Duration `yaml:"default_min_delay" env:"ORCH_DEFAULT_MIN_DELAY" env-default:"30m"`
	DefaultMaxDelay       time.Duration `yaml:"default_max_delay" env:"ORCH_DEFAULT_MAX_DELAY" env-default:"2h"`
	DefaultStartHour      int           `yaml:"default_start_hour" env:"ORCH_DEFAULT_START_HOUR" env-default:"9"`
	DefaultEndHour        int           `yaml:"default_end_hour" env:"ORCH_DEFAULT_END_HOUR" env-default:"21"`
	DefaultTimezone       string        `yaml:"default_timezone" env:"ORCH_DEFAULT_TIMEZONE" env-default:"UTC"`
}

// Validate checks cross-field constraints the env tags cannot express.
func (o Orchestrator) Validate() error {
	if o.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", o.MaxConcurrentSessions)
	}
	if o.DefaultMinDelay < 0 || o.DefaultMaxDelay < o.DefaultMinDelay {
		return fmt.Errorf("delay bounds invalid: min=%s max=%s", o.DefaultMinDelay, o.DefaultMaxDelay)
	}
	if o.DefaultStartHour < 0 || o.DefaultStartHour > 23 || o.DefaultEndHour < 0 || o.DefaultEndHour > 24 {
		return fmt.Errorf("working hours invalid: start=%d end=%d", o.DefaultStartHour, o.DefaultEndHour)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", o.MaxAttempts)
	}
	return nil
}

// MustLoad loads configuration from environment and panics on error
func MustLoad() Config {
	// Load .env file if exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Orchestrator.Validate(); err != nil {
		log.Fatalf("invalid orchestrator config: %v", err)
	}

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Orchestrator.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
