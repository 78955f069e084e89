package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Processor ProcessorConfig `yaml:"processor"`
	Storage   StorageConfig   `yaml:"storage"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Environment  string        `yaml:"environment"`
}

type ScoringConfig struct {
	Enabled             bool          `yaml:"enabled"`
	BaseURL             string        `yaml:"base_url"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

type ProcessorConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	MaxSessions   int           `yaml:"max_sessions"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

type StorageConfig struct {
	// JournalPath is the SQLite file; ":memory:" keeps the journal in RAM.
	JournalPath string `yaml:"journal_path"`
}

type SecurityConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimitRPS   int           `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	MaxRequestSize int64         `yaml:"max_request_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AdminAPIKey    string        `yaml:"admin_api_key"`
	EnableHTTPS    bool          `yaml:"enable_https"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			Environment:  "development",
		},
		Scoring: ScoringConfig{
			Enabled:             true,
			BaseURL:             "http://localhost:5000",
			Timeout:             10 * time.Second,
			MaxRetries:          3,
			RetryDelay:          time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
		Processor: ProcessorConfig{
			Workers:       4,
			QueueSize:     256,
			SessionTTL:    10 * time.Minute,
			MaxSessions:   1000,
			SubmitTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			JournalPath: "data/journal.db",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   100,
			RateLimitBurst: 200,
			MaxRequestSize: 1 << 20,
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig starts from Default, overlays the YAML file at path (skipped
// when path is empty) and then the environment. The result is not
// validated; call ValidateConfig once a logger exists.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(c *Config) {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvAsDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)

	c.Scoring.Enabled = getEnvAsBool("SCORING_ENABLED", c.Scoring.Enabled)
	c.Scoring.BaseURL = getEnv("SCORING_BASE_URL", c.Scoring.BaseURL)
	c.Scoring.Timeout = getEnvAsDuration("SCORING_TIMEOUT", c.Scoring.Timeout)
	c.Scoring.MaxRetries = getEnvAsInt("SCORING_MAX_RETRIES", c.Scoring.MaxRetries)
	c.Scoring.RetryDelay = getEnvAsDuration("SCORING_RETRY_DELAY", c.Scoring.RetryDelay)
	c.Scoring.HealthCheckInterval = getEnvAsDuration("SCORING_HEALTH_CHECK_INTERVAL", c.Scoring.HealthCheckInterval)

	c.Processor.Workers = getEnvAsInt("PROCESSOR_WORKERS", c.Processor.Workers)
	c.Processor.QueueSize = getEnvAsInt("PROCESSOR_QUEUE_SIZE", c.Processor.QueueSize)
	c.Processor.SessionTTL = getEnvAsDuration("SESSION_TTL", c.Processor.SessionTTL)
	c.Processor.MaxSessions = getEnvAsInt("MAX_SESSIONS", c.Processor.MaxSessions)
	c.Processor.SubmitTimeout = getEnvAsDuration("SUBMIT_TIMEOUT", c.Processor.SubmitTimeout)

	c.Storage.JournalPath = getEnv("JOURNAL_PATH", c.Storage.JournalPath)

	c.Security.AllowedOrigins = getEnvAsStringSlice("ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.RateLimitRPS = getEnvAsInt("RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.MaxRequestSize = getEnvAsInt64("MAX_REQUEST_SIZE", c.Security.MaxRequestSize)
	c.Security.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.Security.RequestTimeout)
	c.Security.AdminAPIKey = getEnv("ADMIN_API_KEY", c.Security.AdminAPIKey)
	c.Security.EnableHTTPS = getEnvAsBool("ENABLE_HTTPS", c.Security.EnableHTTPS)
	c.Security.CertFile = getEnv("CERT_FILE", c.Security.CertFile)
	c.Security.KeyFile = getEnv("KEY_FILE", c.Security.KeyFile)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// ValidateConfig reports every violation at once. Settings that merely
// disable a feature are logged as warnings.
func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "server port must be between 1 and 65535")
	}

	if c.Scoring.Enabled && c.Scoring.BaseURL == "" {
		problems = append(problems, "scoring base URL is required when scoring is enabled")
	}
	if c.Scoring.MaxRetries < 0 {
		problems = append(problems, "scoring max retries must not be negative")
	}
	if !c.Scoring.Enabled {
		logger.Warn("Scoring disabled, completed repetitions are journaled unscored")
	}

	if c.Processor.Workers < 1 {
		problems = append(problems, "processor workers must be at least 1")
	}
	if c.Processor.QueueSize < 1 {
		problems = append(problems, "processor queue size must be at least 1")
	}
	if c.Processor.SessionTTL <= 0 {
		problems = append(problems, "session TTL must be positive")
	}
	if c.Processor.MaxSessions < 1 {
		problems = append(problems, "max sessions must be at least 1")
	}
	if c.Processor.SubmitTimeout <= 0 {
		problems = append(problems, "submit timeout must be positive")
	}

	if c.Storage.JournalPath == "" {
		problems = append(problems, "journal path is required")
	}

	if c.Security.MaxRequestSize <= 0 {
		problems = append(problems, "max request size must be positive")
	}
	if c.Security.RateLimitRPS < 1 || c.Security.RateLimitBurst < 1 {
		problems = append(problems, "rate limit rps and burst must be at least 1")
	}
	if c.Security.RequestTimeout <= 0 {
		problems = append(problems, "request timeout must be positive")
	}
	if c.Security.EnableHTTPS && (c.Security.CertFile == "" || c.Security.KeyFile == "") {
		problems = append(problems, "cert and key files are required when HTTPS is enabled")
	}
	if c.Security.AdminAPIKey == "" {
		logger.Warn("Admin API key not set, admin routes are disabled")
	}

	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log level %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(problems, ", "))
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
