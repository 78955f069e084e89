package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const validYAML = `
server:
  port: 9090
scoring:
  base_url: "http://scoring:5000"
  max_retries: 5
  retry_delay: 250ms
processor:
  workers: 8
  session_ttl: 2m
storage:
  journal_path: "/var/lib/fitpipe/journal.db"
security:
  allowed_origins: ["https://app.example"]
  admin_api_key: "yaml-key"
logging:
  level: debug
  format: console
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Scoring.Enabled {
		t.Error("scoring should be enabled by default")
	}
	if err := cfg.ValidateConfig(zap.NewNop()); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := LoadConfig(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, default not kept", cfg.Server.Host)
	}
	if cfg.Scoring.BaseURL != "http://scoring:5000" || cfg.Scoring.MaxRetries != 5 {
		t.Errorf("scoring = %+v", cfg.Scoring)
	}
	if cfg.Scoring.RetryDelay != 250*time.Millisecond {
		t.Errorf("scoring.retry_delay = %v, want 250ms", cfg.Scoring.RetryDelay)
	}
	if cfg.Processor.Workers != 8 || cfg.Processor.SessionTTL != 2*time.Minute {
		t.Errorf("processor = %+v", cfg.Processor)
	}
	if cfg.Processor.QueueSize != 256 {
		t.Errorf("processor.queue_size = %d, default not kept", cfg.Processor.QueueSize)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "https://app.example" {
		t.Errorf("security.allowed_origins = %v", cfg.Security.AllowedOrigins)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("logging.format = %q, want console", cfg.Logging.Format)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ADMIN_API_KEY", "env-key")
	t.Setenv("SCORING_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SESSION_TTL", "45s")

	cfg, err := LoadConfig(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Security.AdminAPIKey != "env-key" {
		t.Errorf("admin_api_key = %q, want env-key", cfg.Security.AdminAPIKey)
	}
	if cfg.Scoring.Enabled {
		t.Error("SCORING_ENABLED=false ignored")
	}
	if got := cfg.Security.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("allowed_origins = %q", got)
	}
	if cfg.Processor.SessionTTL != 45*time.Second {
		t.Errorf("session_ttl = %v, want 45s", cfg.Processor.SessionTTL)
	}
	// Unchanged fields keep YAML values.
	if cfg.Processor.Workers != 8 {
		t.Errorf("processor.workers = %d, want 8", cfg.Processor.Workers)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeTemp(t, "server: [unclosed")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Processor.Workers = 0
	cfg.Storage.JournalPath = ""
	cfg.Logging.Level = "chatty"

	err := cfg.ValidateConfig(zap.NewNop())
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server port", "workers", "journal path", "log level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateScoringAndTLS(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"scoring without url", func(c *Config) { c.Scoring.BaseURL = "" }, true},
		{"scoring disabled without url", func(c *Config) {
			c.Scoring.Enabled = false
			c.Scoring.BaseURL = ""
		}, false},
		{"https without cert", func(c *Config) { c.Security.EnableHTTPS = true }, true},
		{"https with cert", func(c *Config) {
			c.Security.EnableHTTPS = true
			c.Security.CertFile = "cert.pem"
			c.Security.KeyFile = "key.pem"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.ValidateConfig(zap.NewNop())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
