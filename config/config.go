package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override backend.url, in priority order.
// REACT_APP_API_URL is accepted so an existing frontend .env can be reused.
var baseURLEnvKeys = []string{"API_URL", "REACT_APP_API_URL"}

type AppSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type BackendSettings struct {
	URL                  string `yaml:"url"`
	TimeoutSec           int    `yaml:"timeout_sec"`
	VerifyProcessedVideo bool   `yaml:"verify_processed_video"`
	BreakerFailures      int    `yaml:"breaker_failures"`
}

type UploadSettings struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type AppConfig struct {
	App     AppSettings     `yaml:"app"`
	Backend BackendSettings `yaml:"backend"`
	Upload  UploadSettings  `yaml:"upload"`
}

func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}

// LoadEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads the YAML config at path, fills in defaults, applies the
// base URL environment override and validates the result. A missing file
// yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if path != "" {
		if err := loadYAML(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	for _, key := range baseURLEnvKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.Backend.URL = v
			break
		}
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.App.Host == "" {
		cfg.App.Host = "127.0.0.1"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:8000"
	}
	cfg.Backend.URL = strings.TrimRight(strings.TrimSpace(cfg.Backend.URL), "/")
	if cfg.Backend.TimeoutSec == 0 {
		cfg.Backend.TimeoutSec = 600
	}
	if cfg.Backend.BreakerFailures == 0 {
		cfg.Backend.BreakerFailures = 5
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{"mp4", "avi", "mov"}
	}
}

func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url %q: %w", c.Backend.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url %q: scheme must be http or https", c.Backend.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.url %q: missing host", c.Backend.URL)
	}
	if c.Backend.TimeoutSec < 0 {
		return fmt.Errorf("backend.timeout_sec must not be negative")
	}
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("app.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level %q: must be debug, info, warn or error", c.App.LogLevel)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
