package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr     string
	LogLevel string

	PostechBaseURL      string
	PostechAPIKey       string
	PostechAPIKeySecret string
	AWSRegion           string

	ProxyHost    string
	DefaultModel string
	ModelsFile   string

	FileBackend       string
	TmpDir            string
	RedisURL          string
	FileRetention     time.Duration
	FilePruneSchedule string
	MaxFileBytes      int64
	MaxBodyBytes      int64

	UpstreamTimeout time.Duration
	OTLPEndpoint    string
	ShutdownTimeout time.Duration
}

type Options struct {
	// EnvFile is an explicit .env path. When empty, ./.env is read if present.
	EnvFile string
	// Overrides take precedence over the environment, keyed like env vars.
	Overrides map[string]string
}

var defaults = map[string]any{
	"ADDR":                   ":8080",
	"LOG_LEVEL":              "info",
	"POSTECH_BASE_URL":       "https://genai.postech.ac.kr/agent/api",
	"POSTECH_API_KEY":        "",
	"POSTECH_API_KEY_SECRET": "",
	"AWS_REGION":             "",
	"PROXY_HOST":             "http://localhost:8080",
	"DEFAULT_MODEL":          "postech-gpt",
	"MODELS_FILE":            "",
	"FILE_BACKEND":           "memory",
	"TMP_DIR":                "./tmp",
	"REDIS_URL":              "",
	"FILE_RETENTION":         "0",
	"FILE_PRUNE_SCHEDULE":    "*/10 * * * *",
	"MAX_FILE_BYTES":         32 << 20,
	"MAX_BODY_BYTES":         64 << 20,
	"UPSTREAM_TIMEOUT":       "120",
	"OTLP_ENDPOINT":          "",
	"SHUTDOWN_TIMEOUT":       "30",
}

func Load(opts Options) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if opts.EnvFile != "" {
		v.SetConfigFile(opts.EnvFile)
		v.SetConfigType("env")
	} else {
		v.SetConfigName(".env")
		v.SetConfigType("env")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.EnvFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read env file: %w", err)
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	cfg := &Config{
		Addr:                v.GetString("ADDR"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		PostechBaseURL:      strings.TrimRight(v.GetString("POSTECH_BASE_URL"), "/"),
		PostechAPIKey:       v.GetString("POSTECH_API_KEY"),
		PostechAPIKeySecret: v.GetString("POSTECH_API_KEY_SECRET"),
		AWSRegion:           v.GetString("AWS_REGION"),
		ProxyHost:           strings.TrimRight(v.GetString("PROXY_HOST"), "/"),
		DefaultModel:        v.GetString("DEFAULT_MODEL"),
		ModelsFile:          v.GetString("MODELS_FILE"),
		FileBackend:         strings.ToLower(v.GetString("FILE_BACKEND")),
		TmpDir:              v.GetString("TMP_DIR"),
		RedisURL:            v.GetString("REDIS_URL"),
		FilePruneSchedule:   v.GetString("FILE_PRUNE_SCHEDULE"),
		MaxFileBytes:        v.GetInt64("MAX_FILE_BYTES"),
		MaxBodyBytes:        v.GetInt64("MAX_BODY_BYTES"),
		OTLPEndpoint:        v.GetString("OTLP_ENDPOINT"),
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FILE_RETENTION", &cfg.FileRetention},
		{"UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(v.GetString(d.key)); err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration accepts whole seconds ("120") or a Go duration ("2m").
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func (c *Config) Validate() error {
	switch c.FileBackend {
	case "memory", "disk":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("FILE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown FILE_BACKEND %q (want memory, disk or redis)", c.FileBackend)
	}

	if c.PostechBaseURL == "" {
		return errors.New("POSTECH_BASE_URL is required")
	}
	if c.ProxyHost == "" {
		return errors.New("PROXY_HOST is required")
	}
	if c.MaxFileBytes <= 0 || c.MaxBodyBytes <= 0 {
		return errors.New("MAX_FILE_BYTES and MAX_BODY_BYTES must be positive")
	}
	return nil
}

// HasVendorKey reports whether a key is configured directly or via a secret.
func (c *Config) HasVendorKey() bool {
	return c.PostechAPIKey != "" || c.PostechAPIKeySecret != ""
}
