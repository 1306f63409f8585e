// Package config provides the survey service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
)

// Duration accepts Go duration strings such as "90s" or "2h" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonic.Unmarshal(b, &s); err != nil {
		var n int64
		if err := sonic.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"90s\": %w", err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type StoreConfig struct {
	// Driver is one of memory, csv or sqlite.
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

type Config struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Model    string `json:"model"`
	Language string `json:"language"`
	// ToolExtraction extracts fields with a forced tool call instead of scanning text.
	ToolExtraction bool `json:"tool_extraction"`

	ListenAddr string      `json:"listen_addr"`
	Store      StoreConfig `json:"store"`
	KeyField   string      `json:"key_field"`

	SessionTimeout    Duration `json:"session_timeout"`
	SweepInterval     Duration `json:"sweep_interval"`
	TurnTimeout       Duration `json:"turn_timeout"`
	LoadTimeout       Duration `json:"load_timeout"`
	PersistTimeout    Duration `json:"persist_timeout"`
	MaxHistory        int      `json:"max_history"`
	HistoryTolerance  int      `json:"history_tolerance"`
	MaxInternalErrors int      `json:"max_internal_errors"`
	PersistQueueSize  int      `json:"persist_queue_size"`

	LogLatency  bool   `json:"log_latency"`
	LogFailures bool   `json:"log_failures"`
	LogLevel    string `json:"log_level"`
}

func Default() *Config {
	return &Config{
		Model:             "gpt-4o",
		Language:          "English",
		ListenAddr:        ":8080",
		Store:             StoreConfig{Driver: "memory"},
		KeyField:          "Initiative",
		SessionTimeout:    Duration(2 * time.Hour),
		SweepInterval:     Duration(30 * time.Minute),
		TurnTimeout:       Duration(90 * time.Second),
		LoadTimeout:       Duration(30 * time.Second),
		PersistTimeout:    Duration(30 * time.Second),
		MaxHistory:        50,
		HistoryTolerance:  10,
		MaxInternalErrors: 3,
		PersistQueueSize:  64,
		LogLatency:        true,
		LogFailures:       true,
		LogLevel:          "info",
	}
}

// Load reads an optional JSON file over the defaults, then applies SURVEY_*
// environment variables. A .env file in the working directory is honoured.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := sonic.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIKey = getEnv("SURVEY_API_KEY", c.APIKey)
	c.BaseURL = getEnv("SURVEY_BASE_URL", c.BaseURL)
	c.Model = getEnv("SURVEY_MODEL", c.Model)
	c.Language = getEnv("SURVEY_LANGUAGE", c.Language)
	c.ToolExtraction = getEnvBool("SURVEY_TOOL_EXTRACTION", c.ToolExtraction)
	c.ListenAddr = getEnv("SURVEY_LISTEN_ADDR", c.ListenAddr)
	c.Store.Driver = getEnv("SURVEY_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("SURVEY_STORE_PATH", c.Store.Path)
	c.KeyField = getEnv("SURVEY_KEY_FIELD", c.KeyField)
	c.MaxHistory = getEnvInt("SURVEY_MAX_HISTORY", c.MaxHistory)
	c.HistoryTolerance = getEnvInt("SURVEY_HISTORY_TOLERANCE", c.HistoryTolerance)
	c.MaxInternalErrors = getEnvInt("SURVEY_MAX_INTERNAL_ERRORS", c.MaxInternalErrors)
	c.PersistQueueSize = getEnvInt("SURVEY_PERSIST_QUEUE_SIZE", c.PersistQueueSize)
	c.LogLatency = getEnvBool("SURVEY_LOG_LATENCY", c.LogLatency)
	c.LogFailures = getEnvBool("SURVEY_LOG_FAILURES", c.LogFailures)
	c.LogLevel = getEnv("SURVEY_LOG_LEVEL", c.LogLevel)

	durations := []struct {
		key string
		dst *Duration
	}{
		{"SURVEY_SESSION_TIMEOUT", &c.SessionTimeout},
		{"SURVEY_SWEEP_INTERVAL", &c.SweepInterval},
		{"SURVEY_TURN_TIMEOUT", &c.TurnTimeout},
		{"SURVEY_LOAD_TIMEOUT", &c.LoadTimeout},
		{"SURVEY_PERSIST_TIMEOUT", &c.PersistTimeout},
	}
	for _, d := range durations {
		value, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = Duration(v)
	}
	return nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "csv", "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr cannot be empty"))
	}
	positive := map[string]time.Duration{
		"session_timeout": c.SessionTimeout.Std(),
		"sweep_interval":  c.SweepInterval.Std(),
		"turn_timeout":    c.TurnTimeout.Std(),
		"load_timeout":    c.LoadTimeout.Std(),
		"persist_timeout": c.PersistTimeout.Std(),
	}
	for _, name := range []string{"session_timeout", "sweep_interval", "turn_timeout", "load_timeout", "persist_timeout"} {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	if c.MaxHistory <= historyHead {
		errs = append(errs, fmt.Errorf("max_history must be > %d", historyHead))
	}
	if c.HistoryTolerance < 0 {
		errs = append(errs, errors.New("history_tolerance must be >= 0"))
	}
	if c.MaxInternalErrors <= 0 {
		errs = append(errs, errors.New("max_internal_errors must be > 0"))
	}
	if c.PersistQueueSize <= 0 {
		errs = append(errs, errors.New("persist_queue_size must be > 0"))
	}
	return errors.Join(errs...)
}

// historyHead is the number of opening turns always kept in the model window.
const historyHead = 5

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
