package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/babelmark/babelmark/internal/backend"
)

// ErrMissingAPIKey is returned when neither the request nor the environment
// supplies provider credentials.
var ErrMissingAPIKey = errors.New("missing API key (provide x-openai-key or set OPENAI_API_KEY)")

type Config struct {
	Port string `yaml:"port"`

	// Auth for this server's API. Empty disables auth.
	BabelmarkAPIKey string `yaml:"api_key"`

	// Provider defaults; requests may override them.
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIPath    string `yaml:"openai_path"`
	OpenAIModel   string `yaml:"openai_model"`
	// Concurrency is kept raw and resolved per request.
	Concurrency string `yaml:"concurrency"`

	// Pacing and retries
	TPM        int `yaml:"tpm"`
	MaxRetries int `yaml:"max_retries"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	PromptFile     string        `yaml:"prompt_file"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`

	// Background sessions
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SessionWorkers int           `yaml:"session_workers"`
	MaxQueueSize   int           `yaml:"max_queue_size"`

	CORSOrigins []string `yaml:"cors_origins"`
}

func defaults() Config {
	return Config{
		Port:           "8090",
		OpenAIBaseURL:  backend.DefaultBaseURL,
		OpenAIModel:    backend.DefaultModel,
		RequestTimeout: 5 * time.Minute,
		PromptFile:     "translate_prompt.txt",
		MaxBodyBytes:   10 << 20, // 10MB
		SessionTTL:     1 * time.Hour,
		SessionWorkers: 4,
		MaxQueueSize:   100,
		CORSOrigins:    []string{"*"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// BABELMARK_CONFIG if set, and the environment, in increasing precedence.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("BABELMARK_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.BabelmarkAPIKey = envOr("BABELMARK_API_KEY", cfg.BabelmarkAPIKey)
	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", envOr("OPENAI_API_BASE", cfg.OpenAIBaseURL))
	cfg.OpenAIPath = envOr("OPENAI_CHAT_COMPLETIONS_PATH", cfg.OpenAIPath)
	cfg.OpenAIModel = envOr("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.Concurrency = envOr("OPENAI_CONCURRENCY", cfg.Concurrency)
	cfg.TPM = envInt("OPENAI_TPM", cfg.TPM)
	cfg.MaxRetries = envInt("OPENAI_MAX_RETRIES", cfg.MaxRetries)
	cfg.RequestTimeout = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.PromptFile = envOr("PROMPT_FILE", cfg.PromptFile)
	cfg.MaxBodyBytes = envInt64("MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionWorkers = envInt("SESSION_WORKERS", cfg.SessionWorkers)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.CORSOrigins = envList("CORS_ORIGINS", cfg.CORSOrigins)

	d := defaults()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = d.SessionTTL
	}
	if cfg.SessionWorkers <= 0 {
		cfg.SessionWorkers = d.SessionWorkers
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = d.MaxQueueSize
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = d.OpenAIModel
	}

	return cfg, nil
}

// MaxRetriesLimit bounds OPENAI_MAX_RETRIES.
const MaxRetriesLimit = 10

// Validate rejects values the server cannot start with. A missing provider
// key is not an error here because clients may send their own.
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %q", c.Port)
	}
	if c.TPM < 0 {
		return fmt.Errorf("OPENAI_TPM must not be negative")
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be between 0 and %d, got %d", MaxRetriesLimit, c.MaxRetries)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
