// Package config loads agent configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable the agent reads at startup. Components receive
// the values they need through their constructors; nothing reads the
// environment after Load returns.
type Config struct {
	// Model access. Two chat-completion endpoints may be configured for
	// classification throughput; the resolver and recovery controller use
	// the primary one.
	ModelEndpoints   []string
	ModelNames       []string
	ModelAPIKey      string
	ModelTimeout     time.Duration
	ModelMaxTokens   int
	ModelTemperature float64

	// Batching and concurrency.
	ClassifyBatchSize  int
	ResolveBatchSize   int
	ConcurrentPerModel int
	InterBatchDelay    time.Duration

	// Browser.
	Headless   bool
	DOMTimeout time.Duration

	// Recovery.
	MaxRetries int

	// Executor post-condition handling: strict treats a wait-condition
	// timeout as failure, lenient reports partial success.
	StrictPostConditions bool

	CacheDir   string
	ResultsDir string

	LogLevel   string
	ServerAddr string
}

// Load reads .env if present, then binds environment variables with defaults.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("model_endpoints", "http://localhost:1234/v1/chat/completions")
	v.SetDefault("model_names", "openai/gpt-oss-20b")
	v.SetDefault("model_api_key", "")
	v.SetDefault("model_timeout", 60*time.Second)
	v.SetDefault("model_max_tokens", 4000)
	v.SetDefault("model_temperature", 0.1)

	v.SetDefault("classify_batch_size", 20)
	v.SetDefault("resolve_batch_size", 25)
	v.SetDefault("concurrent_per_model", 5)
	v.SetDefault("inter_batch_delay", 2*time.Second)

	v.SetDefault("headless", true)
	v.SetDefault("dom_timeout", 10*time.Second)

	v.SetDefault("max_retries", 3)
	v.SetDefault("strict_post_conditions", false)

	v.SetDefault("cache_dir", "extracted_data")
	v.SetDefault("results_dir", "results")

	v.SetDefault("log_level", "info")
	v.SetDefault("server_addr", ":8080")

	cfg := &Config{
		ModelEndpoints:       splitList(v.GetString("model_endpoints")),
		ModelNames:           splitList(v.GetString("model_names")),
		ModelAPIKey:          v.GetString("model_api_key"),
		ModelTimeout:         v.GetDuration("model_timeout"),
		ModelMaxTokens:       v.GetInt("model_max_tokens"),
		ModelTemperature:     v.GetFloat64("model_temperature"),
		ClassifyBatchSize:    v.GetInt("classify_batch_size"),
		ResolveBatchSize:     v.GetInt("resolve_batch_size"),
		ConcurrentPerModel:   v.GetInt("concurrent_per_model"),
		InterBatchDelay:      v.GetDuration("inter_batch_delay"),
		Headless:             v.GetBool("headless"),
		DOMTimeout:           v.GetDuration("dom_timeout"),
		MaxRetries:           v.GetInt("max_retries"),
		StrictPostConditions: v.GetBool("strict_post_conditions"),
		CacheDir:             v.GetString("cache_dir"),
		ResultsDir:           v.GetString("results_dir"),
		LogLevel:             v.GetString("log_level"),
		ServerAddr:           v.GetString("server_addr"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.ModelEndpoints) == 0 {
		return fmt.Errorf("config: at least one model endpoint is required")
	}
	if len(c.ModelNames) == 0 {
		return fmt.Errorf("config: at least one model name is required")
	}
	if c.ClassifyBatchSize <= 0 || c.ResolveBatchSize <= 0 {
		return fmt.Errorf("config: batch sizes must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
