// Package svcconfig resolves each service's runtime configuration from
// the environment block in §6, layered through viper the way the teacher
// layers flags + env vars, but centralized so all seven services share one
// resolution path.
package svcconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the typed environment every service binary reads at startup.
type Config struct {
	Environment string // "development" | "staging" | "production"
	LogLevel    string

	RedisURL string

	QdrantURL    string
	QdrantAPIKey string

	SupabaseURL     string
	SupabaseAnonKey string
	ServiceRoleKey  string
	PostgresDSN     string

	OpenAIAPIKey string
	GroqAPIKey   string

	WorkerCount int // per-stream consumer goroutines (§5)

	HTTPAddr string
}

// Load resolves Config from environment variables, with viper providing
// the env/defaults layering the teacher's flag+os.Getenv combination did
// ad hoc per binary. serviceName is the prefix of per-service overrides
// for the worker count and HTTP address (e.g. "ORCHESTRATOR_WORKER_COUNT",
// "ORCHESTRATOR_HTTP_ADDR"); without an override every service gets
// worker_count and http_addr (default ":8080").
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("qdrant_url", "127.0.0.1:6334")
	v.SetDefault("worker_count", 4)
	v.SetDefault("http_addr", ":8080")

	cfg := &Config{
		Environment:     v.GetString("environment"),
		LogLevel:        v.GetString("log_level"),
		RedisURL:        v.GetString("redis_url"),
		QdrantURL:       v.GetString("qdrant_url"),
		QdrantAPIKey:    v.GetString("qdrant_api_key"),
		SupabaseURL:     v.GetString("supabase_url"),
		SupabaseAnonKey: v.GetString("supabase_anon_key"),
		ServiceRoleKey:  v.GetString("service_role_key"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		GroqAPIKey:      v.GetString("groq_api_key"),
		WorkerCount:     v.GetInt("worker_count"),
		HTTPAddr:        v.GetString("http_addr"),
	}

	if n := v.GetInt(strings.ToLower(serviceName) + "_worker_count"); n > 0 {
		cfg.WorkerCount = n
	}
	if addr := v.GetString(strings.ToLower(serviceName) + "_http_addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("svcconfig: worker_count must be > 0, got %d", cfg.WorkerCount)
	}
	return cfg, nil
}

// StreamName builds the Redis stream key convention from §6:
// "nooble:<env>:<service>:streams:main" or the "-callbacks" variant.
func (c *Config) StreamName(service string, callback bool) string {
	if callback {
		return fmt.Sprintf("nooble:%s:%s-callbacks:streams:main", c.Environment, service)
	}
	return fmt.Sprintf("nooble:%s:%s:streams:main", c.Environment, service)
}
