package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Embedding EmbeddingConfig
	MCP       MCPConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	APIKeyHeader     string
	SessionTTL       time.Duration
	DefaultRateLimit int
}

type EmbeddingConfig struct {
	Provider  string // "cohere" or "openai"
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type MCPConfig struct {
	// DemoMode lets key-less MCP clients auto-provision a service-account
	// key. Off by default: an unauthenticated caller should not be handed
	// a working credential unless the operator opted in.
	DemoMode         bool
	ServiceEmail     string
	ServiceKeyName   string
	ServiceRateLimit int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sessionTTLHours, err := getEnvInt("SESSION_TTL_HOURS", 72)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL_HOURS: %w", err)
	}

	defaultRateLimit, err := getEnvInt("API_KEY_DEFAULT_RATE_LIMIT", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid API_KEY_DEFAULT_RATE_LIMIT: %w", err)
	}

	dimension, err := getEnvInt("EMBEDDING_DIMENSION", 1024)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_DIMENSION: %w", err)
	}

	embedTimeout, err := getEnvInt("EMBEDDING_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_TIMEOUT_SECONDS: %w", err)
	}

	mcpRateLimit, err := getEnvInt("MCP_SERVICE_RATE_LIMIT", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid MCP_SERVICE_RATE_LIMIT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			APIKeyHeader:     getEnv("API_KEY_HEADER", "X-API-Key"),
			SessionTTL:       time.Duration(sessionTTLHours) * time.Hour,
			DefaultRateLimit: defaultRateLimit,
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "cohere"),
			APIKey:    getEnv("EMBEDDING_API_KEY", os.Getenv("COHERE_API_KEY")),
			BaseURL:   getEnv("EMBEDDING_BASE_URL", "https://api.cohere.ai"),
			Model:     getEnv("EMBEDDING_MODEL", "embed-english-v3.0"),
			Dimension: dimension,
			Timeout:   time.Duration(embedTimeout) * time.Second,
		},
		MCP: MCPConfig{
			DemoMode:         getEnvBool("MCP_DEMO_MODE", false),
			ServiceEmail:     getEnv("MCP_SERVICE_EMAIL", "mcp-auto@example.com"),
			ServiceKeyName:   getEnv("MCP_SERVICE_KEY_NAME", "MCP Auto Key"),
			ServiceRateLimit: mcpRateLimit,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Embedding.APIKey == "" {
		missing = append(missing, "EMBEDDING_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
