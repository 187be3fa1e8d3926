package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	LLM        LLMConfig
	Embedding  EmbeddingConfig
	Index      IndexConfig
	Redis      RedisConfig
	Rules      RulesConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
}

// LLMConfig holds chat completion configuration
type LLMConfig struct {
	Provider        string // "http" (OpenAI-compatible REST) or "sdk" (go-openai)
	APIBase         string
	APIKeys         []string
	ChatModel       string
	ChatTemperature float64
	ChatTopP        float64
	ChatMaxTokens   int
	ChatExtraBody   string // JSON string for extra_body (e.g., {"chat_template_kwargs":{"thinking":true}})
	Timeout         int
	Enabled         bool
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Model             string
	Dimensions        int
	ExtraBody         string
	BatchSize         int
	RequestsPerSecond float64
}

// IndexConfig holds policy index configuration
type IndexConfig struct {
	Backend     string // "file" or "pgvector"
	Dir         string
	DefaultTopK int
	SyncOnStart bool
}

// RedisConfig holds the query-embedding cache configuration
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

// RulesConfig points to an optional rule table override
type RulesConfig struct {
	File string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	keys := getEnvAsList("OPENAI_API_KEYS", nil)
	if len(keys) == 0 {
		if single := getEnv("OPENAI_API_KEY", ""); single != "" {
			keys = []string{single}
		}
	}

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("POSTGRESQL_URI", getEnv("PG_DSN", ""))),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "roommate"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "http")),
			APIBase:         strings.TrimRight(getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"), "/"),
			APIKeys:         keys,
			ChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature: getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.3),
			ChatTopP:        getEnvAsFloat("OPENAI_CHAT_TOP_P", 0.9),
			ChatMaxTokens:   getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 4096),
			ChatExtraBody:   getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			Timeout:         getEnvAsInt("OPENAI_TIMEOUT", 120),
			Enabled:         len(keys) > 0,
		},
		Embedding: EmbeddingConfig{
			Model:             getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions:        getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			ExtraBody:         getEnv("OPENAI_EMBEDDING_EXTRA_BODY", ""),
			BatchSize:         getEnvAsInt("OPENAI_BATCH_SIZE", 100),
			RequestsPerSecond: getEnvAsFloat("OPENAI_EMBEDDING_RPS", 10),
		},
		Index: IndexConfig{
			Backend:     strings.ToLower(getEnv("INDEX_BACKEND", "file")),
			Dir:         getEnv("INDEX_DIR", "./data/policy_index"),
			DefaultTopK: getEnvAsInt("INDEX_TOP_K", 10),
			SyncOnStart: getEnvAsBool("INDEX_SYNC_ON_START", true),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			TTLSeconds: getEnvAsInt("EMBEDDING_CACHE_TTL", 86400),
		},
		Rules: RulesConfig{
			File: getEnv("RULES_FILE", ""),
		},
		Logging: LoggingConfig{
			Mode: getEnv("LOG_MODE", "production"),
		},
	}

	if cfg.LLM.Provider != "http" && cfg.LLM.Provider != "sdk" {
		return nil, fmt.Errorf("invalid LLM_PROVIDER %q, must be one of: http, sdk", cfg.LLM.Provider)
	}
	if cfg.Index.Backend != "file" && cfg.Index.Backend != "pgvector" {
		return nil, fmt.Errorf("invalid INDEX_BACKEND %q, must be one of: file, pgvector", cfg.Index.Backend)
	}

	return cfg, nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid bool value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
