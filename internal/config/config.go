package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sevigo/codesentry/internal/logger"
	"github.com/spf13/viper"
)

// Config represents the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DBConfig        `mapstructure:"database"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Logging   logger.Config   `mapstructure:"logging"`
	Features  FeaturesConfig  `mapstructure:"features"`
}

// ServerConfig holds HTTP-surface and worker-pool sizing.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Workers         int           `mapstructure:"workers"`          // WORKERS
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"` // PROVIDER_TIMEOUT
}

// IngestConfig bounds the SourceFetcher and file-discovery stage.
type IngestConfig struct {
	SizeCap     int64  `mapstructure:"size_cap"` // INGEST_SIZE_CAP, bytes
	ScratchRoot string `mapstructure:"scratch_root"`
	MaxFileSize int64  `mapstructure:"max_file_size"` // LanguageDetector skip threshold
	// GitAuthToken authenticates remote clones of private repositories as
	// an OAuth2 bearer token; empty means anonymous clones only.
	GitAuthToken string `mapstructure:"git_auth_token"`
}

// EmbeddingConfig selects and configures the EmbeddingProvider.
type EmbeddingConfig struct {
	Provider     string `mapstructure:"provider"` // "ollama" | "gemini"
	Dim          int    `mapstructure:"dim"`      // VECTOR_DIM
	Model        string `mapstructure:"model"`
	OllamaHost   string `mapstructure:"ollama_host"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	MaxConcurrency int  `mapstructure:"max_concurrency"`
}

// LLMConfig selects and configures the LLMProvider used for smell detection.
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	OllamaHost   string `mapstructure:"ollama_host"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
}

// StorageConfig configures the vector index backend.
type StorageConfig struct {
	QdrantHost string `mapstructure:"qdrant_host"`
}

// WebhookConfig configures CI webhook signature validation.
type WebhookConfig struct {
	SigningSecret string `mapstructure:"signing_secret"` // WEBHOOK_SIGNING_SECRET
}

// FeaturesConfig toggles optional analysis paths.
type FeaturesConfig struct {
	EnableLLMSmellDetection bool `mapstructure:"enable_llm_smell_detection"`
	EnableDuplication       bool `mapstructure:"enable_duplication"`
}

// DBConfig configures the Postgres connection pool.
type DBConfig struct {
	URL             string        `mapstructure:"url"` // DATABASE_URL
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// LoadConfig loads configuration using Viper with the hierarchy:
// Flags (handled by caller) > Env Vars > Config File > Defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.codesentry")

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded configuration", "file", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnv wires the flat environment variable names from spec.md §6 onto
// their nested config keys; AutomaticEnv alone only matches SECTION_KEY.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("embedding.dim", "VECTOR_DIM")
	_ = v.BindEnv("server.workers", "WORKERS")
	_ = v.BindEnv("ingest.size_cap", "INGEST_SIZE_CAP")
	_ = v.BindEnv("server.provider_timeout", "PROVIDER_TIMEOUT")
	_ = v.BindEnv("webhook.signing_secret", "WEBHOOK_SIGNING_SECRET")
	_ = v.BindEnv("ingest.git_auth_token", "GIT_AUTH_TOKEN")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 0) // 0 => 2*runtime.NumCPU() at wiring time
	v.SetDefault("server.provider_timeout", "30s")

	v.SetDefault("ingest.size_cap", 500*1024*1024) // 500 MiB
	v.SetDefault("ingest.scratch_root", "./data/scratch")
	v.SetDefault("ingest.max_file_size", 1024*1024) // 1 MiB

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.dim", 768)
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.ollama_host", "http://localhost:11434")
	v.SetDefault("embedding.max_concurrency", 4)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "qwen2.5-coder")
	v.SetDefault("llm.ollama_host", "http://localhost:11434")

	v.SetDefault("storage.qdrant_host", "localhost:6334")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "codesentry.log")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	v.SetDefault("features.enable_llm_smell_detection", true)
	v.SetDefault("features.enable_duplication", true)
}

// ValidateForServer checks the fields required to run cmd/server.
func (c *Config) ValidateForServer() error {
	if c.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	if c.Webhook.SigningSecret == "" {
		return errors.New("webhook.signing_secret (WEBHOOK_SIGNING_SECRET) is required")
	}
	if c.Embedding.Provider == "gemini" && c.Embedding.GeminiAPIKey == "" {
		return errors.New("embedding.gemini_api_key is required for the gemini embedding provider")
	}
	if c.LLM.Provider == "gemini" && c.LLM.GeminiAPIKey == "" {
		return errors.New("llm.gemini_api_key is required for the gemini llm provider")
	}
	if c.Embedding.Dim <= 0 {
		return errors.New("embedding.dim (VECTOR_DIM) must be positive")
	}
	return nil
}

// ValidateForCLI checks that database.url is set.
func (c *Config) ValidateForCLI() error {
	if c.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	return nil
}
