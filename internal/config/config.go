package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port         int               `json:"port"`
	LogConfig    logger.LogConfig  `json:"log_config"`
	Database     DatabaseConfig    `json:"database"`
	Deployment   DeploymentConfig  `json:"deployment"`
	Embedder     EmbedderConfig    `json:"embedder"`
	LegacyStore  LegacyStoreConfig `json:"legacy_store"`
	ProviderKeys map[string]string `json:"provider_keys"`
	Auth         AuthConfig        `json:"auth"`
	Jobs         JobsConfig        `json:"jobs"`
	CORSOrigins  []string          `json:"cors_origins"`
}

type DatabaseConfig struct {
	DSN              string `json:"dsn"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	User             string `json:"user"`
	Password         string `json:"password"`
	DBName           string `json:"db_name"`
	SSLMode          string `json:"ssl_mode"`
	MaxConns         int    `json:"max_conns"`
	MinIdleConns     int    `json:"min_idle_conns"`
	ConnLifetimeSec  int    `json:"conn_lifetime_sec"`
	AcquireTimeoutMS int    `json:"acquire_timeout_ms"`
}

// DeploymentConfig seeds the static_config singleton at startup.
type DeploymentConfig struct {
	Name               string   `json:"name"`
	EmbeddingModel     string   `json:"embedding_model"`
	EmbeddingDim       int      `json:"embedding_dim"`
	ChunkSize          int      `json:"chunk_size"`
	ChunkOverlap       int      `json:"chunk_overlap"`
	DistanceMetric     string   `json:"distance_metric"`
	InstalledPipelines []string `json:"installed_pipelines"`
	InstalledModels    []string `json:"installed_models"`
	InstalledProviders []string `json:"installed_providers"`
	AuthEnabled        bool     `json:"auth_enabled"`
}

type EmbedderConfig struct {
	Provider     string      `json:"provider"`
	Data         interface{} `json:"data"`
	CacheSize    int         `json:"cache_size"`
	CacheTTLMin  int         `json:"cache_ttl_min"`
	UseDBCache   bool        `json:"use_db_cache"`
	CacheTTLDays int         `json:"cache_ttl_days"`
}

// LegacyStoreConfig locates the legacy dump files the migration reads,
// either a local directory or an s3 bucket.
type LegacyStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AuthConfig struct {
	JWTSecret         string `json:"jwt_secret"`
	TokenTTLHours     int    `json:"token_ttl_hours"`
	AdminUser         string `json:"admin_user"`
	AdminPasswordHash string `json:"admin_password_hash"`
}

type JobsConfig struct {
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
	ReindexSpec      string `json:"reindex_spec"`
	ReindexBatch     int    `json:"reindex_batch"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8320
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 16
	}
	if cfg.Database.MinIdleConns == 0 {
		cfg.Database.MinIdleConns = 2
	}
	if cfg.Database.ConnLifetimeSec == 0 {
		cfg.Database.ConnLifetimeSec = 1800
	}
	if cfg.Database.AcquireTimeoutMS == 0 {
		cfg.Database.AcquireTimeoutMS = 3000
	}
	if cfg.Deployment.Name == "" {
		return nil, fmt.Errorf("deployment.name is required")
	}
	if cfg.Deployment.EmbeddingModel == "" {
		return nil, fmt.Errorf("deployment.embedding_model is required")
	}
	if cfg.Deployment.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("deployment.embedding_dim must be positive")
	}
	if cfg.Deployment.ChunkSize == 0 {
		cfg.Deployment.ChunkSize = 1600
	}
	if cfg.Deployment.ChunkOverlap == 0 {
		cfg.Deployment.ChunkOverlap = 200
	}
	if cfg.Deployment.DistanceMetric == "" {
		cfg.Deployment.DistanceMetric = "cosine"
	}
	if cfg.Embedder.Provider == "" {
		return nil, fmt.Errorf("embedder.provider is required")
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 4096
	}
	if cfg.Embedder.CacheTTLMin == 0 {
		cfg.Embedder.CacheTTLMin = 120
	}
	if cfg.Embedder.CacheTTLDays == 0 {
		cfg.Embedder.CacheTTLDays = 30
	}
	if cfg.Deployment.AuthEnabled && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required when deployment.auth_enabled is set")
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = 72
	}
	if cfg.Jobs.CacheCleanupSpec == "" {
		cfg.Jobs.CacheCleanupSpec = "30 3 * * *"
	}
	if cfg.Jobs.ReindexSpec == "" {
		cfg.Jobs.ReindexSpec = "*/10 * * * *"
	}
	if cfg.Jobs.ReindexBatch == 0 {
		cfg.Jobs.ReindexBatch = 16
	}
	return &cfg, nil
}
