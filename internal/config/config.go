package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	BearerToken string            `json:"bearer_token"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	AI          AIConfig          `json:"ai"`
	Chunking    ChunkingConfig    `json:"chunking"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Ingest      IngestConfig      `json:"ingest"`
}

type AIConfig struct {
	Provider        string                 `json:"provider"`
	Model           string                 `json:"model"`
	EmbedModel      string                 `json:"embed_model"`
	Data            map[string]interface{} `json:"data"`
	TimeoutSeconds  int                    `json:"timeout_seconds"`
	MaxContextChars int                    `json:"max_context_chars"`
	CacheSize       int                    `json:"cache_size"`
	CacheTTLSeconds int                    `json:"cache_ttl_seconds"`
}

type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

type VectorStoreConfig struct {
	Type      string         `json:"type"`
	Path      string         `json:"path"`
	Dimension int            `json:"dimension"`
	TopK      int            `json:"top_k"`
	Database  DatabaseConfig `json:"database"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type IngestConfig struct {
	MaxDocumentSizeMB int    `json:"max_document_size_mb"`
	MaxConcurrent     int    `json:"max_concurrent"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	TempDir           string `json:"temp_dir"`
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
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	applyDefaults(&cfg)
	switch cfg.VectorStore.Type {
	case "memory":
		if cfg.VectorStore.Path == "" {
			return nil, fmt.Errorf("vector_store.path is required for memory store")
		}
	case "pgvector":
		db := cfg.VectorStore.Database
		if db.DSN == "" && (db.Host == "" || db.DBName == "") {
			return nil, fmt.Errorf("vector_store.database dsn or host/db_name are required for pgvector store")
		}
	case "none":
		// degraded mode: questions are answered without retrieval
	default:
		return nil, fmt.Errorf("vector_store.type must be memory, pgvector or none")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.AI.MaxContextChars == 0 {
		cfg.AI.MaxContextChars = 8000
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.TopK == 0 {
		cfg.VectorStore.TopK = 10
	}
	if cfg.Ingest.MaxDocumentSizeMB == 0 {
		cfg.Ingest.MaxDocumentSizeMB = 50
	}
	if cfg.Ingest.MaxConcurrent == 0 {
		cfg.Ingest.MaxConcurrent = 5
	}
	if cfg.Ingest.TimeoutSeconds == 0 {
		cfg.Ingest.TimeoutSeconds = 30
	}
	if cfg.Ingest.TempDir == "" {
		cfg.Ingest.TempDir = os.TempDir()
	}
}
