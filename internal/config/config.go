package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultChunkSize    = 35000
	defaultChunkOverlap = 2000
	defaultCorpusCap    = 60000
	defaultMaxTokens    = 4096
)

// Config carries the runtime settings for the extraction pipeline and its
// HTTP surface. Values come from the environment with sensible defaults;
// the binary overlays command-line flags on top.
type Config struct {
	Addr         string
	DatabasePath string
	Provider     string
	ChunkSize    int
	ChunkOverlap int
	CorpusCap    int
	MaxTokens    int
	BusyTimeout  time.Duration
}

// Default returns the built-in settings used when no environment
// overrides are present.
func Default() Config {
	return Config{
		Addr:         ":8084",
		DatabasePath: filepath.Join("data", "projectlens.db"),
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
		CorpusCap:    defaultCorpusCap,
		MaxTokens:    defaultMaxTokens,
		BusyTimeout:  5 * time.Second,
	}
}

// Load builds a Config from the environment.
func Load() (Config, error) {
	cfg := Default()
	cfg.Provider = strings.TrimSpace(os.Getenv("PROJECTLENS_PROVIDER"))
	if addr := strings.TrimSpace(os.Getenv("PROJECTLENS_ADDR")); addr != "" {
		cfg.Addr = addr
	}
	if path := strings.TrimSpace(os.Getenv("PROJECTLENS_DB")); path != "" {
		cfg.DatabasePath = path
	}
	var err error
	if cfg.ChunkSize, err = intEnv("PROJECTLENS_CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return Config{}, err
	}
	if cfg.ChunkOverlap, err = intEnv("PROJECTLENS_CHUNK_OVERLAP", cfg.ChunkOverlap); err != nil {
		return Config{}, err
	}
	if cfg.CorpusCap, err = intEnv("PROJECTLENS_CORPUS_CAP", cfg.CorpusCap); err != nil {
		return Config{}, err
	}
	if cfg.MaxTokens, err = intEnv("PROJECTLENS_MAX_TOKENS", cfg.MaxTokens); err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(os.Getenv("PROJECTLENS_BUSY_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse PROJECTLENS_BUSY_TIMEOUT: %w", err)
		}
		cfg.BusyTimeout = dur
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the chunking geometry and size caps.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.CorpusCap <= 0 {
		return fmt.Errorf("corpus cap must be positive, got %d", c.CorpusCap)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
