package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/korhaliv/projectlens/internal/api"
	"github.com/korhaliv/projectlens/internal/common"
	"github.com/korhaliv/projectlens/internal/config"
	"github.com/korhaliv/projectlens/internal/llm"
	"github.com/korhaliv/projectlens/internal/pipeline"
	"github.com/korhaliv/projectlens/internal/store"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("projectlens: .env file not loaded", "error", err)
	} else {
		logger.Info("projectlens: environment loaded from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("projectlens: config load failed", "error", err)
		fmt.Println("config error:", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Addr, "listen address")
	dbPath := flag.String("db", cfg.DatabasePath, "path to the SQLite entity store")
	providerName := flag.String("provider", cfg.Provider, "generation backend (openai, anthropic, gemini, local)")
	flag.Parse()

	cfg.Addr = strings.TrimSpace(*addr)
	cfg.DatabasePath = strings.TrimSpace(*dbPath)
	cfg.Provider = strings.TrimSpace(*providerName)

	logger.Info("projectlens: startup initiated", "addr", cfg.Addr, "db", cfg.DatabasePath)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("projectlens: creating data directory failed", "dir", dir, "error", err)
			fmt.Println("data directory error:", err)
			os.Exit(1)
		}
	}

	st, err := store.Open(cfg.DatabasePath, cfg.BusyTimeout)
	if err != nil {
		logger.Error("projectlens: opening entity store failed", "error", err)
		fmt.Println("store error:", err)
		os.Exit(1)
	}
	defer st.Close()

	provider := llm.NewProvider(ctx, cfg.Provider)
	p := pipeline.New(st, provider, cfg)

	srv, err := api.NewServer(st, p)
	if err != nil {
		logger.Error("projectlens: building server failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("projectlens: listening", "addr", cfg.Addr, "provider", provider.Name())
	if err := http.ListenAndServe(cfg.Addr, srv); err != nil {
		logger.Error("projectlens: server exited", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}
}
