package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"chartist/internal/api"
	"chartist/internal/backtest"
	"chartist/internal/config"
	"chartist/internal/feed"
	"chartist/internal/httpapi"
	"chartist/internal/store"
	"chartist/internal/strategy"
	"chartist/internal/strategy/builtins"
	"chartist/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (default $"+config.EnvConfigPath+")")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	if util.ParseLevel(cfg.Logging.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("failed to create storage dir: %v", err)
	}
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer results.Close()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	var provider feed.Provider
	switch cfg.Backtest.DataSource {
	case "archive":
		provider = feed.NewArchiveProvider(pstore)
	default:
		provider = feed.NewAlpacaProvider(cfg.Alpaca, pstore)
	}

	registry := strategy.NewRegistry()
	builtins.Register(registry, cfg.Strategies)
	if cfg.Oracle.Addr != "" {
		remote, err := api.NewDecisionClient(cfg.Oracle.Addr, "")
		if err != nil {
			log.Fatalf("failed to create decision client: %v", err)
		}
		defer remote.Close()
		registry.Register(remote)
		logger.Info("remote decision oracle registered", "addr", cfg.Oracle.Addr, "strategy", remote.Name())
	}

	engine := backtest.NewEngine(provider, registry, results, nil, backtest.DefaultsFromConfig(cfg.Backtest), logger)
	srv := httpapi.NewServer(engine, results, cfg.Server.CORSOrigins, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting chartist-server",
		"addr", cfg.Server.Addr(),
		"data_source", cfg.Backtest.DataSource,
		"strategies", registry.List(),
		"sqlite", cfg.Storage.SQLitePath,
	)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
