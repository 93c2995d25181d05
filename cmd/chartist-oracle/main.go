package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chartist/internal/api"
	"chartist/internal/config"
	"chartist/internal/strategy"
	"chartist/internal/strategy/builtins"
	"chartist/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (default $"+config.EnvConfigPath+")")
	listen := flag.String("listen", "", "listen address (overrides oracle.listen_addr)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Oracle.ListenAddr = *listen
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry := strategy.NewRegistry()
	builtins.Register(registry, cfg.Strategies)
	if _, err := registry.Lookup(cfg.Oracle.Strategy); err != nil {
		log.Fatalf("oracle.strategy: %v", err)
	}

	srv := api.NewServer(cfg.Oracle.ListenAddr, registry, cfg.Oracle.Strategy, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting chartist-oracle", "addr", cfg.Oracle.ListenAddr, "default_strategy", cfg.Oracle.Strategy)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("oracle error", "error", err)
		os.Exit(1)
	}
}
