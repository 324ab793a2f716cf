package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpdock/gateway"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configFile := flag.String("config", "", "path to gateway YAML config file")
	flag.Parse()

	cfg := gateway.DefaultGatewayConfig()
	if *configFile != "" {
		parsed, err := gateway.ParseGatewayConfig(*configFile)
		if err != nil {
			logger.Error("failed to parse config", "error", err)
			os.Exit(1)
		}
		cfg = parsed
	}
	if addr := os.Getenv("GATEWAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dir := os.Getenv("GATEWAY_STORE_DIR"); dir != "" {
		cfg.StoreDir = dir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gw, err := gateway.New(cfg, gateway.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}

	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway started", "addr", cfg.Addr)

	<-ctx.Done()
	logger.Info("gateway shut down")
}
