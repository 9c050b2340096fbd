package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/courtmix/courtmix/service"
)

type options struct {
	Config   string `short:"c" long:"config" description:"Path to a YAML configuration file"`
	Address  string `long:"address" description:"Address the API server listens on"`
	LogLevel string `long:"log-level" description:"Log level override (debug, info, warn, error)"`
	DataDir  string `long:"data-dir" description:"Directory for file snapshot storage"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	config, err := service.LoadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.Address != "" {
		config.API.Address = opts.Address
	}
	if opts.LogLevel != "" {
		config.Logger.Level = opts.LogLevel
	}
	if opts.DataDir != "" {
		config.Storage.Dir = opts.DataDir
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := service.NewLogger(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	service.StoreConfig(config)

	ctx, ctxCancelFn := context.WithCancel(context.Background())
	defer ctxCancelFn()

	metrics := service.NewMetrics(logger, config)
	defer metrics.Close()

	store, err := service.NewSnapshotStore(ctx, logger, config)
	if err != nil {
		logger.Fatal("Failed to initialize snapshot storage", zap.Error(err))
	}

	registry := service.NewSessionRegistry(logger, metrics, config)
	apiServer := service.NewApiServer(logger, config, registry, store, metrics)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutdown signal received")
	registry.SaveAll(ctx, store)

	shutdownCtx, shutdownCancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancelFn()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shut down API server cleanly", zap.Error(err))
	}
	registry.Shutdown()
	logger.Info("Shutdown complete")
}
