// Package main provides the entry point for the relay node.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/multibridge/mma/pkg/configuration"
	"github.com/multibridge/mma/pkg/health"
	"github.com/multibridge/mma/pkg/monitoring"
	"github.com/multibridge/mma/pkg/relay"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

const defaultConfigFile = "config.toml"

func main() {
	// Determine log level from environment variable, defaulting to "info"
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(logLevelStr)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL '%s', defaulting to 'info'\n", logLevelStr)
		zapLevel = zapcore.InfoLevel
	}
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapLogger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	logger := zapLogger.Sugar().Named("relay")
	defer func() { _ = zapLogger.Sync() }()

	filePath, ok := os.LookupEnv("RELAY_CONFIG_PATH")
	if !ok {
		filePath = defaultConfigFile
	}
	if len(os.Args) > 1 {
		filePath = os.Args[1]
	}
	cfg, err := configuration.LoadConfig(filePath)
	if err != nil {
		logger.Errorw("Failed to load configuration", "path", filePath, "error", err)
		os.Exit(1)
	}
	logger.Infow("Loaded configuration", "path", filePath, "nodeID", cfg.NodeID, "chainID", cfg.ChainID)

	mon, err := monitoring.InitMonitoring(monitoring.Config{
		PyroscopeURL:    cfg.PyroscopeURL,
		ApplicationName: cfg.NodeID,
	})
	if err != nil {
		logger.Errorw("Failed to initialize monitoring", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	node, err := relay.NewNode(ctx, cfg, mmacommon.NewLoggingSink(logger), mon, logger)
	if err != nil {
		logger.Errorw("Failed to build relay node", "error", err)
		os.Exit(1)
	}

	g := &run.Group{}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	g.Add(func() error {
		logger.Info("Execution worker started")
		err := node.Worker.Run(workerCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("Execution worker stopped")
		return nil
	}, func(error) {
		cancelWorker()
	})

	if cfg.Health.Enabled {
		healthServer := health.NewHTTPHealthServer(node.Health, cfg.Health.Port, logger)
		g.Add(func() error {
			err := healthServer.Start()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := healthServer.Stop(shutdownCtx); err != nil {
				logger.Errorw("Failed to stop health server", "error", err)
			}
		})
	}

	g.Add(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case receivedSig := <-sig:
			logger.Infow("Received signal, shutting down", "signal", receivedSig)
		case <-workerCtx.Done():
		}
		return nil
	}, func(error) {
		cancelWorker()
	})

	if err := g.Run(); err != nil {
		logger.Errorw("Relay node stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Relay node shut down gracefully")
}
