// Package main is the entry point for the vector store service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avaqa/internal/config"
	"github.com/vyrodovalexey/avaqa/internal/export"
	"github.com/vyrodovalexey/avaqa/internal/middleware"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/server"
	"github.com/vyrodovalexey/avaqa/internal/trace"
	"github.com/vyrodovalexey/avaqa/internal/vectorstore"
)

// Version information (set at build time).
var version = "dev"

const serviceName = "vector-store"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, version)
		return
	}

	cfg, err := config.LoadVectorStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting vector store",
		observability.String("version", version),
		observability.String("port", cfg.Port),
		observability.Int("embedding_dim", cfg.EmbeddingDim),
	)

	exporter, err := export.NewExporter(export.ExporterConfig{
		Protocol:    cfg.Tracing.Protocol,
		Endpoint:    cfg.Tracing.CollectorEndpoint,
		ServiceName: serviceName,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create trace exporter", observability.Error(err))
	}

	queue := export.NewQueue(exporter, export.QueueConfig{
		Capacity:      cfg.Tracing.BufferCapacity,
		BatchSize:     cfg.Tracing.BatchSize,
		FlushInterval: time.Duration(cfg.Tracing.FlushIntervalS) * time.Second,
		MaxAttempts:   cfg.Tracing.MaxAttempts,
	}, export.WithQueueLogger(logger))
	recorder := trace.NewRecorder(queue, trace.WithRecorderLogger(logger))

	store := vectorstore.NewSeededStore(vectorstore.NewHashEmbedder(cfg.EmbeddingDim))
	handler := vectorstore.NewHandler(store, recorder, logger)

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port

	srv := server.New(srvCfg, logger)
	srv.Engine().Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.ResponseTime(),
		middleware.Tracing(recorder, serviceName),
	)
	handler.Register(srv.Engine())

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server failed", observability.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Error("trace queue shutdown incomplete", observability.Error(err))
	}

	logger.Info("vector store stopped")
}
