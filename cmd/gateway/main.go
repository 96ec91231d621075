// Package main is the entry point for the API Gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/auth"
	"github.com/vyrodovalexey/avaqa/internal/config"
	"github.com/vyrodovalexey/avaqa/internal/export"
	"github.com/vyrodovalexey/avaqa/internal/gateway"
	"github.com/vyrodovalexey/avaqa/internal/health"
	"github.com/vyrodovalexey/avaqa/internal/middleware"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/phoenix"
	"github.com/vyrodovalexey/avaqa/internal/ratelimit"
	"github.com/vyrodovalexey/avaqa/internal/server"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// Version information (set at build time).
var version = "dev"

const serviceName = "api-gateway"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, version)
		return
	}

	cfg, err := config.LoadGateway()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting api gateway",
		observability.String("version", version),
		observability.String("port", cfg.Port),
		observability.String("collector", cfg.Tracing.CollectorEndpoint),
	)

	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version)

	queue, recorder := initTracing(cfg.Tracing, logger, metrics)
	limiter := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill,
		ratelimit.WithLimiterLogger(logger))

	srv := buildServer(cfg, logger, metrics, recorder, limiter)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server failed", observability.Error(err))
		}
	}()

	waitForShutdown(srv, queue, limiter, logger)
}

// initLogger initializes the logger.
func initLogger(cfg config.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// initTracing wires the span pipeline: exporter, queue, recorder.
func initTracing(cfg config.TracingConfig, logger observability.Logger, metrics *observability.Metrics) (*export.Queue, *trace.Recorder) {
	exporter, err := export.NewExporter(export.ExporterConfig{
		Protocol:    cfg.Protocol,
		Endpoint:    cfg.CollectorEndpoint,
		ServiceName: serviceName,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create trace exporter", observability.Error(err))
	}

	queue := export.NewQueue(exporter, export.QueueConfig{
		Capacity:      cfg.BufferCapacity,
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushIntervalS) * time.Second,
		MaxAttempts:   cfg.MaxAttempts,
	}, export.WithQueueLogger(logger), export.WithQueueMetrics(metrics))

	recorder := trace.NewRecorder(queue, trace.WithRecorderLogger(logger))
	return queue, recorder
}

// buildServer assembles the middleware chain and routes.
func buildServer(
	cfg *config.GatewayConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
	recorder *trace.Recorder,
	limiter *ratelimit.Limiter,
) *server.Server {
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port

	srv := server.New(srvCfg, logger)
	engine := srv.Engine()

	engine.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Metrics(metrics),
		middleware.ResponseTime(),
		middleware.Tracing(recorder, serviceName),
	)

	timeout := time.Duration(cfg.DownstreamTimeoutS) * time.Second

	prober := health.NewProber(5 * time.Second)
	prober.Register("llm-service", cfg.LLMServiceURL)
	prober.Register("vector-store", cfg.VectorStoreURL)

	handler := gateway.NewHandler(
		gateway.NewLLMClient(cfg.LLMServiceURL, timeout, logger),
		gateway.NewSnapshotClient(timeout),
		phoenix.NewClient(cfg.Tracing.CollectorEndpoint, logger),
		prober,
		limiter,
		recorder,
		logger,
		cfg.LLMServiceURL, cfg.VectorStoreURL,
	)
	handler.Register(engine,
		middleware.Auth(auth.NewAuthenticator(cfg.AdminToken), metrics),
		middleware.RateLimit(limiter, metrics),
	)

	engine.GET("/metrics", func(c *gin.Context) {
		metrics.Handler().ServeHTTP(c.Writer, c.Request)
	})

	return srv
}

// waitForShutdown blocks for a signal, then stops the server and drains
// the export queue within the shutdown deadline.
func waitForShutdown(srv *server.Server, queue *export.Queue, limiter *ratelimit.Limiter, logger observability.Logger) {
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

	_ = limiter.Close()
	logger.Info("api gateway stopped")
}
