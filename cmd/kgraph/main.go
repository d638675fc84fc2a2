package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kgraph-dev/kgengine/internal/auth"
	"github.com/kgraph-dev/kgengine/internal/config"
	"github.com/kgraph-dev/kgengine/internal/mcp"
	"github.com/kgraph-dev/kgengine/internal/observability"
)

const Version = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdio is the default MCP transport; logs must go to stderr so they
	// never collide with JSON-RPC on stdout.
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stderr,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	logger.Info("kgengine starting",
		"version", Version,
		"root", cfg.KnowledgeGraph.RootPath,
		"database", cfg.Database.Path,
		"metrics_enabled", cfg.Observability.Metrics.Enabled,
		"tracing_enabled", cfg.Observability.Tracing.Enabled,
	)

	if cfg.Observability.Metrics.Enabled {
		observability.NewMetricsCollector("kgengine")
		go startMetricsServer(cfg.Observability.Metrics, logger)
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "kgengine",
			ServiceVersion: Version,
			Environment:    "development",
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var cacheClient *redis.Client
	if cfg.KnowledgeGraph.CacheAddr != "" {
		cacheClient = redis.NewClient(&redis.Options{Addr: cfg.KnowledgeGraph.CacheAddr})
		defer cacheClient.Close()
	}

	var authenticator auth.Authenticator
	if cfg.Auth.Enabled {
		authCfg := auth.GetDefaultAuthConfig()
		authCfg.Enabled = true
		authCfg.JWT.Issuer = cfg.Auth.Issuer
		if cfg.Auth.TokenExpiry > 0 {
			authCfg.JWT.AccessExpiry = time.Duration(cfg.Auth.TokenExpiry) * time.Minute
		}
		authenticator = auth.NewAuthenticator(authCfg)
		logger.Info("tool-surface authentication enabled", "issuer", cfg.Auth.Issuer)
	}

	mcpServer := mcp.NewServer(os.Stdin, os.Stdout, cacheClient, logger, authenticator)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down")
		mcpServer.Close()
		os.Exit(0)
	}()

	logger.Info("serving MCP over stdio")
	if err := mcpServer.Serve(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// startMetricsServer starts the Prometheus metrics HTTP server on a separate port.
func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","component":"metrics"}`)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("starting metrics server", "addr", addr, "path", cfg.Path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}
