// Package main is the entry point for the custos-gate binary, the daemon
// that accepts custody webhooks and submits transfers.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/custodix/custos-oss/internal/admin"
	"github.com/custodix/custos-oss/internal/custody"
	"github.com/custodix/custos-oss/internal/governance"
	"github.com/custodix/custos-oss/internal/webhook"
	"github.com/custodix/custos-oss/pkg/config"
	"github.com/custodix/custos-oss/pkg/logging"
	"github.com/custodix/custos-oss/pkg/policy"
	"github.com/custodix/custos-oss/pkg/telemetry"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	// An absent file at the default path is not an error: start from
	// defaults plus environment. An explicit -config path must exist.
	path := *configPath
	if path == defaultConfigPath {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			path = ""
		}
	}

	provider, err := config.NewFileProvider(path, slog.Default())
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slog.Error("Failed to close config provider", "error", err)
		}
	}()
	cfg := provider.Current()

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Pretty: *prettyLogs || cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting custos-gate",
		"config", *configPath,
		"environment", cfg.Custody.Environment,
		"dedupe_backend", cfg.Webhook.DedupeBackend,
		"queue_backend", cfg.Webhook.QueueBackend)

	ctx := context.Background()

	// Tracing. No endpoint means a no-op shutdown.
	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "custos-gate",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Custody.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.NewMetrics()
	monitor := governance.NewSecurityMonitor(logger, 128, metrics.SecurityEventCounter())

	breaker := governance.NewBreaker(governance.BreakerConfig{
		MaxFailures:       cfg.Resilience.MaxFailures,
		OpenTimeout:       cfg.Resilience.OpenTimeout,
		MaxHalfOpenProbes: cfg.Resilience.MaxHalfOpenProbes,
	})

	limiter := governance.NewRateLimiter(limiterConfig(cfg))

	options, err := custody.NewOptionsProvider(custody.ClientOptions{
		Enabled:        cfg.Custody.Enabled,
		APIKey:         cfg.Custody.APIKey,
		SecretKey:      cfg.Custody.SecretKey,
		BasePath:       cfg.Custody.BasePath,
		WebhookSecret:  cfg.Custody.WebhookSecret,
		Environment:    custody.Environment(cfg.Custody.Environment),
		RequestTimeout: cfg.Custody.RequestTimeout,
	})
	if err != nil {
		logger.Error("Invalid custody configuration", "error", err)
		os.Exit(1)
	}

	preflight, err := policy.NewPreflightEngine(ctx, policy.EngineOptions{
		Constraints: policy.Constraints{
			AllowedAssets: cfg.Preflight.AllowedAssets,
			MaxAmount:     cfg.Preflight.MaxAmount,
		},
	})
	if err != nil {
		logger.Error("Failed to prepare preflight policy", "error", err)
		os.Exit(1)
	}

	client := custody.NewHTTPClient(options, logger)
	mapper := custody.NewErrorMapper(logger)
	submitter := custody.NewSubmitter(client, mapper, breaker, preflight,
		custody.SubmitterConfig{
			MaxRetries:  cfg.Custody.MaxRetries,
			Environment: cfg.Custody.Environment,
		}, logger)
	processor := custody.NewEventProcessor(submitter, metrics, logger)

	dedupe, err := buildDedupeStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize dedupe store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dedupe.Close(); err != nil {
			logger.Error("Failed to close dedupe store", "error", err)
		}
	}()

	queue, depth, err := buildQueue(cfg, processor, metrics, logger)
	if err != nil {
		logger.Error("Failed to initialize processing queue", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error("Failed to close processing queue", "error", err)
		}
	}()

	verifier := webhook.NewVerifier(cfg.Custody.WebhookSecret, monitor, logger)
	router := webhook.NewRouter(dedupe, queue, metrics, logger)
	webhookHandler := webhook.NewHTTPHandler(verifier, router, limiter, metrics, logger)

	adminService := admin.NewService(verifier, breaker, monitor, depth, logger)

	go watchConfig(provider, limiter, logger)

	webhookServer := startServer(cfg.Server.WebhookAddress,
		otelhttp.NewHandler(webhookHandler, "custos.webhook"), logger)
	adminServer := startServer(cfg.Server.AdminAddress,
		adminService.Mux(metrics.Handler()), logger)

	waitForShutdown(logger, shutdownTracing, webhookServer, adminServer)
}

func limiterConfig(cfg *config.Config) map[string]governance.RateLimiterConfig {
	return map[string]governance.RateLimiterConfig{
		webhook.WebhookRoute: {
			RequestsPerSecond: cfg.Webhook.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Webhook.RateLimit.BurstSize,
		},
	}
}

func buildDedupeStore(cfg *config.Config) (webhook.DedupeStore, error) {
	if cfg.Webhook.DedupeBackend == config.BackendRedis {
		return webhook.NewRedisDedupeStore(cfg.Webhook.RedisAddr, "", cfg.Webhook.DedupeTTL)
	}
	return webhook.NewMemoryDedupeStore(cfg.Webhook.DedupeTTL), nil
}

// buildQueue returns the configured queue plus a depth reporter for the
// admin surface. The AMQP backend cannot report depth; its consumers run out
// of process.
func buildQueue(cfg *config.Config, handler webhook.Handler, metrics *telemetry.Metrics, logger *slog.Logger) (webhook.Queue, admin.DepthReporter, error) {
	if cfg.Webhook.QueueBackend == config.BackendAMQP {
		q, err := webhook.NewAMQPQueue(cfg.Webhook.AMQPURI, cfg.Webhook.AMQPExchange, logger)
		return q, nil, err
	}

	d := webhook.NewDispatcher(cfg.Webhook.QueueCapacity, cfg.Webhook.QueueWorkers, handler, logger)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.SetQueueDepth(d.Depth())
		}
	}()

	return d, d, nil
}

// watchConfig applies hot-reloadable tunables from configuration updates.
// Credentials and backend selection require a restart.
func watchConfig(provider *config.FileProvider, limiter *governance.RateLimiter, logger *slog.Logger) {
	updates := provider.Subscribe()
	for snapshot := range updates {
		limiter.Configure(limiterConfig(snapshot))
		logger.Info("Runtime tunables applied",
			"rate_rps", snapshot.Webhook.RateLimit.RequestsPerSecond,
			"rate_burst", snapshot.Webhook.RateLimit.BurstSize)
	}
}

func startServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", addr, "error", err)
		os.Exit(1)
	}

	logger.Info("Server listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(logger *slog.Logger, shutdownTracing func(context.Context) error, servers ...*http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}

	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Tracing shutdown error", "error", err)
	}
}
