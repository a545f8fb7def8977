package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/brokerage/internal/config"
	"github.com/efreitasn/brokerage/internal/events"
	"github.com/efreitasn/brokerage/internal/handler"
	"github.com/efreitasn/brokerage/internal/ledger"
	"github.com/efreitasn/brokerage/internal/service"
	"github.com/efreitasn/brokerage/internal/store"
	"github.com/efreitasn/brokerage/internal/store/postgres"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	publisher, closers, err := openPublisher(cfg, logger)
	if err != nil {
		logger.Error("failed to set up events", slog.String("sink", cfg.EventsSink), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("close failed", slog.String("error", err.Error()))
			}
		}
	}()
	if outbox, ok := publisher.(*events.Outbox); ok {
		outbox.Start(ctx)
	}

	// Ledger and services.
	l := ledger.New(st, logger)
	customerSvc := service.NewCustomerService(st, logger)
	assetSvc := service.NewAssetService(l)
	orderSvc := service.NewOrderService(st, l, publisher, logger)

	auth := handler.NewAuthenticator(cfg.JWTSecret)
	if auth == nil {
		logger.Warn("JWT_SECRET not set, API authentication disabled")
	}

	// Router.
	router := handler.NewRouter(customerSvc, assetSvc, orderSvc, auth, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("store", cfg.StoreDriver),
			slog.String("events", cfg.EventsSink),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, then cancel the outbox relay.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StorePostgres {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.LockTimeout, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return store.NewMemory(cfg.LockTimeout), nil
}

// openPublisher builds the configured sink, wrapped in a durable outbox
// when OUTBOX_DIR is set. The returned closers run in order, outbox first.
func openPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, []io.Closer, error) {
	var (
		sink    events.Publisher
		closers []io.Closer
	)
	switch cfg.EventsSink {
	case config.SinkNone:
		return events.Nop{}, nil, nil
	case config.SinkKafka:
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sink = kp
		closers = append(closers, kp)
	case config.SinkWebhook:
		sink = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookTimeout)
	default:
		sink = events.NewLogPublisher(logger)
	}

	if cfg.OutboxDir == "" {
		return sink, closers, nil
	}
	outbox, err := events.OpenOutbox(cfg.OutboxDir, sink, cfg.OutboxInterval, logger)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}
	return outbox, append([]io.Closer{outbox}, closers...), nil
}
