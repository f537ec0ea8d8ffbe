package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldrank/fieldrank/internal/adapters/http/api"
	"github.com/fieldrank/fieldrank/internal/adapters/invoke"
	"github.com/fieldrank/fieldrank/internal/adapters/sink"
	"github.com/fieldrank/fieldrank/internal/adapters/store"
	app "github.com/fieldrank/fieldrank/internal/app"
	"github.com/fieldrank/fieldrank/internal/config"
	"github.com/fieldrank/fieldrank/internal/lifecycle"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Err(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build service", logger.Err(err))
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Err(err))
		os.Exit(1)
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Err(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Err(err))
	}

	log.Info(ctx, "server stopped")
}

// buildService assembles the service from configured backends.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithSeasonWindow(cfg.SeasonStart, cfg.SeasonEnd),
		app.WithMatchPageSize(cfg.MatchPageSize),
		app.WithMaxRankingsLimit(cfg.MaxRankingsLimit),
		app.WithBusCapacity(cfg.BusCapacity),
		app.WithTrackerOptions(
			lifecycle.WithFreshnessWindow(time.Duration(cfg.FreshnessWindowMinutes)*time.Minute),
			lifecycle.WithRunTTL(time.Duration(cfg.RunTTLHours)*time.Hour),
			lifecycle.WithCacheTTL(time.Duration(cfg.CacheTTLHours)*time.Hour),
		),
	}

	switch cfg.StoreBackend {
	case "mongo":
		st, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithStore(st))
	default:
		opts = append(opts, app.WithStore(store.NewMem()))
	}

	switch cfg.SinkBackend {
	case "s3":
		s3sink, err := sink.NewS3Sink(ctx, sink.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		}, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithSink(s3sink))
	case "fs":
		opts = append(opts, app.WithSink(sink.NewFSSink(cfg.SinkDir, log)))
	case "none":
		// Artifact publishing disabled.
	}

	if cfg.InvokerBackend == "lambda" {
		inv, err := invoke.NewLambdaInvoker(ctx, cfg.LambdaRegion, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithInvoker(inv))
	}

	return app.New(opts...), nil
}
