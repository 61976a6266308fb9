package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/document-validity-gateway/internal/adapters/http"
	"github.com/kirillkom/document-validity-gateway/internal/bootstrap"
	"github.com/kirillkom/document-validity-gateway/internal/config"
	"github.com/kirillkom/document-validity-gateway/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("gateway", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Sessions,
		app.IntakeUC,
		app.BatchUC,
		app.CheckUC,
		app.Exporter,
		httpadapter.RouterOptions{
			MaxUploadBytes: cfg.MaxUploadBytes,
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			SubmitSlots:    cfg.MaxConcurrentSubmits,
			GatewayMetrics: app.Metrics,
			MetricsHandler: app.Metrics.Handler(),
		},
	)
	handler := app.Metrics.Middleware("gateway", router.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: handler,
		// The extraction round-trip dominates; the write timeout must cover it.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: time.Duration(cfg.ExtractorTimeoutSeconds+30) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
