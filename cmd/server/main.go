package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	contacthandler "verifiedai/internal/contact/handler"
	contactservice "verifiedai/internal/contact/service"
	"verifiedai/internal/email"
	httpapi "verifiedai/internal/http"
	"verifiedai/internal/pages"
	"verifiedai/internal/payment"
	"verifiedai/internal/platform/config"
	"verifiedai/internal/platform/httpserver"
	"verifiedai/internal/platform/logger"
	"verifiedai/internal/platform/metrics"
	"verifiedai/internal/platform/redis"
	"verifiedai/internal/platform/tracing"
	"verifiedai/internal/site"
	"verifiedai/internal/verification/client"
	verificationhandler "verifiedai/internal/verification/handler"
	verificationmetrics "verifiedai/internal/verification/metrics"
	"verifiedai/internal/verification/service"
	"verifiedai/internal/verification/store"
)

// main runs the web server, or with the single argument "probe" checks that a
// running instance answers /api/site-config and exits non-zero otherwise.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if len(os.Args) > 1 && os.Args[1] == "probe" {
		if err := probe(cfg, log); err != nil {
			log.Error("probe failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func probe(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sc, err := site.Fetch(ctx, &http.Client{Timeout: 5 * time.Second}, cfg.Server.PublicBaseURL, log)
	if err != nil {
		return err
	}
	log.Info("probe ok", "name", sc.Name)
	return nil
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()
	shutdownTracing, err := tracing.Setup(cfg.Tracing, os.Stdout)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Error("flush traces", "error", err)
		}
	}()

	appMetrics := metrics.New()
	verificationMetrics := verificationmetrics.New()

	health := map[string]httpapi.HealthCheck{}
	var sessions service.Store
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = store.NewRedis(redisClient.Client, cfg.Session.TTL)
		health["redis"] = redisClient.Health
		log.Info("session store: redis")
	} else {
		sessions = store.NewInMemory(cfg.Session.TTL)
		log.Info("session store: memory")
	}

	var api service.API = client.Disabled{}
	apiClient, err := client.New(cfg.Verification,
		client.WithLogger(log),
		client.WithMetrics(verificationMetrics),
	)
	switch {
	case err == nil:
		api = apiClient
	case errors.Is(err, client.ErrNotConfigured):
		log.Warn("VERIFICATION_API_URL not set; verification steps will fail")
	default:
		return fmt.Errorf("verification client: %w", err)
	}

	mail := email.New(cfg.Email, email.WithLogger(log), email.WithMetrics(appMetrics))
	if err := mail.Ready(); err != nil {
		log.Warn("email delivery disabled", "error", err)
	}
	paymentLink := payment.New(cfg.Payment)
	if !paymentLink.Configured() {
		log.Warn("PAYMENT_LINK not set; report download is unavailable")
	}

	verificationSvc := service.New(api, mail.Sender("report"), sessions, paymentLink,
		service.WithLogger(log),
		service.WithMetrics(verificationMetrics),
		service.WithTrade(cfg.Verification.Trade),
		service.WithStepBudget(cfg.Verification.StepBudget),
	)
	contactSvc := contactservice.New(mail.Sender("contact"), log)

	renderer, err := pages.NewRenderer()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	siteConfig := site.FromConfig(cfg.Site)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		Metrics:        appMetrics,
		MetricsHandler: metrics.Handler(),
		Session:        cfg.Session,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         health,
		Handlers: []httpapi.Registrar{
			site.NewHandler(siteConfig),
			pages.NewHandler(renderer, siteConfig, cfg.Server.PublicBaseURL, verificationSvc, contactSvc, log),
			verificationhandler.New(verificationSvc, log, cfg.Verification.MaxUploadBytes),
			contacthandler.New(contactSvc, log),
		},
	})

	srv := httpserver.New(cfg.Server, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting verifiedai", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
