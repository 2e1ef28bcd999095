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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/fleetwatch/internal/adapter/http"
	cfnats "github.com/Strob0t/fleetwatch/internal/adapter/nats"
	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	cfprom "github.com/Strob0t/fleetwatch/internal/adapter/prometheus"
	"github.com/Strob0t/fleetwatch/internal/adapter/ristretto"
	"github.com/Strob0t/fleetwatch/internal/adapter/ws"
	"github.com/Strob0t/fleetwatch/internal/config"
	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
	"github.com/Strob0t/fleetwatch/internal/logger"
	"github.com/Strob0t/fleetwatch/internal/middleware"
	"github.com/Strob0t/fleetwatch/internal/port/cache"
	"github.com/Strob0t/fleetwatch/internal/port/messagequeue"
	"github.com/Strob0t/fleetwatch/internal/port/notifier"
	"github.com/Strob0t/fleetwatch/internal/resilience"
	"github.com/Strob0t/fleetwatch/internal/service"
)

const (
	idempotencyTTL  = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_enabled", cfg.NATS.URL != "",
		"sampling_interval", cfg.Sampling.Interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := cfotel.Setup(ctx, cfg.OTEL.Endpoint, cfg.OTEL.ServiceName)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Core ---

	orch := service.NewOrchestrator(cfg)
	orch.SetMetrics(metrics)
	defer orch.Close()

	hub := ws.NewHub(cfg.Server.CORSOrigin)
	defer hub.Close()

	checks := map[string]cfhttp.HealthCheck{}

	// --- NATS ---

	var relayQueue messagequeue.Queue
	if cfg.NATS.URL != "" {
		queue, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		checks["nats"] = queue.IsConnected

		ingest := service.NewIngestService(queue, orch)
		if err := ingest.Start(ctx); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		defer ingest.Stop()

		if cfg.Relay.Enabled {
			relayQueue = queue
		}
	}

	breaker := resilience.NewBreaker("nats-relay", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	relay := service.NewRelayService(orch, hub, relayQueue, breaker)
	relay.SetMetrics(metrics)
	relay.Start()
	defer relay.Stop()

	// --- Notifications ---

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	alerts := service.NewAlertService(orch, notifiers, threshold.Severity(cfg.Notify.MinSeverity),
		cfg.Notify.AgentErrors, cfg.Notify.Cooldown)
	alerts.Start()
	defer alerts.Stop()

	// --- Prometheus ---

	exporter := cfprom.New(orch)
	exporter.Start()
	defer exporter.Stop()
	exporter.RegisterGauge("ws_connections", "Connected dashboard clients.", func() float64 {
		return float64(hub.ConnectionCount())
	})
	exporter.RegisterGauge("relay_breaker_open", "1 while the relay circuit breaker is open.", func() float64 {
		if breaker.State() == resilience.StateOpen {
			return 1
		}
		return 0
	})
	if ah, ok := logCloser.(*logger.AsyncHandler); ok {
		exporter.RegisterCounter("log_records_dropped_total", "Log records dropped by the async handler.", func() float64 {
			return float64(ah.DroppedCount())
		})
	}

	// --- Response cache ---

	var respCache cache.Cache
	if cfg.Cache.L1MaxSizeMB > 0 {
		l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer l1.Close()
		exporter.RegisterCounter("response_cache_hits_total", "Response cache hits.", func() float64 {
			return float64(l1.Stats().Hits)
		})
		exporter.RegisterCounter("response_cache_misses_total", "Response cache misses.", func() float64 {
			return float64(l1.Stats().Misses)
		})
		respCache = l1
	}

	// --- Sampling ---

	if cfg.Sampling.Interval > 0 {
		sched, err := service.NewSamplingScheduler(orch, cfg.Sampling.Interval)
		if err != nil {
			return fmt.Errorf("sampling: %w", err)
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("sampling: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				slog.Warn("sampling stop", "error", err)
			}
		}()
	}

	// --- HTTP ---

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		exporter.RegisterCounter("http_rate_limited_total", "Mutation requests refused by the rate limiter.", func() float64 {
			return float64(limiter.Rejected())
		})
	}

	handlers := &cfhttp.Handlers{
		Orchestrator: orch,
		Cache:        respCache,
		CacheTTL:     cfg.Cache.TTL,
	}

	r := chi.NewRouter()
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	r.Get("/health", cfhttp.Health(checks))
	r.Method(http.MethodGet, "/metrics", exporter.Handler())
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		if respCache != nil {
			r.Use(middleware.Idempotency(respCache, idempotencyTTL))
		}
		cfhttp.MountRoutes(r, handlers)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if limiter != nil {
		g.Go(func() error {
			return limiter.RunCleanup(gctx, time.Minute, 10*time.Minute)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// buildNotifiers instantiates every provider with a configured webhook.
func buildNotifiers(cfg config.Notify) ([]notifier.Notifier, error) {
	urls := map[string]string{
		"slack":   cfg.SlackWebhookURL,
		"discord": cfg.DiscordWebhookURL,
	}
	var out []notifier.Notifier
	for _, name := range notifier.Available() {
		url := urls[name]
		if url == "" {
			continue
		}
		n, err := notifier.New(name, map[string]string{notifier.ConfigWebhookURL: url})
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
