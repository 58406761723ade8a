package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kslji/trackUserAddress/internal/alert"
	"github.com/kslji/trackUserAddress/internal/chain/alchemy"
	"github.com/kslji/trackUserAddress/internal/circuitbreaker"
	"github.com/kslji/trackUserAddress/internal/config"
	"github.com/kslji/trackUserAddress/internal/domain/model"
	"github.com/kslji/trackUserAddress/internal/metrics"
	"github.com/kslji/trackUserAddress/internal/pipeline/scheduler"
	"github.com/kslji/trackUserAddress/internal/pipeline/syncer"
	"github.com/kslji/trackUserAddress/internal/store/postgres"
	redispkg "github.com/kslji/trackUserAddress/internal/store/redis"
	"github.com/kslji/trackUserAddress/internal/tracing"
)

const serviceName = "address-tracker"

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type dbPoolStatsGauges struct {
	open      prometheus.Gauge
	inUse     prometheus.Gauge
	idle      prometheus.Gauge
	waitCount prometheus.Gauge
}

type healthReporter interface {
	Healthy() bool
	Health() []scheduler.HealthSnapshot
}

func collectDBPoolStats(db dbStatsProvider, gauges dbPoolStatsGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return fmt.Errorf("db stats provider is nil")
	}

	stats := db.Stats()
	gauges.open.Set(float64(stats.OpenConnections))
	gauges.inUse.Set(float64(stats.InUse))
	gauges.idle.Set(float64(stats.Idle))
	gauges.waitCount.Set(float64(stats.WaitCount))
	return nil
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, intervalMS int, logger *slog.Logger) {
	if db == nil || intervalMS <= 0 {
		return
	}

	gauges := dbPoolStatsGauges{
		open:      metrics.DBPoolOpen,
		inUse:     metrics.DBPoolInUse,
		idle:      metrics.DBPoolIdle,
		waitCount: metrics.DBPoolWaitCount,
	}

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)

	go func() {
		defer ticker.Stop()

		if err := collectDBPoolStats(db, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				if err := collectDBPoolStats(db, gauges); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// buildLocker returns the configured sync-key locker and a close func.
func buildLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (syncer.KeyLocker, func(), error) {
	switch cfg.Lock.Backend {
	case config.LockBackendLocal:
		return syncer.NewLocalLocker(), func() {}, nil
	case config.LockBackendRedis:
		client, err := redispkg.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize redis locker: %w", err)
		}
		ttl := time.Duration(cfg.Lock.TTLMs) * time.Millisecond
		return redispkg.NewLocker(client, ttl, logger), func() { client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// buildAlerter returns nil when no alert channel is configured.
func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	channels := make(map[string]alert.Alerter)
	if cfg.Alert.WebhookURL != "" {
		channels["webhook"] = alert.NewWebhookAlerter(cfg.Alert.WebhookURL)
	}
	if cfg.Alert.SlackWebhookURL != "" {
		channels["slack"] = alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL)
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewMultiAlerter(time.Duration(cfg.Alert.CooldownMs)*time.Millisecond, logger, channels)
}

func buildTargets(cfg *config.Config) ([]scheduler.Target, error) {
	category, err := model.ParseCategory(cfg.Sync.WatchedCategory)
	if err != nil {
		return nil, err
	}
	direction, err := model.ParseDirection(cfg.Sync.WatchedDirection)
	if err != nil {
		return nil, err
	}
	return scheduler.Targets(cfg.Sync.WatchedAddresses, category, direction), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting address tracker",
		"watched_addresses", len(cfg.Sync.WatchedAddresses),
		"watched_category", cfg.Sync.WatchedCategory,
		"watched_direction", cfg.Sync.WatchedDirection,
		"lock_backend", cfg.Lock.Backend,
		"page_size", cfg.Sync.PageSize,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), serviceName, tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	db, err := postgres.New(postgres.Config{
		URL:                cfg.DB.URL,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetime:    cfg.DB.ConnMaxLifetime(),
		StatementTimeoutMS: cfg.DB.StatementTimeoutMS,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	locker, closeLocker, err := buildLocker(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sync locker", "error", err, "redis_url", cfg.Redis.URL)
		os.Exit(1)
	}
	defer closeLocker()

	client := alchemy.NewClient(cfg.Alchemy.Endpoint(), logger,
		alchemy.WithRateLimit(cfg.Alchemy.RateLimit, cfg.Alchemy.RateBurst),
		alchemy.WithMetadata(cfg.Sync.WithMetadata),
		alchemy.WithBreaker(alchemy.NewBreaker(circuitbreaker.Config{}, logger)),
	)
	head := alchemy.NewCachedHead(client, time.Duration(cfg.Alchemy.HeadCacheTTLMs)*time.Millisecond)

	opts := []syncer.Option{syncer.WithLogger(logger)}
	if locker != nil {
		opts = append(opts, syncer.WithLocker(locker))
	}
	syncSvc := syncer.New(
		postgres.NewCheckpointRepo(db),
		postgres.NewTransferRepo(db),
		client,
		head,
		syncer.Config{
			DefaultFromBlock: cfg.Sync.FromBlock,
			PageSize:         cfg.Sync.PageSize,
		},
		opts...,
	)

	targets, err := buildTargets(cfg)
	if err != nil {
		logger.Error("invalid watched targets", "error", err)
		os.Exit(1)
	}
	var schedOpts []scheduler.Option
	if alerter := buildAlerter(cfg, logger); alerter != nil {
		schedOpts = append(schedOpts, scheduler.WithAlerter(alerter))
	}
	sched := scheduler.New(syncSvc, targets, time.Duration(cfg.Sync.IntervalMs)*time.Millisecond, logger, schedOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, sched, logger)
	})

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	startDBPoolStatsPump(gCtx, db.DB, cfg.DB.PoolStatsIntervalMS, logger)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracker exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("tracker shut down gracefully")
}

func newHealthMux(health healthReporter, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, "ok"
		if health != nil && !health.Healthy() {
			status, body = http.StatusServiceUnavailable, "unhealthy"
		}
		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		snapshots := []scheduler.HealthSnapshot{}
		if health != nil {
			snapshots = health.Health()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshots); err != nil {
			logger.Warn("failed to write status response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runHealthServer(ctx context.Context, port int, health healthReporter, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newHealthMux(health, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
