package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/modlink/registry-engine/internal/api"
	"github.com/modlink/registry-engine/internal/auth"
	"github.com/modlink/registry-engine/internal/config"
	"github.com/modlink/registry-engine/internal/jobs"
	"github.com/modlink/registry-engine/internal/middleware"
	"github.com/modlink/registry-engine/internal/registry"
	"github.com/modlink/registry-engine/internal/safego"
	"github.com/modlink/registry-engine/internal/telemetry"
)

type serveOptions struct {
	bootstrap bootstrapFlags
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{bootstrap: bootstrapFlags{adminFlag: "bootstrap-admin"}}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: "Run the HTTP API server. With --bootstrap-admin the deployment is " +
			"bootstrapped on startup unless it already is, which is the only way to " +
			"bootstrap the in-memory store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bootstrap.register(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	watcher, err := config.LoadAndWatch(configPath, onConfigReload)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := watcher.Current()

	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, database, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	var healthCheck func(ctx context.Context) error
	if database != nil {
		healthCheck = database.PingContext
		// Begin exporting DB pool statistics to Prometheus.
		telemetry.StartDBStatsCollector(ctx, database.DB)
	}

	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	publisher, err := openPublisher(cfg, rdb)
	if err != nil {
		return err
	}
	defer closePublisher(publisher)

	policy, err := cfg.Policy.AllowList()
	if err != nil {
		return err
	}
	warnOpenPolicy(policy)
	engine := registry.New(st,
		registry.WithPublisher(publisher),
		registry.WithPolicy(policy),
		registry.WithObservationLimits(cfg.Limits.ObservationLimits()),
		registry.WithLogger(slog.Default()),
	)

	if opts.bootstrap.admin != "" {
		if err := bootstrapOnStart(ctx, engine, &opts.bootstrap); err != nil {
			return err
		}
	}

	limiter, stopLimiter := newLimiter(cfg.Security.RateLimiting, rdb)
	defer stopLimiter()

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	var reconciler *jobs.MetricsReconciler
	if cfg.Jobs.Reconcile.Enabled {
		actor, err := cfg.Jobs.Reconcile.ActorKey()
		if err != nil {
			return err
		}
		reconciler = jobs.NewMetricsReconciler(engine, actor, cfg.Jobs.Reconcile.Interval)
		reconciler.Start(ctx)
	}

	router := api.NewRouter(api.Options{
		Engine:      engine,
		Limiter:     limiter,
		Headers: &middleware.HeaderPolicy{
			HSTSMaxAge:        cfg.Security.Headers.HSTSMaxAge,
			IncludeSubdomains: cfg.Security.Headers.IncludeSubdomains,
		},
		HealthCheck: healthCheck,
		Version:     version,
	})

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	safego.Go("http-server", func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"store", cfg.Store.Driver,
			"rate_limiting", cfg.Security.RateLimiting.Enabled,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	})

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if reconciler != nil {
		reconciler.Stop()
	}

	slog.Info("server stopped gracefully")
	return nil
}

// onConfigReload applies the settings that can change without a restart.
func onConfigReload(old, updated *config.Config) {
	if old.Logging.Level != updated.Logging.Level {
		telemetry.SetLogLevel(updated.Logging.Level)
	}
	if old.Server != updated.Server || old.Store != updated.Store || old.Database != updated.Database {
		slog.Warn("server, store or database settings changed; restart to apply")
	}
}

func bootstrapOnStart(ctx context.Context, engine *registry.Engine, flags *bootstrapFlags) error {
	deployer, params, err := flags.params()
	if err != nil {
		return fmt.Errorf("invalid bootstrap flags: %w", err)
	}
	cfg, err := engine.Bootstrap(ctx, deployer, params)
	switch {
	case errors.Is(err, registry.ErrAlreadyExists):
		slog.Info("deployment already bootstrapped, skipping")
		return nil
	case err != nil:
		return fmt.Errorf("failed to bootstrap deployment: %w", err)
	}
	slog.Info("deployment bootstrapped", "admin", cfg.Admin, "fee_bps", cfg.FeeBps, "max_modules_per_repo", cfg.MaxModulesPerRepo)
	return nil
}

// newLimiter returns the configured limiter and a func that releases it. A nil
// limiter disables rate limiting.
func newLimiter(cfg config.RateLimitingConfig, rdb *redis.Client) (middleware.Limiter, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	rlCfg := middleware.DefaultRateLimitConfig()
	rlCfg.RequestsPerMinute = cfg.RequestsPerMinute
	if cfg.Burst > 0 {
		rlCfg.BurstSize = cfg.Burst
	}

	if cfg.Backend == "redis" && rdb != nil {
		slog.Info("rate limiting backed by redis", "requests_per_minute", rlCfg.RequestsPerMinute, "burst", rlCfg.BurstSize)
		return middleware.NewRedisLimiter(rdb, rlCfg), func() {}
	}
	rl := middleware.NewRateLimiter(rlCfg)
	slog.Info("rate limiting in memory", "requests_per_minute", rlCfg.RequestsPerMinute, "burst", rlCfg.BurstSize)
	return rl, rl.Stop
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	safego.Go("metrics-server", func() {
		slog.Info("starting Prometheus metrics server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	})
	return srv
}
