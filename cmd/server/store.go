package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/config"
	"github.com/modlink/registry-engine/internal/db"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/registry"
	"github.com/modlink/registry-engine/internal/store"
	"github.com/modlink/registry-engine/internal/store/memory"
	"github.com/modlink/registry-engine/internal/store/postgres"
)

// openStore opens the configured record store. For postgres the pool is
// returned as well so callers can report pool stats and health. Migrations run
// when migrate is set.
func openStore(cfg *config.Config, migrate bool) (store.Store, *sqlx.DB, error) {
	switch cfg.Store.Driver {
	case "memory":
		slog.Warn("using the in-memory store; all records are lost on exit")
		return memory.New(), nil, nil
	case "postgres":
		database, err := connectDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			slog.Info("running database migrations")
			if err := db.RunMigrations(database.DB, "up"); err != nil {
				_ = database.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			if v, dirty, err := db.GetMigrationVersion(database.DB); err != nil {
				slog.Warn("failed to get migration version", "error", err)
			} else {
				slog.Info("database schema ready", "version", v, "dirty", dirty)
			}
		}
		return postgres.New(database), database, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func connectDB(cfg *config.Config) (*sqlx.DB, error) {
	slog.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"user", cfg.Database.User,
		"dbname", cfg.Database.Name,
		"sslmode", cfg.Database.SSLMode,
	)
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// openRedis returns nil when redis is disabled.
func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	slog.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}

// openPublisher builds the configured event sinks. rdb may be nil when redis is
// disabled.
func openPublisher(cfg *config.Config, rdb *redis.Client) (*events.MultiPublisher, error) {
	// a typed nil *redis.Client must not reach the interface
	var eventRedis events.RedisClient
	if rdb != nil {
		eventRedis = rdb
	}
	publisher, err := events.NewMultiPublisher(cfg.Events.Sinks(), eventRedis, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to configure event sinks: %w", err)
	}
	slog.Info("event sinks configured", "count", publisher.Len())
	return publisher, nil
}

func closePublisher(p *events.MultiPublisher) {
	if err := p.Close(); err != nil {
		slog.Error("failed to close event sinks", "error", err)
	}
}

// warnOpenPolicy flags an allow list that leaves aggregate counters writable by
// any authenticated actor.
func warnOpenPolicy(policy registry.AllowList) {
	if len(policy.Reconcilers) == 0 {
		slog.Warn("policy.reconcilers is empty; any token holder may overwrite aggregate metrics")
	}
}

// parseActor accepts a 64 character hex id, or "name:<label>" which derives a
// deterministic id from the label.
func parseActor(s string) (address.Key, error) {
	if name, ok := strings.CutPrefix(s, "name:"); ok {
		if name == "" {
			return address.Zero, fmt.Errorf("actor name must not be empty")
		}
		return address.FromName(name), nil
	}
	k, err := address.Parse(s)
	if err != nil {
		return address.Zero, fmt.Errorf("invalid actor %q: %w", s, err)
	}
	if k.IsZero() {
		return address.Zero, fmt.Errorf("actor must not be the zero id")
	}
	return k, nil
}

// bootstrapFlags are shared by the bootstrap command and serve --bootstrap-admin.
type bootstrapFlags struct {
	admin      string
	feeBps     uint16
	maxModules uint32
	policyRef  string
	adminFlag  string
}

func (f *bootstrapFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.admin, f.adminFlag, "", "admin actor (hex id or name:<label>)")
	fs.Uint16Var(&f.feeBps, "fee-bps", 0, "protocol fee in basis points (0-10000)")
	fs.Uint32Var(&f.maxModules, "max-modules-per-repo", 100, "maximum modules a repo may register")
	fs.StringVar(&f.policyRef, "policy-ref", "", "optional hex id of the governing policy record")
}

func (f *bootstrapFlags) params() (address.Key, registry.BootstrapParams, error) {
	admin, err := parseActor(f.admin)
	if err != nil {
		return address.Zero, registry.BootstrapParams{}, err
	}
	p := registry.BootstrapParams{
		Admin:             admin,
		FeeBps:            f.feeBps,
		MaxModulesPerRepo: f.maxModules,
	}
	if f.policyRef != "" {
		ref, err := address.Parse(f.policyRef)
		if err != nil {
			return address.Zero, registry.BootstrapParams{}, fmt.Errorf("invalid policy ref: %w", err)
		}
		p.PolicyRef = ref
	}
	return admin, p, nil
}
