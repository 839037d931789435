package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/registry"
	"github.com/modlink/registry-engine/internal/store/memory"
)

var (
	admin = address.FromName("admin")
	alice = address.FromName("alice")
	bob   = address.FromName("bob")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx    context.Context
	engine *registry.Engine
	store  *memory.Store
	events *events.Recorder
	clock  *fakeClock
}

// newEngine returns an engine over an empty store; nothing is bootstrapped.
func newEngine(t *testing.T, opts ...registry.Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		store:  memory.New(),
		events: events.NewRecorder(),
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	base := []registry.Option{
		registry.WithPublisher(f.events),
		registry.WithClock(f.clock.Now),
	}
	f.engine = registry.New(f.store, append(base, opts...)...)
	return f
}

// newFixture returns a bootstrapped engine with fee 250 and a limit of 10 modules per repo.
func newFixture(t *testing.T, opts ...registry.Option) *fixture {
	t.Helper()
	f := newEngine(t, opts...)
	_, err := f.engine.Bootstrap(f.ctx, admin, registry.BootstrapParams{FeeBps: 250, MaxModulesPerRepo: 10})
	require.NoError(t, err)
	f.events.Reset()
	return f
}

func (f *fixture) registerRepo(t *testing.T, owner address.Key, name string) address.Key {
	t.Helper()
	repo, err := f.engine.RegisterRepo(f.ctx, owner, registry.RegisterRepoParams{
		RepoKey:          address.FromName(name),
		Name:             name,
		URL:              "https://example.com/" + name,
		AllowObservation: true,
	})
	require.NoError(t, err)
	return repo.Address()
}

func (f *fixture) registerModule(t *testing.T, owner, repo address.Key, name string, v registry.Version, snap *registry.SnapshotParams) address.Key {
	t.Helper()
	m, err := f.engine.RegisterModule(f.ctx, owner, repo, moduleParams(name, v, snap))
	require.NoError(t, err)
	return m.Address()
}

func moduleParams(name string, v registry.Version, snap *registry.SnapshotParams) registry.RegisterModuleParams {
	return registry.RegisterModuleParams{
		ModuleKey:   address.FromName(name),
		Name:        name,
		MetadataURI: "ipfs://meta/" + name,
		Category:    "networking",
		Tags:        "vpc,subnet",
		Version:     v,
		Snapshot:    snap,
	}
}

func (f *fixture) metrics(t *testing.T) *registry.Metrics {
	t.Helper()
	m, err := f.engine.Metrics(f.ctx)
	require.NoError(t, err)
	return m
}

func ptr[T any](v T) *T { return &v }

func semver(major, minor, patch uint16) registry.Version {
	return registry.Version{Major: major, Minor: minor, Patch: patch}
}
