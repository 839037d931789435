package registry_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/registry"
	"github.com/modlink/registry-engine/internal/store"
	"github.com/modlink/registry-engine/internal/store/memory"
)

func TestLinkModuleToRepo_Upsert(t *testing.T) {
	f := newFixture(t)
	home := f.registerRepo(t, alice, "home")
	mirror := f.registerRepo(t, bob, "mirror")
	m := f.registerModule(t, alice, home, "vpc", semver(1, 0, 0), nil)
	f.events.Reset()

	first, err := f.engine.LinkModuleToRepo(f.ctx, alice, m, mirror, registry.LinkParams{IsPrimary: false, Notes: "read-only copy"})
	require.NoError(t, err)
	created := first.CreatedAt

	f.clock.Advance(time.Hour)
	second, err := f.engine.LinkModuleToRepo(f.ctx, bob, m, mirror, registry.LinkParams{IsPrimary: true})
	require.NoError(t, err)

	assert.Equal(t, created, second.CreatedAt, "created_at is fixed on first link")
	assert.True(t, second.UpdatedAt.After(created))
	assert.True(t, second.IsPrimary)
	assert.Empty(t, second.Notes)
	assert.Equal(t, bob, second.LinkedBy)

	links, err := f.engine.Links(f.ctx, m)
	require.NoError(t, err)
	require.Len(t, links, 1, "repeated links must not create a second record")
	assert.Equal(t, address.Link(m, mirror), links[0].Address())

	envs := f.events.Envelopes()
	require.Len(t, envs, 2)
	assert.True(t, envs[0].Payload.(events.ModuleLinkedToRepo).Created)
	assert.False(t, envs[1].Payload.(events.ModuleLinkedToRepo).Created)
}

// staleLookupStore makes the first in-transaction Get of one address miss, as
// when a concurrent transaction inserts the row after this one looked for it.
type staleLookupStore struct {
	*memory.Store
	mu    sync.Mutex
	stale map[address.Key]bool
}

type staleLookupTx struct {
	store.Tx
	s *staleLookupStore
}

func (tx staleLookupTx) Get(ctx context.Context, addr address.Key) (*store.Record, error) {
	tx.s.mu.Lock()
	miss := tx.s.stale[addr]
	delete(tx.s.stale, addr)
	tx.s.mu.Unlock()
	if miss {
		return nil, store.ErrNotFound
	}
	return tx.Tx.Get(ctx, addr)
}

func (s *staleLookupStore) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, staleLookupTx{Tx: tx, s: s})
	})
}

func TestLinkModuleToRepo_ConcurrentFirstLink(t *testing.T) {
	f := newFixture(t)
	home := f.registerRepo(t, alice, "home")
	mirror := f.registerRepo(t, bob, "mirror")
	m := f.registerModule(t, alice, home, "vpc", semver(1, 0, 0), nil)

	first, err := f.engine.LinkModuleToRepo(f.ctx, alice, m, mirror, registry.LinkParams{Notes: "first"})
	require.NoError(t, err)
	f.events.Reset()
	f.clock.Advance(time.Minute)

	racing := &staleLookupStore{Store: f.store, stale: map[address.Key]bool{address.Link(m, mirror): true}}
	engine := registry.New(racing, registry.WithPublisher(f.events), registry.WithClock(f.clock.Now))

	second, err := engine.LinkModuleToRepo(f.ctx, bob, m, mirror, registry.LinkParams{IsPrimary: true, Notes: "second"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "second", second.Notes)
	assert.True(t, second.IsPrimary)
	assert.Equal(t, bob, second.LinkedBy)

	links, err := f.engine.Links(f.ctx, m)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "second", links[0].Notes)

	envs := f.events.Envelopes()
	require.Len(t, envs, 1)
	assert.False(t, envs[0].Payload.(events.ModuleLinkedToRepo).Created)
}

func TestLinkModuleToRepo_Guards(t *testing.T) {
	f := newFixture(t)
	home := f.registerRepo(t, alice, "home")
	target := f.registerRepo(t, alice, "target")
	m := f.registerModule(t, alice, home, "vpc", semver(1, 0, 0), nil)

	_, err := f.engine.LinkModuleToRepo(f.ctx, bob, m, target, registry.LinkParams{})
	assert.ErrorIs(t, err, registry.ErrInvalidAuthority)

	_, err = f.engine.LinkModuleToRepo(f.ctx, alice, m, target, registry.LinkParams{Notes: strings.Repeat("n", registry.MaxNotesLen+1)})
	assert.ErrorIs(t, err, registry.ErrStringTooLong)

	_, err = f.engine.LinkModuleToRepo(f.ctx, alice, address.Module(home, address.FromName("ghost")), target, registry.LinkParams{})
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = f.engine.UpdateRepo(f.ctx, alice, target, registry.RepoUpdate{IsActive: ptr(false)})
	require.NoError(t, err)
	_, err = f.engine.LinkModuleToRepo(f.ctx, alice, m, target, registry.LinkParams{})
	assert.ErrorIs(t, err, registry.ErrRepoInactive)

	_, err = f.engine.Link(f.ctx, m, target)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestLinks_RequiresModule(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Links(f.ctx, address.Zero)
	assert.ErrorIs(t, err, registry.ErrInvalidAddress)
}
