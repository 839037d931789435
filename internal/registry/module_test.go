package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/registry"
)

// TestRegisterModule_WithSnapshot walks a fresh deployment through its first
// repository and module.
func TestRegisterModule_WithSnapshot(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	f.events.Reset()

	m, err := f.engine.RegisterModule(f.ctx, alice, repo, moduleParams("vpc", semver(1, 0, 0), &registry.SnapshotParams{
		Label:        "initial",
		ChangelogURI: "https://example.com/CHANGELOG.md",
		IsStable:     true,
	}))
	require.NoError(t, err)

	assert.Equal(t, repo, m.Repo)
	assert.Equal(t, alice, m.Authority)
	assert.True(t, m.IsActive)
	assert.False(t, m.IsDeprecated)
	assert.Equal(t, address.Module(repo, address.FromName("vpc")), m.Address())

	r, err := f.engine.Repo(f.ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), r.ModuleCount)

	metrics := f.metrics(t)
	assert.Equal(t, uint64(1), metrics.TotalRepos)
	assert.Equal(t, uint64(1), metrics.TotalModules)

	snap, err := f.engine.ModuleVersion(f.ctx, m.Address(), semver(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta/vpc", snap.MetadataURI)
	assert.Equal(t, "initial", snap.Label)
	assert.True(t, snap.IsStable)
	assert.False(t, snap.Status.IsDeprecated)

	assert.Equal(t, []string{"module.registered", "module_version.registered"}, f.events.Names())
	reg := f.events.Envelopes()[0].Payload.(events.ModuleRegistered)
	assert.Equal(t, "1.0.0", reg.Version)
}

func TestRegisterModule_WithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	f.events.Reset()

	m := f.registerModule(t, alice, repo, "vpc", semver(0, 1, 0), nil)
	assert.Equal(t, []string{"module.registered"}, f.events.Names())

	_, err := f.engine.ModuleVersion(f.ctx, m, semver(0, 1, 0))
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegisterModule_Guards(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")

	_, err := f.engine.RegisterModule(f.ctx, bob, repo, moduleParams("vpc", semver(1, 0, 0), nil))
	assert.ErrorIs(t, err, registry.ErrInvalidAuthority)

	_, err = f.engine.RegisterModule(f.ctx, alice, address.Repo(address.FromName("nope")), moduleParams("vpc", semver(1, 0, 0), nil))
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = f.engine.RegisterModule(f.ctx, alice, repo, moduleParams("vpc", semver(0, 0, 0), nil))
	assert.ErrorIs(t, err, registry.ErrValueOutOfRange)

	p := moduleParams("vpc", semver(1, 0, 0), nil)
	p.MetadataURI = "s3://bucket/key"
	_, err = f.engine.RegisterModule(f.ctx, alice, repo, p)
	assert.ErrorIs(t, err, registry.ErrMetadataInvalid)

	p = moduleParams("vpc", semver(1, 0, 0), &registry.SnapshotParams{ChangelogURI: "file:///etc"})
	_, err = f.engine.RegisterModule(f.ctx, alice, repo, p)
	assert.ErrorIs(t, err, registry.ErrMetadataInvalid)

	f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), nil)
	_, err = f.engine.RegisterModule(f.ctx, alice, repo, moduleParams("vpc", semver(2, 0, 0), nil))
	assert.ErrorIs(t, err, registry.ErrAlreadyExists)

	assert.Equal(t, uint64(1), f.metrics(t).TotalModules)
}

func TestRegisterModule_LimitPerRepo(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SetConfig(f.ctx, admin, registry.ConfigUpdate{MaxModulesPerRepo: ptr[uint32](2)})
	require.NoError(t, err)

	repo := f.registerRepo(t, alice, "infra")
	f.registerModule(t, alice, repo, "a", semver(1, 0, 0), nil)
	f.registerModule(t, alice, repo, "b", semver(1, 0, 0), nil)

	_, err = f.engine.RegisterModule(f.ctx, alice, repo, moduleParams("c", semver(1, 0, 0), nil))
	assert.ErrorIs(t, err, registry.ErrModuleLimitReached)

	other := f.registerRepo(t, alice, "other")
	f.registerModule(t, alice, other, "c", semver(1, 0, 0), nil)
	assert.Equal(t, uint64(3), f.metrics(t).TotalModules)
}

func TestRegisterModule_SameKeyDifferentRepos(t *testing.T) {
	f := newFixture(t)
	r1 := f.registerRepo(t, alice, "r1")
	r2 := f.registerRepo(t, alice, "r2")

	m1 := f.registerModule(t, alice, r1, "vpc", semver(1, 0, 0), nil)
	m2 := f.registerModule(t, alice, r2, "vpc", semver(1, 0, 0), nil)
	assert.NotEqual(t, m1, m2)

	mods, err := f.engine.Modules(f.ctx, r1)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, r1, mods[0].Repo)
}

func TestUpdateModule_NewVersionSnapshot(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), &registry.SnapshotParams{Label: "v1"})
	f.events.Reset()
	f.clock.Advance(time.Hour)

	updated, err := f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{
		MetadataURI: ptr("ipfs://meta/vpc-v2"),
		Version:     ptr(semver(1, 1, 0)),
		Snapshot:    &registry.SnapshotParams{Label: "v1.1"},
	})
	require.NoError(t, err)
	assert.Equal(t, semver(1, 1, 0), updated.Version)
	assert.Equal(t, []string{"module.updated", "module_version.registered"}, f.events.Names())

	ev := f.events.Envelopes()[0].Payload.(events.ModuleUpdated)
	assert.Equal(t, "1.0.0", ev.PreviousVersion)
	assert.Equal(t, "1.1.0", ev.Version)

	versions, err := f.engine.ModuleVersions(f.ctx, m)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, semver(1, 1, 0), versions[0].Version, "highest version first")
	assert.Equal(t, "ipfs://meta/vpc-v2", versions[0].MetadataURI)
	assert.Equal(t, "ipfs://meta/vpc", versions[1].MetadataURI, "earlier snapshot is immutable")
}

func TestModuleVersion_UnchangedByLaterUpdates(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), &registry.SnapshotParams{
		Label:        "v1",
		ChangelogURI: "https://example.com/vpc/CHANGELOG.md",
		IsStable:     true,
	})

	before, err := f.engine.ModuleVersion(f.ctx, m, semver(1, 0, 0))
	require.NoError(t, err)

	updates := []registry.ModuleUpdate{
		{Name: ptr("vpc-core"), Category: ptr("network"), Tags: ptr("vpc"), MetadataURI: ptr("ipfs://meta/vpc-core")},
		{Version: ptr(semver(1, 1, 0)), Snapshot: &registry.SnapshotParams{Label: "v1.1"}},
		{IsActive: ptr(false)},
		{IsDeprecated: ptr(true)},
	}
	for i, u := range updates {
		f.clock.Advance(time.Hour)
		_, err := f.engine.UpdateModule(f.ctx, bob, repo, m, u)
		require.Error(t, err, "update %d by a stranger", i)
		_, err = f.engine.UpdateModule(f.ctx, alice, repo, m, u)
		require.NoError(t, err, "update %d", i)
	}

	after, err := f.engine.ModuleVersion(f.ctx, m, semver(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
	assert.Equal(t, "v1", after.Label)
	assert.Equal(t, alice, after.CreatedBy)
	assert.Equal(t, "ipfs://meta/vpc", after.MetadataURI)
}

func TestUpdateModule_DuplicateSnapshotRollsBack(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), &registry.SnapshotParams{})
	f.events.Reset()

	_, err := f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{
		MetadataURI: ptr("ipfs://meta/changed"),
		Version:     ptr(semver(1, 0, 0)),
		Snapshot:    &registry.SnapshotParams{},
	})
	assert.ErrorIs(t, err, registry.ErrAlreadyExists)

	mod, err := f.engine.Module(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta/vpc", mod.MetadataURI, "module write must roll back with the snapshot")
	assert.Empty(t, f.events.Names())
}

func TestUpdateModule_SnapshotRequiresVersion(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), nil)

	_, err := f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{Snapshot: &registry.SnapshotParams{}})
	assert.ErrorIs(t, err, registry.ErrValueOutOfRange)
}

func TestUpdateModule_Activation(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), nil)
	f.events.Reset()

	_, err := f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, []string{"module.updated", "module.activation_changed"}, f.events.Names())

	_, err = f.engine.RecordModuleUsage(f.ctx, bob, m)
	assert.ErrorIs(t, err, registry.ErrModuleInactive)
}

func TestUpdateModule_DeprecatedIsImmutable(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), nil)

	_, err := f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{IsDeprecated: ptr(true)})
	require.NoError(t, err)

	_, err = f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{Tags: ptr("new")})
	assert.ErrorIs(t, err, registry.ErrModuleImmutable)

	_, err = f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{IsDeprecated: ptr(false)})
	require.NoError(t, err, "lifecycle flags stay writable")

	_, err = f.engine.UpdateModule(f.ctx, alice, repo, m, registry.ModuleUpdate{Tags: ptr("new")})
	require.NoError(t, err)
}

func TestUpdateModule_WrongRepo(t *testing.T) {
	f := newFixture(t)
	r1 := f.registerRepo(t, alice, "r1")
	r2 := f.registerRepo(t, alice, "r2")
	m := f.registerModule(t, alice, r1, "vpc", semver(1, 0, 0), nil)

	_, err := f.engine.UpdateModule(f.ctx, alice, r2, m, registry.ModuleUpdate{Tags: ptr("x")})
	assert.ErrorIs(t, err, registry.ErrInvalidAddress)
}

func TestDeprecateModuleVersion(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), &registry.SnapshotParams{})
	f.events.Reset()

	_, err := f.engine.DeprecateModuleVersion(f.ctx, bob, repo, m, semver(1, 0, 0))
	assert.ErrorIs(t, err, registry.ErrInvalidAuthority)

	_, err = f.engine.DeprecateModuleVersion(f.ctx, alice, repo, m, semver(9, 9, 9))
	assert.ErrorIs(t, err, registry.ErrNotFound)

	v, err := f.engine.DeprecateModuleVersion(f.ctx, alice, repo, m, semver(1, 0, 0))
	require.NoError(t, err)
	assert.True(t, v.Status.IsDeprecated)
	require.NotNil(t, v.Status.DeprecatedAt)
	assert.Equal(t, f.clock.Now(), *v.Status.DeprecatedAt)

	_, err = f.engine.DeprecateModuleVersion(f.ctx, alice, repo, m, semver(1, 0, 0))
	assert.ErrorIs(t, err, registry.ErrAlreadyDeprecated)

	assert.Equal(t, []string{"module_version.deprecated"}, f.events.Names())
}

func TestRecordModuleUsage(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	m := f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), nil)
	f.events.Reset()

	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.engine.RecordModuleUsage(f.ctx, bob, m)
		require.NoError(t, err)
	}

	mod, err := f.engine.Module(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), mod.UsageCount)
	require.NotNil(t, mod.LastUsedAt)
	assert.Equal(t, f.clock.Now(), *mod.LastUsedAt)
	assert.Len(t, f.events.Names(), 3)

	_, err = f.engine.RecordModuleUsage(f.ctx, bob, address.Module(repo, address.FromName("missing")))
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestModuleVersions_RequiresAddress(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ModuleVersions(f.ctx, address.Zero)
	assert.ErrorIs(t, err, registry.ErrInvalidAddress)
	_, err = f.engine.Modules(f.ctx, address.Zero)
	assert.ErrorIs(t, err, registry.ErrInvalidAddress)
}
