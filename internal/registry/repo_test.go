package registry_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/registry"
)

func TestRegisterRepo(t *testing.T) {
	f := newFixture(t)

	repo, err := f.engine.RegisterRepo(f.ctx, alice, registry.RegisterRepoParams{
		RepoKey: address.FromName("infra"),
		Name:    "infra",
		URL:     "https://git.example.com/infra",
		Tags:    "terraform",
	})
	require.NoError(t, err)

	assert.Equal(t, alice, repo.Authority)
	assert.True(t, repo.IsActive)
	assert.False(t, repo.AllowObservation)
	assert.Equal(t, address.Repo(address.FromName("infra")), repo.Address())

	stored, err := f.engine.Repo(f.ctx, repo.Address())
	require.NoError(t, err)
	assert.Equal(t, "infra", stored.Name)
	assert.Equal(t, uint64(1), f.metrics(t).TotalRepos)

	envs := f.events.Envelopes()
	require.Len(t, envs, 1)
	ev := envs[0].Payload.(events.RepoRegistered)
	assert.Equal(t, repo.Address(), ev.Repo)
	assert.Equal(t, alice, ev.Owner)
}

func TestRegisterRepo_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.registerRepo(t, alice, "infra")
	f.events.Reset()

	_, err := f.engine.RegisterRepo(f.ctx, bob, registry.RegisterRepoParams{
		RepoKey: address.FromName("infra"), Name: "other", URL: "https://example.com/other",
	})
	assert.ErrorIs(t, err, registry.ErrAlreadyExists)
	assert.Equal(t, registry.ClassStructural, registry.ClassOf(err))
	assert.Equal(t, uint64(1), f.metrics(t).TotalRepos)
	assert.Empty(t, f.events.Names())
}

func TestRegisterRepo_Validation(t *testing.T) {
	base := registry.RegisterRepoParams{
		RepoKey: address.FromName("r"), Name: "r", URL: "https://example.com/r",
	}
	cases := []struct {
		name   string
		mutate func(p *registry.RegisterRepoParams)
		want   error
	}{
		{"zero key", func(p *registry.RegisterRepoParams) { p.RepoKey = address.Zero }, registry.ErrValueOutOfRange},
		{"empty name", func(p *registry.RegisterRepoParams) { p.Name = "" }, registry.ErrStringEmpty},
		{"long name", func(p *registry.RegisterRepoParams) { p.Name = strings.Repeat("n", registry.MaxNameLen+1) }, registry.ErrStringTooLong},
		{"empty url", func(p *registry.RegisterRepoParams) { p.URL = "" }, registry.ErrStringEmpty},
		{"long url", func(p *registry.RegisterRepoParams) { p.URL = "https://" + strings.Repeat("u", registry.MaxURLLen) }, registry.ErrStringTooLong},
		{"long tags", func(p *registry.RegisterRepoParams) { p.Tags = strings.Repeat("t", registry.MaxTagsLen+1) }, registry.ErrStringTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p := base
			tc.mutate(&p)
			_, err := f.engine.RegisterRepo(f.ctx, alice, p)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, uint64(0), f.metrics(t).TotalRepos)
		})
	}
}

func TestRegisterRepo_AnyURLForm(t *testing.T) {
	for _, url := range []string{
		"git@github.com:org/repo.git",
		"ssh://git@git.example.com/infra.git",
		"ftp://mirror.example.com/infra",
		strings.Repeat("u", registry.MaxURLLen),
	} {
		t.Run(url[:min(len(url), 24)], func(t *testing.T) {
			f := newFixture(t)
			repo, err := f.engine.RegisterRepo(f.ctx, alice, registry.RegisterRepoParams{
				RepoKey: address.FromName("r"), Name: "r", URL: url,
			})
			require.NoError(t, err)
			assert.Equal(t, url, repo.URL)

			updated, err := f.engine.UpdateRepo(f.ctx, alice, repo.Address(), registry.RepoUpdate{URL: ptr("git@gitlab.com:org/other.git")})
			require.NoError(t, err)
			assert.Equal(t, "git@gitlab.com:org/other.git", updated.URL)
		})
	}
}

func TestRegisterRepo_NameAtLimit(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RegisterRepo(f.ctx, alice, registry.RegisterRepoParams{
		RepoKey: address.FromName("r"),
		Name:    strings.Repeat("n", registry.MaxNameLen),
		URL:     "ar://tx-id",
	})
	require.NoError(t, err)
}

func TestUpdateRepo(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	f.events.Reset()

	_, err := f.engine.UpdateRepo(f.ctx, bob, repo, registry.RepoUpdate{Tags: ptr("x")})
	assert.ErrorIs(t, err, registry.ErrInvalidAuthority)

	_, err = f.engine.UpdateRepo(f.ctx, alice, address.Repo(address.FromName("missing")), registry.RepoUpdate{})
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = f.engine.UpdateRepo(f.ctx, alice, repo, registry.RepoUpdate{URL: ptr("")})
	assert.ErrorIs(t, err, registry.ErrStringEmpty)

	updated, err := f.engine.UpdateRepo(f.ctx, alice, repo, registry.RepoUpdate{
		URL:  ptr("https://git.example.com/infra2"),
		Tags: ptr("aws"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://git.example.com/infra2", updated.URL)
	assert.Equal(t, "aws", updated.Tags)
	assert.Equal(t, "infra", updated.Name)
	assert.Equal(t, []string{"repo.updated"}, f.events.Names(), "no activation event without a flip")
}

func TestUpdateRepo_DeactivateBlocksModules(t *testing.T) {
	f := newFixture(t)
	repo := f.registerRepo(t, alice, "infra")
	f.events.Reset()

	updated, err := f.engine.UpdateRepo(f.ctx, alice, repo, registry.RepoUpdate{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{"repo.updated", "repo.activation_changed"}, f.events.Names())

	_, err = f.engine.RegisterModule(f.ctx, alice, repo, moduleParams("vpc", semver(1, 0, 0), nil))
	assert.ErrorIs(t, err, registry.ErrRepoInactive)
	assert.Equal(t, uint64(0), f.metrics(t).TotalModules)

	// inactive repos can still be reactivated by their authority
	_, err = f.engine.UpdateRepo(f.ctx, alice, repo, registry.RepoUpdate{IsActive: ptr(true)})
	require.NoError(t, err)
	f.registerModule(t, alice, repo, "vpc", semver(1, 0, 0), nil)
}

func TestRepos_Listing(t *testing.T) {
	f := newFixture(t)
	f.registerRepo(t, alice, "a")
	f.registerRepo(t, bob, "b")

	repos, err := f.engine.Repos(f.ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 2)
}
