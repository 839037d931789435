package registry

import (
	"context"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

// RegisterRepo creates a repository owned by actor.
func (e *Engine) RegisterRepo(ctx context.Context, actor address.Key, p RegisterRepoParams) (*Repo, error) {
	var repo *Repo
	err := e.mutate(ctx, "register_repo", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		if err := p.validate(); err != nil {
			return err
		}

		repo = newRepo(actor, p, t.now)
		addr := repo.Address()
		if err := t.create(address.KindRepo, addr, address.Zero, repo); err != nil {
			return err
		}
		if err := t.bumpMetrics((*Metrics).IncrementRepos); err != nil {
			return err
		}

		t.emit(events.RepoRegistered{
			Repo:      addr,
			RepoKey:   repo.RepoKey,
			Owner:     actor,
			Name:      repo.Name,
			URL:       repo.URL,
			CreatedAt: t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// UpdateRepo changes repository fields. Only the authority may call it, and it
// works on inactive repos so they can be reactivated.
func (e *Engine) UpdateRepo(ctx context.Context, actor, repoAddr address.Key, u RepoUpdate) (*Repo, error) {
	var repo *Repo
	err := e.mutate(ctx, "update_repo", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		var err error
		if repo, err = t.repo(repoAddr); err != nil {
			return err
		}
		if err := repo.AssertAuthority(actor); err != nil {
			return err
		}
		if err := u.validate(); err != nil {
			return err
		}

		wasActive := repo.IsActive
		repo.apply(u, t.now)
		if err := t.put(address.KindRepo, repoAddr, address.Zero, repo); err != nil {
			return err
		}

		t.emit(events.RepoUpdated{
			Repo:             repoAddr,
			Authority:        repo.Authority,
			URL:              repo.URL,
			IsActive:         repo.IsActive,
			AllowObservation: repo.AllowObservation,
			UpdatedAt:        t.now,
		})
		if wasActive != repo.IsActive {
			t.emit(events.RepoActivationChanged{Repo: repoAddr, IsActive: repo.IsActive, UpdatedAt: t.now})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}
