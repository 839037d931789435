package registry

import (
	"context"
	"errors"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

// LinkModuleToRepo creates or refreshes the association between a module and a
// repository. Either the module's authority or the repository's authority may
// call it. Repeating the call updates the single existing link in place.
func (e *Engine) LinkModuleToRepo(ctx context.Context, actor, moduleAddr, repoAddr address.Key, p LinkParams) (*ModuleRepoLink, error) {
	var link *ModuleRepoLink
	err := e.mutate(ctx, "link_module_to_repo", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		repo, err := t.repo(repoAddr)
		if err != nil {
			return err
		}
		if err := repo.AssertActive(); err != nil {
			return err
		}
		module, err := t.module(moduleAddr)
		if err != nil {
			return err
		}
		if actor != module.Authority && actor != repo.Authority {
			return newError(CodeInvalidAuthority, "caller %s controls neither the module nor the repo", actor.Short())
		}
		if err := p.validate(); err != nil {
			return err
		}

		addr := address.Link(moduleAddr, repoAddr)
		refresh := func(l *ModuleRepoLink) {
			l.LinkedBy = actor
			l.IsPrimary = p.IsPrimary
			l.Notes = p.Notes
			l.UpdatedAt = t.now
		}

		created := false
		link, err = load[ModuleRepoLink](t, address.KindLink, addr)
		switch {
		case errors.Is(err, ErrNotFound):
			link = &ModuleRepoLink{Module: moduleAddr, Repo: repoAddr, CreatedAt: t.now}
			refresh(link)
			err = t.create(address.KindLink, addr, moduleAddr, link)
			if err == nil {
				created = true
				break
			}
			if !errors.Is(err, ErrAlreadyExists) {
				return err
			}
			// A concurrent first link committed between the lookup and the insert.
			if link, err = load[ModuleRepoLink](t, address.KindLink, addr); err != nil {
				return err
			}
			fallthrough
		case err == nil:
			refresh(link)
			if err := t.put(address.KindLink, addr, moduleAddr, link); err != nil {
				return err
			}
		default:
			return err
		}

		t.emit(events.ModuleLinkedToRepo{
			Link:      addr,
			Module:    moduleAddr,
			Repo:      repoAddr,
			LinkedBy:  actor,
			IsPrimary: link.IsPrimary,
			Created:   created,
			UpdatedAt: t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}
