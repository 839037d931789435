package registry

import (
	"context"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

// RegisterModule creates a module under an active repo, optionally recording
// its first version snapshot in the same transaction.
func (e *Engine) RegisterModule(ctx context.Context, actor, repoAddr address.Key, p RegisterModuleParams) (*Module, error) {
	var module *Module
	err := e.mutate(ctx, "register_module", func(t *txn) error {
		cfg, err := t.gate()
		if err != nil {
			return err
		}
		repo, err := t.repo(repoAddr)
		if err != nil {
			return err
		}
		if err := repo.AssertActive(); err != nil {
			return err
		}
		if err := repo.AssertAuthority(actor); err != nil {
			return err
		}
		if err := p.validate(); err != nil {
			return err
		}
		if repo.ModuleCount >= cfg.MaxModulesPerRepo {
			return newError(CodeModuleLimitReached, "repo %s already holds %d modules", repo.Name, repo.ModuleCount)
		}

		module = newModule(repoAddr, actor, p, t.now)
		moduleAddr := module.Address()
		if err := t.create(address.KindModule, moduleAddr, repoAddr, module); err != nil {
			return err
		}

		var snapshot *ModuleVersion
		if p.Snapshot != nil {
			if snapshot, err = t.snapshot(module, actor, *p.Snapshot); err != nil {
				return err
			}
		}

		if repo.ModuleCount, err = checkedInc32(repo.ModuleCount); err != nil {
			return err
		}
		repo.UpdatedAt = t.now
		if err := t.put(address.KindRepo, repoAddr, address.Zero, repo); err != nil {
			return err
		}
		if err := t.bumpMetrics((*Metrics).IncrementModules); err != nil {
			return err
		}

		t.emit(events.ModuleRegistered{
			Module:    moduleAddr,
			Repo:      repoAddr,
			ModuleKey: module.ModuleKey,
			Authority: actor,
			Name:      module.Name,
			Version:   module.Version.String(),
			CreatedAt: t.now,
		})
		if snapshot != nil {
			t.emit(versionRegistered(snapshot))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return module, nil
}

// UpdateModule changes module fields and optionally records a new snapshot.
// A deprecated module only accepts changes to its active and deprecated flags.
func (e *Engine) UpdateModule(ctx context.Context, actor, repoAddr, moduleAddr address.Key, u ModuleUpdate) (*Module, error) {
	var module *Module
	err := e.mutate(ctx, "update_module", func(t *txn) error {
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
		if err := repo.AssertAuthority(actor); err != nil {
			return err
		}
		if module, err = t.moduleIn(repoAddr, moduleAddr); err != nil {
			return err
		}
		if module.IsDeprecated && !u.onlyLifecycleFlags() {
			return module.AssertNotDeprecated()
		}
		if err := u.validate(); err != nil {
			return err
		}

		prevVersion, prevActive := module.Version, module.IsActive
		module.apply(u, t.now)
		if err := t.put(address.KindModule, moduleAddr, repoAddr, module); err != nil {
			return err
		}

		var snapshot *ModuleVersion
		if u.Snapshot != nil {
			if snapshot, err = t.snapshot(module, actor, *u.Snapshot); err != nil {
				return err
			}
		}

		t.emit(events.ModuleUpdated{
			Module:          moduleAddr,
			Repo:            repoAddr,
			PreviousVersion: prevVersion.String(),
			Version:         module.Version.String(),
			PreviousActive:  prevActive,
			IsActive:        module.IsActive,
			IsDeprecated:    module.IsDeprecated,
			UpdatedAt:       t.now,
		})
		if prevActive != module.IsActive {
			t.emit(events.ModuleActivationChanged{Module: moduleAddr, IsActive: module.IsActive, UpdatedAt: t.now})
		}
		if snapshot != nil {
			t.emit(versionRegistered(snapshot))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return module, nil
}

// DeprecateModuleVersion flips the status of one snapshot. It can happen once per version.
func (e *Engine) DeprecateModuleVersion(ctx context.Context, actor, repoAddr, moduleAddr address.Key, v Version) (*ModuleVersion, error) {
	var snapshot *ModuleVersion
	err := e.mutate(ctx, "deprecate_module_version", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		repo, err := t.repo(repoAddr)
		if err != nil {
			return err
		}
		if err := repo.AssertAuthority(actor); err != nil {
			return err
		}
		if _, err := t.moduleIn(repoAddr, moduleAddr); err != nil {
			return err
		}

		addr := address.ModuleVersion(moduleAddr, v.Major, v.Minor, v.Patch)
		if snapshot, err = load[ModuleVersion](t, address.KindModuleVersion, addr); err != nil {
			return err
		}
		if err := snapshot.Deprecate(t.now); err != nil {
			return err
		}
		if err := t.put(address.KindModuleVersion, addr, moduleAddr, snapshot); err != nil {
			return err
		}
		t.emit(events.ModuleVersionDeprecated{
			ModuleVersion: addr,
			Module:        moduleAddr,
			Version:       v.String(),
			DeprecatedAt:  t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RecordModuleUsage counts one use of an active module. Any actor may call it.
func (e *Engine) RecordModuleUsage(ctx context.Context, actor, moduleAddr address.Key) (*Module, error) {
	var module *Module
	err := e.mutate(ctx, "record_module_usage", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		var err error
		if module, err = t.module(moduleAddr); err != nil {
			return err
		}
		if err := module.RecordUsage(t.now); err != nil {
			return err
		}
		if err := t.put(address.KindModule, moduleAddr, module.Repo, module); err != nil {
			return err
		}
		t.emit(events.ModuleUsageRecorded{
			Module:     moduleAddr,
			Caller:     actor,
			UsageCount: module.UsageCount,
			UsedAt:     t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return module, nil
}

// snapshot records module's current version and metadata URI as an immutable version.
func (t *txn) snapshot(module *Module, actor address.Key, p SnapshotParams) (*ModuleVersion, error) {
	moduleAddr := module.Address()
	v, err := NewModuleVersion(moduleAddr, actor, module.Version, module.MetadataURI, p, t.now)
	if err != nil {
		return nil, err
	}
	if err := t.create(address.KindModuleVersion, v.Address(), moduleAddr, v); err != nil {
		return nil, err
	}
	return v, nil
}

func versionRegistered(v *ModuleVersion) events.ModuleVersionRegistered {
	return events.ModuleVersionRegistered{
		ModuleVersion: v.Address(),
		Module:        v.Module,
		Version:       v.Version.String(),
		Label:         v.Label,
		IsStable:      v.IsStable,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}
