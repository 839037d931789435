package registry

import (
	"context"

	"github.com/modlink/registry-engine/internal/address"
)

func (e *Engine) Config(ctx context.Context) (*Config, error) {
	cfg, err := read[Config](ctx, e.store, address.KindConfig, address.Config())
	return cfg, notBootstrapped(err)
}

func (e *Engine) Lifecycle(ctx context.Context) (*Lifecycle, error) {
	lc, err := read[Lifecycle](ctx, e.store, address.KindLifecycle, address.Lifecycle())
	return lc, notBootstrapped(err)
}

func (e *Engine) Metrics(ctx context.Context) (*Metrics, error) {
	m, err := read[Metrics](ctx, e.store, address.KindMetrics, address.Metrics())
	return m, notBootstrapped(err)
}

// Metadata returns NotFound until SetMetadata has been called once.
func (e *Engine) Metadata(ctx context.Context) (*GlobalMetadata, error) {
	return read[GlobalMetadata](ctx, e.store, address.KindGlobalMetadata, address.GlobalMetadata())
}

func (e *Engine) Repo(ctx context.Context, addr address.Key) (*Repo, error) {
	return read[Repo](ctx, e.store, address.KindRepo, addr)
}

func (e *Engine) Repos(ctx context.Context) ([]*Repo, error) {
	return readAll[Repo](ctx, e.store, address.KindRepo, address.Zero)
}

func (e *Engine) Module(ctx context.Context, addr address.Key) (*Module, error) {
	return read[Module](ctx, e.store, address.KindModule, addr)
}

// Modules lists the modules registered under repo.
func (e *Engine) Modules(ctx context.Context, repo address.Key) ([]*Module, error) {
	if repo.IsZero() {
		return nil, newError(CodeInvalidAddress, "repo address is required")
	}
	return readAll[Module](ctx, e.store, address.KindModule, repo)
}

func (e *Engine) ModuleVersion(ctx context.Context, module address.Key, v Version) (*ModuleVersion, error) {
	addr := address.ModuleVersion(module, v.Major, v.Minor, v.Patch)
	return read[ModuleVersion](ctx, e.store, address.KindModuleVersion, addr)
}

// ModuleVersions lists every snapshot of module, highest version first.
func (e *Engine) ModuleVersions(ctx context.Context, module address.Key) ([]*ModuleVersion, error) {
	if module.IsZero() {
		return nil, newError(CodeInvalidAddress, "module address is required")
	}
	vs, err := readAll[ModuleVersion](ctx, e.store, address.KindModuleVersion, module)
	if err != nil {
		return nil, err
	}
	sortVersionsDesc(vs)
	return vs, nil
}

func (e *Engine) Link(ctx context.Context, module, repo address.Key) (*ModuleRepoLink, error) {
	return read[ModuleRepoLink](ctx, e.store, address.KindLink, address.Link(module, repo))
}

// Links lists the repositories module is linked to.
func (e *Engine) Links(ctx context.Context, module address.Key) ([]*ModuleRepoLink, error) {
	if module.IsZero() {
		return nil, newError(CodeInvalidAddress, "module address is required")
	}
	return readAll[ModuleRepoLink](ctx, e.store, address.KindLink, module)
}

func (e *Engine) Fork(ctx context.Context, addr address.Key) (*Fork, error) {
	return read[Fork](ctx, e.store, address.KindFork, addr)
}

// Forks lists forks whose parent is parent, or every fork when parent is zero.
func (e *Engine) Forks(ctx context.Context, parent address.Key) ([]*Fork, error) {
	return readAll[Fork](ctx, e.store, address.KindFork, parent)
}

// RecordCounts reports how many records of each kind the store holds.
func (e *Engine) RecordCounts(ctx context.Context) (map[address.Kind]int64, error) {
	counts, err := e.store.Count(ctx)
	if err != nil {
		return nil, internalError("failed to count records", err)
	}
	return counts, nil
}
