package registry

import (
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// Module is a unit of code registered under a repository.
type Module struct {
	ModuleKey    address.Key `json:"module_key"`
	Repo         address.Key `json:"repo"`
	Authority    address.Key `json:"authority"`
	Name         string      `json:"name"`
	MetadataURI  string      `json:"metadata_uri"`
	Category     string      `json:"category"`
	Tags         string      `json:"tags"`
	IsActive     bool        `json:"is_active"`
	IsDeprecated bool        `json:"is_deprecated"`
	Version      Version     `json:"version"`
	UsageCount   uint64      `json:"usage_count"`
	LastUsedAt   *time.Time  `json:"last_used_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (m *Module) Address() address.Key { return address.Module(m.Repo, m.ModuleKey) }

// SnapshotParams requests a version snapshot alongside a register or update.
type SnapshotParams struct {
	Label        string `json:"label"`
	ChangelogURI string `json:"changelog_uri"`
	IsStable     bool   `json:"is_stable"`
}

type RegisterModuleParams struct {
	ModuleKey   address.Key     `json:"module_key"`
	Name        string          `json:"name"`
	MetadataURI string          `json:"metadata_uri"`
	Category    string          `json:"category"`
	Tags        string          `json:"tags"`
	Version     Version         `json:"version"`
	Snapshot    *SnapshotParams `json:"snapshot,omitempty"`
}

// ModuleUpdate carries the mutable module fields; nil means unchanged.
// Snapshot requires Version to be set.
type ModuleUpdate struct {
	Name         *string         `json:"name,omitempty"`
	MetadataURI  *string         `json:"metadata_uri,omitempty"`
	Category     *string         `json:"category,omitempty"`
	Tags         *string         `json:"tags,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
	IsDeprecated *bool           `json:"is_deprecated,omitempty"`
	Version      *Version        `json:"version,omitempty"`
	Snapshot     *SnapshotParams `json:"snapshot,omitempty"`
}

func (p RegisterModuleParams) validate() error {
	if p.ModuleKey.IsZero() {
		return newError(CodeValueOutOfRange, "module_key must not be zero")
	}
	if err := requireString("name", p.Name, MaxNameLen); err != nil {
		return err
	}
	if err := requireURI("metadata_uri", p.MetadataURI, MaxMetadataURILen); err != nil {
		return err
	}
	if err := requireString("category", p.Category, MaxCategoryLen); err != nil {
		return err
	}
	if err := requireMaxLen("tags", p.Tags, MaxTagsLen); err != nil {
		return err
	}
	if err := requireNonZeroVersion(p.Version); err != nil {
		return err
	}
	if p.Snapshot != nil {
		return p.Snapshot.validate()
	}
	return nil
}

func (s SnapshotParams) validate() error {
	if err := requireMaxLen("label", s.Label, MaxLabelLen); err != nil {
		return err
	}
	return optionalURI("changelog_uri", s.ChangelogURI, MaxMetadataURILen)
}

func (u ModuleUpdate) validate() error {
	if u.Name != nil {
		if err := requireString("name", *u.Name, MaxNameLen); err != nil {
			return err
		}
	}
	if u.MetadataURI != nil {
		if err := requireURI("metadata_uri", *u.MetadataURI, MaxMetadataURILen); err != nil {
			return err
		}
	}
	if u.Category != nil {
		if err := requireString("category", *u.Category, MaxCategoryLen); err != nil {
			return err
		}
	}
	if u.Tags != nil {
		if err := requireMaxLen("tags", *u.Tags, MaxTagsLen); err != nil {
			return err
		}
	}
	if u.Version != nil {
		if err := requireNonZeroVersion(*u.Version); err != nil {
			return err
		}
	}
	if u.Snapshot != nil {
		if u.Version == nil {
			return newError(CodeValueOutOfRange, "a snapshot requires a new version")
		}
		return u.Snapshot.validate()
	}
	return nil
}

// onlyLifecycleFlags reports whether u touches nothing but is_active and is_deprecated.
func (u ModuleUpdate) onlyLifecycleFlags() bool {
	return u.Name == nil && u.MetadataURI == nil && u.Category == nil &&
		u.Tags == nil && u.Version == nil && u.Snapshot == nil
}

func newModule(repo, authority address.Key, p RegisterModuleParams, now time.Time) *Module {
	return &Module{
		ModuleKey:   p.ModuleKey,
		Repo:        repo,
		Authority:   authority,
		Name:        p.Name,
		MetadataURI: p.MetadataURI,
		Category:    p.Category,
		Tags:        p.Tags,
		IsActive:    true,
		Version:     p.Version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (m *Module) apply(u ModuleUpdate, now time.Time) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.MetadataURI != nil {
		m.MetadataURI = *u.MetadataURI
	}
	if u.Category != nil {
		m.Category = *u.Category
	}
	if u.Tags != nil {
		m.Tags = *u.Tags
	}
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	if u.IsDeprecated != nil {
		m.IsDeprecated = *u.IsDeprecated
	}
	if u.Version != nil {
		m.Version = *u.Version
	}
	m.UpdatedAt = now
}

func (m *Module) AssertActive() error {
	if !m.IsActive {
		return newError(CodeModuleInactive, "module %s is inactive", m.Name)
	}
	return nil
}

func (m *Module) AssertNotDeprecated() error {
	if m.IsDeprecated {
		return newError(CodeModuleImmutable, "module %s is deprecated", m.Name)
	}
	return nil
}

// RecordUsage bumps the usage counter of an active module.
func (m *Module) RecordUsage(now time.Time) error {
	if err := m.AssertActive(); err != nil {
		return err
	}
	if err := incr(&m.UsageCount); err != nil {
		return err
	}
	m.LastUsedAt = &now
	return nil
}
