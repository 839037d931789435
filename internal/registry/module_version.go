package registry

import (
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// ModuleVersion is an immutable snapshot of a module at one semantic version.
// Only Status changes after creation, and only once.
type ModuleVersion struct {
	Module       address.Key   `json:"module"`
	Version      Version       `json:"version"`
	MetadataURI  string        `json:"metadata_uri"`
	ChangelogURI string        `json:"changelog_uri,omitempty"`
	Label        string        `json:"label,omitempty"`
	IsStable     bool          `json:"is_stable"`
	CreatedBy    address.Key   `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	Status       VersionStatus `json:"status"`
}

// VersionStatus is the mutable part of a snapshot.
type VersionStatus struct {
	IsDeprecated bool       `json:"is_deprecated"`
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

func (v *ModuleVersion) Address() address.Key {
	return address.ModuleVersion(v.Module, v.Version.Major, v.Version.Minor, v.Version.Patch)
}

// NewModuleVersion validates and builds a snapshot.
func NewModuleVersion(module, createdBy address.Key, version Version, metadataURI string, snap SnapshotParams, now time.Time) (*ModuleVersion, error) {
	if err := requireNonZeroVersion(version); err != nil {
		return nil, err
	}
	if err := requireURI("metadata_uri", metadataURI, MaxMetadataURILen); err != nil {
		return nil, err
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &ModuleVersion{
		Module:       module,
		Version:      version,
		MetadataURI:  metadataURI,
		ChangelogURI: snap.ChangelogURI,
		Label:        snap.Label,
		IsStable:     snap.IsStable,
		CreatedBy:    createdBy,
		CreatedAt:    now,
	}, nil
}

// Deprecate marks the snapshot deprecated. It can happen once.
func (v *ModuleVersion) Deprecate(now time.Time) error {
	if v.Status.IsDeprecated {
		return newError(CodeAlreadyDeprecated, "version %s is already deprecated", v.Version)
	}
	v.Status.IsDeprecated = true
	v.Status.DeprecatedAt = &now
	return nil
}
