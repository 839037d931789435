package registry

import (
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// Fork is a derivative lineage record. A zero Parent marks a root fork.
type Fork struct {
	ForkKey     address.Key `json:"fork_key"`
	Parent      address.Key `json:"parent"`
	Owner       address.Key `json:"owner"`
	Label       string      `json:"label"`
	MetadataURI string      `json:"metadata_uri,omitempty"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (f *Fork) Address() address.Key { return address.Fork(f.ForkKey) }

func (f *Fork) IsRoot() bool { return f.Parent.IsZero() }

type CreateForkParams struct {
	ForkKey     address.Key `json:"fork_key"`
	Parent      address.Key `json:"parent"`
	Label       string      `json:"label"`
	MetadataURI string      `json:"metadata_uri"`
}

// ForkUpdate carries the mutable fork fields; nil means unchanged.
type ForkUpdate struct {
	IsActive    *bool   `json:"is_active,omitempty"`
	Label       *string `json:"label,omitempty"`
	MetadataURI *string `json:"metadata_uri,omitempty"`
}

func (p CreateForkParams) validate() error {
	if p.ForkKey.IsZero() {
		return newError(CodeValueOutOfRange, "fork_key must not be zero")
	}
	if err := requireString("label", p.Label, MaxLabelLen); err != nil {
		return err
	}
	return optionalURI("metadata_uri", p.MetadataURI, MaxMetadataURILen)
}

func (u ForkUpdate) validate() error {
	if u.Label != nil {
		if err := requireString("label", *u.Label, MaxLabelLen); err != nil {
			return err
		}
	}
	if u.MetadataURI != nil {
		if err := optionalURI("metadata_uri", *u.MetadataURI, MaxMetadataURILen); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fork) apply(u ForkUpdate, now time.Time) {
	if u.IsActive != nil {
		f.IsActive = *u.IsActive
	}
	if u.Label != nil {
		f.Label = *u.Label
	}
	if u.MetadataURI != nil {
		f.MetadataURI = *u.MetadataURI
	}
	f.UpdatedAt = now
}

func (f *Fork) AssertOwner(actor address.Key) error {
	if actor != f.Owner {
		return newError(CodeInvalidAuthority, "caller %s does not own fork %s", actor.Short(), f.Label)
	}
	return nil
}
