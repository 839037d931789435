package registry

import (
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// Repo is a registered source repository.
type Repo struct {
	RepoKey          address.Key `json:"repo_key"`
	Authority        address.Key `json:"authority"`
	Name             string      `json:"name"`
	URL              string      `json:"url"`
	Tags             string      `json:"tags"`
	IsActive         bool        `json:"is_active"`
	AllowObservation bool        `json:"allow_observation"`
	ModuleCount      uint32      `json:"module_count"`
	SchemaVersion    uint8       `json:"schema_version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Address is the derived record address.
func (r *Repo) Address() address.Key { return address.Repo(r.RepoKey) }

type RegisterRepoParams struct {
	RepoKey          address.Key `json:"repo_key"`
	Name             string      `json:"name"`
	URL              string      `json:"url"`
	Tags             string      `json:"tags"`
	AllowObservation bool        `json:"allow_observation"`
}

// RepoUpdate carries the mutable repo fields; nil means unchanged.
type RepoUpdate struct {
	Name             *string `json:"name,omitempty"`
	URL              *string `json:"url,omitempty"`
	Tags             *string `json:"tags,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
	AllowObservation *bool   `json:"allow_observation,omitempty"`
}

func (p RegisterRepoParams) validate() error {
	if p.RepoKey.IsZero() {
		return newError(CodeValueOutOfRange, "repo_key must not be zero")
	}
	if err := requireString("name", p.Name, MaxNameLen); err != nil {
		return err
	}
	if err := requireString("url", p.URL, MaxURLLen); err != nil {
		return err
	}
	return requireMaxLen("tags", p.Tags, MaxTagsLen)
}

func (u RepoUpdate) validate() error {
	if u.Name != nil {
		if err := requireString("name", *u.Name, MaxNameLen); err != nil {
			return err
		}
	}
	if u.URL != nil {
		if err := requireString("url", *u.URL, MaxURLLen); err != nil {
			return err
		}
	}
	if u.Tags != nil {
		if err := requireMaxLen("tags", *u.Tags, MaxTagsLen); err != nil {
			return err
		}
	}
	return nil
}

func newRepo(authority address.Key, p RegisterRepoParams, now time.Time) *Repo {
	return &Repo{
		RepoKey:          p.RepoKey,
		Authority:        authority,
		Name:             p.Name,
		URL:              p.URL,
		Tags:             p.Tags,
		IsActive:         true,
		AllowObservation: p.AllowObservation,
		SchemaVersion:    SchemaVersion,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (r *Repo) apply(u RepoUpdate, now time.Time) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.URL != nil {
		r.URL = *u.URL
	}
	if u.Tags != nil {
		r.Tags = *u.Tags
	}
	if u.IsActive != nil {
		r.IsActive = *u.IsActive
	}
	if u.AllowObservation != nil {
		r.AllowObservation = *u.AllowObservation
	}
	r.UpdatedAt = now
}

func (r *Repo) AssertActive() error {
	if !r.IsActive {
		return newError(CodeRepoInactive, "repo %s is inactive", r.Name)
	}
	return nil
}

func (r *Repo) AssertAuthority(actor address.Key) error {
	if actor != r.Authority {
		return newError(CodeInvalidAuthority, "caller %s is not the authority of repo %s", actor.Short(), r.Name)
	}
	return nil
}
