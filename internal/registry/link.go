package registry

import (
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// ModuleRepoLink associates a module with a repository other than (or in
// addition to) the one it was registered under.
type ModuleRepoLink struct {
	Module    address.Key `json:"module"`
	Repo      address.Key `json:"repo"`
	LinkedBy  address.Key `json:"linked_by"`
	IsPrimary bool        `json:"is_primary"`
	Notes     string      `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (l *ModuleRepoLink) Address() address.Key { return address.Link(l.Module, l.Repo) }

type LinkParams struct {
	IsPrimary bool   `json:"is_primary"`
	Notes     string `json:"notes"`
}

func (p LinkParams) validate() error {
	return requireMaxLen("notes", p.Notes, MaxNotesLen)
}
