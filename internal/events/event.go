// Package events defines the notifications the registry emits after a state
// change commits, and the publishers that deliver them to external consumers.
package events

import (
	"context"
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// Event is implemented by every notification type.
type Event interface {
	EventName() string
}

type ConfigUpdated struct {
	Admin             address.Key `json:"admin"`
	FeeBps            uint16      `json:"fee_bps"`
	MaxModulesPerRepo uint32      `json:"max_modules_per_repo"`
	IsActive          bool        `json:"is_active"`
	PolicyRef         address.Key `json:"policy_ref"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

type AdminRotated struct {
	PreviousAdmin address.Key `json:"previous_admin"`
	Admin         address.Key `json:"admin"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type LifecycleStateChanged struct {
	WritesAllowed bool        `json:"writes_allowed"`
	Note          string      `json:"note,omitempty"`
	UpdatedBy     address.Key `json:"updated_by"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type GlobalMetadataUpdated struct {
	Admin              address.Key `json:"admin"`
	DescriptionPreview string      `json:"description_preview"`
	TagsPreview        string      `json:"tags_preview"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type RepoRegistered struct {
	Repo      address.Key `json:"repo"`
	RepoKey   address.Key `json:"repo_key"`
	Owner     address.Key `json:"owner"`
	Name      string      `json:"name"`
	URL       string      `json:"url"`
	CreatedAt time.Time   `json:"created_at"`
}

type RepoUpdated struct {
	Repo             address.Key `json:"repo"`
	Authority        address.Key `json:"authority"`
	URL              string      `json:"url"`
	IsActive         bool        `json:"is_active"`
	AllowObservation bool        `json:"allow_observation"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type RepoActivationChanged struct {
	Repo      address.Key `json:"repo"`
	IsActive  bool        `json:"is_active"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ModuleRegistered struct {
	Module    address.Key `json:"module"`
	Repo      address.Key `json:"repo"`
	ModuleKey address.Key `json:"module_key"`
	Authority address.Key `json:"authority"`
	Name      string      `json:"name"`
	Version   string      `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
}

type ModuleUpdated struct {
	Module          address.Key `json:"module"`
	Repo            address.Key `json:"repo"`
	PreviousVersion string      `json:"previous_version"`
	Version         string      `json:"version"`
	PreviousActive  bool        `json:"previous_active"`
	IsActive        bool        `json:"is_active"`
	IsDeprecated    bool        `json:"is_deprecated"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type ModuleActivationChanged struct {
	Module    address.Key `json:"module"`
	IsActive  bool        `json:"is_active"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ModuleVersionRegistered struct {
	ModuleVersion address.Key `json:"module_version"`
	Module        address.Key `json:"module"`
	Version       string      `json:"version"`
	Label         string      `json:"label,omitempty"`
	IsStable      bool        `json:"is_stable"`
	CreatedBy     address.Key `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
}

type ModuleVersionDeprecated struct {
	ModuleVersion address.Key `json:"module_version"`
	Module        address.Key `json:"module"`
	Version       string      `json:"version"`
	DeprecatedAt  time.Time   `json:"deprecated_at"`
}

type ModuleUsageRecorded struct {
	Module     address.Key `json:"module"`
	Caller     address.Key `json:"caller"`
	UsageCount uint64      `json:"usage_count"`
	UsedAt     time.Time   `json:"used_at"`
}

type ModuleLinkedToRepo struct {
	Link      address.Key `json:"link"`
	Module    address.Key `json:"module"`
	Repo      address.Key `json:"repo"`
	LinkedBy  address.Key `json:"linked_by"`
	IsPrimary bool        `json:"is_primary"`
	Created   bool        `json:"created"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ForkCreated struct {
	Fork      address.Key `json:"fork"`
	ForkKey   address.Key `json:"fork_key"`
	Parent    address.Key `json:"parent"`
	Owner     address.Key `json:"owner"`
	Label     string      `json:"label"`
	CreatedAt time.Time   `json:"created_at"`
}

type ForkStateUpdated struct {
	Fork      address.Key `json:"fork"`
	IsActive  bool        `json:"is_active"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ForkActivationChanged struct {
	Fork      address.Key `json:"fork"`
	IsActive  bool        `json:"is_active"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ForkOwnerChanged struct {
	Fork          address.Key `json:"fork"`
	PreviousOwner address.Key `json:"previous_owner"`
	Owner         address.Key `json:"owner"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type ObservationRecorded struct {
	Repo           address.Key `json:"repo"`
	Observer       address.Key `json:"observer"`
	LinesOfCode    uint64      `json:"lines_of_code"`
	FilesProcessed uint32      `json:"files_processed"`
	ObservedAt     time.Time   `json:"observed_at"`
}

type MetricsUpdated struct {
	UpdatedBy           address.Key `json:"updated_by"`
	TotalRepos          uint64      `json:"total_repos"`
	TotalModules        uint64      `json:"total_modules"`
	TotalForks          uint64      `json:"total_forks"`
	TotalObservations   uint64      `json:"total_observations"`
	TotalLinesOfCode    uint64      `json:"total_lines_of_code"`
	TotalFilesProcessed uint64      `json:"total_files_processed"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func (ConfigUpdated) EventName() string           { return "config.updated" }
func (AdminRotated) EventName() string            { return "config.admin_rotated" }
func (LifecycleStateChanged) EventName() string   { return "lifecycle.state_changed" }
func (GlobalMetadataUpdated) EventName() string   { return "metadata.updated" }
func (RepoRegistered) EventName() string          { return "repo.registered" }
func (RepoUpdated) EventName() string             { return "repo.updated" }
func (RepoActivationChanged) EventName() string   { return "repo.activation_changed" }
func (ModuleRegistered) EventName() string        { return "module.registered" }
func (ModuleUpdated) EventName() string           { return "module.updated" }
func (ModuleActivationChanged) EventName() string { return "module.activation_changed" }
func (ModuleVersionRegistered) EventName() string { return "module_version.registered" }
func (ModuleVersionDeprecated) EventName() string { return "module_version.deprecated" }
func (ModuleUsageRecorded) EventName() string     { return "module.usage_recorded" }
func (ModuleLinkedToRepo) EventName() string      { return "link.upserted" }
func (ForkCreated) EventName() string             { return "fork.created" }
func (ForkStateUpdated) EventName() string        { return "fork.state_updated" }
func (ForkActivationChanged) EventName() string   { return "fork.activation_changed" }
func (ForkOwnerChanged) EventName() string        { return "fork.owner_changed" }
func (ObservationRecorded) EventName() string     { return "metrics.observation_recorded" }
func (MetricsUpdated) EventName() string          { return "metrics.updated" }

// Envelope is the wire form delivered to external sinks.
type Envelope struct {
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
	Payload    Event     `json:"payload"`
}

type requestIDKey struct{}

// WithRequestID attaches a request ID that Wrap copies into envelopes.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID stored by WithRequestID, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Wrap builds the envelope for ev.
func Wrap(ctx context.Context, ev Event, now time.Time) Envelope {
	return Envelope{
		Name:       ev.EventName(),
		OccurredAt: now.UTC(),
		RequestID:  RequestIDFrom(ctx),
		Payload:    ev,
	}
}
