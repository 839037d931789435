package registry

import (
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

// Config is the deployment-wide singleton controlled by the admin.
type Config struct {
	Admin             address.Key `json:"admin"`
	FeeBps            uint16      `json:"fee_bps"`
	MaxModulesPerRepo uint32      `json:"max_modules_per_repo"`
	IsActive          bool        `json:"is_active"`
	PolicyRef         address.Key `json:"policy_ref"`
	SchemaVersion     uint8       `json:"schema_version"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// ConfigUpdate carries the fields set_config may change. Nil fields are left untouched.
type ConfigUpdate struct {
	FeeBps            *uint16      `json:"fee_bps,omitempty"`
	MaxModulesPerRepo *uint32      `json:"max_modules_per_repo,omitempty"`
	IsActive          *bool        `json:"is_active,omitempty"`
	PolicyRef         *address.Key `json:"policy_ref,omitempty"`
}

func (c *Config) AssertActive() error {
	if !c.IsActive {
		return newError(CodeDeploymentInactive, "deployment is inactive")
	}
	return nil
}

func (c *Config) AssertAdmin(actor address.Key) error {
	if actor != c.Admin {
		return newError(CodeInvalidAdmin, "caller %s is not the admin", actor.Short())
	}
	return nil
}

func (u ConfigUpdate) validate() error {
	if u.FeeBps != nil {
		if err := validateFeeBps(*u.FeeBps); err != nil {
			return err
		}
	}
	if u.MaxModulesPerRepo != nil {
		if err := validateMaxModules(*u.MaxModulesPerRepo); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) apply(u ConfigUpdate, now time.Time) {
	if u.FeeBps != nil {
		c.FeeBps = *u.FeeBps
	}
	if u.MaxModulesPerRepo != nil {
		c.MaxModulesPerRepo = *u.MaxModulesPerRepo
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	if u.PolicyRef != nil {
		c.PolicyRef = *u.PolicyRef
	}
	c.UpdatedAt = now
}

// Lifecycle is the global write-enable switch.
type Lifecycle struct {
	WritesAllowed bool        `json:"writes_allowed"`
	Note          string      `json:"note,omitempty"`
	UpdatedBy     address.Key `json:"updated_by"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (l *Lifecycle) AssertWritesAllowed() error {
	if !l.WritesAllowed {
		return newError(CodeWritesDisabled, "writes are disabled")
	}
	return nil
}

// GlobalMetadata is admin-owned descriptive text for the deployment.
type GlobalMetadata struct {
	Description string      `json:"description"`
	Tags        string      `json:"tags"`
	UpdatedBy   address.Key `json:"updated_by"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// MetadataUpdate carries the fields set_metadata may change.
type MetadataUpdate struct {
	Description *string `json:"description,omitempty"`
	Tags        *string `json:"tags,omitempty"`
}

func (u MetadataUpdate) validate() error {
	if u.Description != nil {
		if err := requireMaxLen("description", *u.Description, MaxDescriptionLen); err != nil {
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
