package registry

import (
	"context"
	"errors"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

// BootstrapParams seeds the singleton records. A zero Admin defaults to the deployer.
type BootstrapParams struct {
	Admin             address.Key `json:"admin"`
	FeeBps            uint16      `json:"fee_bps"`
	MaxModulesPerRepo uint32      `json:"max_modules_per_repo"`
	PolicyRef         address.Key `json:"policy_ref"`
}

// Bootstrap creates Config, Lifecycle and Metrics. It succeeds exactly once.
func (e *Engine) Bootstrap(ctx context.Context, deployer address.Key, p BootstrapParams) (*Config, error) {
	var cfg *Config
	err := e.mutate(ctx, "bootstrap", func(t *txn) error {
		admin := p.Admin
		if admin.IsZero() {
			admin = deployer
		}
		if admin.IsZero() {
			return newError(CodeInvalidAdmin, "admin must not be zero")
		}
		if err := validateFeeBps(p.FeeBps); err != nil {
			return err
		}
		if err := validateMaxModules(p.MaxModulesPerRepo); err != nil {
			return err
		}

		cfg = &Config{
			Admin:             admin,
			FeeBps:            p.FeeBps,
			MaxModulesPerRepo: p.MaxModulesPerRepo,
			IsActive:          true,
			PolicyRef:         p.PolicyRef,
			SchemaVersion:     SchemaVersion,
			CreatedAt:         t.now,
			UpdatedAt:         t.now,
		}
		if err := t.create(address.KindConfig, address.Config(), address.Zero, cfg); err != nil {
			return err
		}
		lc := &Lifecycle{WritesAllowed: true, UpdatedBy: admin, UpdatedAt: t.now}
		if err := t.create(address.KindLifecycle, address.Lifecycle(), address.Zero, lc); err != nil {
			return err
		}
		m := &Metrics{CreatedAt: t.now, UpdatedAt: t.now}
		if err := t.create(address.KindMetrics, address.Metrics(), address.Zero, m); err != nil {
			return err
		}

		t.emit(configUpdated(cfg))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetConfig applies an admin update. It bypasses the lifecycle gate and the
// active flag, so it is also how an inactive deployment is reactivated.
func (e *Engine) SetConfig(ctx context.Context, actor address.Key, u ConfigUpdate) (*Config, error) {
	var cfg *Config
	err := e.mutate(ctx, "set_config", func(t *txn) error {
		var err error
		if cfg, err = t.config(); err != nil {
			return err
		}
		if err := cfg.AssertAdmin(actor); err != nil {
			return err
		}
		if err := u.validate(); err != nil {
			return err
		}
		cfg.apply(u, t.now)
		if err := t.putConfig(cfg); err != nil {
			return err
		}
		t.emit(configUpdated(cfg))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// RotateAdmin hands the admin role to another actor.
func (e *Engine) RotateAdmin(ctx context.Context, actor, newAdmin address.Key) (*Config, error) {
	var cfg *Config
	err := e.mutate(ctx, "rotate_admin", func(t *txn) error {
		var err error
		if cfg, err = t.config(); err != nil {
			return err
		}
		if err := cfg.AssertAdmin(actor); err != nil {
			return err
		}
		if newAdmin.IsZero() {
			return newError(CodeInvalidAdmin, "new admin must not be zero")
		}
		prev := cfg.Admin
		cfg.Admin = newAdmin
		cfg.UpdatedAt = t.now
		if err := t.putConfig(cfg); err != nil {
			return err
		}
		t.emit(events.AdminRotated{PreviousAdmin: prev, Admin: newAdmin, UpdatedAt: t.now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetLifecycle opens or closes the global write gate.
func (e *Engine) SetLifecycle(ctx context.Context, actor address.Key, writesAllowed bool, note string) (*Lifecycle, error) {
	var lc *Lifecycle
	err := e.mutate(ctx, "set_lifecycle", func(t *txn) error {
		cfg, err := t.config()
		if err != nil {
			return err
		}
		if err := cfg.AssertAdmin(actor); err != nil {
			return err
		}
		if err := requireMaxLen("note", note, MaxLifecycleNote); err != nil {
			return err
		}
		if lc, err = t.lifecycle(); err != nil {
			return err
		}

		changed := lc.WritesAllowed != writesAllowed
		lc.WritesAllowed = writesAllowed
		lc.Note = note
		lc.UpdatedBy = actor
		lc.UpdatedAt = t.now
		if err := t.put(address.KindLifecycle, address.Lifecycle(), address.Zero, lc); err != nil {
			return err
		}
		if changed {
			t.emit(events.LifecycleStateChanged{
				WritesAllowed: writesAllowed,
				Note:          note,
				UpdatedBy:     actor,
				UpdatedAt:     t.now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lc, nil
}

const previewLen = 64

// SetMetadata creates or updates the global descriptive metadata.
func (e *Engine) SetMetadata(ctx context.Context, actor address.Key, u MetadataUpdate) (*GlobalMetadata, error) {
	var md *GlobalMetadata
	err := e.mutate(ctx, "set_metadata", func(t *txn) error {
		cfg, err := t.config()
		if err != nil {
			return err
		}
		if err := cfg.AssertAdmin(actor); err != nil {
			return err
		}
		if err := u.validate(); err != nil {
			return err
		}

		md, err = load[GlobalMetadata](t, address.KindGlobalMetadata, address.GlobalMetadata())
		if errors.Is(err, ErrNotFound) {
			md, err = &GlobalMetadata{}, nil
		}
		if err != nil {
			return err
		}
		if u.Description != nil {
			md.Description = *u.Description
		}
		if u.Tags != nil {
			md.Tags = *u.Tags
		}
		md.UpdatedBy = actor
		md.UpdatedAt = t.now
		if err := t.put(address.KindGlobalMetadata, address.GlobalMetadata(), address.Zero, md); err != nil {
			return err
		}
		t.emit(events.GlobalMetadataUpdated{
			Admin:              actor,
			DescriptionPreview: preview(md.Description, previewLen),
			TagsPreview:        preview(md.Tags, previewLen),
			UpdatedAt:          t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return md, nil
}

func configUpdated(cfg *Config) events.ConfigUpdated {
	return events.ConfigUpdated{
		Admin:             cfg.Admin,
		FeeBps:            cfg.FeeBps,
		MaxModulesPerRepo: cfg.MaxModulesPerRepo,
		IsActive:          cfg.IsActive,
		PolicyRef:         cfg.PolicyRef,
		UpdatedAt:         cfg.UpdatedAt,
	}
}
