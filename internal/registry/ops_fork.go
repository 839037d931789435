package registry

import (
	"context"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

// CreateFork records a new lineage entry owned by actor. A non-zero parent must
// be the address of an existing fork.
func (e *Engine) CreateFork(ctx context.Context, actor address.Key, p CreateForkParams) (*Fork, error) {
	var fork *Fork
	err := e.mutate(ctx, "create_fork", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		if err := p.validate(); err != nil {
			return err
		}
		if !p.Parent.IsZero() {
			if _, err := load[Fork](t, address.KindFork, p.Parent); err != nil {
				return err
			}
		}

		fork = &Fork{
			ForkKey:     p.ForkKey,
			Parent:      p.Parent,
			Owner:       actor,
			Label:       p.Label,
			MetadataURI: p.MetadataURI,
			IsActive:    true,
			CreatedAt:   t.now,
			UpdatedAt:   t.now,
		}
		addr := fork.Address()
		if err := t.create(address.KindFork, addr, p.Parent, fork); err != nil {
			return err
		}
		if err := t.bumpMetrics((*Metrics).IncrementForks); err != nil {
			return err
		}

		t.emit(events.ForkCreated{
			Fork:      addr,
			ForkKey:   fork.ForkKey,
			Parent:    fork.Parent,
			Owner:     actor,
			Label:     fork.Label,
			CreatedAt: t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fork, nil
}

// UpdateForkState changes fork fields. Only the owner may call it.
func (e *Engine) UpdateForkState(ctx context.Context, actor, forkAddr address.Key, u ForkUpdate) (*Fork, error) {
	var fork *Fork
	err := e.mutate(ctx, "update_fork_state", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		var err error
		if fork, err = load[Fork](t, address.KindFork, forkAddr); err != nil {
			return err
		}
		if err := fork.AssertOwner(actor); err != nil {
			return err
		}
		if err := u.validate(); err != nil {
			return err
		}

		wasActive := fork.IsActive
		fork.apply(u, t.now)
		if err := t.put(address.KindFork, forkAddr, fork.Parent, fork); err != nil {
			return err
		}

		t.emit(events.ForkStateUpdated{Fork: forkAddr, IsActive: fork.IsActive, UpdatedAt: t.now})
		if wasActive != fork.IsActive {
			t.emit(events.ForkActivationChanged{Fork: forkAddr, IsActive: fork.IsActive, UpdatedAt: t.now})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fork, nil
}

// TransferFork hands ownership of a fork to another actor.
func (e *Engine) TransferFork(ctx context.Context, actor, forkAddr, newOwner address.Key) (*Fork, error) {
	var fork *Fork
	err := e.mutate(ctx, "transfer_fork", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		var err error
		if fork, err = load[Fork](t, address.KindFork, forkAddr); err != nil {
			return err
		}
		if err := fork.AssertOwner(actor); err != nil {
			return err
		}
		if newOwner.IsZero() {
			return newError(CodeValueOutOfRange, "new owner must not be zero")
		}

		prev := fork.Owner
		fork.Owner = newOwner
		fork.UpdatedAt = t.now
		if err := t.put(address.KindFork, forkAddr, fork.Parent, fork); err != nil {
			return err
		}
		t.emit(events.ForkOwnerChanged{Fork: forkAddr, PreviousOwner: prev, Owner: newOwner, UpdatedAt: t.now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fork, nil
}
