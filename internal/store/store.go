// Package store defines the keyed, transactional record substrate the registry
// persists into. Drivers live in sub-packages (memory, postgres).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/modlink/registry-engine/internal/address"
)

var (
	// ErrNotFound is returned when no record exists at an address.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by Create when the address is taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// Record is one persisted entity. Payload is the JSON encoding of the entity.
type Record struct {
	Address   address.Key  `db:"address"`
	Kind      address.Kind `db:"kind"`
	Parent    address.Key  `db:"parent"`
	Payload   []byte       `db:"payload"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// Tx is the view of the store inside one Update call.
type Tx interface {
	// Get returns ErrNotFound when nothing lives at addr.
	Get(ctx context.Context, addr address.Key) (*Record, error)
	// Create writes a new record and fails with ErrAlreadyExists if the address is taken.
	Create(ctx context.Context, rec *Record) error
	// Put writes rec, replacing any existing record at the same address.
	Put(ctx context.Context, rec *Record) error
	// Count returns the number of records of each kind, including writes staged
	// in this transaction.
	Count(ctx context.Context) (map[address.Kind]int64, error)
}

// Store is implemented by every driver.
type Store interface {
	// Update runs fn in a transaction. If fn returns an error nothing it wrote is kept.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, addr address.Key) (*Record, error)
	// List returns records of kind, ordered by address. A zero parent matches every record of that kind.
	List(ctx context.Context, kind address.Kind, parent address.Key) ([]*Record, error)
	// Count returns the number of records of each kind.
	Count(ctx context.Context) (map[address.Kind]int64, error)
	Close() error
}
