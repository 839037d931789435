// Package address derives the deterministic record addresses used by the registry.
//
// Every persisted entity lives at an address computed from a kind tag and an
// ordered tuple of seeds. Derivation is pure: the same inputs always yield the
// same address, so callers can locate a record without a lookup table and two
// writers racing to create the same entity collide on the same key.
package address

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the byte length of a Key.
const Size = 32

// Key is a 32-byte identifier. It is used for caller-chosen entity keys,
// actor identities and derived record addresses alike.
type Key [Size]byte

// Zero is the all-zero key. A zero fork parent means "root fork".
var Zero Key

// ErrInvalidKey is returned when a textual key is not 64 hex characters.
var ErrInvalidKey = errors.New("invalid key: expected 64 hexadecimal characters")

// Kind tags the entity type an address belongs to.
type Kind string

const (
	KindConfig         Kind = "config"
	KindLifecycle      Kind = "lifecycle"
	KindMetrics        Kind = "metrics"
	KindGlobalMetadata Kind = "global_metadata"
	KindRepo           Kind = "repo"
	KindModule         Kind = "module"
	KindModuleVersion  Kind = "module_version"
	KindLink           Kind = "module_repo_link"
	KindFork           Kind = "fork"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{
	KindConfig, KindLifecycle, KindMetrics, KindGlobalMetadata,
	KindRepo, KindModule, KindModuleVersion, KindLink, KindFork,
}

const domain = "modlink.registry.v1"

// Derive hashes the kind tag and seeds into an address. Each seed is length
// prefixed so ("ab","c") and ("a","bc") never collide.
func Derive(kind Kind, seeds ...[]byte) Key {
	h, _ := blake2b.New256(nil) // only fails for oversized MAC keys
	writeSeed(h, []byte(domain))
	writeSeed(h, []byte(kind))
	for _, s := range seeds {
		writeSeed(h, s)
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func writeSeed(w interface{ Write([]byte) (int, error) }, seed []byte) {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(seed)))
	_, _ = w.Write(prefix[:n])
	_, _ = w.Write(seed)
}

func Config() Key         { return Derive(KindConfig) }
func Lifecycle() Key      { return Derive(KindLifecycle) }
func Metrics() Key        { return Derive(KindMetrics) }
func GlobalMetadata() Key { return Derive(KindGlobalMetadata) }

// Repo derives a repository address from its caller-chosen key.
func Repo(repoKey Key) Key {
	return Derive(KindRepo, repoKey[:])
}

// Module derives a module address scoped to the repository it was registered under.
func Module(repo, moduleKey Key) Key {
	return Derive(KindModule, repo[:], moduleKey[:])
}

// ModuleVersion derives the snapshot address for one semantic version of a module.
// Version components are encoded little-endian.
func ModuleVersion(module Key, major, minor, patch uint16) Key {
	return Derive(KindModuleVersion, module[:], le16(major), le16(minor), le16(patch))
}

// Link derives the address of the module↔repository association.
func Link(module, repo Key) Key {
	return Derive(KindLink, module[:], repo[:])
}

// Fork derives a fork address from its caller-chosen key.
func Fork(forkKey Key) Key {
	return Derive(KindFork, forkKey[:])
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// Parse decodes a 64-character hex string.
func Parse(s string) (Key, error) {
	var k Key
	if len(s) != hex.EncodedLen(Size) {
		return k, ErrInvalidKey
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, ErrInvalidKey
	}
	return k, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("address: %q: %v", s, err))
	}
	return k
}

// FromName hashes an arbitrary human string into a key. It is a convenience for
// clients that prefer slugs over raw hex identifiers.
func FromName(name string) Key {
	return Key(blake2b.Sum256([]byte(name)))
}

// New returns a random key.
func New() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("failed to generate key: %w", err)
	}
	return k, nil
}

func (k Key) IsZero() bool { return k == Zero }

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Short returns the first eight hex characters, for log lines.
func (k Key) Short() string { return hex.EncodeToString(k[:4]) }

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value stores the key as bytea.
func (k Key) Value() (driver.Value, error) {
	return k[:], nil
}

// Scan reads a bytea column.
func (k *Key) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("address: cannot scan %T into Key", src)
	}
	if len(b) != Size {
		return fmt.Errorf("address: expected %d bytes, got %d", Size, len(b))
	}
	copy(k[:], b)
	return nil
}
