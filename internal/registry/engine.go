// Package registry is the state-transition core of the module registry.
//
// Every mutating operation runs inside one store transaction and composes the
// same guard chain before touching state:
//
//	lifecycle gate → config active → entity activity / caller authorization →
//	field validation → mutation → aggregate counters → events
//
// A rejected operation leaves no trace: the transaction is discarded and no
// event is published. Events from an accepted operation are published only
// after the transaction commits.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/store"
	"github.com/modlink/registry-engine/internal/telemetry"
)

// Engine executes registry operations against a store.
type Engine struct {
	store     store.Store
	publisher events.Publisher
	policy    Policy
	limits    ObservationLimits
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithPolicy(p Policy) Option               { return func(e *Engine) { e.policy = p } }
func WithClock(now func() time.Time) Option    { return func(e *Engine) { e.now = now } }
func WithLogger(l *slog.Logger) Option         { return func(e *Engine) { e.logger = l } }

// WithObservationLimits overrides the per-observation caps. Zero fields keep the default.
func WithObservationLimits(l ObservationLimits) Option {
	return func(e *Engine) {
		if l.MaxLinesOfCode > 0 {
			e.limits.MaxLinesOfCode = l.MaxLinesOfCode
		}
		if l.MaxFilesProcessed > 0 {
			e.limits.MaxFilesProcessed = l.MaxFilesProcessed
		}
	}
}

// New builds an engine. Without options events are discarded, every actor may
// observe and reconcile, and the wall clock is used.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		publisher: events.Nop{},
		policy:    AllowList{},
		limits:    DefaultObservationLimits(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ObservationLimits returns the caps in effect.
func (e *Engine) ObservationLimits() ObservationLimits { return e.limits }

// ---------------------------------------------------------------------------
// Transaction plumbing
// ---------------------------------------------------------------------------

type txn struct {
	ctx    context.Context
	tx     store.Tx
	now    time.Time
	events []events.Event
}

func (t *txn) emit(evs ...events.Event) {
	t.events = append(t.events, evs...)
}

// mutate runs fn in a store transaction, records the outcome and publishes
// buffered events once the transaction has committed.
func (e *Engine) mutate(ctx context.Context, op string, fn func(t *txn) error) error {
	var emitted []events.Event
	err := e.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		t := &txn{ctx: ctx, tx: tx, now: e.now().UTC()}
		if err := fn(t); err != nil {
			return err
		}
		emitted = t.events
		return nil
	})
	if err != nil {
		err = asRegistryError(err)
		code := CodeOf(err)
		telemetry.RegistryOperationsTotal.WithLabelValues(op, string(code)).Inc()
		if code == CodeInternalError {
			e.logger.ErrorContext(ctx, "registry operation failed", "operation", op, "error", err)
		} else {
			e.logger.DebugContext(ctx, "registry operation rejected", "operation", op, "code", code, "error", err)
		}
		return err
	}

	telemetry.RegistryOperationsTotal.WithLabelValues(op, "ok").Inc()
	e.logger.InfoContext(ctx, "registry operation applied", "operation", op, "events", len(emitted))
	e.publish(ctx, emitted)
	return nil
}

func (e *Engine) publish(ctx context.Context, evs []events.Event) {
	for _, ev := range evs {
		env := events.Wrap(ctx, ev, e.now())
		if err := e.publisher.Publish(ctx, env); err != nil {
			telemetry.RegistryEventsPublishedTotal.WithLabelValues(env.Name, "error").Inc()
			e.logger.WarnContext(ctx, "failed to publish registry event", "event", env.Name, "error", err)
			continue
		}
		telemetry.RegistryEventsPublishedTotal.WithLabelValues(env.Name, "ok").Inc()
	}
}

func asRegistryError(err error) error {
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return internalError("store", err)
}

func load[T any](t *txn, kind address.Kind, addr address.Key) (*T, error) {
	rec, err := t.tx.Get(t.ctx, addr)
	return decode[T](rec, err, kind, addr)
}

func decode[T any](rec *store.Record, err error, kind address.Kind, addr address.Key) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(CodeNotFound, "%s %s not found", kind, addr.Short())
	}
	if err != nil {
		return nil, internalError("failed to load "+string(kind), err)
	}
	if rec.Kind != kind {
		return nil, newError(CodeInvalidAddress, "address %s holds a %s, not a %s", addr.Short(), rec.Kind, kind)
	}
	var v T
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return nil, internalError("failed to decode "+string(kind), err)
	}
	return &v, nil
}

func encode(kind address.Kind, addr, parent address.Key, v interface{}) (*store.Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, internalError("failed to encode "+string(kind), err)
	}
	return &store.Record{Address: addr, Kind: kind, Parent: parent, Payload: payload}, nil
}

func (t *txn) create(kind address.Kind, addr, parent address.Key, v interface{}) error {
	rec, err := encode(kind, addr, parent, v)
	if err != nil {
		return err
	}
	if err := t.tx.Create(t.ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return newError(CodeAlreadyExists, "%s %s already exists", kind, addr.Short())
		}
		return internalError("failed to create "+string(kind), err)
	}
	return nil
}

func (t *txn) put(kind address.Kind, addr, parent address.Key, v interface{}) error {
	rec, err := encode(kind, addr, parent, v)
	if err != nil {
		return err
	}
	if err := t.tx.Put(t.ctx, rec); err != nil {
		return internalError("failed to write "+string(kind), err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Singletons and guards
// ---------------------------------------------------------------------------

func notBootstrapped(err error) error {
	if errors.Is(err, ErrNotFound) {
		return newError(CodeNotBootstrapped, "registry has not been bootstrapped")
	}
	return err
}

func (t *txn) config() (*Config, error) {
	cfg, err := load[Config](t, address.KindConfig, address.Config())
	return cfg, notBootstrapped(err)
}

func (t *txn) lifecycle() (*Lifecycle, error) {
	lc, err := load[Lifecycle](t, address.KindLifecycle, address.Lifecycle())
	return lc, notBootstrapped(err)
}

func (t *txn) metrics() (*Metrics, error) {
	m, err := load[Metrics](t, address.KindMetrics, address.Metrics())
	return m, notBootstrapped(err)
}

func (t *txn) putConfig(cfg *Config) error {
	return t.put(address.KindConfig, address.Config(), address.Zero, cfg)
}

func (t *txn) putMetrics(m *Metrics) error {
	return t.put(address.KindMetrics, address.Metrics(), address.Zero, m)
}

// gate applies the two global guards every entity mutation starts with.
func (t *txn) gate() (*Config, error) {
	lc, err := t.lifecycle()
	if err != nil {
		return nil, err
	}
	if err := lc.AssertWritesAllowed(); err != nil {
		return nil, err
	}
	cfg, err := t.config()
	if err != nil {
		return nil, err
	}
	if err := cfg.AssertActive(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bumpMetrics loads the aggregate, applies fn and writes it back.
func (t *txn) bumpMetrics(fn func(m *Metrics) error) error {
	m, err := t.metrics()
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		return err
	}
	m.UpdatedAt = t.now
	return t.putMetrics(m)
}

func (t *txn) repo(addr address.Key) (*Repo, error) {
	return load[Repo](t, address.KindRepo, addr)
}

func (t *txn) module(addr address.Key) (*Module, error) {
	return load[Module](t, address.KindModule, addr)
}

// moduleIn loads a module and checks it was registered under repo.
func (t *txn) moduleIn(repo, addr address.Key) (*Module, error) {
	m, err := t.module(addr)
	if err != nil {
		return nil, err
	}
	if m.Repo != repo || m.Address() != addr {
		return nil, newError(CodeInvalidAddress, "module %s does not belong to repo %s", addr.Short(), repo.Short())
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Read helpers
// ---------------------------------------------------------------------------

func read[T any](ctx context.Context, st store.Store, kind address.Kind, addr address.Key) (*T, error) {
	rec, err := st.Get(ctx, addr)
	return decode[T](rec, err, kind, addr)
}

func readAll[T any](ctx context.Context, st store.Store, kind address.Kind, parent address.Key) ([]*T, error) {
	recs, err := st.List(ctx, kind, parent)
	if err != nil {
		return nil, internalError("failed to list "+string(kind), err)
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v, err := decode[T](rec, nil, kind, rec.Address)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func sortVersionsDesc(vs []*ModuleVersion) {
	sort.Slice(vs, func(i, j int) bool {
		return vs[i].Version.Compare(vs[j].Version) > 0
	})
}
