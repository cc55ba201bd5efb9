/*
lifecycle.go - The materialization scheduler

PURPOSE:
  Orchestrates the template -> virtual -> materialized -> completed flow.
  For each template it decides which occurrences surface as session-only
  virtual instances, which get written to durable storage, and how
  completing one occurrence spawns the next - using recur.Occurrences and
  recur.NextAfter as its engine.

TRIGGERS:
  Three independent external events drive this code and are not mutually
  exclusive in time: a store reload, the periodic heartbeat (at least once
  per 24h), and direct user actions. Correctness therefore rests on two
  things only:
    1. Every mutation runs through the lifecycle's single mutex, making
       each existence-check-then-write sequence atomic in-process.
    2. The store's (identity, due) uniqueness contract backstops anything
       that slips past - a duplicate write is skipped silently, never
       surfaced to the user.

MATERIALIZATION POLICY:
  Only near-term occurrences (due through tomorrow, by default) are
  persisted, so the durable task list never grows unboundedly far into
  the future. The pass runs at most once per rolling 24 hours unless
  forced by a template create/edit.

FAILURE SEMANTICS:
  An invalid rule yields zero occurrences, so nothing materializes and
  nothing crashes. A bounded search that comes up short this cycle simply
  materializes nothing this cycle.

SEE ALSO:
  - recur/calculator.go, recur/nextafter.go: The underlying engine
  - store.go: The uniqueness contract
*/
package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/warp/recurrence-engine/recur"
)

// materializeEvery is the rolling gate between unforced materialization
// passes.
const materializeEvery = 24 * time.Hour

// Lifecycle drives instance state transitions for all templates.
type Lifecycle struct {
	store Store
	clock Clock

	// HorizonDays is how many days past today a candidate occurrence may
	// lie and still be materialized. The default of 1 means "today or
	// tomorrow".
	HorizonDays int

	mu       sync.Mutex // serializes all store mutations
	lastPass time.Time  // last unforced materialization, guarded by mu
}

// NewLifecycle creates a lifecycle over the given store and clock.
func NewLifecycle(store Store, clock Clock) *Lifecycle {
	if clock == nil {
		clock = SystemClock()
	}
	return &Lifecycle{store: store, clock: clock, HorizonDays: 1}
}

// Clock returns the clock the lifecycle runs on.
func (l *Lifecycle) Clock() Clock {
	return l.clock
}

// MaterializeResult reports what a materialization pass did.
type MaterializeResult struct {
	Ran     bool
	Created []Instance
	Skipped int // candidates that already had an instance
}

// CompleteResult reports a completion and the occurrence it spawned.
type CompleteResult struct {
	Completed Instance
	Next      mo.Option[Instance]
}

// =============================================================================
// ON LOAD - Virtual instances
// =============================================================================

// Virtuals computes the session's virtual instances: for every template,
// the next occurrence as of today, unless a persisted instance already
// covers that identity and date. Read-only; nothing is written.
func (l *Lifecycle) Virtuals(ctx context.Context) ([]Instance, error) {
	templates, err := l.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	today := todayFor(l.clock)

	var virtuals []Instance
	for _, tpl := range templates {
		occs := recur.Occurrences(tpl.Rule, today, 1)
		if len(occs) == 0 {
			continue // invalid or exhausted rule: show nothing, fail nothing
		}
		exists, err := l.store.Exists(ctx, tpl.Identity, occs[0])
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		virtuals = append(virtuals, Instance{
			Identity: tpl.Identity,
			Due:      occs[0],
			State:    StateVirtual,
		})
	}
	return virtuals, nil
}

// VisibleTemplates returns the templates that should appear in user-facing
// listings: a template is hidden once any instance of it exists, virtual
// or persisted. A freshly created template with an invalid or exhausted
// rule stays visible so the user can still see and edit it.
func (l *Lifecycle) VisibleTemplates(ctx context.Context) ([]Template, error) {
	templates, err := l.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	today := todayFor(l.clock)

	var visible []Template
	for _, tpl := range templates {
		if len(recur.Occurrences(tpl.Rule, today, 1)) > 0 {
			continue // a virtual or persisted instance covers this template
		}
		persisted, err := l.store.ListInstances(ctx, tpl.Identity)
		if err != nil {
			return nil, err
		}
		if len(persisted) > 0 {
			continue
		}
		visible = append(visible, tpl)
	}
	return visible, nil
}

// =============================================================================
// MATERIALIZATION PASS
// =============================================================================

// Materialize runs the near-term materialization pass, gated to once per
// rolling 24 hours. Returns Ran=false when the gate suppressed the pass.
func (l *Lifecycle) Materialize(ctx context.Context) (MaterializeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if !l.lastPass.IsZero() && now.Sub(l.lastPass) < materializeEvery {
		return MaterializeResult{Ran: false}, nil
	}
	res, err := l.materializeLocked(ctx)
	if err != nil {
		return res, err
	}
	l.lastPass = now
	return res, nil
}

// MaterializeNow runs the pass unconditionally. Used when a template is
// created or edited, and by the admin trigger. Does not reset the 24h gate.
func (l *Lifecycle) MaterializeNow(ctx context.Context) (MaterializeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.materializeLocked(ctx)
}

func (l *Lifecycle) materializeLocked(ctx context.Context) (MaterializeResult, error) {
	templates, err := l.store.ListTemplates(ctx)
	if err != nil {
		return MaterializeResult{}, err
	}

	today := todayFor(l.clock)
	horizon := today.AddDays(l.HorizonDays)
	res := MaterializeResult{Ran: true}

	for _, tpl := range templates {
		for _, due := range recur.Occurrences(tpl.Rule, today, 2) {
			if due.After(horizon) {
				break
			}
			created, err := l.insertIfAbsent(ctx, Instance{
				ID:       uuid.New().String(),
				Identity: tpl.Identity,
				Due:      due,
				State:    StateMaterialized,
			})
			if err != nil {
				return res, err
			}
			if created == nil {
				res.Skipped++
				continue
			}
			res.Created = append(res.Created, *created)
		}
	}
	return res, nil
}

// insertIfAbsent performs the existence-check-then-write sequence. Callers
// hold l.mu. A duplicate detected by either the check or the store's
// uniqueness index is skipped silently, per the idempotency invariant.
func (l *Lifecycle) insertIfAbsent(ctx context.Context, inst Instance) (*Instance, error) {
	exists, err := l.store.Exists(ctx, inst.Identity, inst.Due)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	if err := l.store.Insert(ctx, inst); err != nil {
		if recur.IsDuplicate(err) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete transitions a materialized instance to completed and immediately
// materializes the occurrence that follows it, computed from the completed
// date (not from today).
func (l *Lifecycle) Complete(ctx context.Context, instanceID string) (CompleteResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inst, err := l.store.Instance(ctx, instanceID)
	if err != nil {
		return CompleteResult{}, err
	}
	if inst.State == StateCompleted {
		// Already done; completing twice spawns nothing new.
		return CompleteResult{Completed: inst, Next: mo.None[Instance]()}, nil
	}
	if err := l.store.MarkCompleted(ctx, instanceID); err != nil {
		return CompleteResult{}, err
	}
	inst.State = StateCompleted

	next, err := l.spawnNextLocked(ctx, inst)
	if err != nil {
		return CompleteResult{}, err
	}
	return CompleteResult{Completed: inst, Next: next}, nil
}

// CompleteVirtual completes an occurrence that was never persisted. The
// completed record and the next occurrence are written in one batch, so
// from the caller's point of view the transition is atomic.
func (l *Lifecycle) CompleteVirtual(ctx context.Context, id Identity, due recur.CalendarDate) (CompleteResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	exists, err := l.store.Exists(ctx, id, due)
	if err != nil {
		return CompleteResult{}, err
	}
	if exists {
		return CompleteResult{}, recur.ErrDuplicateInstance
	}

	completed := Instance{
		ID:       uuid.New().String(),
		Identity: id,
		Due:      due,
		State:    StateCompleted,
	}
	batch := []Instance{completed}

	nextInst := mo.None[Instance]()
	if tpl, err := l.store.Template(ctx, id); err == nil {
		if nextDue, ok := recur.NextAfter(tpl.Rule, due).Get(); ok {
			nextExists, err := l.store.Exists(ctx, id, nextDue)
			if err != nil {
				return CompleteResult{}, err
			}
			if !nextExists {
				inst := Instance{
					ID:       uuid.New().String(),
					Identity: id,
					Due:      nextDue,
					State:    StateMaterialized,
				}
				batch = append(batch, inst)
				nextInst = mo.Some(inst)
			}
		}
	} else if !recur.IsNotFound(err) {
		return CompleteResult{}, err
	}

	if err := l.store.InsertBatch(ctx, batch); err != nil {
		return CompleteResult{}, err
	}
	return CompleteResult{Completed: completed, Next: nextInst}, nil
}

// spawnNextLocked materializes the occurrence following a completed one.
// Callers hold l.mu. An instance whose template has been deleted completes
// without spawning anything.
func (l *Lifecycle) spawnNextLocked(ctx context.Context, completed Instance) (mo.Option[Instance], error) {
	tpl, err := l.store.Template(ctx, completed.Identity)
	if err != nil {
		if recur.IsNotFound(err) {
			return mo.None[Instance](), nil
		}
		return mo.None[Instance](), err
	}

	nextDue, ok := recur.NextAfter(tpl.Rule, completed.Due).Get()
	if !ok {
		return mo.None[Instance](), nil // end bound reached or rule invalid
	}

	created, err := l.insertIfAbsent(ctx, Instance{
		ID:       uuid.New().String(),
		Identity: completed.Identity,
		Due:      nextDue,
		State:    StateMaterialized,
	})
	if err != nil {
		return mo.None[Instance](), err
	}
	if created == nil {
		return mo.None[Instance](), nil
	}
	log.Printf("[Lifecycle] %s: completed %s, next occurrence %s",
		completed.Identity.Key(), completed.Due, nextDue)
	return mo.Some(*created), nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

// PutTemplate saves a template and immediately runs a forced
// materialization pass, so a freshly created or edited rule surfaces its
// near-term occurrences without waiting for the heartbeat.
func (l *Lifecycle) PutTemplate(ctx context.Context, tpl Template) (MaterializeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.SaveTemplate(ctx, tpl); err != nil {
		return MaterializeResult{}, err
	}
	return l.materializeLocked(ctx)
}
