/*
store.go - Persistence interfaces for templates and instances

PURPOSE:
  Defines the interface between the lifecycle and the backing store.
  Different implementations can use SQLite or in-memory storage.

IDEMPOTENCY CONTRACT:
  Insert and InsertBatch MUST reject a second instance for the same
  (identity, due date) pair with recur.ErrDuplicateInstance. This is the
  system's only concurrency-safety mechanism: the lifecycle checks
  existence immediately before writing, and the store's uniqueness
  guarantee backstops the race where two triggers (heartbeat, user
  completion, reload) fire close together.

IMPLEMENTATIONS:
  - store/sqlite: production store, UNIQUE index on (template_key, due)
  - task/store:   in-memory store for tests and dev

SEE ALSO:
  - lifecycle.go: The only writer
*/
package task

import (
	"context"

	"github.com/warp/recurrence-engine/recur"
)

// TemplateStore persists recurring templates.
type TemplateStore interface {
	// SaveTemplate inserts or replaces a template by identity.
	SaveTemplate(ctx context.Context, tpl Template) error

	// Template returns a template by identity.
	// Returns recur.ErrTemplateNotFound if absent.
	Template(ctx context.Context, id Identity) (Template, error)

	// ListTemplates returns all templates.
	ListTemplates(ctx context.Context) ([]Template, error)
}

// InstanceStore persists concrete task instances.
type InstanceStore interface {
	// Insert writes a new instance. Returns recur.ErrDuplicateInstance if
	// an instance with the same identity and due date already exists.
	Insert(ctx context.Context, inst Instance) error

	// InsertBatch writes several instances atomically: either all are
	// written or none are.
	InsertBatch(ctx context.Context, insts []Instance) error

	// Exists reports whether any instance exists for identity+due,
	// regardless of state.
	Exists(ctx context.Context, id Identity, due recur.CalendarDate) (bool, error)

	// Instance returns an instance by storage ID.
	// Returns recur.ErrInstanceNotFound if absent.
	Instance(ctx context.Context, instanceID string) (Instance, error)

	// ListInstances returns all instances for an identity, ordered by due date.
	ListInstances(ctx context.Context, id Identity) ([]Instance, error)

	// ListAllInstances returns every stored instance.
	ListAllInstances(ctx context.Context) ([]Instance, error)

	// MarkCompleted transitions a materialized instance to completed.
	// Returns recur.ErrInstanceNotFound if absent.
	MarkCompleted(ctx context.Context, instanceID string) error
}

// Store bundles both interfaces; the SQLite store implements it.
type Store interface {
	TemplateStore
	InstanceStore
}
