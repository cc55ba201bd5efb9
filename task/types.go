/*
Package task implements the recurring-task lifecycle on top of the recur engine.

PURPOSE:
  The recur package answers "when does this rule fire"; this package answers
  "which task instances should exist". A user-authored Template owns a
  recurrence rule; occurrences of that rule surface as Virtual instances
  (computed, session-only), get written to storage as Materialized instances,
  and end as Completed instances - at which point the next occurrence is
  spawned.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identity: the stable template key (name + project + section; the stored
    format has no numeric task id)
  - Template: identity + recurrence rule
  - Instance: one occurrence in a specific lifecycle state

STATE MODEL:
  Each state carries only the fields valid for it: a Virtual instance has
  no storage ID, a Materialized/Completed one does. There is no boolean
  flag or sentinel line number standing in for state.

SEE ALSO:
  - lifecycle.go: The materialization scheduler
  - store.go: Persistence interfaces
*/
package task

import (
	"fmt"
	"strings"

	"github.com/warp/recurrence-engine/recur"
)

// =============================================================================
// IDENTITY - Stable template key
// =============================================================================

// Identity is the stable key of a recurring template: the task name plus
// where it lives. Two templates with the same name in different projects
// or sections are distinct.
type Identity struct {
	Name    string
	Project string
	Section string
}

// Key renders the identity as a single string for storage keys and logs.
func (id Identity) Key() string {
	return fmt.Sprintf("%s|%s|%s", id.Project, id.Section, id.Name)
}

// ParseIdentity is the inverse of Key.
func ParseIdentity(key string) (Identity, error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return Identity{}, fmt.Errorf("malformed identity key %q", key)
	}
	return Identity{Project: parts[0], Section: parts[1], Name: parts[2]}, nil
}

// =============================================================================
// TEMPLATE - User-authored recurrence definition
// =============================================================================

// Template is the user-authored recurrence definition. It is never itself
// due; it only produces instances.
type Template struct {
	Identity Identity
	Rule     recur.Rule
}

// =============================================================================
// INSTANCE - One occurrence in a lifecycle state
// =============================================================================

type State string

const (
	// StateVirtual marks an occurrence computed for the current session
	// only. Never persisted; recomputed on every load.
	StateVirtual State = "virtual"

	// StateMaterialized marks an occurrence written to storage as a real,
	// independently editable to-do entry.
	StateMaterialized State = "materialized"

	// StateCompleted marks a materialized occurrence the user finished.
	// Terminal for that occurrence; completing it spawns the next one.
	StateCompleted State = "completed"
)

// Instance is one occurrence of a template. ID is empty for Virtual
// instances - they have no storage location.
type Instance struct {
	ID       string
	Identity Identity
	Due      recur.CalendarDate
	State    State
}

// IsPersisted reports whether the instance exists in storage.
func (i Instance) IsPersisted() bool {
	return i.State != StateVirtual
}
