// Package store provides task.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/task"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	templates map[string]task.Template   // identity key -> template
	instances map[string]task.Instance   // instance ID -> instance
	byDate    map[dateKey]string         // (identity key, due) -> instance ID
}

type dateKey struct {
	identity string
	due      recur.CalendarDate
}

func NewMemory() *Memory {
	return &Memory{
		templates: make(map[string]task.Template),
		instances: make(map[string]task.Instance),
		byDate:    make(map[dateKey]string),
	}
}

var _ task.Store = (*Memory)(nil)

// -----------------------------------------------------------------------------
// Templates
// -----------------------------------------------------------------------------

func (m *Memory) SaveTemplate(_ context.Context, tpl task.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.Identity.Key()] = tpl
	return nil
}

func (m *Memory) Template(_ context.Context, id task.Identity) (task.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[id.Key()]
	if !ok {
		return task.Template{}, recur.ErrTemplateNotFound
	}
	return tpl, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]task.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]task.Template, 0, len(m.templates))
	for _, tpl := range m.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Key() < out[j].Identity.Key() })
	return out, nil
}

// DeleteTemplate removes a template. Persisted instances remain; an orphaned
// instance completes without spawning a successor.
func (m *Memory) DeleteTemplate(_ context.Context, id task.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id.Key())
	return nil
}

// -----------------------------------------------------------------------------
// Instances
// -----------------------------------------------------------------------------

func (m *Memory) Insert(_ context.Context, inst task.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(inst)
}

// InsertBatch writes all instances or none.
func (m *Memory) InsertBatch(_ context.Context, insts []task.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check uniqueness for the whole batch first (atomic check).
	for _, inst := range insts {
		if _, taken := m.byDate[dateKey{inst.Identity.Key(), inst.Due}]; taken {
			return recur.ErrDuplicateInstance
		}
	}
	for _, inst := range insts {
		if err := m.insertLocked(inst); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) insertLocked(inst task.Instance) error {
	k := dateKey{inst.Identity.Key(), inst.Due}
	if _, taken := m.byDate[k]; taken {
		return recur.ErrDuplicateInstance
	}
	m.instances[inst.ID] = inst
	m.byDate[k] = inst.ID
	return nil
}

func (m *Memory) Exists(_ context.Context, id task.Identity, due recur.CalendarDate) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byDate[dateKey{id.Key(), due}]
	return ok, nil
}

func (m *Memory) Instance(_ context.Context, instanceID string) (task.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[instanceID]
	if !ok {
		return task.Instance{}, recur.ErrInstanceNotFound
	}
	return inst, nil
}

func (m *Memory) ListInstances(_ context.Context, id task.Identity) ([]task.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []task.Instance
	for _, inst := range m.instances {
		if inst.Identity == id {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out, nil
}

func (m *Memory) ListAllInstances(_ context.Context) ([]task.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]task.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Due.Equal(out[j].Due) {
			return out[i].Due.Before(out[j].Due)
		}
		return out[i].Identity.Key() < out[j].Identity.Key()
	})
	return out, nil
}

func (m *Memory) MarkCompleted(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceID]
	if !ok {
		return recur.ErrInstanceNotFound
	}
	inst.State = task.StateCompleted
	m.instances[instanceID] = inst
	return nil
}
