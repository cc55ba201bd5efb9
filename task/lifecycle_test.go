package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/task"
	"github.com/warp/recurrence-engine/task/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// monday is the fixed "today" for these tests: Monday 2025-10-20.
var monday = time.Date(2025, time.October, 20, 9, 0, 0, 0, time.UTC)

func newTestLifecycle() (*task.Lifecycle, *store.Memory, *task.FixedClock) {
	mem := store.NewMemory()
	clock := &task.FixedClock{Current: monday}
	return task.NewLifecycle(mem, clock), mem, clock
}

func dailyTemplate(name string) task.Template {
	return task.Template{
		Identity: task.Identity{Name: name, Project: "inbox", Section: "today"},
		Rule: recur.Rule{
			Interval: 1,
			Unit:     recur.UnitDay,
			Start:    recur.NewCalendarDate(2025, time.October, 20),
		},
	}
}

func weeklyTemplate(name string, days ...time.Weekday) task.Template {
	return task.Template{
		Identity: task.Identity{Name: name, Project: "home", Section: "chores"},
		Rule: recur.Rule{
			Interval:   1,
			Unit:       recur.UnitWeek,
			Constraint: recur.OnWeekDays(days...),
			Start:      recur.NewCalendarDate(2025, time.October, 20),
		},
	}
}

// =============================================================================
// VIRTUAL INSTANCES (on load)
// =============================================================================

func TestVirtuals_SynthesizedForUncoveredOccurrence(t *testing.T) {
	// GIVEN: A template with no persisted instances
	// WHEN: Computing virtuals
	// THEN: One virtual exists at the next occurrence, with no storage ID

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := weeklyTemplate("water plants", time.Wednesday)
	require.NoError(t, mem.SaveTemplate(ctx, tpl))

	virtuals, err := lc.Virtuals(ctx)
	require.NoError(t, err)

	require.Len(t, virtuals, 1)
	assert.Equal(t, task.StateVirtual, virtuals[0].State)
	assert.Empty(t, virtuals[0].ID)
	assert.Equal(t, "2025-10-22", virtuals[0].Due.String()) // Wednesday
}

func TestVirtuals_SuppressedByPersistedInstance(t *testing.T) {
	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := weeklyTemplate("water plants", time.Wednesday)
	require.NoError(t, mem.SaveTemplate(ctx, tpl))
	require.NoError(t, mem.Insert(ctx, task.Instance{
		ID:       "inst-1",
		Identity: tpl.Identity,
		Due:      recur.NewCalendarDate(2025, time.October, 22),
		State:    task.StateMaterialized,
	}))

	virtuals, err := lc.Virtuals(ctx)
	require.NoError(t, err)
	assert.Empty(t, virtuals)
}

func TestVirtuals_InvalidRule_SilentlySkipped(t *testing.T) {
	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	require.NoError(t, mem.SaveTemplate(ctx, task.Template{
		Identity: task.Identity{Name: "broken", Project: "p", Section: "s"},
		Rule: recur.Rule{
			Interval:   1,
			Unit:       recur.UnitMonth,
			Constraint: recur.OnWeekDays(time.Monday), // mismatched
			Start:      recur.NewCalendarDate(2025, time.October, 1),
		},
	}))

	virtuals, err := lc.Virtuals(ctx)
	require.NoError(t, err)
	assert.Empty(t, virtuals, "invalid rule must degrade to no virtuals, not an error")
}

// =============================================================================
// MATERIALIZATION PASS
// =============================================================================

func TestMaterialize_PersistsNearTermOnly(t *testing.T) {
	// GIVEN: A daily template (occurrences today, tomorrow, ...)
	// WHEN: Running the materialization pass
	// THEN: Only today's and tomorrow's occurrences are persisted

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	require.NoError(t, mem.SaveTemplate(ctx, dailyTemplate("standup")))

	res, err := lc.Materialize(ctx)
	require.NoError(t, err)

	assert.True(t, res.Ran)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "2025-10-20", res.Created[0].Due.String())
	assert.Equal(t, "2025-10-21", res.Created[1].Due.String())
	for _, inst := range res.Created {
		assert.Equal(t, task.StateMaterialized, inst.State)
		assert.NotEmpty(t, inst.ID)
	}
}

func TestMaterialize_FarOccurrence_NotPersisted(t *testing.T) {
	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	// Next Wednesday is two days out, past the today/tomorrow horizon.
	require.NoError(t, mem.SaveTemplate(ctx, weeklyTemplate("water plants", time.Wednesday)))

	res, err := lc.Materialize(ctx)
	require.NoError(t, err)

	assert.True(t, res.Ran)
	assert.Empty(t, res.Created)
}

func TestMaterialize_Idempotent(t *testing.T) {
	// GIVEN: A pass has already materialized today's occurrences
	// WHEN: Forcing a second pass with no intervening completion
	// THEN: No duplicate instances appear

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	require.NoError(t, mem.SaveTemplate(ctx, dailyTemplate("standup")))

	first, err := lc.MaterializeNow(ctx)
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	second, err := lc.MaterializeNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, 2, second.Skipped)

	all, err := mem.ListAllInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMaterialize_24hGate(t *testing.T) {
	// GIVEN: An unforced pass ran moments ago
	// WHEN: Triggering again before 24h have passed
	// THEN: The pass is suppressed; after 24h it runs again

	lc, mem, clock := newTestLifecycle()
	ctx := context.Background()
	require.NoError(t, mem.SaveTemplate(ctx, dailyTemplate("standup")))

	res, err := lc.Materialize(ctx)
	require.NoError(t, err)
	require.True(t, res.Ran)

	clock.Advance(1 * time.Hour)
	res, err = lc.Materialize(ctx)
	require.NoError(t, err)
	assert.False(t, res.Ran, "second pass within 24h must be gated")

	clock.Advance(24 * time.Hour)
	res, err = lc.Materialize(ctx)
	require.NoError(t, err)
	assert.True(t, res.Ran, "pass after the gate expires must run")
}

func TestPutTemplate_MaterializesImmediately(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	ctx := context.Background()

	res, err := lc.PutTemplate(ctx, dailyTemplate("standup"))
	require.NoError(t, err)

	assert.True(t, res.Ran)
	assert.Len(t, res.Created, 2)
}

// =============================================================================
// COMPLETION
// =============================================================================

func TestComplete_SpawnsNextFromCompletedDate(t *testing.T) {
	// GIVEN: A weekly Mon+Wed+Fri template with Monday's instance persisted
	// WHEN: Completing Monday's instance
	// THEN: Wednesday of the same week is materialized immediately

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := weeklyTemplate("exercise", time.Monday, time.Wednesday, time.Friday)
	require.NoError(t, mem.SaveTemplate(ctx, tpl))
	require.NoError(t, mem.Insert(ctx, task.Instance{
		ID:       "inst-mon",
		Identity: tpl.Identity,
		Due:      recur.NewCalendarDate(2025, time.October, 20),
		State:    task.StateMaterialized,
	}))

	res, err := lc.Complete(ctx, "inst-mon")
	require.NoError(t, err)

	assert.Equal(t, task.StateCompleted, res.Completed.State)
	next, ok := res.Next.Get()
	require.True(t, ok, "completion must spawn the next occurrence")
	assert.Equal(t, "2025-10-22", next.Due.String())
	assert.Equal(t, task.StateMaterialized, next.State)

	stored, err := mem.Instance(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateMaterialized, stored.State)
}

func TestComplete_Twice_SpawnsNothingNew(t *testing.T) {
	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := dailyTemplate("standup")
	require.NoError(t, mem.SaveTemplate(ctx, tpl))
	require.NoError(t, mem.Insert(ctx, task.Instance{
		ID:       "inst-1",
		Identity: tpl.Identity,
		Due:      recur.NewCalendarDate(2025, time.October, 20),
		State:    task.StateMaterialized,
	}))

	first, err := lc.Complete(ctx, "inst-1")
	require.NoError(t, err)
	require.True(t, first.Next.IsPresent())

	second, err := lc.Complete(ctx, "inst-1")
	require.NoError(t, err)
	assert.False(t, second.Next.IsPresent(), "re-completion must not spawn another instance")

	all, err := mem.ListAllInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2) // the completed one and its single successor
}

func TestComplete_EndBoundReached_NoNext(t *testing.T) {
	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := dailyTemplate("countdown")
	tpl.Rule.End = mo.Some(recur.NewCalendarDate(2025, time.October, 20))
	require.NoError(t, mem.SaveTemplate(ctx, tpl))
	require.NoError(t, mem.Insert(ctx, task.Instance{
		ID:       "inst-last",
		Identity: tpl.Identity,
		Due:      recur.NewCalendarDate(2025, time.October, 20),
		State:    task.StateMaterialized,
	}))

	res, err := lc.Complete(ctx, "inst-last")
	require.NoError(t, err)
	assert.False(t, res.Next.IsPresent())
}

func TestComplete_UnknownInstance_NotFound(t *testing.T) {
	lc, _, _ := newTestLifecycle()

	_, err := lc.Complete(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, recur.ErrInstanceNotFound)
}

func TestCompleteVirtual_PersistsCompletedAndNextAtomically(t *testing.T) {
	// GIVEN: A virtual occurrence that was never persisted
	// WHEN: Completing it
	// THEN: The completed record and the next occurrence appear together

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := weeklyTemplate("exercise", time.Monday, time.Wednesday)
	require.NoError(t, mem.SaveTemplate(ctx, tpl))

	due := recur.NewCalendarDate(2025, time.October, 20)
	res, err := lc.CompleteVirtual(ctx, tpl.Identity, due)
	require.NoError(t, err)

	assert.Equal(t, task.StateCompleted, res.Completed.State)
	assert.NotEmpty(t, res.Completed.ID, "a completed virtual gains a storage ID")
	next, ok := res.Next.Get()
	require.True(t, ok)
	assert.Equal(t, "2025-10-22", next.Due.String())

	all, err := mem.ListAllInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCompleteVirtual_AlreadyPersisted_Duplicate(t *testing.T) {
	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := dailyTemplate("standup")
	require.NoError(t, mem.SaveTemplate(ctx, tpl))
	due := recur.NewCalendarDate(2025, time.October, 20)
	require.NoError(t, mem.Insert(ctx, task.Instance{
		ID: "inst-1", Identity: tpl.Identity, Due: due, State: task.StateMaterialized,
	}))

	_, err := lc.CompleteVirtual(ctx, tpl.Identity, due)
	assert.ErrorIs(t, err, recur.ErrDuplicateInstance)
}

// =============================================================================
// TEMPLATE VISIBILITY
// =============================================================================

func TestVisibleTemplates_HiddenOnceInstanceExists(t *testing.T) {
	// A template whose rule produces an occurrence is covered by a virtual
	// and therefore hidden; one with an exhausted rule stays visible.

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()

	active := dailyTemplate("standup")
	require.NoError(t, mem.SaveTemplate(ctx, active))

	exhausted := dailyTemplate("old habit")
	exhausted.Rule.End = mo.Some(recur.NewCalendarDate(2025, time.January, 1))
	require.NoError(t, mem.SaveTemplate(ctx, exhausted))

	visible, err := lc.VisibleTemplates(ctx)
	require.NoError(t, err)

	require.Len(t, visible, 1)
	assert.Equal(t, "old habit", visible[0].Identity.Name)
}

// =============================================================================
// CONCURRENT TRIGGERS
// =============================================================================

func TestConcurrentTriggers_NeverDuplicate(t *testing.T) {
	// A heartbeat pass and a completion firing close together must not
	// produce two instances for the same (template, date) pair.

	lc, mem, _ := newTestLifecycle()
	ctx := context.Background()
	tpl := dailyTemplate("standup")
	require.NoError(t, mem.SaveTemplate(ctx, tpl))
	require.NoError(t, mem.Insert(ctx, task.Instance{
		ID:       "inst-today",
		Identity: tpl.Identity,
		Due:      recur.NewCalendarDate(2025, time.October, 20),
		State:    task.StateMaterialized,
	}))

	done := make(chan struct{}, 2)
	go func() {
		_, _ = lc.MaterializeNow(ctx) // wants to create tomorrow's instance
		done <- struct{}{}
	}()
	go func() {
		_, _ = lc.Complete(ctx, "inst-today") // also spawns tomorrow's instance
		done <- struct{}{}
	}()
	<-done
	<-done

	insts, err := mem.ListInstances(ctx, tpl.Identity)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, inst := range insts {
		seen[inst.Due.String()]++
	}
	for due, n := range seen {
		assert.Equal(t, 1, n, "duplicate instances for %s", due)
	}
}
