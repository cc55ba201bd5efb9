/*
scheduler.go - Background materialization heartbeat

PURPOSE:
  Periodically triggers the lifecycle's materialization pass so near-term
  occurrences are persisted even when no one is using the app. The pass
  itself is gated to once per rolling 24 hours inside the lifecycle; the
  heartbeat may fire far more often without causing extra work.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates entirely to Lifecycle.Materialize; gating and idempotency
    live in the domain layer, not here
  - Records each pass that actually ran for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to trigger (default: 1 hour)
  - Enabled: Whether the heartbeat is active (default: true)

USAGE:
  scheduler := NewMaterializationScheduler(lifecycle, store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerMaterialize endpoint (manual pass)
  - task/lifecycle.go: Materialize and its 24h gate
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/recurrence-engine/store/sqlite"
	"github.com/warp/recurrence-engine/task"
)

// MaterializationScheduler triggers the materialization pass on a timer.
type MaterializationScheduler struct {
	Lifecycle     *task.Lifecycle
	Runs          RunStore // nil disables run recording
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaterializationScheduler creates a new scheduler.
func NewMaterializationScheduler(lifecycle *task.Lifecycle, runs RunStore) *MaterializationScheduler {
	return &MaterializationScheduler{
		Lifecycle:     lifecycle,
		Runs:          runs,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the heartbeat.
func (ms *MaterializationScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ms.ticker = time.NewTicker(ms.CheckInterval)
	ms.wg.Add(1)

	go ms.run()

	log.Printf("[Scheduler] Started with check interval: %v", ms.CheckInterval)
}

// Stop stops the heartbeat.
func (ms *MaterializationScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ms *MaterializationScheduler) run() {
	defer ms.wg.Done()

	// Run immediately on start
	ms.checkAndProcess()

	for {
		select {
		case <-ms.ticker.C:
			ms.checkAndProcess()
		case <-ms.stop:
			return
		}
	}
}

func (ms *MaterializationScheduler) checkAndProcess() {
	ctx := context.Background()

	res, err := ms.Lifecycle.Materialize(ctx)
	if err != nil {
		log.Printf("[Scheduler] Materialization pass failed: %v", err)
	}
	recordRun(ctx, ms.Runs, ms.Lifecycle.Clock(), res, err)

	if !res.Ran {
		return // gated; nothing to report
	}
	log.Printf("[Scheduler] Pass completed: %d created, %d skipped (already covered)",
		len(res.Created), res.Skipped)
}

// RunNow triggers an immediate check (for testing/admin). The 24h gate
// still applies; use the admin endpoint for a forced pass.
func (ms *MaterializationScheduler) RunNow() {
	ms.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ms *MaterializationScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ms.CheckInterval)
}

// recordRun persists a run record for a pass that actually ran. Recording
// failures are logged, never propagated; the pass itself already happened.
func recordRun(ctx context.Context, runs RunStore, clock task.Clock, res task.MaterializeResult, passErr error) {
	if runs == nil || (!res.Ran && passErr == nil) {
		return
	}

	now := clock.Now()
	run := sqlite.MaterializationRun{
		ID:           fmt.Sprintf("run-%d", now.UnixNano()),
		StartedAt:    now,
		CompletedAt:  &now,
		CreatedCount: len(res.Created),
		SkippedCount: res.Skipped,
		Status:       "completed",
	}
	if passErr != nil {
		run.Status = "failed"
		run.Error = passErr.Error()
	}

	if err := runs.SaveMaterializationRun(ctx, run); err != nil {
		log.Printf("[Scheduler] Failed to record run: %v", err)
	}
}
