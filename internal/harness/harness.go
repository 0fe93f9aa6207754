package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/store"
	"github.com/roach88/fusionsync/internal/store/memstore"
	"github.com/roach88/fusionsync/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and run ids.
type Harness struct {
	store  domain.Store
	engine *reconcile.Engine
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh store for isolation. A step or assertion
// that does not hold is reported in the result; the returned error is only
// for failures of the harness itself (store, unreadable payload file).
//
// Execution flow:
// 1. Open a fresh store of the scenario's kind
// 2. Sync every step's payload, checking its expectation
// 3. Evaluate assertions against the final store
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, cleanup, err := openScenarioStore(scenario.Store)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewFakeClock(testutil.Epoch, time.Second)
	h := &Harness{
		store: st,
		engine: reconcile.New(st,
			reconcile.WithLogger(logger),
			reconcile.WithNow(clock.Now),
			reconcile.WithRunIDGenerator(testutil.NewSequentialRunIDs("")),
		),
		logger: logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkExpect(sr, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", sr.Step, sr.File, msg))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func openScenarioStore(kind string) (domain.Store, func(), error) {
	switch kind {
	case "", StoreMemory:
		st := memstore.New()
		return st, func() { _ = st.Close() }, nil
	case StoreSQLite:
		dir, err := os.MkdirTemp("", "fusionsync-scenario-")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		st, err := store.Open(filepath.Join(dir, "scenario.db"))
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
		return st, func() {
			_ = st.Close()
			_ = os.RemoveAll(dir)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

// executeStep syncs one payload file and collects its run's events.
func (h *Harness) executeStep(ctx context.Context, n int, step Step) (StepResult, error) {
	sr := StepResult{
		Step:   n,
		File:   filepath.Base(step.Payload),
		Events: []domain.SyncEvent{},
	}

	data, err := os.ReadFile(step.Payload)
	if err != nil {
		return sr, fmt.Errorf("failed to read payload: %w", err)
	}

	res, syncErr := h.engine.SyncPayload(ctx, data, payload.FormatFromPath(step.Payload))
	if syncErr != nil {
		code := reconcile.CodeOf(syncErr)
		if code == "" {
			return sr, fmt.Errorf("sync failed: %w", syncErr)
		}
		sr.Status = "error"
		sr.Code = string(code)
		h.logger.Debug("step rejected", "step", n, "code", code)
	} else {
		sr.Status = "ok"
		sr.Created = res.Created
		sr.Updated = res.Updated
	}

	// Failed runs are in the ledger too, so the newest run is this step's.
	runs, err := h.store.ListRuns(ctx, 1)
	if err != nil {
		return sr, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return sr, fmt.Errorf("no run recorded")
	}
	sr.RunID = runs[0].ID

	events, err := h.store.ListEvents(ctx, sr.RunID)
	if err != nil {
		return sr, fmt.Errorf("failed to list events: %w", err)
	}
	sr.Events = append(sr.Events, events...)

	return sr, nil
}

// checkExpect compares a step outcome against its expectation. A step
// without one must succeed.
func checkExpect(sr StepResult, expect *Expect) []string {
	if expect == nil {
		if sr.Status != "ok" {
			return []string{fmt.Sprintf("expected success, got %s", sr.Code)}
		}
		return nil
	}

	var errs []string
	if sr.Status != expect.Status {
		got := sr.Status
		if sr.Code != "" {
			got += " " + sr.Code
		}
		errs = append(errs, fmt.Sprintf("expected status %s, got %s", expect.Status, got))
		return errs
	}
	if expect.Code != "" && sr.Code != expect.Code {
		errs = append(errs, fmt.Sprintf("expected code %s, got %s", expect.Code, sr.Code))
	}
	if expect.Created != nil && sr.Created != *expect.Created {
		errs = append(errs, fmt.Sprintf("expected %d created, got %d", *expect.Created, sr.Created))
	}
	if expect.Updated != nil && sr.Updated != *expect.Updated {
		errs = append(errs, fmt.Sprintf("expected %d updated, got %d", *expect.Updated, sr.Updated))
	}
	return errs
}
