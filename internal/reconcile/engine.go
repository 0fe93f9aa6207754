package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

// Engine reconciles design payloads into a store.
//
// Each SyncDesign call runs in one store transaction: either every record
// the payload implies is written, or nothing is. Re-submitting a payload
// that was already applied changes nothing.
//
// Thread-safety: an Engine is safe for concurrent use. Concurrent calls are
// isolated by the store's transactions; a lost unique-constraint race
// surfaces as a retryable CONFLICT.
type Engine struct {
	store  domain.Store
	logger *slog.Logger
	runIDs RunIDGenerator
	now    func() time.Time
	cycles CycleDetector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithNow sets the wall clock used for run timestamps and user creation.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxGraphNodes bounds the nodes a single cycle check may expand.
// 0 means unlimited.
func WithMaxGraphNodes(n int) Option {
	return func(e *Engine) { e.cycles.MaxNodes = n }
}

// New creates an Engine writing to store.
func New(store domain.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		runIDs: UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes one successful sync.
type Result struct {
	RunID           string                  `json:"run_id"`
	Design          domain.Design           `json:"design"`
	DesignRevisions []domain.DesignRevision `json:"design_revisions"`
	Digest          string                  `json:"payload_digest"`
	Created         int                     `json:"created"`
	Updated         int                     `json:"updated"`
}

// SyncDesign applies ds to the store and returns the resulting design.
//
// Every call, successful or not, is recorded in the run ledger. Errors are
// *SyncError for payload and conflict failures; other errors come from the
// store or ctx.
func (e *Engine) SyncDesign(ctx context.Context, ds payload.DesignStructure) (*Result, error) {
	run := domain.SyncRun{
		ID:         e.runIDs.Generate(),
		DesignUUID: ds.UUID,
		StartedAt:  e.now().UTC(),
	}
	logger := e.logger.With("run_id", run.ID, "design", ds.UUID)

	digest, err := payload.Digest(ds)
	if err != nil {
		return nil, e.finish(ctx, logger, run, nil, &SyncError{
			Code:       CodeMalformedPayload,
			Message:    err.Error(),
			Identifier: ds.UUID,
			Err:        err,
		})
	}
	run.PayloadDigest = digest

	result := &Result{RunID: run.ID, Digest: digest}
	err = e.store.WithinTx(ctx, func(tx domain.Tx) error {
		s := NewSession(tx, run.ID,
			withSessionNow(e.now),
			withSessionCycles(&e.cycles),
			withSessionLogger(logger),
		)
		s.PlanDesignLinks(ds)

		design, err := s.ResolveDesign(ctx, ds)
		if err != nil {
			return err
		}
		result.Design = design

		for _, dv := range ds.Versions {
			rev, err := e.syncVersion(ctx, s, design, dv)
			if err != nil {
				return err
			}
			result.DesignRevisions = append(result.DesignRevisions, rev)
		}

		result.Created = s.Created()
		result.Updated = s.Updated()
		return nil
	})
	if err != nil {
		return nil, e.finish(ctx, logger, run, nil, classify(err))
	}
	return result, e.finish(ctx, logger, run, result, nil)
}

// SyncPayload decodes data and syncs it. Decode failures are recorded as
// failed runs with code MALFORMED_PAYLOAD.
func (e *Engine) SyncPayload(ctx context.Context, data []byte, format payload.Format) (*Result, error) {
	ds, err := payload.Decode(data, format)
	if err != nil {
		run := domain.SyncRun{
			ID:        e.runIDs.Generate(),
			StartedAt: e.now().UTC(),
		}
		logger := e.logger.With("run_id", run.ID)
		return nil, e.finish(ctx, logger, run, nil, &SyncError{
			Code:    CodeMalformedPayload,
			Message: err.Error(),
			Err:     err,
		})
	}
	return e.SyncDesign(ctx, ds)
}

func (e *Engine) syncVersion(ctx context.Context, s *Session, design domain.Design, dv payload.DesignVersion) (domain.DesignRevision, error) {
	rev, err := s.UpsertDesignRevision(ctx, design, dv)
	if err != nil {
		return domain.DesignRevision{}, err
	}

	for _, entry := range dv.ComponentVersions {
		if _, err := s.UpsertComponentRevision(ctx, entry, rev); err != nil {
			return domain.DesignRevision{}, err
		}
	}
	return rev, nil
}

// classify maps store conflicts that escaped the session to CONFLICT.
func classify(err error) error {
	var se *SyncError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, domain.ErrConflict) {
		return storeError("commit", err)
	}
	return err
}

// finish records the run and logs its outcome. It returns syncErr, so
// callers can `return e.finish(...)`. A failure to record the run is logged
// and does not change the call's outcome.
func (e *Engine) finish(ctx context.Context, logger *slog.Logger, run domain.SyncRun, result *Result, syncErr error) error {
	run.FinishedAt = e.now().UTC()
	elapsed := run.FinishedAt.Sub(run.StartedAt)

	if syncErr != nil {
		run.Status = domain.RunFailed
		run.ErrorCode = string(CodeOf(syncErr))
		run.ErrorMessage = syncErr.Error()
		logger.Warn("design sync failed",
			"code", run.ErrorCode,
			"error", syncErr,
			"elapsed", elapsed,
		)
	} else {
		run.Status = domain.RunSucceeded
		run.Created = result.Created
		run.Updated = result.Updated
		logger.Info("design synced",
			"revisions", len(result.DesignRevisions),
			"created", result.Created,
			"updated", result.Updated,
			"elapsed", elapsed,
		)
	}

	// The run is recorded even when ctx was cancelled mid-sync.
	if err := e.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to record sync run", "error", err)
	}
	return syncErr
}
