package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/fusionsync/internal/domain"
)

// Session is one ingestion call's view of the store: the open transaction,
// the run's event clock, and the bookkeeping needed to detect conflicting
// entries within the same payload.
//
// A Session is not safe for concurrent use.
type Session struct {
	tx     domain.Tx
	runID  string
	clock  *Clock
	now    func() time.Time
	cycles *CycleDetector
	logger *slog.Logger

	// revisions maps (component, number) to the revision data the entries
	// of this call have claimed for it so far.
	revisions map[revisionKey]revisionData

	// linkOwners maps "uuid@number" to the design version uuid that owns
	// the component revision's design revision link.
	linkOwners map[string]string

	created int
	updated int
}

type revisionKey struct {
	componentID int64
	number      int
}

// NewSession opens a session over tx. Events are stamped with runID.
func NewSession(tx domain.Tx, runID string, opts ...SessionOption) *Session {
	s := &Session{
		tx:        tx,
		runID:     runID,
		clock:     NewClock(),
		now:       time.Now,
		cycles:    &CycleDetector{},
		logger:    slog.New(slog.DiscardHandler),
		revisions: make(map[revisionKey]revisionData),

		linkOwners: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func withSessionNow(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func withSessionCycles(c *CycleDetector) SessionOption {
	return func(s *Session) { s.cycles = c }
}

func withSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// Created returns the number of records created so far.
func (s *Session) Created() int { return s.created }

// Updated returns the number of records updated so far.
func (s *Session) Updated() int { return s.updated }

// track appends an event for a create or update and bumps the counters.
func (s *Session) track(ctx context.Context, o outcome, kind domain.EntityKind, id int64, key string) error {
	var action domain.EventAction
	switch o {
	case created:
		action = domain.ActionCreated
		s.created++
	case updated:
		action = domain.ActionUpdated
		s.updated++
	default:
		return nil
	}

	s.logger.Debug("record "+string(action),
		"kind", kind,
		"id", id,
		"key", key,
	)

	err := s.tx.AppendEvent(ctx, domain.SyncEvent{
		RunID:       s.runID,
		Seq:         s.clock.Next(),
		Kind:        kind,
		EntityID:    id,
		ExternalKey: key,
		Action:      action,
	})
	if err != nil {
		return storeError("append event", err)
	}
	return nil
}
