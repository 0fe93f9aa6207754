package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Find/Get methods when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write loses a unique-constraint race
	// against a concurrent sync. The whole call is safe to retry.
	ErrConflict = errors.New("unique constraint conflict")
)

// Store is a persistent record store.
type Store interface {
	// WithinTx runs fn in one all-or-nothing transaction. Any error returned
	// by fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// RecordRun appends a sync run. It is written outside of the sync
	// transaction so failed runs are kept.
	RecordRun(ctx context.Context, run SyncRun) error

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]SyncRun, error)

	// ListEvents returns the events of a run in seq order.
	ListEvents(ctx context.Context, runID string) ([]SyncEvent, error)

	Close() error
}

// Tx exposes the find/create/update/count primitives of each entity kind
// inside one transaction.
//
// Create methods of the identity kinds (User, Component, Design) are
// insert-or-select: when a concurrent transaction already committed the same
// UUID the existing row is returned. Create methods of revisions and edges
// return ErrConflict on a unique violation.
type Tx interface {
	FindUserByUUID(ctx context.Context, uuid string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)

	FindComponentByUUID(ctx context.Context, uuid string) (Component, error)
	GetComponent(ctx context.Context, id int64) (Component, error)
	CreateComponent(ctx context.Context, c Component) (Component, error)
	UpdateComponent(ctx context.Context, c Component) error

	FindComponentRevision(ctx context.Context, componentID int64, versionNumber int) (ComponentRevision, error)
	GetComponentRevision(ctx context.Context, id int64) (ComponentRevision, error)
	LatestComponentRevision(ctx context.Context, componentID int64) (ComponentRevision, error)
	CreateComponentRevision(ctx context.Context, r ComponentRevision) (ComponentRevision, error)
	UpdateComponentRevision(ctx context.Context, r ComponentRevision) error
	// CountComponentRevisions counts revisions of a component. A
	// versionNumber <= 0 counts all of them.
	CountComponentRevisions(ctx context.Context, componentID int64, versionNumber int) (int, error)

	FindEdge(ctx context.Context, parentRevisionID, childRevisionID int64) (AssemblyEdge, error)
	CreateEdge(ctx context.Context, e AssemblyEdge) (AssemblyEdge, error)
	UpdateEdge(ctx context.Context, e AssemblyEdge) error
	// ChildEdges returns outgoing edges ordered by sequence, then ID.
	ChildEdges(ctx context.Context, parentRevisionID int64) ([]AssemblyEdge, error)
	// ParentEdges returns incoming edges ordered by ID.
	ParentEdges(ctx context.Context, childRevisionID int64) ([]AssemblyEdge, error)

	FindDesignByUUID(ctx context.Context, uuid string) (Design, error)
	GetDesign(ctx context.Context, id int64) (Design, error)
	CreateDesign(ctx context.Context, d Design) (Design, error)
	UpdateDesign(ctx context.Context, d Design) error

	FindDesignRevision(ctx context.Context, designID int64, versionNumber int) (DesignRevision, error)
	FindDesignRevisionByUUID(ctx context.Context, uuid string) (DesignRevision, error)
	GetDesignRevision(ctx context.Context, id int64) (DesignRevision, error)
	CreateDesignRevision(ctx context.Context, r DesignRevision) (DesignRevision, error)
	UpdateDesignRevision(ctx context.Context, r DesignRevision) error
	CountDesignRevisions(ctx context.Context, designID int64) (int, error)

	AppendEvent(ctx context.Context, ev SyncEvent) error
	Counts(ctx context.Context) (Counts, error)
}
