// Package report answers read-only questions about synced designs: record
// counts, version counts, where a component revision is used, and the
// exploded bill of materials below it.
//
// Every query runs inside one store transaction and never writes.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fusionsync/internal/domain"
)

var (
	// ErrCycle is returned by Explode when the stored assembly graph loops
	// back onto the current path. The engine never writes such a graph.
	ErrCycle = errors.New("assembly graph contains a cycle")

	// ErrTooLarge is returned by Explode when the bill of materials would
	// exceed the reader's line limit.
	ErrTooLarge = errors.New("bill of materials exceeds the line limit")

	// ErrQuantityOverflow is returned by Explode when a quantity multiplied
	// along a path does not fit in an int.
	ErrQuantityOverflow = errors.New("bill of materials quantity overflows")
)

// DefaultMaxBOMLines bounds Explode unless WithMaxBOMLines says otherwise.
// Shared sub-assemblies are repeated under every parent, so the line count
// can grow exponentially with depth.
const DefaultMaxBOMLines = 100_000

// Reader runs report queries against a store.
type Reader struct {
	store       domain.Store
	maxBOMLines int
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxBOMLines bounds the number of lines Explode returns, root included.
// n <= 0 means unlimited.
func WithMaxBOMLines(n int) Option {
	return func(r *Reader) { r.maxBOMLines = n }
}

// New creates a Reader.
func New(store domain.Store, opts ...Option) *Reader {
	r := &Reader{store: store, maxBOMLines: DefaultMaxBOMLines}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RevisionRef identifies a component revision in report output.
type RevisionRef struct {
	RevisionID int64  `json:"revision_id"`
	Component  string `json:"component"`
	Name       string `json:"name"`
	Version    int    `json:"version"`
}

// String renders the ref as uuid@version.
func (r RevisionRef) String() string {
	return fmt.Sprintf("%s@%d", r.Component, r.Version)
}

// Counts returns the number of stored records per kind.
func (r *Reader) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	err := r.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		c, err = tx.Counts(ctx)
		return err
	})
	if err != nil {
		return domain.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

// ComponentVersionCount returns how many revisions of a component are stored.
func (r *Reader) ComponentVersionCount(ctx context.Context, componentUUID string) (int, error) {
	var n int
	err := r.store.WithinTx(ctx, func(tx domain.Tx) error {
		comp, err := tx.FindComponentByUUID(ctx, componentUUID)
		if err != nil {
			return notFound("component", componentUUID, err)
		}
		n, err = tx.CountComponentRevisions(ctx, comp.ID, 0)
		return err
	})
	return n, err
}

// DesignVersionCount returns how many revisions of a design are stored.
func (r *Reader) DesignVersionCount(ctx context.Context, designUUID string) (int, error) {
	var n int
	err := r.store.WithinTx(ctx, func(tx domain.Tx) error {
		design, err := tx.FindDesignByUUID(ctx, designUUID)
		if err != nil {
			return notFound("design", designUUID, err)
		}
		n, err = tx.CountDesignRevisions(ctx, design.ID)
		return err
	})
	return n, err
}

// refs resolves revision ids to RevisionRefs, caching components.
type refs struct {
	tx         domain.Tx
	components map[int64]domain.Component
}

func newRefs(tx domain.Tx) *refs {
	return &refs{tx: tx, components: make(map[int64]domain.Component)}
}

func (r *refs) of(ctx context.Context, rev domain.ComponentRevision) (RevisionRef, error) {
	comp, ok := r.components[rev.ComponentID]
	if !ok {
		var err error
		comp, err = r.tx.GetComponent(ctx, rev.ComponentID)
		if err != nil {
			return RevisionRef{}, fmt.Errorf("get component %d: %w", rev.ComponentID, err)
		}
		r.components[rev.ComponentID] = comp
	}
	return RevisionRef{
		RevisionID: rev.ID,
		Component:  comp.UUID,
		Name:       comp.Name,
		Version:    rev.VersionNumber,
	}, nil
}

func (r *refs) byID(ctx context.Context, id int64) (RevisionRef, error) {
	rev, err := r.tx.GetComponentRevision(ctx, id)
	if err != nil {
		return RevisionRef{}, fmt.Errorf("get component revision %d: %w", id, err)
	}
	return r.of(ctx, rev)
}

// resolveRevision finds a revision of a component by uuid. version <= 0
// selects the highest stored version.
func resolveRevision(ctx context.Context, tx domain.Tx, componentUUID string, version int) (domain.ComponentRevision, error) {
	comp, err := tx.FindComponentByUUID(ctx, componentUUID)
	if err != nil {
		return domain.ComponentRevision{}, notFound("component", componentUUID, err)
	}

	var rev domain.ComponentRevision
	if version > 0 {
		rev, err = tx.FindComponentRevision(ctx, comp.ID, version)
	} else {
		rev, err = tx.LatestComponentRevision(ctx, comp.ID)
	}
	if err != nil {
		id := componentUUID
		if version > 0 {
			id = fmt.Sprintf("%s@%d", componentUUID, version)
		}
		return domain.ComponentRevision{}, notFound("component revision", id, err)
	}
	return rev, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
	}
	return fmt.Errorf("find %s %q: %w", kind, id, err)
}
