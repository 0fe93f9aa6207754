package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/fusionsync/internal/domain"
)

// Usage is one assembly that contains the target revision, directly
// (Depth 1) or through intermediate assemblies.
type Usage struct {
	RevisionRef
	Depth int `json:"depth"`

	// Quantity is taken from the edge through which the assembly was
	// first reached.
	Quantity int `json:"quantity"`
}

// UsedInReport lists every assembly containing Target, nearest first.
type UsedInReport struct {
	Target RevisionRef `json:"target"`
	Usages []Usage     `json:"used_in"`
}

// UsedIn walks parent edges breadth first from a component revision.
// version <= 0 selects the latest revision. Each assembly is reported once,
// at its smallest depth.
func (r *Reader) UsedIn(ctx context.Context, componentUUID string, version int) (*UsedInReport, error) {
	rep := &UsedInReport{Usages: []Usage{}}
	err := r.store.WithinTx(ctx, func(tx domain.Tx) error {
		start, err := resolveRevision(ctx, tx, componentUUID, version)
		if err != nil {
			return err
		}
		names := newRefs(tx)
		if rep.Target, err = names.of(ctx, start); err != nil {
			return err
		}

		seen := map[int64]bool{start.ID: true}
		level := []int64{start.ID}
		for depth := 1; len(level) > 0; depth++ {
			var next []int64
			for _, id := range level {
				if err := ctx.Err(); err != nil {
					return err
				}
				edges, err := tx.ParentEdges(ctx, id)
				if err != nil {
					return fmt.Errorf("parent edges of %d: %w", id, err)
				}
				for _, e := range edges {
					if seen[e.ParentRevisionID] {
						continue
					}
					seen[e.ParentRevisionID] = true

					ref, err := names.byID(ctx, e.ParentRevisionID)
					if err != nil {
						return err
					}
					rep.Usages = append(rep.Usages, Usage{RevisionRef: ref, Depth: depth, Quantity: e.Quantity})
					next = append(next, e.ParentRevisionID)
				}
			}
			level = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// WriteText renders the report as one indented line per assembly.
func (rep *UsedInReport) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s  %s\n", rep.Target, rep.Target.Name); err != nil {
		return err
	}
	if len(rep.Usages) == 0 {
		_, err := fmt.Fprintln(w, "  (not used in any assembly)")
		return err
	}
	for _, u := range rep.Usages {
		indent := strings.Repeat("  ", u.Depth)
		if _, err := fmt.Fprintf(w, "%s%s  %s  x%d\n", indent, u.RevisionRef, u.Name, u.Quantity); err != nil {
			return err
		}
	}
	return nil
}
