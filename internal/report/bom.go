package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/roach88/fusionsync/internal/domain"
)

// BOMLine is one row of an exploded bill of materials. The root row has
// Depth 0 and quantities of 1.
type BOMLine struct {
	RevisionRef
	Depth    int `json:"depth"`
	Sequence int `json:"sequence"`

	// Quantity is the count on the edge from the parent row.
	Quantity int `json:"quantity"`

	// Total is Quantity multiplied along the path from the root.
	Total int `json:"total"`
}

// BOM is an exploded bill of materials in depth-first order. Children appear
// in edge sequence order directly below their parent.
type BOM struct {
	Root  RevisionRef `json:"root"`
	Lines []BOMLine   `json:"lines"`
}

type bomFrame struct {
	revisionID int64
	edges      []domain.AssemblyEdge
	next       int
	line       int // index of this node's row in Lines
}

// Explode expands a component revision into its full bill of materials.
// version <= 0 selects the latest revision. Shared sub-assemblies are listed
// under every parent that uses them.
//
// Explode fails with ErrTooLarge past the reader's line limit and with
// ErrQuantityOverflow when a path total does not fit in an int.
func (r *Reader) Explode(ctx context.Context, componentUUID string, version int) (*BOM, error) {
	bom := &BOM{}
	err := r.store.WithinTx(ctx, func(tx domain.Tx) error {
		root, err := resolveRevision(ctx, tx, componentUUID, version)
		if err != nil {
			return err
		}
		names := newRefs(tx)
		if bom.Root, err = names.of(ctx, root); err != nil {
			return err
		}
		bom.Lines = append(bom.Lines, BOMLine{RevisionRef: bom.Root, Quantity: 1, Total: 1})

		edges, err := tx.ChildEdges(ctx, root.ID)
		if err != nil {
			return fmt.Errorf("child edges of %d: %w", root.ID, err)
		}
		stack := []*bomFrame{{revisionID: root.ID, edges: edges}}
		onPath := map[int64]bool{root.ID: true}

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			top := stack[len(stack)-1]
			if top.next >= len(top.edges) {
				delete(onPath, top.revisionID)
				stack = stack[:len(stack)-1]
				continue
			}
			e := top.edges[top.next]
			top.next++

			if onPath[e.ChildRevisionID] {
				return fmt.Errorf("%w: revision %d", ErrCycle, e.ChildRevisionID)
			}

			if r.maxBOMLines > 0 && len(bom.Lines) >= r.maxBOMLines {
				return fmt.Errorf("%w: more than %d lines below %s", ErrTooLarge, r.maxBOMLines, bom.Root)
			}
			parent := bom.Lines[top.line]
			total, ok := mulTotal(parent.Total, e.Quantity)
			if !ok {
				return fmt.Errorf("%w: %d x %d below %s", ErrQuantityOverflow, parent.Total, e.Quantity, bom.Root)
			}

			ref, err := names.byID(ctx, e.ChildRevisionID)
			if err != nil {
				return err
			}
			bom.Lines = append(bom.Lines, BOMLine{
				RevisionRef: ref,
				Depth:       parent.Depth + 1,
				Sequence:    e.Sequence,
				Quantity:    e.Quantity,
				Total:       total,
			})

			children, err := tx.ChildEdges(ctx, e.ChildRevisionID)
			if err != nil {
				return fmt.Errorf("child edges of %d: %w", e.ChildRevisionID, err)
			}
			onPath[e.ChildRevisionID] = true
			stack = append(stack, &bomFrame{
				revisionID: e.ChildRevisionID,
				edges:      children,
				line:       len(bom.Lines) - 1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bom, nil
}

// mulTotal multiplies two non-negative quantities, reporting false on
// overflow.
func mulTotal(a, b int) (int, bool) {
	if a != 0 && b > math.MaxInt/a {
		return 0, false
	}
	return a * b, true
}

// Totals sums Total per revision over every non-root line, keyed by
// uuid@version. A sum that would overflow is capped at math.MaxInt.
func (b *BOM) Totals() map[string]int {
	totals := make(map[string]int)
	for _, l := range b.Lines {
		if l.Depth == 0 {
			continue
		}
		key := l.RevisionRef.String()
		if totals[key] > math.MaxInt-l.Total {
			totals[key] = math.MaxInt
			continue
		}
		totals[key] += l.Total
	}
	return totals
}

// WriteText renders the bill of materials as an indented tree.
func (b *BOM) WriteText(w io.Writer) error {
	for _, l := range b.Lines {
		indent := strings.Repeat("  ", l.Depth)
		var err error
		if l.Depth == 0 {
			_, err = fmt.Fprintf(w, "%s  %s\n", l.RevisionRef, l.Name)
		} else {
			_, err = fmt.Fprintf(w, "%s%s  %s  x%d (total %d)\n", indent, l.RevisionRef, l.Name, l.Quantity, l.Total)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
