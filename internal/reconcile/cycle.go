package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fusionsync/internal/domain"
)

// ErrTraversalBudget is returned by WouldCycle when the reachable subgraph
// exceeds MaxNodes.
var ErrTraversalBudget = errors.New("assembly graph traversal budget exceeded")

// Graph exposes the outgoing edges of a component revision.
type Graph interface {
	Children(ctx context.Context, revisionID int64) ([]int64, error)
}

// TxGraph reads the assembly graph through an open transaction, so edges
// written earlier in the same sync are visible.
type TxGraph struct {
	Tx domain.Tx
}

// Children returns child revision ids in edge sequence order.
func (g TxGraph) Children(ctx context.Context, revisionID int64) ([]int64, error) {
	edges, err := g.Tx.ChildEdges(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(edges))
	for i, e := range edges {
		ids[i] = e.ChildRevisionID
	}
	return ids, nil
}

// CycleDetector decides whether a new parent → child edge would close a
// cycle in the assembly graph.
//
// The traversal is iterative with an explicit stack, so deep assemblies
// cannot exhaust the goroutine stack. Each node is expanded at most once:
// shared sub-assemblies (diamonds) are visited once and skipped afterwards.
type CycleDetector struct {
	// MaxNodes bounds the number of nodes expanded per check. 0 means
	// unlimited.
	MaxNodes int
}

type visitState uint8

const (
	unvisited visitState = iota
	onPath
	done
)

type frame struct {
	node     int64
	children []int64
	next     int
}

// WouldCycle reports whether parentID is reachable from childID, which is
// when adding parentID → childID would create a cycle. A cycle already
// present below childID is reported as well.
func (d *CycleDetector) WouldCycle(ctx context.Context, g Graph, parentID, childID int64) (bool, error) {
	if parentID == childID {
		return true, nil
	}

	state := make(map[int64]visitState)
	expanded := 0

	expand := func(node int64) (frame, error) {
		expanded++
		if d.MaxNodes > 0 && expanded > d.MaxNodes {
			return frame{}, fmt.Errorf("%w: more than %d nodes below %d", ErrTraversalBudget, d.MaxNodes, childID)
		}
		children, err := g.Children(ctx, node)
		if err != nil {
			return frame{}, fmt.Errorf("children of %d: %w", node, err)
		}
		state[node] = onPath
		return frame{node: node, children: children}, nil
	}

	root, err := expand(childID)
	if err != nil {
		return false, err
	}
	stack := []frame{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		top := &stack[len(stack)-1]
		if top.next == len(top.children) {
			state[top.node] = done
			stack = stack[:len(stack)-1]
			continue
		}

		next := top.children[top.next]
		top.next++

		if next == parentID {
			return true, nil
		}
		switch state[next] {
		case onPath:
			return true, nil
		case done:
			continue
		}

		f, err := expand(next)
		if err != nil {
			return false, err
		}
		stack = append(stack, f)
	}
	return false, nil
}
