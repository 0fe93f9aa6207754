package reconcile

import (
	"context"
	"errors"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

const (
	// DefaultQuantity applies when an assembly line omits quantity.
	DefaultQuantity = 1

	// DefaultSequence applies when an assembly line omits sequence.
	DefaultSequence = 10
)

// UpsertEdge creates or updates the parent → child edge described by line.
//
// Checks run in order: child lookup, quantity, self reference, cycle. A
// rejected line leaves the graph unchanged.
func (s *Session) UpsertEdge(ctx context.Context, parent domain.ComponentRevision, parentKey string, line payload.AssemblyLine) (domain.AssemblyEdge, error) {
	child, childKey, err := s.resolveChild(ctx, line)
	if err != nil {
		return domain.AssemblyEdge{}, err
	}

	quantity := DefaultQuantity
	if line.Quantity != nil {
		quantity = *line.Quantity
	}
	if quantity < 1 {
		return domain.AssemblyEdge{}, errInvalidQuantity(parentKey, quantity)
	}

	if child.ID == parent.ID {
		return domain.AssemblyEdge{}, errSelfReference(parentKey)
	}

	cyclic, err := s.cycles.WouldCycle(ctx, TxGraph{Tx: s.tx}, parent.ID, child.ID)
	if err != nil {
		if errors.Is(err, ErrTraversalBudget) {
			return domain.AssemblyEdge{}, errGraphTooLarge(parentKey, childKey, err)
		}
		return domain.AssemblyEdge{}, storeError("cycle check", err)
	}
	if cyclic {
		return domain.AssemblyEdge{}, errRecursiveReference(parentKey, childKey)
	}

	sequence := DefaultSequence
	if line.Sequence != nil {
		sequence = *line.Sequence
	}

	edge, o, err := upsert(
		func() (domain.AssemblyEdge, error) { return s.tx.FindEdge(ctx, parent.ID, child.ID) },
		func() (domain.AssemblyEdge, error) {
			return s.tx.CreateEdge(ctx, domain.AssemblyEdge{
				ParentRevisionID: parent.ID,
				ChildRevisionID:  child.ID,
				Quantity:         quantity,
				Sequence:         sequence,
			})
		},
		func(existing domain.AssemblyEdge) (domain.AssemblyEdge, bool) {
			if existing.Quantity == quantity && existing.Sequence == sequence {
				return existing, false
			}
			existing.Quantity = quantity
			existing.Sequence = sequence
			return existing, true
		},
		func(e domain.AssemblyEdge) error { return s.tx.UpdateEdge(ctx, e) },
	)
	if err != nil {
		return domain.AssemblyEdge{}, storeError("upsert assembly edge "+parentKey+" -> "+childKey, err)
	}
	if err := s.track(ctx, o, domain.KindAssemblyEdge, edge.ID, parentKey+">"+childKey); err != nil {
		return domain.AssemblyEdge{}, err
	}
	return edge, nil
}

// resolveChild finds the revision a line points at: the numbered revision
// when child_version_number is given, else the highest synced one.
func (s *Session) resolveChild(ctx context.Context, line payload.AssemblyLine) (domain.ComponentRevision, string, error) {
	if line.ChildComponentVersionID == "" {
		return domain.ComponentRevision{}, "", errMissingIdentifier("assembly line", "child_component_version_id")
	}
	id := line.ChildComponentVersionID

	comp, err := s.tx.FindComponentByUUID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return domain.ComponentRevision{}, "", errChildNotFound(id, "unknown component")
		}
		return domain.ComponentRevision{}, "", storeError("find child component", err)
	}

	if !line.ChildVersionNumber.IsSet() {
		rev, err := s.tx.LatestComponentRevision(ctx, comp.ID)
		if err != nil {
			if isNotFound(err) {
				return domain.ComponentRevision{}, "", errChildNotFound(id, "component has no revisions")
			}
			return domain.ComponentRevision{}, "", storeError("find child revision", err)
		}
		return rev, revisionKeyString(id, rev.VersionNumber), nil
	}

	number, err := line.ChildVersionNumber.Int()
	if err != nil {
		return domain.ComponentRevision{}, "", errInvalidVersionNumber(id, err)
	}
	key := revisionKeyString(id, number)
	rev, err := s.tx.FindComponentRevision(ctx, comp.ID, number)
	if err != nil {
		if isNotFound(err) {
			return domain.ComponentRevision{}, "", errChildNotFound(key, "unknown version")
		}
		return domain.ComponentRevision{}, "", storeError("find child revision", err)
	}
	return rev, key, nil
}
