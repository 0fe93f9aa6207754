package reconcile

import (
	"context"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

// ResolveDesign returns the design with ds's uuid, creating it when absent.
// Like components, only the name is refreshed on later syncs.
func (s *Session) ResolveDesign(ctx context.Context, ds payload.DesignStructure) (domain.Design, error) {
	if ds.UUID == "" {
		return domain.Design{}, errMissingIdentifier("design", "uuid")
	}

	creator, err := s.ResolveUser(ctx, ds.CreatedBy)
	if err != nil {
		return domain.Design{}, err
	}

	design, o, err := upsert(
		func() (domain.Design, error) { return s.tx.FindDesignByUUID(ctx, ds.UUID) },
		func() (domain.Design, error) {
			return s.tx.CreateDesign(ctx, domain.Design{
				UUID:         ds.UUID,
				Name:         ds.Name,
				CreationDate: ds.CreationDate.Time,
				CreatedByID:  userID(creator),
			})
		},
		func(existing domain.Design) (domain.Design, bool) {
			if ds.Name == "" || ds.Name == existing.Name {
				return existing, false
			}
			existing.Name = ds.Name
			return existing, true
		},
		func(d domain.Design) error { return s.tx.UpdateDesign(ctx, d) },
	)
	if err != nil {
		return domain.Design{}, storeError("resolve design "+ds.UUID, err)
	}
	if err := s.track(ctx, o, domain.KindDesign, design.ID, design.UUID); err != nil {
		return domain.Design{}, err
	}
	return design, nil
}
