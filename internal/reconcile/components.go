package reconcile

import (
	"context"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

// ResolveComponent returns the component with cv's uuid, creating it when
// absent. Creation date and creator are kept from the first sync; the name
// follows the latest non-empty value.
func (s *Session) ResolveComponent(ctx context.Context, cv *payload.ComponentVersion) (domain.Component, error) {
	if cv.UUID == "" {
		return domain.Component{}, errMissingIdentifier("component", "uuid")
	}

	creator, err := s.ResolveUser(ctx, cv.CreatedBy)
	if err != nil {
		return domain.Component{}, err
	}

	comp, o, err := upsert(
		func() (domain.Component, error) { return s.tx.FindComponentByUUID(ctx, cv.UUID) },
		func() (domain.Component, error) {
			return s.tx.CreateComponent(ctx, domain.Component{
				UUID:         cv.UUID,
				Name:         cv.Name,
				CreationDate: cv.CreationDate.Time,
				CreatedByID:  userID(creator),
			})
		},
		func(existing domain.Component) (domain.Component, bool) {
			if cv.Name == "" || cv.Name == existing.Name {
				return existing, false
			}
			existing.Name = cv.Name
			return existing, true
		},
		func(c domain.Component) error { return s.tx.UpdateComponent(ctx, c) },
	)
	if err != nil {
		return domain.Component{}, storeError("resolve component "+cv.UUID, err)
	}
	if err := s.track(ctx, o, domain.KindComponent, comp.ID, comp.UUID); err != nil {
		return domain.Component{}, err
	}
	return comp, nil
}
