package reconcile

import (
	"context"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

// UpsertDesignRevision creates or updates the (design, version number)
// revision described by dv.
//
// A revision uuid is bound to its (design, number) for good: a different
// uuid under a taken number, or a known uuid under another number or
// design, fails DUPLICATE_VERSION_NUMBER.
func (s *Session) UpsertDesignRevision(ctx context.Context, design domain.Design, dv payload.DesignVersion) (domain.DesignRevision, error) {
	if dv.UUID == "" {
		return domain.DesignRevision{}, errMissingIdentifier("design version of "+design.UUID, "uuid")
	}

	number, err := dv.VersionNumber.Int()
	if err != nil {
		return domain.DesignRevision{}, errInvalidVersionNumber(dv.UUID, err)
	}

	modifier, err := s.ResolveUser(ctx, dv.ModifiedBy)
	if err != nil {
		return domain.DesignRevision{}, err
	}

	byNumber, found, err := lookup(func() (domain.DesignRevision, error) {
		return s.tx.FindDesignRevision(ctx, design.ID, number)
	})
	if err != nil {
		return domain.DesignRevision{}, storeError("find design revision", err)
	}
	if found && byNumber.UUID != dv.UUID {
		return domain.DesignRevision{}, errDuplicateVersionNumber(dv.UUID, number,
			"of design "+design.UUID+" is already revision "+byNumber.UUID)
	}

	byUUID, found, err := lookup(func() (domain.DesignRevision, error) {
		return s.tx.FindDesignRevisionByUUID(ctx, dv.UUID)
	})
	if err != nil {
		return domain.DesignRevision{}, storeError("find design revision", err)
	}
	if found && (byUUID.DesignID != design.ID || byUUID.VersionNumber != number) {
		return domain.DesignRevision{}, errDuplicateVersionNumber(dv.UUID, number,
			"conflicts with the revision's stored numbering")
	}

	rev, o, err := upsert(
		func() (domain.DesignRevision, error) { return s.tx.FindDesignRevision(ctx, design.ID, number) },
		func() (domain.DesignRevision, error) {
			return s.tx.CreateDesignRevision(ctx, domain.DesignRevision{
				DesignID:      design.ID,
				UUID:          dv.UUID,
				VersionNumber: number,
				RevisionDate:  dv.RevisionDate.Time,
				ModifiedByID:  userID(modifier),
			})
		},
		func(existing domain.DesignRevision) (domain.DesignRevision, bool) {
			changed := false
			if !dv.RevisionDate.IsZero() && !dv.RevisionDate.Equal(existing.RevisionDate) {
				existing.RevisionDate = dv.RevisionDate.Time
				changed = true
			}
			if modifier != nil && !sameID(existing.ModifiedByID, userID(modifier)) {
				existing.ModifiedByID = userID(modifier)
				changed = true
			}
			return existing, changed
		},
		func(r domain.DesignRevision) error { return s.tx.UpdateDesignRevision(ctx, r) },
	)
	if err != nil {
		return domain.DesignRevision{}, storeError("upsert design revision "+dv.UUID, err)
	}
	if err := s.track(ctx, o, domain.KindDesignRevision, rev.ID, rev.UUID); err != nil {
		return domain.DesignRevision{}, err
	}
	return rev, nil
}
