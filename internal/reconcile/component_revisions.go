package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

// UpsertComponentRevision resolves the entry's component, creates or updates
// its (component, version number) revision linked to the design revision
// being synced, then applies the entry's assembly lines in order through
// UpsertEdge.
//
// Two entries of the same call claiming one (component, number) must not
// disagree on revision data both of them set; otherwise the call fails
// DUPLICATE_VERSION_NUMBER. A field one entry leaves out never conflicts.
func (s *Session) UpsertComponentRevision(
	ctx context.Context,
	entry payload.ComponentVersionEntry,
	designRev domain.DesignRevision,
) (domain.ComponentRevision, error) {
	cv := entry.FusionComponentVersion
	if cv == nil {
		return domain.ComponentRevision{}, errMissingIdentifier("component version entry", "fusion_component_version")
	}

	comp, err := s.ResolveComponent(ctx, cv)
	if err != nil {
		return domain.ComponentRevision{}, err
	}

	number, err := cv.VersionNumber.Int()
	if err != nil {
		return domain.ComponentRevision{}, errInvalidVersionNumber(cv.UUID, err)
	}

	modifier, err := s.ResolveUser(ctx, cv.ModifiedBy)
	if err != nil {
		return domain.ComponentRevision{}, err
	}

	var external *int64
	if cv.ExternalDesignVersionID != "" {
		ref, err := s.tx.FindDesignRevisionByUUID(ctx, cv.ExternalDesignVersionID)
		if err != nil {
			if isNotFound(err) {
				return domain.ComponentRevision{}, errReferenceNotFound(cv.ExternalDesignVersionID)
			}
			return domain.ComponentRevision{}, storeError("find external design revision", err)
		}
		external = &ref.ID
	}

	key := revisionKey{componentID: comp.ID, number: number}
	claimed, ok := s.revisions[key].merge(newRevisionData(cv, external))
	if !ok {
		return domain.ComponentRevision{}, errDuplicateVersionNumber(cv.UUID, number,
			"appears twice in this payload with different revision data")
	}
	s.revisions[key] = claimed

	count, err := s.tx.CountComponentRevisions(ctx, comp.ID, number)
	if err != nil {
		return domain.ComponentRevision{}, storeError("count component revisions", err)
	}
	if count > 1 {
		return domain.ComponentRevision{}, errDuplicateVersionNumber(cv.UUID, number,
			fmt.Sprintf("is stored %d times", count))
	}

	designRevID := designRev.ID
	rev, o, err := upsert(
		func() (domain.ComponentRevision, error) {
			return s.tx.FindComponentRevision(ctx, comp.ID, number)
		},
		func() (domain.ComponentRevision, error) {
			return s.tx.CreateComponentRevision(ctx, domain.ComponentRevision{
				ComponentID:              comp.ID,
				VersionNumber:            number,
				RevisionDate:             cv.RevisionDate.Time,
				ModifiedByID:             userID(modifier),
				DesignRevisionID:         &designRevID,
				ExternalDesignRevisionID: external,
			})
		},
		func(existing domain.ComponentRevision) (domain.ComponentRevision, bool) {
			changed := false
			if !cv.RevisionDate.IsZero() && !cv.RevisionDate.Equal(existing.RevisionDate) {
				existing.RevisionDate = cv.RevisionDate.Time
				changed = true
			}
			if modifier != nil && !sameID(existing.ModifiedByID, userID(modifier)) {
				existing.ModifiedByID = userID(modifier)
				changed = true
			}
			if s.linksTo(cv.UUID, number, designRev) && !sameID(existing.DesignRevisionID, &designRevID) {
				existing.DesignRevisionID = &designRevID
				changed = true
			}
			if external != nil && !sameID(existing.ExternalDesignRevisionID, external) {
				existing.ExternalDesignRevisionID = external
				changed = true
			}
			return existing, changed
		},
		func(r domain.ComponentRevision) error { return s.tx.UpdateComponentRevision(ctx, r) },
	)
	if err != nil {
		return domain.ComponentRevision{}, storeError("upsert component revision "+cv.UUID, err)
	}
	parentKey := revisionKeyString(cv.UUID, number)
	if err := s.track(ctx, o, domain.KindComponentRevision, rev.ID, parentKey); err != nil {
		return domain.ComponentRevision{}, err
	}

	for _, line := range cv.AssemblyLines {
		if _, err := s.UpsertEdge(ctx, rev, parentKey, line); err != nil {
			return domain.ComponentRevision{}, err
		}
	}
	return rev, nil
}

// PlanDesignLinks records, for every component revision ds lists, the last
// design version listing it. Only that version's revision is linked as the
// component revision's design revision, so re-syncing a payload that lists
// one component revision under several design versions writes nothing.
//
// Entries without a usable uuid or version number are skipped; the sync
// rejects them later.
func (s *Session) PlanDesignLinks(ds payload.DesignStructure) {
	for _, dv := range ds.Versions {
		for _, entry := range dv.ComponentVersions {
			cv := entry.FusionComponentVersion
			if cv == nil || cv.UUID == "" {
				continue
			}
			number, err := cv.VersionNumber.Int()
			if err != nil {
				continue
			}
			s.linkOwners[revisionKeyString(cv.UUID, number)] = dv.UUID
		}
	}
}

// linksTo reports whether designRev may become the design revision of the
// (uuid, number) component revision. Without a plan the latest call wins.
func (s *Session) linksTo(uuid string, number int, designRev domain.DesignRevision) bool {
	owner, ok := s.linkOwners[revisionKeyString(uuid, number)]
	return !ok || owner == designRev.UUID
}

// revisionData is the revision data two entries for the same (component,
// number) must agree on. Empty fields are unset. The owning design revision
// is left out: one component revision is commonly listed by several design
// revisions.
type revisionData struct {
	date     string
	modifier string
	external string
}

func newRevisionData(cv *payload.ComponentVersion, external *int64) revisionData {
	var d revisionData
	if !cv.RevisionDate.IsZero() {
		d.date = cv.RevisionDate.UTC().Format(time.RFC3339Nano)
	}
	if cv.ModifiedBy != nil {
		d.modifier = cv.ModifiedBy.UUID
	}
	if external != nil {
		d.external = strconv.FormatInt(*external, 10)
	}
	return d
}

// merge fills the fields d leaves unset from o. It reports false when both
// set a field to different values.
func (d revisionData) merge(o revisionData) (revisionData, bool) {
	ok := true
	pick := func(a, b string) string {
		switch {
		case a == "":
			return b
		case b != "" && a != b:
			ok = false
		}
		return a
	}
	return revisionData{
		date:     pick(d.date, o.date),
		modifier: pick(d.modifier, o.modifier),
		external: pick(d.external, o.external),
	}, ok
}

func revisionKeyString(uuid string, number int) string {
	return uuid + "@" + strconv.Itoa(number)
}
