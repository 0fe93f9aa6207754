package reconcile

import (
	"errors"

	"github.com/roach88/fusionsync/internal/domain"
)

// outcome is what an upsert did to the store.
type outcome int

const (
	unchanged outcome = iota
	created
	updated
)

// resolveOrCreate returns the record find locates, or the one create
// writes when find reports domain.ErrNotFound. Existing records are never
// modified.
func resolveOrCreate[T any](find func() (T, error), create func() (T, error)) (T, outcome, error) {
	return upsert(find, create, nil, nil)
}

// upsert is resolveOrCreate plus last-write-wins on an existing record:
// merge returns the record with the incoming non-identifying fields applied
// and whether anything changed; save persists it only if so.
//
// Every find/create/save error is returned unclassified; callers pass it
// through storeError.
func upsert[T any](
	find func() (T, error),
	create func() (T, error),
	merge func(existing T) (T, bool),
	save func(T) error,
) (T, outcome, error) {
	var zero T

	existing, err := find()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		rec, err := create()
		if err != nil {
			return zero, unchanged, err
		}
		return rec, created, nil
	default:
		return zero, unchanged, err
	}

	if merge == nil {
		return existing, unchanged, nil
	}
	next, changed := merge(existing)
	if !changed {
		return existing, unchanged, nil
	}
	if err := save(next); err != nil {
		return zero, unchanged, err
	}
	return next, updated, nil
}

// lookup adapts a store find to (value, found, err).
func lookup[T any](find func() (T, error)) (T, bool, error) {
	v, err := find()
	if errors.Is(err, domain.ErrNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
