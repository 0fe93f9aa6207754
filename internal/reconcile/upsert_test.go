package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusionsync/internal/domain"
)

type record struct {
	id   int64
	name string
}

func TestUpsert(t *testing.T) {
	notFound := func() (record, error) { return record{}, domain.ErrNotFound }
	found := func() (record, error) { return record{id: 1, name: "old"}, nil }
	create := func() (record, error) { return record{id: 2, name: "new"}, nil }
	rename := func(to string) func(record) (record, bool) {
		return func(r record) (record, bool) {
			if r.name == to {
				return r, false
			}
			r.name = to
			return r, true
		}
	}

	t.Run("creates when absent", func(t *testing.T) {
		rec, o, err := upsert(notFound, create, rename("x"), nil)
		require.NoError(t, err)
		assert.Equal(t, created, o)
		assert.Equal(t, int64(2), rec.id)
	})

	t.Run("leaves unchanged record alone", func(t *testing.T) {
		saved := false
		rec, o, err := upsert(found, create, rename("old"), func(record) error {
			saved = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, unchanged, o)
		assert.Equal(t, "old", rec.name)
		assert.False(t, saved)
	})

	t.Run("saves merged record", func(t *testing.T) {
		var saved record
		rec, o, err := upsert(found, create, rename("fresh"), func(r record) error {
			saved = r
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, updated, o)
		assert.Equal(t, "fresh", rec.name)
		assert.Equal(t, rec, saved)
	})

	t.Run("propagates errors", func(t *testing.T) {
		boom := errors.New("boom")

		_, _, err := upsert(func() (record, error) { return record{}, boom }, create, nil, nil)
		assert.ErrorIs(t, err, boom)

		_, _, err = upsert(notFound, func() (record, error) { return record{}, domain.ErrConflict }, nil, nil)
		assert.ErrorIs(t, err, domain.ErrConflict)

		_, _, err = upsert(found, create, rename("fresh"), func(record) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestResolveOrCreate_NeverUpdates(t *testing.T) {
	rec, o, err := resolveOrCreate(
		func() (record, error) { return record{id: 1, name: "kept"}, nil },
		func() (record, error) { return record{}, errors.New("must not create") },
	)
	require.NoError(t, err)
	assert.Equal(t, unchanged, o)
	assert.Equal(t, "kept", rec.name)
}

func TestSameID(t *testing.T) {
	one, other := int64(1), int64(1)
	two := int64(2)

	assert.True(t, sameID(nil, nil))
	assert.True(t, sameID(&one, &other))
	assert.False(t, sameID(&one, &two))
	assert.False(t, sameID(&one, nil))
	assert.False(t, sameID(nil, &two))
}
