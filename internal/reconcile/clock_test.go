package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	first, second := g.Generate(), g.Generate()

	id, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NotEqual(t, first, second)
	assert.Less(t, first, second, "UUIDv7 ids sort by creation time")
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("run-a", "run-b")
	assert.Equal(t, "run-a", g.Generate())
	assert.Equal(t, "run-b", g.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { g.Generate() })
}

func TestFixedGenerator_DrivesEngine(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t, WithRunIDGenerator(NewFixedGenerator("first", "second")))

	res, err := eng.SyncDesign(ctx, gearbox())
	require.NoError(t, err)
	assert.Equal(t, "first", res.RunID)

	res, err = eng.SyncDesign(ctx, gearbox())
	require.NoError(t, err)
	assert.Equal(t, "second", res.RunID)

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].ID)
}
