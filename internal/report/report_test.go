package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/store/memstore"
	"github.com/roach88/fusionsync/internal/testutil"
)

// syncedGearbox stores housing@1 → (shaft@1 x3 → bolt@1 x2, bolt@1 x8) in
// design version 1, and an unused bolt@2 in design version 2.
func syncedGearbox(t *testing.T) *memstore.Store {
	t.Helper()
	st := memstore.New()
	clock := testutil.NewFakeClock(testutil.Epoch, time.Second)
	eng := reconcile.New(st,
		reconcile.WithRunIDGenerator(testutil.NewSequentialRunIDs("")),
		reconcile.WithNow(clock.Now),
	)

	ds := testutil.Design("gearbox",
		testutil.DesignVersion("gearbox-v1", 1,
			testutil.Component("bolt", 1),
			testutil.Component("shaft", 1, testutil.Line("bolt", 2)),
			testutil.Component("housing", 1,
				testutil.Line("shaft", 3),
				testutil.Line("bolt", 8),
			),
		),
		testutil.DesignVersion("gearbox-v2", 2,
			testutil.Component("bolt", 2),
		),
	)
	_, err := eng.SyncDesign(context.Background(), ds)
	require.NoError(t, err)
	return st
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCounts(t *testing.T) {
	r := New(syncedGearbox(t))

	c, err := r.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{
		Users:              1,
		Components:         3,
		ComponentRevisions: 4,
		AssemblyEdges:      3,
		Designs:            1,
		DesignRevisions:    2,
	}, c)
}

func TestVersionCounts(t *testing.T) {
	r := New(syncedGearbox(t))
	ctx := context.Background()

	n, err := r.ComponentVersionCount(ctx, "bolt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.ComponentVersionCount(ctx, "housing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.DesignVersionCount(ctx, "gearbox")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.ComponentVersionCount(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.DesignVersionCount(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExplode(t *testing.T) {
	r := New(syncedGearbox(t))

	bom, err := r.Explode(context.Background(), "housing", 0)
	require.NoError(t, err)

	assert.Equal(t, "housing@1", bom.Root.String())
	require.Len(t, bom.Lines, 4)
	assert.Equal(t, 0, bom.Lines[0].Depth)
	assert.Equal(t, 2, bom.Lines[2].Depth)
	assert.Equal(t, 6, bom.Lines[2].Total)
	assert.Equal(t, map[string]int{"shaft@1": 3, "bolt@1": 14}, bom.Totals())

	var buf bytes.Buffer
	require.NoError(t, bom.WriteText(&buf))
	newGolden(t).Assert(t, "bom_housing", buf.Bytes())
}

func TestExplode_Leaf(t *testing.T) {
	r := New(syncedGearbox(t))

	bom, err := r.Explode(context.Background(), "bolt", 0)
	require.NoError(t, err)
	assert.Equal(t, "bolt@2", bom.Root.String())
	assert.Len(t, bom.Lines, 1)
	assert.Empty(t, bom.Totals())
}

func TestExplode_NotFound(t *testing.T) {
	r := New(syncedGearbox(t))
	ctx := context.Background()

	_, err := r.Explode(ctx, "missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Explode(ctx, "housing", 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "housing@7")
}

func TestExplode_StoredCycle(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	// The engine refuses to write cycles, so build one by hand.
	require.NoError(t, st.WithinTx(ctx, func(tx domain.Tx) error {
		a, _ := tx.CreateComponent(ctx, domain.Component{UUID: "a"})
		b, _ := tx.CreateComponent(ctx, domain.Component{UUID: "b"})
		ra, _ := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: a.ID, VersionNumber: 1})
		rb, _ := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: b.ID, VersionNumber: 1})
		if _, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: ra.ID, ChildRevisionID: rb.ID, Quantity: 1}); err != nil {
			return err
		}
		_, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: rb.ID, ChildRevisionID: ra.ID, Quantity: 1})
		return err
	}))

	_, err := New(st).Explode(ctx, "a", 1)
	assert.True(t, errors.Is(err, ErrCycle), "got %v", err)
}

// syncedLadder stores a diamond ladder: root uses both parts of layer n,
// every part of layer k uses both parts of layer k-1, and both parts of
// layer 1 use leaf. Explode lists 2^(n+1) + 2^n - 1 lines.
func syncedLadder(t *testing.T, layers int) *memstore.Store {
	t.Helper()
	st := memstore.New()
	eng := reconcile.New(st, reconcile.WithRunIDGenerator(testutil.NewSequentialRunIDs("")))

	entries := []payload.ComponentVersionEntry{testutil.Component("leaf", 1)}
	below := []string{"leaf"}
	for k := 1; k <= layers; k++ {
		var names []string
		for _, side := range []string{"a", "b"} {
			name := fmt.Sprintf("l%d%s", k, side)
			var lines []payload.AssemblyLine
			for _, child := range below {
				lines = append(lines, testutil.Line(child, 1))
			}
			entries = append(entries, testutil.Component(name, 1, lines...))
			names = append(names, name)
		}
		below = names
	}
	entries = append(entries, testutil.Component("root", 1,
		testutil.Line(below[0], 1), testutil.Line(below[1], 1)))

	_, err := eng.SyncDesign(context.Background(), testutil.Design("ladder",
		testutil.DesignVersion("ladder-v1", 1, entries...)))
	require.NoError(t, err)
	return st
}

func TestExplode_LineLimit(t *testing.T) {
	ctx := context.Background()
	st := syncedLadder(t, 3)

	bom, err := New(st, WithMaxBOMLines(23)).Explode(ctx, "root", 0)
	require.NoError(t, err)
	assert.Len(t, bom.Lines, 23)
	assert.Equal(t, 8, bom.Totals()["leaf@1"])

	_, err = New(st, WithMaxBOMLines(22)).Explode(ctx, "root", 0)
	assert.ErrorIs(t, err, ErrTooLarge)

	bom, err = New(st, WithMaxBOMLines(0)).Explode(ctx, "root", 0)
	require.NoError(t, err)
	assert.Len(t, bom.Lines, 23)
}

func TestExplode_DefaultLineLimit(t *testing.T) {
	// 2^17 + 2^16 - 1 lines, past the default.
	_, err := New(syncedLadder(t, 16)).Explode(context.Background(), "root", 0)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestExplode_QuantityOverflow(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	big := math.MaxInt/2 + 1
	require.NoError(t, st.WithinTx(ctx, func(tx domain.Tx) error {
		var revs []domain.ComponentRevision
		for _, uuid := range []string{"a", "b", "c"} {
			c, err := tx.CreateComponent(ctx, domain.Component{UUID: uuid})
			if err != nil {
				return err
			}
			r, err := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: c.ID, VersionNumber: 1})
			if err != nil {
				return err
			}
			revs = append(revs, r)
		}
		if _, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: revs[0].ID, ChildRevisionID: revs[1].ID, Quantity: big}); err != nil {
			return err
		}
		_, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: revs[1].ID, ChildRevisionID: revs[2].ID, Quantity: 2})
		return err
	}))

	bom, err := New(st).Explode(ctx, "b", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, bom.Totals()["c@1"])

	_, err = New(st).Explode(ctx, "a", 1)
	assert.ErrorIs(t, err, ErrQuantityOverflow)
}

func TestBOMTotals_Capped(t *testing.T) {
	ref := RevisionRef{Component: "bolt", Version: 1}
	bom := &BOM{Lines: []BOMLine{
		{RevisionRef: RevisionRef{Component: "housing", Version: 1}, Total: 1},
		{RevisionRef: ref, Depth: 1, Total: math.MaxInt - 1},
		{RevisionRef: ref, Depth: 2, Total: 5},
	}}
	assert.Equal(t, map[string]int{"bolt@1": math.MaxInt}, bom.Totals())
}

func TestUsedIn(t *testing.T) {
	r := New(syncedGearbox(t))

	rep, err := r.UsedIn(context.Background(), "bolt", 1)
	require.NoError(t, err)

	require.Len(t, rep.Usages, 2)
	assert.Equal(t, "shaft@1", rep.Usages[0].RevisionRef.String())
	assert.Equal(t, 1, rep.Usages[0].Depth)
	assert.Equal(t, "housing@1", rep.Usages[1].RevisionRef.String())
	assert.Equal(t, 8, rep.Usages[1].Quantity)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	newGolden(t).Assert(t, "used_in_bolt", buf.Bytes())
}

func TestUsedIn_Transitive(t *testing.T) {
	st := memstore.New()
	clock := testutil.NewFakeClock(testutil.Epoch, time.Second)
	eng := reconcile.New(st, reconcile.WithNow(clock.Now))

	_, err := eng.SyncDesign(context.Background(), testutil.Design("chain",
		testutil.DesignVersion("chain-v1", 1,
			testutil.Component("pin", 1),
			testutil.Component("hinge", 1, testutil.Line("pin", 2)),
			testutil.Component("door", 1, testutil.Line("hinge", 3)),
			testutil.Component("cabinet", 1, testutil.Line("door", 2)),
		),
	))
	require.NoError(t, err)

	rep, err := New(st).UsedIn(context.Background(), "pin", 0)
	require.NoError(t, err)

	var got []string
	var depths []int
	for _, u := range rep.Usages {
		got = append(got, u.RevisionRef.String())
		depths = append(depths, u.Depth)
	}
	assert.Equal(t, []string{"hinge@1", "door@1", "cabinet@1"}, got)
	assert.Equal(t, []int{1, 2, 3}, depths)
}

func TestUsedIn_Unused(t *testing.T) {
	r := New(syncedGearbox(t))

	rep, err := r.UsedIn(context.Background(), "bolt", 0)
	require.NoError(t, err)
	assert.Equal(t, "bolt@2", rep.Target.String())
	assert.Empty(t, rep.Usages)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	assert.Contains(t, buf.String(), "not used in any assembly")
}
