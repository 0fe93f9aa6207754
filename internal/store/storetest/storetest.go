// Package storetest is a conformance suite for domain.Store
// implementations. Every store package runs it from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/testutil"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) domain.Store

// Run runs the full suite against stores created by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, domain.Store)
	}{
		{"IdentityInsertOrSelect", testIdentityInsertOrSelect},
		{"NotFound", testNotFound},
		{"RevisionConflicts", testRevisionConflicts},
		{"DesignRevisionConflicts", testDesignRevisionConflicts},
		{"EdgeConflicts", testEdgeConflicts},
		{"EdgeOrdering", testEdgeOrdering},
		{"LatestAndCounts", testLatestAndCounts},
		{"UpdateRoundTrip", testUpdateRoundTrip},
		{"UpdateMissing", testUpdateMissing},
		{"Rollback", testRollback},
		{"RunLedger", testRunLedger},
		{"Events", testEvents},
		{"EngineIdempotence", testEngineIdempotence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() { st.Close() })
			tt.fn(t, st)
		})
	}
}

var when = time.Date(2024, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, st domain.Store, fn func(ctx context.Context, tx domain.Tx)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.WithinTx(ctx, func(tx domain.Tx) error {
		fn(ctx, tx)
		return nil
	}))
}

// seed creates one user, component with two revisions, and design with one
// revision.
type seed struct {
	user      domain.User
	component domain.Component
	rev1      domain.ComponentRevision
	rev2      domain.ComponentRevision
	design    domain.Design
	designRev domain.DesignRevision
}

func seedRecords(t *testing.T, ctx context.Context, tx domain.Tx) seed {
	t.Helper()
	var s seed
	var err error

	s.user, err = tx.CreateUser(ctx, domain.User{UUID: "u1", Name: "Ada", Email: "ada@example.com", Active: true, CreatedAt: when})
	require.NoError(t, err)

	s.component, err = tx.CreateComponent(ctx, domain.Component{UUID: "c1", Name: "Bracket", CreationDate: when, CreatedByID: &s.user.ID})
	require.NoError(t, err)

	s.design, err = tx.CreateDesign(ctx, domain.Design{UUID: "d1", Name: "Rig", CreationDate: when, CreatedByID: &s.user.ID})
	require.NoError(t, err)

	s.designRev, err = tx.CreateDesignRevision(ctx, domain.DesignRevision{DesignID: s.design.ID, UUID: "d1-v1", VersionNumber: 1, RevisionDate: when})
	require.NoError(t, err)

	s.rev1, err = tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: s.component.ID, VersionNumber: 1, RevisionDate: when, DesignRevisionID: &s.designRev.ID})
	require.NoError(t, err)

	s.rev2, err = tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: s.component.ID, VersionNumber: 2})
	require.NoError(t, err)
	return s
}

func testIdentityInsertOrSelect(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		first, err := tx.CreateUser(ctx, domain.User{UUID: "u1", Email: "a@example.com", Name: "first"})
		require.NoError(t, err)
		second, err := tx.CreateUser(ctx, domain.User{UUID: "u1", Email: "b@example.com", Name: "second"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "first", second.Name)

		c1, err := tx.CreateComponent(ctx, domain.Component{UUID: "c1", Name: "one"})
		require.NoError(t, err)
		c2, err := tx.CreateComponent(ctx, domain.Component{UUID: "c1", Name: "two"})
		require.NoError(t, err)
		assert.Equal(t, c1, c2)

		d1, err := tx.CreateDesign(ctx, domain.Design{UUID: "d1"})
		require.NoError(t, err)
		d2, err := tx.CreateDesign(ctx, domain.Design{UUID: "d1", Name: "renamed"})
		require.NoError(t, err)
		assert.Equal(t, d1, d2)

		counts, err := tx.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Counts{Users: 1, Components: 1, Designs: 1}, counts)
	})
}

func testNotFound(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		_, err := tx.FindUserByUUID(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.FindComponentByUUID(ctx, "none")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetComponent(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.FindComponentRevision(ctx, 42, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetComponentRevision(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.LatestComponentRevision(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.FindEdge(ctx, 1, 2)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.FindDesignByUUID(ctx, "none")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetDesign(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.FindDesignRevision(ctx, 42, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.FindDesignRevisionByUUID(ctx, "none")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetDesignRevision(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		edges, err := tx.ChildEdges(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func testRevisionConflicts(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		s := seedRecords(t, ctx, tx)
		_, err := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: s.component.ID, VersionNumber: 1})
		assert.ErrorIs(t, err, domain.ErrConflict)

		n, err := tx.CountComponentRevisions(ctx, s.component.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func testDesignRevisionConflicts(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		s := seedRecords(t, ctx, tx)

		_, err := tx.CreateDesignRevision(ctx, domain.DesignRevision{DesignID: s.design.ID, UUID: "d1-other", VersionNumber: 1})
		assert.ErrorIs(t, err, domain.ErrConflict, "taken number")

		_, err = tx.CreateDesignRevision(ctx, domain.DesignRevision{DesignID: s.design.ID, UUID: "d1-v1", VersionNumber: 2})
		assert.ErrorIs(t, err, domain.ErrConflict, "taken uuid")

		n, err := tx.CountDesignRevisions(ctx, s.design.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func testEdgeConflicts(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		s := seedRecords(t, ctx, tx)

		edge, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: s.rev2.ID, ChildRevisionID: s.rev1.ID, Quantity: 2, Sequence: 10})
		require.NoError(t, err)
		assert.NotZero(t, edge.ID)

		_, err = tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: s.rev2.ID, ChildRevisionID: s.rev1.ID, Quantity: 5, Sequence: 10})
		assert.ErrorIs(t, err, domain.ErrConflict)

		found, err := tx.FindEdge(ctx, s.rev2.ID, s.rev1.ID)
		require.NoError(t, err)
		assert.Equal(t, edge, found)
	})
}

func testEdgeOrdering(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		comp, err := tx.CreateComponent(ctx, domain.Component{UUID: "asm"})
		require.NoError(t, err)

		revs := make([]domain.ComponentRevision, 4)
		for i := range revs {
			revs[i], err = tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: comp.ID, VersionNumber: i + 1})
			require.NoError(t, err)
		}
		parent := revs[0]

		// Inserted out of sequence order; two share sequence 20.
		e1, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: parent.ID, ChildRevisionID: revs[1].ID, Quantity: 1, Sequence: 20})
		require.NoError(t, err)
		e2, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: parent.ID, ChildRevisionID: revs[2].ID, Quantity: 1, Sequence: 5})
		require.NoError(t, err)
		e3, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: parent.ID, ChildRevisionID: revs[3].ID, Quantity: 1, Sequence: 20})
		require.NoError(t, err)
		e4, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: revs[2].ID, ChildRevisionID: revs[3].ID, Quantity: 1, Sequence: 1})
		require.NoError(t, err)

		children, err := tx.ChildEdges(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.AssemblyEdge{e2, e1, e3}, children)

		parents, err := tx.ParentEdges(ctx, revs[3].ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.AssemblyEdge{e3, e4}, parents)
	})
}

func testLatestAndCounts(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		s := seedRecords(t, ctx, tx)

		latest, err := tx.LatestComponentRevision(ctx, s.component.ID)
		require.NoError(t, err)
		assert.Equal(t, s.rev2.ID, latest.ID)

		all, err := tx.CountComponentRevisions(ctx, s.component.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, all)

		none, err := tx.CountComponentRevisions(ctx, s.component.ID, 9)
		require.NoError(t, err)
		assert.Zero(t, none)

		counts, err := tx.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Counts{
			Users:              1,
			Components:         1,
			ComponentRevisions: 2,
			Designs:            1,
			DesignRevisions:    1,
		}, counts)
	})
}

func testUpdateRoundTrip(t *testing.T, st domain.Store) {
	var s seed
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		s = seedRecords(t, ctx, tx)
	})

	later := when.Add(48 * time.Hour)
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		s.component.Name = "Bracket v2"
		require.NoError(t, tx.UpdateComponent(ctx, s.component))

		s.rev2.RevisionDate = later
		s.rev2.ModifiedByID = &s.user.ID
		s.rev2.ExternalDesignRevisionID = &s.designRev.ID
		require.NoError(t, tx.UpdateComponentRevision(ctx, s.rev2))

		s.rev1.DesignRevisionID = nil
		require.NoError(t, tx.UpdateComponentRevision(ctx, s.rev1))

		s.design.Name = "Rig v2"
		require.NoError(t, tx.UpdateDesign(ctx, s.design))

		s.designRev.ModifiedByID = &s.user.ID
		s.designRev.RevisionDate = later
		require.NoError(t, tx.UpdateDesignRevision(ctx, s.designRev))
	})

	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		user, err := tx.FindUserByUUID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.True(t, user.Active)
		assert.True(t, when.Equal(user.CreatedAt))

		comp, err := tx.GetComponent(ctx, s.component.ID)
		require.NoError(t, err)
		assert.Equal(t, "Bracket v2", comp.Name)
		assert.True(t, when.Equal(comp.CreationDate))
		require.NotNil(t, comp.CreatedByID)
		assert.Equal(t, s.user.ID, *comp.CreatedByID)

		rev2, err := tx.FindComponentRevision(ctx, s.component.ID, 2)
		require.NoError(t, err)
		assert.True(t, later.Equal(rev2.RevisionDate))
		assert.Equal(t, &s.user.ID, rev2.ModifiedByID)
		assert.Equal(t, &s.designRev.ID, rev2.ExternalDesignRevisionID)
		assert.Nil(t, rev2.DesignRevisionID)

		rev1, err := tx.GetComponentRevision(ctx, s.rev1.ID)
		require.NoError(t, err)
		assert.Nil(t, rev1.DesignRevisionID)
		assert.Nil(t, rev1.ModifiedByID)

		design, err := tx.GetDesign(ctx, s.design.ID)
		require.NoError(t, err)
		assert.Equal(t, "Rig v2", design.Name)

		dr, err := tx.FindDesignRevisionByUUID(ctx, "d1-v1")
		require.NoError(t, err)
		assert.Equal(t, s.design.ID, dr.DesignID)
		assert.True(t, later.Equal(dr.RevisionDate))
		assert.Equal(t, &s.user.ID, dr.ModifiedByID)
	})
}

func testUpdateMissing(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		assert.ErrorIs(t, tx.UpdateComponent(ctx, domain.Component{ID: 99}), domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateComponentRevision(ctx, domain.ComponentRevision{ID: 99}), domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateEdge(ctx, domain.AssemblyEdge{ID: 99, Quantity: 1}), domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateDesign(ctx, domain.Design{ID: 99}), domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateDesignRevision(ctx, domain.DesignRevision{ID: 99}), domain.ErrNotFound)
	})
}

func testRollback(t *testing.T, st domain.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithinTx(ctx, func(tx domain.Tx) error {
		seedRecords(t, ctx, tx)
		require.NoError(t, tx.AppendEvent(ctx, domain.SyncEvent{
			RunID: "rolled-back", Seq: 1, Kind: domain.KindUser, EntityID: 1, Action: domain.ActionCreated,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		counts, err := tx.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Counts{}, counts)
	})

	events, err := st.ListEvents(ctx, "rolled-back")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testRunLedger(t *testing.T, st domain.Store) {
	ctx := context.Background()

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	first := domain.SyncRun{
		ID:            "run-a",
		DesignUUID:    "d1",
		PayloadDigest: "abc",
		Status:        domain.RunSucceeded,
		Created:       3,
		StartedAt:     when,
		FinishedAt:    when.Add(time.Second),
	}
	second := domain.SyncRun{
		ID:           "run-b",
		Status:       domain.RunFailed,
		ErrorCode:    "MALFORMED_PAYLOAD",
		ErrorMessage: "bad json",
		StartedAt:    when.Add(time.Minute),
		FinishedAt:   when.Add(time.Minute),
	}
	require.NoError(t, st.RecordRun(ctx, first))
	require.NoError(t, st.RecordRun(ctx, second))

	runs, err = st.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, domain.RunFailed, runs[0].Status)
	assert.Equal(t, "MALFORMED_PAYLOAD", runs[0].ErrorCode)
	assert.Equal(t, "bad json", runs[0].ErrorMessage)

	got := runs[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.DesignUUID, got.DesignUUID)
	assert.Equal(t, first.PayloadDigest, got.PayloadDigest)
	assert.Equal(t, first.Status, got.Status)
	assert.Equal(t, first.Created, got.Created)
	assert.True(t, first.StartedAt.Equal(got.StartedAt))
	assert.True(t, first.FinishedAt.Equal(got.FinishedAt))

	limited, err := st.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-b", limited[0].ID)
}

func testEvents(t *testing.T, st domain.Store) {
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		for _, ev := range []domain.SyncEvent{
			{RunID: "r1", Seq: 2, Kind: domain.KindComponent, EntityID: 7, ExternalKey: "c1", Action: domain.ActionUpdated},
			{RunID: "r1", Seq: 1, Kind: domain.KindUser, EntityID: 3, ExternalKey: "u1", Action: domain.ActionCreated},
			{RunID: "r2", Seq: 1, Kind: domain.KindDesign, EntityID: 1, ExternalKey: "d1", Action: domain.ActionCreated},
		} {
			require.NoError(t, tx.AppendEvent(ctx, ev))
		}
	})

	events, err := st.ListEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, domain.KindUser, events[0].Kind)
	assert.Equal(t, "u1", events[0].ExternalKey)
	assert.Equal(t, domain.ActionUpdated, events[1].Action)
	assert.Equal(t, int64(7), events[1].EntityID)
}

func testEngineIdempotence(t *testing.T, st domain.Store) {
	ctx := context.Background()
	e := reconcile.New(st, reconcile.WithRunIDGenerator(testutil.NewSequentialRunIDs("")))

	ds := testutil.Design("rig",
		testutil.DesignVersion("rig-v1", 1,
			testutil.Component("bolt", 1),
			testutil.Component("plate", 1, testutil.Line("bolt", 4)),
		),
		testutil.DesignVersion("rig-v2", 2,
			testutil.Component("bolt", 1),
			testutil.Component("plate", 2, testutil.Line("bolt", 6)),
			testutil.Component("frame", 1,
				testutil.LineAt("plate", 1, 1),
				testutil.LineAt("plate", 2, 1),
			),
		),
	)

	first, err := e.SyncDesign(ctx, ds)
	require.NoError(t, err)

	var before domain.Counts
	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		before, err = tx.Counts(ctx)
		require.NoError(t, err)
	})
	assert.Equal(t, domain.Counts{
		Users:              1,
		Components:         3,
		ComponentRevisions: 4,
		AssemblyEdges:      4,
		Designs:            1,
		DesignRevisions:    2,
	}, before)

	second, err := e.SyncDesign(ctx, ds)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Updated)
	assert.Equal(t, first.Digest, second.Digest)

	inTx(t, st, func(ctx context.Context, tx domain.Tx) {
		after, err := tx.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	events, err := st.ListEvents(ctx, first.RunID)
	require.NoError(t, err)
	assert.Len(t, events, first.Created+first.Updated)

	// A cycle through the stored graph is rejected and leaves it unchanged.
	closing := testutil.Design("rig", testutil.DesignVersion("rig-v2", 2,
		testutil.Component("bolt", 1, testutil.Line("frame", 1)),
	))
	_, err = e.SyncDesign(ctx, closing)
	require.Error(t, err)
	assert.True(t, reconcile.IsCode(err, reconcile.CodeRecursiveReference))

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, domain.RunFailed, runs[0].Status)
}
