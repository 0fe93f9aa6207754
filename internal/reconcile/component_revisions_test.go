package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/store/memstore"
	"github.com/roach88/fusionsync/internal/testutil"
)

func TestUpsertComponentRevision_AppliesAssemblyLines(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	err := st.WithinTx(ctx, func(tx domain.Tx) error {
		s := NewSession(tx, "run-0001")
		design, err := s.ResolveDesign(ctx, testutil.Design("D"))
		require.NoError(t, err)
		rev, err := s.UpsertDesignRevision(ctx, design, testutil.DesignVersion("D-v1", 1))
		require.NoError(t, err)

		bolt, err := s.UpsertComponentRevision(ctx, testutil.Component("bolt", 1), rev)
		require.NoError(t, err)
		housing, err := s.UpsertComponentRevision(ctx,
			testutil.Component("housing", 1, testutil.Line("bolt", 4)), rev)
		require.NoError(t, err)

		edges, err := tx.ChildEdges(ctx, housing.ID)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, bolt.ID, edges[0].ChildRevisionID)
		assert.Equal(t, 4, edges[0].Quantity)

		_, err = s.UpsertComponentRevision(ctx,
			testutil.Component("ring", 1, testutil.LineAt("ring", 1, 1)), rev)
		assert.True(t, IsCode(err, CodeSelfReference), "got %v", err)
		return nil
	})
	require.NoError(t, err)
}
