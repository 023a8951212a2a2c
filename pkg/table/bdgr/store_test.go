package bdgr

import (
	"context"
	"testing"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStaging(t testing.TB) table.Store {
	s, err := New(Logger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStagingOrder(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)

	for i := 0; i < 250; i++ {
		require.NoError(t, s.WriteTable(ctx, "t", []table.Row{{"i": i}}, table.Append))
	}
	require.NoError(t, s.WriteTable(ctx, "tt", []table.Row{{"other": true}}, table.Append))

	rows, err := s.ReadTable(ctx, "t")
	require.NoError(t, err)
	require.Len(t, rows, 250)
	for i, row := range rows {
		assert.EqualValues(t, i, row["i"])
	}
}

func TestStagingLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)

	exists, err := s.TableExists(ctx, "t")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = s.ReadTable(ctx, "t")
	assert.True(t, errors.Is(err, table.ErrNoTable))

	require.NoError(t, s.WriteTable(ctx, "t", nil, table.Append))
	rows, err := s.ReadTable(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.WriteTable(ctx, "t", []table.Row{{"a": 1}, {"a": 2}}, table.Append))
	require.NoError(t, s.WriteTable(ctx, "t", []table.Row{{"a": 3}}, table.Replace))
	rows, err = s.ReadTable(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"a": float64(3)}}, rows)

	require.NoError(t, s.DropTable(ctx, "t"))
	exists, err = s.TableExists(ctx, "t")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, errors.Is(s.DropTable(ctx, "t"), table.ErrNoTable))
}
