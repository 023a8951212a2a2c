package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedNamespace(t *testing.T) {
	const ns = "test-shared-namespace"
	defer Forget(ns)
	ctx := context.Background()

	one := New(map[string]string{"namespace": ns})
	two := New(map[string]string{"namespace": ns})

	err := one.Put(ctx, "b/k", bytes.NewBufferString("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSessionClosed))
	assert.False(t, IsOpen(one))

	require.NoError(t, one.Open(ctx))
	require.NoError(t, one.Open(ctx))
	assert.Equal(t, 1, Opens(one))
	require.NoError(t, one.Put(ctx, "b/k", bytes.NewBufferString("x")))

	require.NoError(t, two.Open(ctx))
	b, err := storage.ReadAll(ctx, two, "b/k")
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))

	require.NoError(t, one.Close())
	assert.False(t, IsOpen(one))
	assert.Equal(t, "memory://"+ns, one.String())
}
