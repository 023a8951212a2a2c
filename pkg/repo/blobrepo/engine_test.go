package blobrepo

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/localfs"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, threshold int64, opts ...Option) (*Engine, storage.Store) {
	store := localfs.New(afero.NewMemMapFs())
	e, err := New(store, serialize.JSONLines, threshold, append(opts, Logger(zap.NewNop()))...)
	require.NoError(t, err)
	return e, store
}

func durable(t *testing.T, store storage.Store, key string) string {
	b, err := storage.ReadAll(context.Background(), store, key)
	require.NoError(t, err)
	return string(b)
}

func rec(k string, v interface{}) []serialize.Record {
	return []serialize.Record{{k: v}}
}

func TestNewEngine(t *testing.T) {
	store := localfs.New(afero.NewMemMapFs())
	_, err := New(store, serialize.JSONLines, 0)
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	_, err = New(store, serialize.JSONLines, -5)
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	_, err = New(store, nil, 10)
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	e, err := New(store, serialize.JSONLines, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), e.Threshold())
	assert.Equal(t, "localfs", e.String())
}

func TestEngineBelowThreshold(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, 1024)

	require.NoError(t, e.Write(ctx, []serialize.Record{{"a": 1}, {"b": 2}}, "x/y.json"))
	assert.Equal(t, "x/y.json", e.Cursor())

	size, ok := e.Pending("x/y.json")
	require.True(t, ok)
	assert.Equal(t, int64(len("{\"a\":1}\n{\"b\":2}\n")), size)

	// the target is created durably, but nothing is written yet
	assert.Equal(t, "", durable(t, store, "x/y.json"))

	v, err := e.Flush(ctx, "x/y.json", repo.Threshold)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, "", durable(t, store, "x/y.json"))

	v, err = e.Flush(ctx, "x/y.json", repo.Force)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", durable(t, store, "x/y.json"))

	size, ok = e.Pending("x/y.json")
	require.True(t, ok)
	assert.Zero(t, size)

	// a second force flush is a no-op
	_, err = e.Flush(ctx, "x/y.json", repo.Force)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", durable(t, store, "x/y.json"))
}

func TestEngineThresholdFlush(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, 10)

	require.NoError(t, e.Write(ctx, rec("a", 1), "t.json"))
	assert.Equal(t, "", durable(t, store, "t.json"))

	require.NoError(t, e.Write(ctx, rec("b", 2), "t.json"))
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", durable(t, store, "t.json"))
	size, _ := e.Pending("t.json")
	assert.Zero(t, size)

	// already durable lines are not duplicated
	require.NoError(t, e.Write(ctx, []serialize.Record{{"a": 1}, {"c": 3}}, "t.json"))
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n{\"c\":3}\n", durable(t, store, "t.json"))
}

func TestEnginePreview(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, 1024)
	require.NoError(t, store.Put(ctx, "p.json", strings.NewReader("{\"a\":1}\n")))

	require.NoError(t, e.Write(ctx, []serialize.Record{{"a": 1}, {"b": 2}}, "p.json"))

	for i := 0; i < 2; i++ {
		v, err := e.Flush(ctx, "p.json", repo.Preview)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "p.json", v.Target)
		assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(v.Data))

		assert.Equal(t, "{\"a\":1}\n", durable(t, store, "p.json"))
		size, _ := e.Pending("p.json")
		assert.Equal(t, int64(16), size)
	}
}

func TestEngineRead(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, 1024)
	require.NoError(t, store.Put(ctx, "r.json", strings.NewReader("{\"a\":1}\n")))

	// read-repair on a missing target
	v, err := e.Read(ctx, "missing.json", repo.ReadOptions{})
	require.NoError(t, err)
	assert.True(t, v.Empty())
	has, err := store.Has(ctx, "missing.json")
	require.NoError(t, err)
	assert.True(t, has)

	// no buffered content
	v, err = e.Read(ctx, "r.json", repo.ReadOptions{})
	require.NoError(t, err)
	assert.True(t, v.Empty())

	require.NoError(t, e.Write(ctx, rec("b", 2), "r.json"))

	v, err = e.Read(ctx, "r.json", repo.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "{\"b\":2}\n", string(v.Data))

	v, err = e.Read(ctx, "", repo.ReadOptions{Stored: true})
	require.NoError(t, err)
	assert.Equal(t, "r.json", v.Target)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(v.Data))
	assert.Equal(t, "{\"a\":1}\n", durable(t, store, "r.json"))
}

func TestEngineCreateKeepsContent(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, 1024)
	require.NoError(t, store.Put(ctx, "dir/k.json", strings.NewReader("{\"a\":1}\n")))

	require.NoError(t, e.Create(ctx, "dir/k.json"))
	assert.Equal(t, "{\"a\":1}\n", durable(t, store, "dir/k.json"))

	require.NoError(t, e.Write(ctx, rec("b", 2), ""))
	require.NoError(t, e.Create(ctx, "dir/k.json"))
	size, ok := e.Pending("dir/k.json")
	require.True(t, ok)
	assert.Equal(t, int64(8), size)
}

func TestEngineDelete(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, 1024)

	require.NoError(t, e.Write(ctx, rec("a", 1), "d/e.json"))
	_, err := e.Flush(ctx, "", repo.Force)
	require.NoError(t, err)
	require.NoError(t, e.Write(ctx, rec("b", 2), "d/e.json"))

	require.NoError(t, e.Delete(ctx, "d/e.json", repo.DeleteOptions{}))
	_, ok := e.Pending("d/e.json")
	assert.False(t, ok)
	has, err := store.Has(ctx, "d/e.json")
	require.NoError(t, err)
	assert.False(t, has)

	// a subsequent read recreates an empty target
	v, err := e.Read(ctx, "d/e.json", repo.ReadOptions{Stored: true})
	require.NoError(t, err)
	assert.True(t, v.Empty())
	has, err = store.Has(ctx, "d/e.json")
	require.NoError(t, err)
	assert.True(t, has)

	// deleting a missing target propagates the backend error
	err = e.Delete(ctx, "nowhere.json", repo.DeleteOptions{})
	assert.ErrorIs(t, err, status.ErrNotExists)

	// recursive delete drops nested buffers
	require.NoError(t, e.Write(ctx, rec("c", 3), "d/f.json"))
	require.NoError(t, e.Delete(ctx, "d", repo.DeleteOptions{Recursive: true}))
	assert.Empty(t, e.Targets())
}

func TestEngineCursor(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, 1024)

	err := e.Write(ctx, rec("a", 1), "")
	assert.ErrorIs(t, err, repo.ErrNoTarget)
	_, err = e.Flush(ctx, "", repo.Force)
	assert.ErrorIs(t, err, repo.ErrNoTarget)
	assert.ErrorIs(t, e.MakeContainer(ctx, ""), repo.ErrNoTarget)

	_, err = e.Flush(ctx, "unknown.json", repo.Force)
	assert.ErrorIs(t, err, repo.ErrUnknownTarget)

	require.NoError(t, e.Create(ctx, "c/one.json"))
	require.NoError(t, e.Write(ctx, rec("a", 1), ""))
	size, _ := e.Pending("c/one.json")
	assert.Equal(t, int64(8), size)
}

func TestEngineContainers(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, 1024)

	require.NoError(t, e.MakeContainer(ctx, "a/b"))
	require.NoError(t, e.MakeContainer(ctx, "a/b"))
	require.NoError(t, e.Create(ctx, "a/b/c.json"))
	require.NoError(t, e.Create(ctx, "a/b/d.json"))

	keys, err := e.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c.json", "a/b/d.json"}, keys)

	keys, err = e.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, keys)
}

type failingContainers struct {
	storage.Store
	err error
}

func (f failingContainers) MakeContainer(context.Context, string) error {
	return f.err
}

func TestEngineContainerErrors(t *testing.T) {
	ctx := context.Background()
	errDenied := errors.New("denied")
	store := failingContainers{Store: localfs.New(afero.NewMemMapFs()), err: errDenied}

	e, err := New(store, serialize.JSONLines, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Create(ctx, "a/b.json"), errDenied)

	e, err = New(store, serialize.JSONLines, 10, ContainerExists(func(err error) bool {
		return errors.Is(err, errDenied)
	}))
	require.NoError(t, err)
	require.NoError(t, e.Create(ctx, "a/b.json"))
}

type failingPuts struct {
	storage.Store
	key string
}

func (f failingPuts) Put(ctx context.Context, key string, r io.Reader) error {
	if key == f.key {
		return errors.New("put failed")
	}
	return f.Store.Put(ctx, key, r)
}

func TestEngineFlushAll(t *testing.T) {
	ctx := context.Background()
	base := localfs.New(afero.NewMemMapFs())
	e, err := New(failingPuts{Store: base, key: "bad.json"}, serialize.JSONLines, 1024)
	require.NoError(t, err)

	require.NoError(t, e.Write(ctx, rec("a", 1), "one.json"))
	require.NoError(t, e.Write(ctx, rec("b", 2), "two.json"))
	require.NoError(t, e.Create(ctx, "empty.json"))
	require.NoError(t, e.FlushAll(ctx))

	assert.Empty(t, e.Targets())
	assert.Equal(t, "{\"a\":1}\n", durable(t, base, "one.json"))
	assert.Equal(t, "{\"b\":2}\n", durable(t, base, "two.json"))

	require.NoError(t, e.Write(ctx, rec("c", 3), "bad.json"))
	require.NoError(t, e.Write(ctx, rec("d", 4), "one.json"))
	err = e.FlushAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")

	assert.Equal(t, []string{"bad.json"}, e.Targets())
	assert.Equal(t, "{\"a\":1}\n{\"d\":4}\n", durable(t, base, "one.json"))
}
