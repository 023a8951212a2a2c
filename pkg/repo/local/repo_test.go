package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, fs afero.Fs, name string) string {
	b, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(b)
}

func TestNewValidation(t *testing.T) {
	_, err := New(repo.Config{Format: "xml", BufferMB: 1})
	assert.ErrorIs(t, err, repo.ErrConfiguration)
	assert.ErrorIs(t, err, serialize.ErrUnsupportedFormat)

	_, err = New(repo.Config{Format: "json", BufferMB: 1, Protocol: "s3"})
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	_, err = New(repo.Config{Format: "json"})
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	_, err = New(repo.Config{Format: "json", BufferMB: 1, Params: map[string]string{ParamAtomic: "maybe"}}, repo.Fs(afero.NewMemMapFs()))
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	for _, protocol := range []string{"", "file", "local"} {
		_, err = New(repo.Config{Format: "json", BufferMB: 1, Protocol: protocol}, repo.Fs(afero.NewMemMapFs()))
		assert.NoError(t, err)
	}
}

func TestBufferThenForceFlush(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	first := serialize.Record{"id": 1, "name": "first"}
	second := serialize.Record{"id": 2, "name": "second"}
	lines, err := serialize.JSONLines([]serialize.Record{first, second})
	require.NoError(t, err)
	size := len(lines[0]) + len(lines[1])

	r, err := New(repo.Config{Format: "json", BufferSize: "200B"}, repo.Fs(fs))
	require.NoError(t, err)
	require.Less(t, size, 200)

	require.NoError(t, r.Write(ctx, []serialize.Record{first}, "x/y.json"))
	require.NoError(t, r.Write(ctx, []serialize.Record{second}, "x/y.json"))

	pending, ok := r.Pending("x/y.json")
	require.True(t, ok)
	assert.Equal(t, int64(size), pending)
	assert.Equal(t, "", readFile(t, fs, "x/y.json"))

	v, err := r.Read(ctx, "x/y.json", repo.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, string(lines[0])+string(lines[1]), string(v.Data))

	_, err = r.Flush(ctx, "x/y.json", repo.Force)
	require.NoError(t, err)
	assert.Equal(t, string(lines[0])+string(lines[1]), readFile(t, fs, "x/y.json"))
	pending, _ = r.Pending("x/y.json")
	assert.Zero(t, pending)
}

func TestCloseFlushes(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	r, err := New(repo.Config{Format: "csv", BufferMB: 1}, repo.Fs(fs))
	require.NoError(t, err)

	err = repo.WithSession(ctx, r, func(ctx context.Context, rp repo.Repo) error {
		if err := rp.Write(ctx, []serialize.Record{{"a": 1, "b": "x"}}, "out/data.csv"); err != nil {
			return err
		}
		return rp.Write(ctx, []serialize.Record{{"a": 2, "b": "y"}}, "")
	})
	require.NoError(t, err)

	// the repeated header is written once
	assert.Equal(t, "a,b\n1,x\n2,y\n", readFile(t, fs, "out/data.csv"))
	assert.Empty(t, r.Targets())
}

func TestAtomicAndRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	r, err := New(repo.Config{Format: "ndjson", BufferMB: 1, Protocol: "file", Params: map[string]string{
		ParamRoot:   root,
		ParamAtomic: "true",
	}})
	require.NoError(t, err)
	assert.Contains(t, r.String(), "localfs-atomic@")

	require.NoError(t, r.Write(ctx, []serialize.Record{{"a": 1}}, "sub/file.json"))
	require.NoError(t, r.Close(ctx))

	osfs := afero.NewOsFs()
	assert.Equal(t, "{\"a\":1}\n", readFile(t, osfs, filepath.Join(root, "sub", "file.json")))

	keys, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/file.json"}, keys)

	// reconfigure to another root
	other := t.TempDir()
	require.NoError(t, r.Reconfigure(ctx, map[string]string{ParamRoot: other, ParamAtomic: "false"}))
	require.NoError(t, r.Write(ctx, []serialize.Record{{"b": 2}}, "sub/file.json"))
	require.NoError(t, r.Close(ctx))
	assert.Equal(t, "{\"b\":2}\n", readFile(t, osfs, filepath.Join(other, "sub", "file.json")))
	assert.Equal(t, "{\"a\":1}\n", readFile(t, osfs, filepath.Join(root, "sub", "file.json")))
}

func TestLocalDelete(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	r, err := New(repo.Config{Format: "json", BufferMB: 1}, repo.Fs(fs))
	require.NoError(t, err)

	require.NoError(t, r.MakeContainer(ctx, "d"))
	require.NoError(t, r.MakeContainer(ctx, "d"))
	require.NoError(t, r.Write(ctx, []serialize.Record{{"a": 1}}, "d/f.json"))
	require.NoError(t, r.Delete(ctx, "d", repo.DeleteOptions{Recursive: true}))

	exists, err := afero.Exists(fs, "d")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, r.Targets())
}
