package variants

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/repo/local"
	"github.com/oneconcern/repobuf/pkg/repo/network"
	"github.com/oneconcern/repobuf/pkg/repo/tabular"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/storage/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{Local, Network, SQL, Tabular}, reg.Tags())

	// registering twice fails
	assert.ErrorIs(t, Register(reg), repo.ErrConfiguration)

	_, err := reg.New(repo.Config{Type: "ftp", BufferMB: 1})
	assert.ErrorIs(t, err, repo.ErrConfiguration)

	_, err = reg.New(repo.Config{Type: Network, Format: "json", Protocol: "smb", BufferMB: 1})
	assert.ErrorIs(t, err, repo.ErrConfiguration)
}

func TestCreateVariants(t *testing.T) {
	reg := NewRegistry()
	t.Cleanup(func() { memory.Forget(t.Name()) })

	r, err := reg.New(repo.Config{
		Type: Network, Format: "json", Protocol: "memory", BufferMB: 1,
		Params: map[string]string{"namespace": t.Name()},
	})
	require.NoError(t, err)
	assert.IsType(t, &network.Repo{}, r)

	r, err = reg.New(repo.Config{Type: Local, Format: "csv", BufferMB: 1}, repo.Fs(afero.NewMemMapFs()))
	require.NoError(t, err)
	assert.IsType(t, &local.Repo{}, r)

	for _, tag := range []string{Tabular, SQL} {
		r, err = reg.New(repo.Config{
			Type: tag, BufferMB: 1,
			Params: map[string]string{tabular.ParamPath: filepath.Join(t.TempDir(), "tables.db")},
		})
		require.NoError(t, err)
		assert.IsType(t, &tabular.Repo{}, r)
		require.NoError(t, r.Release())
	}
}

func TestUniformContract(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	t.Cleanup(func() { memory.Forget(t.Name()) })

	configs := []struct {
		cfg  repo.Config
		opts []repo.Option
	}{
		{cfg: repo.Config{Type: Network, Format: "json", Protocol: "memory", BufferMB: 1, Params: map[string]string{"namespace": t.Name()}}},
		{cfg: repo.Config{Type: Local, Format: "json", BufferMB: 1}, opts: []repo.Option{repo.Fs(afero.NewMemMapFs())}},
		{cfg: repo.Config{Type: Tabular, BufferMB: 1, Params: map[string]string{tabular.ParamPath: filepath.Join(t.TempDir(), "tables.db")}}},
	}

	for _, toPin := range configs {
		c := toPin
		r, err := reg.New(c.cfg, c.opts...)
		require.NoError(t, err)

		var preview *repo.View
		err = repo.WithSession(ctx, r, func(ctx context.Context, rp repo.Repo) error {
			if err := rp.Write(ctx, []serialize.Record{{"id": 1}, {"id": 2}}, "bucket/out"); err != nil {
				return err
			}
			var err error
			preview, err = rp.Flush(ctx, "", repo.Preview)
			return err
		})
		require.NoError(t, err, c.cfg.Type)
		require.NotNil(t, preview, c.cfg.Type)
		assert.False(t, preview.Empty(), c.cfg.Type)

		v, err := func() (*repo.View, error) {
			if err := r.Open(ctx); err != nil {
				return nil, err
			}
			defer func() { _ = r.Close(ctx) }()
			return r.Read(ctx, "bucket/out", repo.ReadOptions{Stored: true})
		}()
		require.NoError(t, err, c.cfg.Type)
		assert.False(t, v.Empty(), c.cfg.Type)
		require.NoError(t, r.Release())
	}
}
