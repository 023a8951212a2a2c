// Copyright © 2018 One Concern

// Package local implements a buffered repo over a local file system.
//
// The file system is always available: Open does nothing and Close only flushes buffers.
package local

import (
	"context"
	"io/fs"
	"strconv"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/repo/blobrepo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Connection parameters
const (
	// ParamRoot is the base directory of all targets
	ParamRoot = "root"
	// ParamAtomic requests objects to be replaced atomically, through a staging area
	ParamAtomic = "atomic"
)

var protocols = map[string]struct{}{
	"":      {},
	"file":  {},
	"local": {},
}

// Repo is a write-buffered repo over a local file system
type Repo struct {
	fs     afero.Fs
	params map[string]string
	l      *zap.Logger
	engine *blobrepo.Engine
}

var (
	_ repo.Repo      = &Repo{}
	_ repo.Browser   = &Repo{}
	_ repo.Inspector = &Repo{}
)

// New local repo.
//
// When no file system is injected with repo.Fs, the OS file system is used,
// rooted at the "root" parameter if any.
func New(cfg repo.Config, opts ...repo.Option) (*Repo, error) {
	settings := repo.ApplyOptions(opts)

	serializer, err := settings.Serializers.Get(cfg.Format)
	if err != nil {
		return nil, repo.ErrConfiguration.Wrap(err)
	}
	if _, ok := protocols[cfg.Protocol]; !ok {
		return nil, repo.ConfigurationError("unsupported protocol %q for a local repo", cfg.Protocol)
	}
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, err
	}

	r := &Repo{
		fs:     settings.Fs,
		params: cfg.CloneParams(),
		l:      settings.Logger,
	}
	store, err := r.build(r.params)
	if err != nil {
		return nil, err
	}
	r.engine, err = blobrepo.New(store, serializer, threshold,
		blobrepo.Logger(settings.Logger),
		blobrepo.ContainerExists(func(err error) bool { return errors.Is(err, fs.ErrExist) }),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) build(params map[string]string) (storage.Store, error) {
	filesystem := r.fs
	if filesystem == nil {
		filesystem = afero.NewOsFs()
		if root := params[ParamRoot]; root != "" {
			filesystem = afero.NewBasePathFs(filesystem, root)
		}
	}

	atomic := false
	if v, ok := params[ParamAtomic]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, repo.ConfigurationError("invalid %q parameter: %v", ParamAtomic, err)
		}
		atomic = b
	}
	if !atomic {
		return localfs.New(filesystem), nil
	}
	store, err := localfs.NewAtomic(filesystem)
	if err != nil {
		return nil, repo.ErrConfiguration.Wrap(err)
	}
	return store, nil
}

func (r *Repo) String() string {
	return "local@" + r.engine.String()
}

// Open is a no-op
func (r *Repo) Open(context.Context) error {
	return nil
}

// Close force-flushes all buffers
func (r *Repo) Close(ctx context.Context) error {
	return r.engine.FlushAll(ctx)
}

// Release is a no-op
func (r *Repo) Release() error {
	return nil
}

// Reconfigure merges connection parameters and rebuilds the store. Pending buffers are retained.
func (r *Repo) Reconfigure(_ context.Context, params map[string]string) error {
	merged := make(map[string]string, len(r.params)+len(params))
	for k, v := range r.params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	store, err := r.build(merged)
	if err != nil {
		return err
	}
	r.params = merged
	r.engine.SetStore(store)
	r.l.Info("local store rebuilt", zap.String("store", store.String()))
	return nil
}

func (r *Repo) Cursor() string {
	return r.engine.Cursor()
}

func (r *Repo) Create(ctx context.Context, target string) error {
	return r.engine.Create(ctx, target)
}

func (r *Repo) Write(ctx context.Context, records []serialize.Record, target string) error {
	return r.engine.Write(ctx, records, target)
}

func (r *Repo) Read(ctx context.Context, target string, opts repo.ReadOptions) (*repo.View, error) {
	return r.engine.Read(ctx, target, opts)
}

func (r *Repo) Flush(ctx context.Context, target string, mode repo.Mode) (*repo.View, error) {
	return r.engine.Flush(ctx, target, mode)
}

func (r *Repo) Delete(ctx context.Context, target string, opts repo.DeleteOptions) error {
	return r.engine.Delete(ctx, target, opts)
}

func (r *Repo) List(ctx context.Context, dir string) ([]string, error) {
	return r.engine.List(ctx, dir)
}

func (r *Repo) MakeContainer(ctx context.Context, dir string) error {
	return r.engine.MakeContainer(ctx, dir)
}

func (r *Repo) Pending(target string) (int64, bool) {
	return r.engine.Pending(target)
}

func (r *Repo) Targets() []string {
	return r.engine.Targets()
}
