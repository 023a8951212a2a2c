// Copyright © 2018 One Concern

// Package network implements a buffered repo over remote object storage.
//
// The remote session is opened by Open and released by Close, after all buffers
// have been flushed.
package network

import (
	"context"
	"sync"

	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/repo/blobrepo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Repo is a write-buffered repo over a remote store
type Repo struct {
	protocol string
	params   map[string]string
	open     driver
	l        *zap.Logger

	mx     sync.Mutex
	opened bool
	remote storage.RemoteStore
	engine *blobrepo.Engine
}

var (
	_ repo.Repo      = &Repo{}
	_ repo.Browser   = &Repo{}
	_ repo.Inspector = &Repo{}
)

// New network repo.
//
// The output format, the protocol and the buffer threshold are validated, in that order.
func New(cfg repo.Config, opts ...repo.Option) (*Repo, error) {
	settings := repo.ApplyOptions(opts)

	serializer, err := settings.Serializers.Get(cfg.Format)
	if err != nil {
		return nil, repo.ErrConfiguration.Wrap(err)
	}
	open, ok := drivers[cfg.Protocol]
	if !ok {
		return nil, repo.ConfigurationError("unsupported protocol %q, expected one of %v", cfg.Protocol, Protocols())
	}
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, err
	}

	l := settings.Logger.With(zap.String("protocol", cfg.Protocol))
	params := cfg.CloneParams()
	remote := open(params, l)
	engine, err := blobrepo.New(remote, serializer, threshold, blobrepo.Logger(l))
	if err != nil {
		return nil, err
	}

	return &Repo{
		protocol: cfg.Protocol,
		params:   params,
		open:     open,
		l:        l,
		remote:   remote,
		engine:   engine,
	}, nil
}

func (r *Repo) String() string {
	return "network+" + r.protocol + "@" + r.remote.String()
}

// Store returns the remote store currently in use
func (r *Repo) Store() storage.RemoteStore {
	return r.remote
}

// Open the remote session. Subsequent calls are no-ops until Close.
func (r *Repo) Open(ctx context.Context) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.opened {
		return nil
	}
	if err := r.remote.Open(ctx); err != nil {
		return err
	}
	r.opened = true
	r.l.Info("session opened", zap.String("store", r.remote.String()))
	return nil
}

// Close force-flushes all buffers, then closes the remote session.
func (r *Repo) Close(ctx context.Context) error {
	err := r.engine.FlushAll(ctx)

	r.mx.Lock()
	defer r.mx.Unlock()
	if !r.opened {
		return err
	}
	r.opened = false
	err = multierr.Append(err, r.remote.Close())
	r.l.Info("session closed", zap.String("store", r.remote.String()), zap.Error(err))
	return err
}

// Release the remote session, without flushing
func (r *Repo) Release() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if !r.opened {
		return nil
	}
	r.opened = false
	return r.remote.Close()
}

// Reconfigure merges connection parameters and rebuilds the remote store.
//
// When a session is live, the previous session is closed and a new one is opened.
// Pending buffers are retained.
func (r *Repo) Reconfigure(ctx context.Context, params map[string]string) error {
	merged := make(map[string]string, len(r.params)+len(params))
	for k, v := range r.params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	remote := r.open(merged, r.l)

	r.mx.Lock()
	defer r.mx.Unlock()
	if r.opened {
		if err := remote.Open(ctx); err != nil {
			return err
		}
		if err := r.remote.Close(); err != nil {
			r.l.Warn("closing previous session", zap.Error(err))
		}
	}
	r.remote = remote
	r.params = merged
	r.engine.SetStore(remote)
	r.l.Info("remote store rebuilt", zap.String("store", remote.String()))
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
