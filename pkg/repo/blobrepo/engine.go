// Copyright © 2018 One Concern

package blobrepo

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type buffer struct {
	lines [][]byte
	size  int64
}

func (b *buffer) bytes() []byte {
	return bytes.Join(b.lines, nil)
}

// Option for the engine
type Option func(*Engine)

// Logger for the engine
func Logger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// ContainerExists tells which errors returned when creating a container stand for
// an already existing container. Defaults to matching status.ErrExists.
func ContainerExists(fn func(error) bool) Option {
	return func(e *Engine) {
		if fn != nil {
			e.containerExists = fn
		}
	}
}

// Engine buffers serialized records per target and flushes them to a store.
//
// Engine is not safe for concurrent use.
type Engine struct {
	store           storage.Store
	serializer      serialize.Serializer
	threshold       int64
	l               *zap.Logger
	containerExists func(error) bool

	cursor  string
	buffers map[string]*buffer
}

// New engine on a store, flushing buffers when they reach threshold bytes
func New(store storage.Store, serializer serialize.Serializer, threshold int64, opts ...Option) (*Engine, error) {
	if threshold <= 0 {
		return nil, repo.ConfigurationError("buffer threshold must be greater than zero, got %d", threshold)
	}
	if serializer == nil {
		return nil, repo.ConfigurationError("a serializer is required")
	}
	e := &Engine{
		store:           store,
		serializer:      serializer,
		threshold:       threshold,
		l:               zap.NewNop(),
		containerExists: func(err error) bool { return errors.Is(err, status.ErrExists) },
		buffers:         make(map[string]*buffer),
	}
	for _, apply := range opts {
		apply(e)
	}
	e.l.Debug("buffering engine ready", zap.Stringer("store", e), zap.Int64("threshold", threshold))
	return e, nil
}

func (e *Engine) String() string {
	return e.store.String()
}

// Store currently used by the engine
func (e *Engine) Store() storage.Store {
	return e.store
}

// SetStore replaces the backend. Buffers are retained.
func (e *Engine) SetStore(store storage.Store) {
	e.store = store
}

// Threshold in bytes
func (e *Engine) Threshold() int64 {
	return e.threshold
}

// Cursor is the last addressed target
func (e *Engine) Cursor() string {
	return e.cursor
}

func (e *Engine) resolve(target string) (string, error) {
	if target == "" {
		target = e.cursor
	}
	if target == "" {
		return "", repo.ErrNoTarget
	}
	e.cursor = target
	return target, nil
}

// Create makes sure that the container of a target and the target itself exist,
// then registers a buffer for the target.
//
// An existing durable object is left untouched, as is a pending buffer.
func (e *Engine) Create(ctx context.Context, target string) error {
	t, err := e.resolve(target)
	if err != nil {
		return err
	}
	if err = e.makeContainer(ctx, storage.Dir(t)); err != nil {
		return err
	}
	exists, err := e.store.Has(ctx, t)
	if err != nil {
		return err
	}
	if !exists {
		if err = e.store.Touch(ctx, t); err != nil {
			return err
		}
		e.l.Debug("target created", zap.String("target", t))
	}
	if _, ok := e.buffers[t]; !ok {
		e.buffers[t] = &buffer{}
	}
	return nil
}

func (e *Engine) makeContainer(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	err := e.store.MakeContainer(ctx, dir)
	if err != nil && e.containerExists(err) {
		e.l.Debug("container already exists", zap.String("container", dir))
		return nil
	}
	return err
}

// Write serializes records into the buffer of a target, then attempts a threshold flush.
//
// The target is created when it has no buffer yet or when its durable object is missing.
func (e *Engine) Write(ctx context.Context, records []serialize.Record, target string) error {
	t, err := e.resolve(target)
	if err != nil {
		return err
	}
	if err = e.ensure(ctx, t); err != nil {
		return err
	}
	lines, err := e.serializer(records)
	if err != nil {
		return err
	}
	buf := e.buffers[t]
	for _, line := range lines {
		buf.lines = append(buf.lines, line)
		buf.size += int64(len(line))
	}
	_, err = e.Flush(ctx, t, repo.Threshold)
	return err
}

func (e *Engine) ensure(ctx context.Context, t string) error {
	if _, ok := e.buffers[t]; !ok {
		return e.Create(ctx, t)
	}
	exists, err := e.store.Has(ctx, t)
	if err != nil {
		return err
	}
	if !exists {
		return e.Create(ctx, t)
	}
	return nil
}

// Flush reconciles the buffer of a target with its durable object.
//
// A view is returned in Preview mode only.
func (e *Engine) Flush(ctx context.Context, target string, mode repo.Mode) (*repo.View, error) {
	t, err := e.resolve(target)
	if err != nil {
		return nil, err
	}
	buf, ok := e.buffers[t]
	if !ok {
		return nil, repo.ErrUnknownTarget.Wrapf("flush %q", t)
	}

	switch mode {
	case repo.Preview:
		merged, err := e.merge(ctx, t, buf)
		if err != nil {
			return nil, err
		}
		return &repo.View{Target: t, Data: merged}, nil
	case repo.Threshold:
		if buf.size < e.threshold {
			e.l.Debug("flush skipped below threshold", zap.String("target", t), zap.Int64("size", buf.size))
			return nil, nil
		}
	case repo.Force:
		if len(buf.lines) == 0 {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("unknown flush mode %v", mode)
	}

	merged, err := e.merge(ctx, t, buf)
	if err != nil {
		return nil, err
	}
	if err = e.store.Put(ctx, t, bytes.NewReader(merged)); err != nil {
		return nil, err
	}
	e.l.Info("buffer flushed",
		zap.String("target", t),
		zap.Stringer("mode", mode),
		zap.Int("lines", len(buf.lines)),
		zap.Int64("size", buf.size),
	)
	e.buffers[t] = &buffer{}
	return nil, nil
}

func (e *Engine) merge(ctx context.Context, t string, buf *buffer) ([]byte, error) {
	durable, err := storage.ReadAll(ctx, e.store, t)
	if err != nil {
		if !errors.Is(err, status.ErrNotExists) {
			return nil, err
		}
		durable = nil
	}
	return mergeLines(durable, buf.lines), nil
}

// Read the content of a target.
//
// By default the buffered content is returned. When opts.Stored is set, the view merges
// the durable object with the buffer, without flushing.
// A target without buffer is created first.
func (e *Engine) Read(ctx context.Context, target string, opts repo.ReadOptions) (*repo.View, error) {
	t, err := e.resolve(target)
	if err != nil {
		return nil, err
	}
	if _, ok := e.buffers[t]; !ok || opts.Stored {
		if err = e.ensure(ctx, t); err != nil {
			return nil, err
		}
	}
	buf := e.buffers[t]
	switch {
	case opts.Stored:
		return e.Flush(ctx, t, repo.Preview)
	case len(buf.lines) > 0:
		return &repo.View{Target: t, Data: buf.bytes()}, nil
	default:
		return &repo.View{Target: t}, nil
	}
}

// Delete the durable object of a target and its buffer.
//
// A recursive delete also drops the buffers of targets nested under the deleted container.
func (e *Engine) Delete(ctx context.Context, target string, opts repo.DeleteOptions) error {
	t, err := e.resolve(target)
	if err != nil {
		return err
	}
	err = e.store.Delete(ctx, t, opts.Recursive)
	if err != nil && !errors.Is(err, status.ErrNotExists) {
		return err
	}
	delete(e.buffers, t)
	if opts.Recursive {
		prefix := strings.TrimSuffix(t, "/") + "/"
		for k := range e.buffers {
			if strings.HasPrefix(k, prefix) {
				delete(e.buffers, k)
			}
		}
	}
	return err
}

// List entries in a container, defaulting to the container of the cursor
func (e *Engine) List(ctx context.Context, dir string) ([]string, error) {
	if dir == "" {
		dir = storage.Dir(e.cursor)
	}
	return e.store.Keys(ctx, dir)
}

// MakeContainer creates a container, defaulting to the container of the cursor.
// An already existing container is not an error.
func (e *Engine) MakeContainer(ctx context.Context, dir string) error {
	if dir == "" {
		dir = storage.Dir(e.cursor)
	}
	if dir == "" {
		return repo.ErrNoTarget
	}
	return e.makeContainer(ctx, dir)
}

// FlushAll force-flushes every buffer, in target order.
//
// Buffers are discarded once flushed. Buffers which failed to flush are retained,
// and all errors are returned.
func (e *Engine) FlushAll(ctx context.Context) error {
	var errs error
	remaining := make(map[string]*buffer)
	for _, t := range e.Targets() {
		if _, err := e.Flush(ctx, t, repo.Force); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flushing %q: %w", t, err))
			remaining[t] = e.buffers[t]
		}
	}
	e.buffers = remaining
	return errs
}

// Pending returns the buffered size of a target
func (e *Engine) Pending(target string) (int64, bool) {
	buf, ok := e.buffers[target]
	if !ok {
		return 0, false
	}
	return buf.size, true
}

// Targets with a registered buffer, sorted
func (e *Engine) Targets() []string {
	targets := make([]string, 0, len(e.buffers))
	for k := range e.buffers {
		targets = append(targets, k)
	}
	sort.Strings(targets)
	return targets
}
