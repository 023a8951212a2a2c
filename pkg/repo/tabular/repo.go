// Copyright © 2018 One Concern

package tabular

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oneconcern/repobuf/pkg/dispatch"
	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/table"
	"github.com/oneconcern/repobuf/pkg/table/bdgr"
	"github.com/oneconcern/repobuf/pkg/table/bolt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Connection parameters
const (
	// ParamPath is the location of the durable database file
	ParamPath = "path"
	// ParamWorkers is the size of the worker pool
	ParamWorkers = "workers"
)

// ErrInvalidRow is returned when a row carries a malformed creation time
var ErrInvalidRow = errors.New("invalid row")

// mapping tracks the staged state of a target
type mapping struct {
	lastCommit time.Time
	size       int64
}

// Repo is a write-buffered repo over tables
type Repo struct {
	threshold   int64
	clock       func() time.Time
	l           *zap.Logger
	pool        *dispatch.Pool
	ownsPool    bool
	ownsDurable bool

	mx       sync.Mutex
	params   map[string]string
	durable  table.Store
	staging  table.Store
	cursor   string
	mappings map[string]*mapping
}

var (
	_ repo.Repo      = &Repo{}
	_ repo.Inspector = &Repo{}
)

// New tabular repo.
//
// Table stores are injected with repo.Tables. Otherwise, the durable tables are kept
// in a bbolt database at the "path" parameter and staging tables in an in-memory badger
// database. The output format is not used.
func New(cfg repo.Config, opts ...repo.Option) (*Repo, error) {
	settings := repo.ApplyOptions(opts)
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, err
	}

	r := &Repo{
		threshold: threshold,
		clock:     settings.Clock,
		l:         settings.Logger,
		params:    cfg.CloneParams(),
		durable:   settings.Durable,
		staging:   settings.Staging,
		pool:      settings.Pool,
		mappings:  make(map[string]*mapping),
	}

	if r.durable == nil {
		path := r.params[ParamPath]
		if path == "" {
			return nil, repo.ConfigurationError("the %q parameter is required by a tabular repo", ParamPath)
		}
		if r.durable, err = bolt.Open(path); err != nil {
			return nil, repo.ErrConfiguration.Wrap(err)
		}
		r.ownsDurable = true
	}

	if r.staging == nil {
		if r.staging, err = bdgr.New(bdgr.Logger(r.l)); err != nil {
			_ = r.closeDurable()
			return nil, err
		}
	}

	if r.pool == nil {
		workers := 0
		if v := r.params[ParamWorkers]; v != "" {
			if workers, err = strconv.Atoi(v); err != nil {
				_ = r.closeTables()
				return nil, repo.ConfigurationError("invalid %q parameter: %v", ParamWorkers, err)
			}
		}
		if r.pool, err = dispatch.NewPool(workers); err != nil {
			_ = r.closeTables()
			return nil, err
		}
		r.ownsPool = true
	}

	r.l.Debug("tabular repo ready", zap.Stringer("repo", r), zap.Int64("threshold", threshold))
	return r, nil
}

func (r *Repo) String() string {
	return "tabular@" + r.durable.String()
}

// Open is a no-op: table stores are opened at construction time
func (r *Repo) Open(context.Context) error {
	return nil
}

// Close force-flushes every target, then drops their staging tables.
//
// Targets which failed to flush keep their staged rows.
func (r *Repo) Close(ctx context.Context) error {
	return dispatch.Run(ctx, r.pool, func() error {
		r.mx.Lock()
		defer r.mx.Unlock()

		var errs error
		remaining := make(map[string]*mapping)
		for _, t := range r.targets() {
			if _, err := r.flush(ctx, t, repo.Force); err != nil {
				errs = multierr.Append(errs, err)
				remaining[t] = r.mappings[t]
				continue
			}
			if err := r.staging.DropTable(ctx, t); err != nil && !errors.Is(err, table.ErrNoTable) {
				errs = multierr.Append(errs, err)
			}
		}
		r.mappings = remaining
		return errs
	})
}

// Release the table stores and the worker pool
func (r *Repo) Release() error {
	err := r.closeTables()
	if r.ownsPool {
		r.pool.Release()
	}
	return err
}

func (r *Repo) closeDurable() error {
	if r.durable == nil {
		return nil
	}
	return r.durable.Close()
}

func (r *Repo) closeTables() error {
	err := r.closeDurable()
	if r.staging != nil {
		err = multierr.Append(err, r.staging.Close())
	}
	return err
}

// Reconfigure merges connection parameters. When the durable database is managed
// by the repo and its path changed, it is reopened at the new location.
func (r *Repo) Reconfigure(ctx context.Context, params map[string]string) error {
	return dispatch.Run(ctx, r.pool, func() error {
		r.mx.Lock()
		defer r.mx.Unlock()

		merged := make(map[string]string, len(r.params)+len(params))
		for k, v := range r.params {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		if r.ownsDurable && merged[ParamPath] != r.params[ParamPath] {
			if merged[ParamPath] == "" {
				return repo.ConfigurationError("the %q parameter is required by a tabular repo", ParamPath)
			}
			durable, err := bolt.Open(merged[ParamPath])
			if err != nil {
				return repo.ErrConfiguration.Wrap(err)
			}
			if err = r.durable.Close(); err != nil {
				r.l.Warn("closing previous durable tables", zap.Error(err))
			}
			r.durable = durable
			r.l.Info("durable tables reopened", zap.String("path", merged[ParamPath]))
		}
		r.params = merged
		return nil
	})
}

// Cursor is the last addressed table
func (r *Repo) Cursor() string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.cursor
}

func (r *Repo) resolve(target string) (string, error) {
	if target == "" {
		target = r.cursor
	}
	if target == "" {
		return "", repo.ErrNoTarget
	}
	if err := table.ValidateName(target); err != nil {
		return "", err
	}
	r.cursor = target
	return target, nil
}

// Create registers a target with a commit watermark set to the current time.
// An already registered target is left untouched.
func (r *Repo) Create(ctx context.Context, target string) error {
	return dispatch.Run(ctx, r.pool, func() error {
		r.mx.Lock()
		defer r.mx.Unlock()
		t, err := r.resolve(target)
		if err != nil {
			return err
		}
		r.create(t)
		return nil
	})
}

func (r *Repo) create(t string) *mapping {
	if m, ok := r.mappings[t]; ok {
		return m
	}
	m := &mapping{lastCommit: r.now()}
	r.mappings[t] = m
	r.l.Debug("table registered", zap.String("table", t), zap.Time("watermark", m.lastCommit))
	return m
}

func (r *Repo) now() time.Time {
	return r.clock().UTC()
}

// Write stages records as rows of a target, then attempts a threshold flush.
//
// Records without a created_at column are stamped with the write time.
func (r *Repo) Write(ctx context.Context, records []serialize.Record, target string) error {
	return dispatch.Run(ctx, r.pool, func() error {
		r.mx.Lock()
		defer r.mx.Unlock()
		t, err := r.resolve(target)
		if err != nil {
			return err
		}
		m := r.create(t)

		rows, err := r.stamp(records, m)
		if err != nil {
			return err
		}
		size, err := table.Size(rows)
		if err != nil {
			return err
		}
		if err = r.staging.WriteTable(ctx, t, rows, table.Append); err != nil {
			return err
		}
		m.size += size

		_, err = r.flush(ctx, t, repo.Threshold)
		return err
	})
}

// stamp copies records into rows, with a creation time strictly after the watermark when none is given
func (r *Repo) stamp(records []serialize.Record, m *mapping) ([]table.Row, error) {
	now := r.now()
	if !now.After(m.lastCommit) {
		now = m.lastCommit.Add(time.Nanosecond)
	}
	rows := make([]table.Row, 0, len(records))
	for _, record := range records {
		row := make(table.Row, len(record)+1)
		for k, v := range record {
			row[k] = v
		}
		if v, ok := row[table.CreatedAt]; ok && v != nil {
			if _, valid := row.CreatedAt(); !valid {
				return nil, ErrInvalidRow.Wrapf("%s: unsupported time value %v", table.CreatedAt, v)
			}
		} else {
			row[table.CreatedAt] = now
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Flush reconciles the staged rows of a target with its durable table.
//
// A view is returned in Preview mode only.
func (r *Repo) Flush(ctx context.Context, target string, mode repo.Mode) (*repo.View, error) {
	return dispatch.Do(ctx, r.pool, func() (*repo.View, error) {
		r.mx.Lock()
		defer r.mx.Unlock()
		t, err := r.resolve(target)
		if err != nil {
			return nil, err
		}
		return r.flush(ctx, t, mode)
	})
}

func (r *Repo) flush(ctx context.Context, t string, mode repo.Mode) (*repo.View, error) {
	m, ok := r.mappings[t]
	if !ok {
		return nil, repo.ErrUnknownTarget.Wrapf("flush table %q", t)
	}

	switch mode {
	case repo.Preview:
		durable, staged, err := r.merge(ctx, t, m)
		if err != nil {
			return nil, err
		}
		return &repo.View{Target: t, Rows: append(durable, staged...)}, nil
	case repo.Threshold:
		if m.size < r.threshold {
			r.l.Debug("flush skipped below threshold", zap.String("table", t), zap.Int64("size", m.size))
			return nil, nil
		}
	case repo.Force:
		if m.size == 0 {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("unknown flush mode %v", mode)
	}

	_, staged, err := r.merge(ctx, t, m)
	if err != nil {
		return nil, err
	}
	watermark := r.now()
	if len(staged) > 0 {
		if err = r.durable.WriteTable(ctx, t, staged, table.Append); err != nil {
			return nil, err
		}
		for _, row := range staged {
			if ts, _ := row.CreatedAt(); ts.After(watermark) {
				watermark = ts
			}
		}
	}
	committed := m.size
	// rows are durable from here: staged leftovers must stay behind the watermark
	m.size = 0
	m.lastCommit = watermark
	r.l.Info("staged rows committed",
		zap.String("table", t),
		zap.Stringer("mode", mode),
		zap.Int("rows", len(staged)),
		zap.Int64("size", committed),
	)
	if err = r.staging.WriteTable(ctx, t, nil, table.Replace); err != nil {
		return nil, fmt.Errorf("clearing staged rows of %q: %w", t, err)
	}
	return nil, nil
}

// merge reads the durable rows and the staged rows created after the watermark
func (r *Repo) merge(ctx context.Context, t string, m *mapping) ([]table.Row, []table.Row, error) {
	durable, err := r.durable.ReadTable(ctx, t)
	if err != nil && !errors.Is(err, table.ErrNoTable) {
		return nil, nil, err
	}
	staged, err := r.staging.ReadTable(ctx, t)
	if err != nil && !errors.Is(err, table.ErrNoTable) {
		return nil, nil, err
	}
	filtered := make([]table.Row, 0, len(staged))
	for _, row := range staged {
		if ts, ok := row.CreatedAt(); ok && ts.After(m.lastCommit) {
			filtered = append(filtered, row)
		}
	}
	return durable, filtered, nil
}

// Read the rows of a target.
//
// By default the staged rows are returned. When opts.Stored is set, the view merges
// the durable table with the staged rows, without flushing.
func (r *Repo) Read(ctx context.Context, target string, opts repo.ReadOptions) (*repo.View, error) {
	return dispatch.Do(ctx, r.pool, func() (*repo.View, error) {
		r.mx.Lock()
		defer r.mx.Unlock()
		t, err := r.resolve(target)
		if err != nil {
			return nil, err
		}
		r.create(t)
		if opts.Stored {
			return r.flush(ctx, t, repo.Preview)
		}
		staged, err := r.staging.ReadTable(ctx, t)
		if err != nil && !errors.Is(err, table.ErrNoTable) {
			return nil, err
		}
		return &repo.View{Target: t, Rows: staged}, nil
	})
}

// Delete drops the staged rows of a target. Unless opts.OnlyBuffer is set,
// the durable table is dropped too and the target is unregistered.
func (r *Repo) Delete(ctx context.Context, target string, opts repo.DeleteOptions) error {
	return dispatch.Run(ctx, r.pool, func() error {
		r.mx.Lock()
		defer r.mx.Unlock()
		t, err := r.resolve(target)
		if err != nil {
			return err
		}
		if err = r.staging.DropTable(ctx, t); err != nil && !errors.Is(err, table.ErrNoTable) {
			return err
		}
		if opts.OnlyBuffer {
			if m, ok := r.mappings[t]; ok {
				m.size = 0
			}
			return nil
		}
		delete(r.mappings, t)
		return r.durable.DropTable(ctx, t)
	})
}

// Pending returns the staged size of a target
func (r *Repo) Pending(target string) (int64, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	m, ok := r.mappings[target]
	if !ok {
		return 0, false
	}
	return m.size, true
}

// Watermark returns the last commit time of a target
func (r *Repo) Watermark(target string) (time.Time, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	m, ok := r.mappings[target]
	if !ok {
		return time.Time{}, false
	}
	return m.lastCommit, true
}

// Targets with a registered mapping, sorted
func (r *Repo) Targets() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.targets()
}

func (r *Repo) targets() []string {
	targets := make([]string, 0, len(r.mappings))
	for k := range r.mappings {
		targets = append(targets, k)
	}
	sort.Strings(targets)
	return targets
}
