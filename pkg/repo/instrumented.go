// Copyright © 2018 One Concern

package repo

import (
	"context"
	"strings"
	"time"

	"github.com/oneconcern/repobuf/pkg/serialize"
	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Instrument decorates a repo with tracing spans, logs and metrics.
//
// A nil tracer defaults to the global tracer, nil metrics disables metrics collection.
func Instrument(tr opentracing.Tracer, l *zap.Logger, m *Metrics, r Repo) Repo {
	if tr == nil {
		tr = opentracing.GlobalTracer()
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &instrumentedRepo{
		repo:    r,
		tr:      tr,
		l:       l.With(zap.String("repo", r.String())),
		metrics: m,
	}
}

type instrumentedRepo struct {
	repo    Repo
	tr      opentracing.Tracer
	l       *zap.Logger
	metrics *Metrics
}

var (
	_ Browser   = &instrumentedRepo{}
	_ Inspector = &instrumentedRepo{}
)

func (i *instrumentedRepo) opName(name string) string {
	return strings.Join([]string{"repo", i.String(), name}, ".")
}

func (i *instrumentedRepo) spanFromContext(ctx context.Context, name string) (opentracing.Span, context.Context) {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	return span, opentracing.ContextWithSpan(ctx, span)
}

func (i *instrumentedRepo) observe(span opentracing.Span, op string, err error) {
	if err == nil {
		return
	}
	span.SetTag("error", true)
	span.LogKV("event", "error", "message", err.Error())
	if i.metrics != nil {
		i.metrics.errors.WithLabelValues(i.String(), op).Inc()
	}
	i.l.Warn("repo operation failed", zap.String("op", op), zap.Error(err))
}

func (i *instrumentedRepo) String() string {
	return i.repo.String()
}

func (i *instrumentedRepo) Cursor() string {
	return i.repo.Cursor()
}

func (i *instrumentedRepo) Open(ctx context.Context) error {
	span, ctx := i.spanFromContext(ctx, i.opName("Open"))
	defer span.Finish()
	i.l.Info("repo open")

	err := i.repo.Open(ctx)
	i.observe(span, "open", err)
	return err
}

func (i *instrumentedRepo) Close(ctx context.Context) error {
	span, ctx := i.spanFromContext(ctx, i.opName("Close"))
	defer span.Finish()
	i.l.Info("repo close")

	err := i.repo.Close(ctx)
	i.observe(span, "close", err)
	return err
}

func (i *instrumentedRepo) Release() error {
	i.l.Info("repo release")
	return i.repo.Release()
}

func (i *instrumentedRepo) Reconfigure(ctx context.Context, params map[string]string) error {
	span, ctx := i.spanFromContext(ctx, i.opName("Reconfigure"))
	defer span.Finish()
	i.l.Info("repo reconfigure")

	err := i.repo.Reconfigure(ctx, params)
	i.observe(span, "reconfigure", err)
	return err
}

func (i *instrumentedRepo) Create(ctx context.Context, target string) error {
	span, ctx := i.spanFromContext(ctx, i.opName("Create"))
	defer span.Finish()
	span.SetTag("target", target)
	i.l.Debug("repo create", zap.String("target", target))

	err := i.repo.Create(ctx, target)
	i.observe(span, "create", err)
	return err
}

func (i *instrumentedRepo) Write(ctx context.Context, records []serialize.Record, target string) error {
	span, ctx := i.spanFromContext(ctx, i.opName("Write"))
	defer span.Finish()
	span.SetTag("target", target)
	i.l.Debug("repo write", zap.String("target", target), zap.Int("records", len(records)))

	err := i.repo.Write(ctx, records, target)
	if i.metrics != nil {
		i.metrics.writes.WithLabelValues(i.String()).Inc()
		if err == nil {
			i.metrics.writtenRecs.WithLabelValues(i.String()).Add(float64(len(records)))
		}
	}
	i.observe(span, "write", err)
	return err
}

func (i *instrumentedRepo) Read(ctx context.Context, target string, opts ReadOptions) (*View, error) {
	span, ctx := i.spanFromContext(ctx, i.opName("Read"))
	defer span.Finish()
	span.SetTag("target", target)
	i.l.Debug("repo read", zap.String("target", target), zap.Bool("stored", opts.Stored))

	v, err := i.repo.Read(ctx, target, opts)
	i.observe(span, "read", err)
	return v, err
}

func (i *instrumentedRepo) Flush(ctx context.Context, target string, mode Mode) (*View, error) {
	span, ctx := i.spanFromContext(ctx, i.opName("Flush"))
	defer span.Finish()
	span.SetTag("target", target)
	span.SetTag("mode", mode.String())
	i.l.Debug("repo flush", zap.String("target", target), zap.Stringer("mode", mode))

	start := time.Now()
	v, err := i.repo.Flush(ctx, target, mode)
	if i.metrics != nil {
		i.metrics.flushes.WithLabelValues(i.String(), mode.String()).Inc()
		i.metrics.flushDuration.WithLabelValues(i.String(), mode.String()).Observe(time.Since(start).Seconds())
	}
	i.observe(span, "flush", err)
	return v, err
}

func (i *instrumentedRepo) Delete(ctx context.Context, target string, opts DeleteOptions) error {
	span, ctx := i.spanFromContext(ctx, i.opName("Delete"))
	defer span.Finish()
	span.SetTag("target", target)
	i.l.Info("repo delete", zap.String("target", target), zap.Bool("recursive", opts.Recursive), zap.Bool("only_buffer", opts.OnlyBuffer))

	err := i.repo.Delete(ctx, target, opts)
	i.observe(span, "delete", err)
	return err
}

func (i *instrumentedRepo) List(ctx context.Context, dir string) ([]string, error) {
	b, ok := i.repo.(Browser)
	if !ok {
		return nil, ErrNotSupported.Wrapf("%s does not list containers", i.String())
	}
	span, ctx := i.spanFromContext(ctx, i.opName("List"))
	defer span.Finish()

	keys, err := b.List(ctx, dir)
	i.observe(span, "list", err)
	return keys, err
}

func (i *instrumentedRepo) MakeContainer(ctx context.Context, dir string) error {
	b, ok := i.repo.(Browser)
	if !ok {
		return ErrNotSupported.Wrapf("%s has no containers", i.String())
	}
	span, ctx := i.spanFromContext(ctx, i.opName("MakeContainer"))
	defer span.Finish()

	err := b.MakeContainer(ctx, dir)
	i.observe(span, "mkdir", err)
	return err
}

func (i *instrumentedRepo) Pending(target string) (int64, bool) {
	if in, ok := i.repo.(Inspector); ok {
		return in.Pending(target)
	}
	return 0, false
}

func (i *instrumentedRepo) Targets() []string {
	if in, ok := i.repo.(Inspector); ok {
		return in.Targets()
	}
	return nil
}
