// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oneconcern/repobuf/pkg/dlogger"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/repo/variants"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// newRepo builds the configured repo, instrumented with logs and optional metrics
func (c *cli) newRepo(m *repo.Metrics, logs io.Writer) (repo.Repo, *zap.Logger, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	logOpts := []dlogger.Option{dlogger.Component("repobuf"), dlogger.Output(logs)}
	if c.flags.logJSON {
		logOpts = append(logOpts, dlogger.JSON())
	}
	l, err := dlogger.GetLogger(c.flags.logLevel, logOpts...)
	if err != nil {
		return nil, nil, err
	}
	r, err := variants.NewRegistry().New(cfg, repo.Logger(l))
	if err != nil {
		return nil, nil, err
	}
	return repo.Instrument(opentracing.NoopTracer{}, l, m, r), l, nil
}

// session runs fn within a repo session, then releases the repo.
//
// With --metrics, the metrics collected during the session are printed on stderr.
func (c *cli) session(cmd *cobra.Command, fn func(context.Context, repo.Repo) error) (err error) {
	var (
		registry *prometheus.Registry
		metrics  *repo.Metrics
	)
	if c.flags.metrics {
		registry = prometheus.NewRegistry()
		metrics = repo.NewMetrics(registry)
	}

	r, l, err := c.newRepo(metrics, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Release())
		_ = l.Sync()
		if registry != nil {
			err = multierr.Append(err, dumpMetrics(cmd.ErrOrStderr(), registry))
		}
	}()
	return repo.WithSession(cmd.Context(), r, fn)
}

// dumpMetrics prints gathered samples, one per line
func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				err = printSample(w, mf.GetName(), labels, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				err = printSample(w, mf.GetName(), labels, m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				err = multierr.Append(
					printSample(w, mf.GetName()+"_count", labels, float64(h.GetSampleCount())),
					printSample(w, mf.GetName()+"_sum", labels, h.GetSampleSum()),
				)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func printSample(w io.Writer, name, labels string, value float64) error {
	_, err := fmt.Fprintf(w, "%s%s %s\n", name, labels, strconv.FormatFloat(value, 'g', -1, 64))
	return err
}
