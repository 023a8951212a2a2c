// Copyright © 2018 One Concern

package repo

import (
	"context"

	"go.uber.org/multierr"
)

// WithSession opens a repo, runs fn, then closes the repo.
//
// Close runs on every exit path: when fn fails, panics, or when ctx is cancelled.
// Close is called with a context detached from ctx cancellation, so that pending buffers
// still get flushed. Errors from fn and Close are combined.
func WithSession(ctx context.Context, r Repo, fn func(context.Context, Repo) error) (err error) {
	if err = r.Open(ctx); err != nil {
		return err
	}

	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		if p := recover(); p != nil {
			_ = r.Close(closeCtx)
			panic(p)
		}
		err = multierr.Append(err, r.Close(closeCtx))
	}()

	return fn(ctx, r)
}
