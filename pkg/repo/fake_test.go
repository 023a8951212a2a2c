package repo

import (
	"context"

	"github.com/oneconcern/repobuf/pkg/serialize"
)

type fakeRepo struct {
	name      string
	opened    int
	closed    int
	closeCtx  context.Context
	cursor    string
	written   int
	openErr   error
	closeErr  error
	flushErr  error
	lastFlush Mode
}

func (f *fakeRepo) String() string { return f.name }

func (f *fakeRepo) Open(context.Context) error {
	f.opened++
	return f.openErr
}

func (f *fakeRepo) Close(ctx context.Context) error {
	f.closed++
	f.closeCtx = ctx
	return f.closeErr
}

func (f *fakeRepo) Release() error { return nil }

func (f *fakeRepo) Reconfigure(context.Context, map[string]string) error { return nil }

func (f *fakeRepo) Cursor() string { return f.cursor }

func (f *fakeRepo) Create(_ context.Context, target string) error {
	f.cursor = target
	return nil
}

func (f *fakeRepo) Write(_ context.Context, records []serialize.Record, target string) error {
	f.cursor = target
	f.written += len(records)
	return nil
}

func (f *fakeRepo) Read(_ context.Context, target string, _ ReadOptions) (*View, error) {
	return &View{Target: target}, nil
}

func (f *fakeRepo) Flush(_ context.Context, target string, mode Mode) (*View, error) {
	f.lastFlush = mode
	if f.flushErr != nil {
		return nil, f.flushErr
	}
	if mode == Preview {
		return &View{Target: target, Data: []byte("x\n")}, nil
	}
	return nil, nil
}

func (f *fakeRepo) Delete(context.Context, string, DeleteOptions) error { return nil }

func fakeConstructor(cfg Config, opts ...Option) (Repo, error) {
	if _, err := cfg.Threshold(); err != nil {
		return nil, err
	}
	return &fakeRepo{name: cfg.Type}, nil
}
