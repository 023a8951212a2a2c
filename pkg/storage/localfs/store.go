// Copyright © 2018 One Concern

package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"github.com/spf13/afero"
)

// DefaultRoot is the base directory used when no file system is provided
const DefaultRoot = ".repobuf"

// New creates a new local file system backed storage model
func New(fs afero.Fs) storage.Store {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), DefaultRoot)
	}
	return &localFS{
		fs: fs,
	}
}

type localFS struct {
	fs afero.Fs
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return !fi.IsDir(), nil
}

func (l *localFS) Touch(ctx context.Context, key string) error {
	if err := l.ensureDir(key); err != nil {
		return err
	}
	f, err := l.fs.OpenFile(key, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("touch %q: %w", key, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	now := time.Now()
	return l.fs.Chtimes(key, now, now)
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.Wrapf("get %q", key)
	}
	return l.fs.Open(key)
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader) error {
	if err := l.ensureDir(key); err != nil {
		return err
	}
	target, err := l.fs.OpenFile(key, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create record for %q: %w", key, err)
	}
	if _, err = io.Copy(target, source); err != nil {
		_ = target.Close()
		return fmt.Errorf("write record for %q: %w", key, err)
	}
	return target.Close()
}

func (l *localFS) ensureDir(key string) error {
	dir := filepath.Dir(key)
	if dir == "" || dir == "." {
		return nil
	}
	if err := l.fs.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("ensuring directories for %q: %w", key, err)
	}
	return nil
}

func (l *localFS) MakeContainer(ctx context.Context, dir string) error {
	if dir == "" || dir == "." {
		return status.ErrExists.Wrap(&os.PathError{Op: "mkdir", Path: dir, Err: os.ErrExist})
	}
	fi, err := l.fs.Stat(dir)
	switch {
	case err == nil && fi.IsDir():
		return status.ErrExists.Wrap(&os.PathError{Op: "mkdir", Path: dir, Err: os.ErrExist})
	case err == nil:
		return status.ErrNotADirectory.Wrapf("mkdir %q", dir)
	case !os.IsNotExist(err):
		return err
	}
	return l.fs.MkdirAll(dir, 0700)
}

func (l *localFS) Delete(ctx context.Context, key string, recursive bool) error {
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return status.ErrNotExists.Wrap(err)
		}
		return err
	}
	if fi.IsDir() {
		if !recursive {
			return fmt.Errorf("removing directory %q requires a recursive delete", key)
		}
		return l.fs.RemoveAll(key)
	}
	if err := l.fs.Remove(key); err != nil {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

// Keys lists the entries right under a directory.
func (l *localFS) Keys(ctx context.Context, dir string) ([]string, error) {
	root := dir
	if root == "" {
		root = "."
	}
	infos, err := afero.ReadDir(l.fs, root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotExists.Wrap(err)
		}
		return nil, err
	}
	res := make([]string, 0, len(infos))
	for _, info := range infos {
		if dir == "" {
			res = append(res, info.Name())
			continue
		}
		res = append(res, strings.TrimSuffix(dir, "/")+"/"+info.Name())
	}
	sort.Strings(res)
	return res, nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}

/* atomic local storage implementation.
 * use a decorator pattern to implement atomic Put()s via atomicity of afero.Fs.Rename()
 * for those filesystems where Rename() is atomic: files are placed in a staging area,
 * then Rename()d into place. A full object rewrite is thus never observed half written.
 */

/* staging area key prefix and helper functions */
const (
	nestedPutStageName = ".put-stage"
)

func maybeInvalidKey(key string) error {
	const pathSepString = string(os.PathSeparator)
	pathComponents := strings.Split(strings.TrimLeft(key, pathSepString), pathSepString)
	if len(pathComponents) == 0 {
		return nil
	}
	if pathComponents[0] == nestedPutStageName {
		return status.ErrInvalidResource.Wrapf("key '%v' conflicts with put staging area name '%v'", key, nestedPutStageName)
	}
	return nil
}

func filterInvalidKeys(ks []string) []string {
	ksFiltered := ks[:0]
	for _, key := range ks {
		if err := maybeInvalidKey(key); err == nil {
			ksFiltered = append(ksFiltered, key)
		}
	}
	for i := len(ksFiltered); i < len(ks); i++ {
		ks[i] = ""
	}
	return ksFiltered
}

// NewAtomic creates a local storage which replaces objects atomically on Put
func NewAtomic(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), DefaultRoot)
	}
	/* the staging area exists within the afero.Fs itself */
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory for %q: %w", nestedPutStageName, err)
	}
	return &localFSAtomic{
		storeImpl: localFS{fs: fs},
	}, nil
}

type localFSAtomic struct {
	storeImpl localFS
}

func (l *localFSAtomic) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	return l.storeImpl.Has(ctx, key)
}

func (l *localFSAtomic) Touch(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	return l.storeImpl.Touch(ctx, key)
}

func (l *localFSAtomic) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	return l.storeImpl.Get(ctx, key)
}

func (l *localFSAtomic) MakeContainer(ctx context.Context, dir string) error {
	if err := maybeInvalidKey(dir); err != nil {
		return err
	}
	return l.storeImpl.MakeContainer(ctx, dir)
}

func (l *localFSAtomic) Delete(ctx context.Context, key string, recursive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	return l.storeImpl.Delete(ctx, key, recursive)
}

func (l *localFSAtomic) Keys(ctx context.Context, dir string) ([]string, error) {
	ks, err := l.storeImpl.Keys(ctx, dir)
	if err != nil {
		return ks, err
	}
	return filterInvalidKeys(ks), nil
}

/* the Put() implementation is the only part of the Store interface implemented
 * outside of the functional wrap design pattern
 */
func (l *localFSAtomic) Put(ctx context.Context, key string, source io.Reader) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	putStageKey := filepath.Join(nestedPutStageName, key)
	if err := l.storeImpl.Put(ctx, putStageKey, source); err != nil {
		return err
	}
	/* Rename() doesn't create directories automatically */
	if err := l.storeImpl.ensureDir(key); err != nil {
		return err
	}
	return l.storeImpl.fs.Rename(putStageKey, key)
}

// dupe: localFs.String
func (l *localFSAtomic) String() string {
	const localfs = "localfs-atomic"
	switch fs := l.storeImpl.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
