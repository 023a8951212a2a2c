// Copyright © 2018 One Concern

// Package memory provides an in-memory remote store.
//
// It behaves like a remote protocol (a session must be opened before use) while
// keeping objects in an afero memory file system. File systems are shared per
// namespace, so that several stores opened on the same namespace see the same objects.
package memory

import (
	"context"
	"io"
	"sync"

	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/localfs"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"github.com/spf13/afero"
)

var (
	registryMx sync.Mutex
	registry   = make(map[string]afero.Fs)
)

// Filesystem returns the memory file system shared under a namespace
func Filesystem(namespace string) afero.Fs {
	registryMx.Lock()
	defer registryMx.Unlock()
	fs, ok := registry[namespace]
	if !ok {
		fs = afero.NewMemMapFs()
		registry[namespace] = fs
	}
	return fs
}

// Forget drops the file system of a namespace
func Forget(namespace string) {
	registryMx.Lock()
	defer registryMx.Unlock()
	delete(registry, namespace)
}

// New builds an in-memory remote store on the namespace given by the "namespace" parameter
func New(params map[string]string) storage.RemoteStore {
	ns := params["namespace"]
	return &memStore{
		namespace: ns,
		store:     localfs.New(Filesystem(ns)),
	}
}

type memStore struct {
	namespace string
	store     storage.Store

	mx     sync.RWMutex
	opened bool
	opens  int
}

func (m *memStore) Open(_ context.Context) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if !m.opened {
		m.opened = true
		m.opens++
	}
	return nil
}

func (m *memStore) Close() error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.opened = false
	return nil
}

// Opens tells how many sessions were established on this store
func Opens(s storage.Store) int {
	m, ok := s.(*memStore)
	if !ok {
		return 0
	}
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.opens
}

// IsOpen tells if a memory store has a live session
func IsOpen(s storage.Store) bool {
	m, ok := s.(*memStore)
	if !ok {
		return false
	}
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.opened
}

func (m *memStore) check() error {
	m.mx.RLock()
	defer m.mx.RUnlock()
	if !m.opened {
		return status.ErrSessionClosed
	}
	return nil
}

func (m *memStore) String() string {
	return "memory://" + m.namespace
}

func (m *memStore) Has(ctx context.Context, key string) (bool, error) {
	if err := m.check(); err != nil {
		return false, err
	}
	return m.store.Has(ctx, key)
}

func (m *memStore) Touch(ctx context.Context, key string) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.store.Touch(ctx, key)
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.store.Get(ctx, key)
}

func (m *memStore) Put(ctx context.Context, key string, rdr io.Reader) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.store.Put(ctx, key, rdr)
}

func (m *memStore) Keys(ctx context.Context, dir string) ([]string, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.store.Keys(ctx, dir)
}

func (m *memStore) MakeContainer(ctx context.Context, dir string) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.store.MakeContainer(ctx, dir)
}

func (m *memStore) Delete(ctx context.Context, key string, recursive bool) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.store.Delete(ctx, key, recursive)
}
