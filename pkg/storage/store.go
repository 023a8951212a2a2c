// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"io/ioutil"
	"path"
	"strings"

	"github.com/oneconcern/repobuf/pkg/storage/status"
)

// MaxObjectSizeInMemory bounds the objects read back in full by ReadAll
const MaxObjectSizeInMemory = 2 * 1024 * 1024 * 1024 // 2 gigs

// Store implementations know how to handle whole objects on a file system-like backend.
//
// Examples are S3, GCS, local FS, ...
// Implementations of this interface are assumed to be fairly simple: there is no partial
// write primitive, objects are always read and written in full.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Touch(context.Context, string) error
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader) error
	Keys(context.Context, string) ([]string, error)
	// MakeContainer creates the directory (or bucket prefix) at the given path.
	// It returns an error matching status.ErrExists when the container is already there.
	MakeContainer(context.Context, string) error
	Delete(ctx context.Context, key string, recursive bool) error
}

// Session is implemented by remote stores which require a connection to be
// opened before use and released afterwards.
type Session interface {
	Open(context.Context) error
	Close() error
}

// RemoteStore is a store reached through a wire protocol
type RemoteStore interface {
	Store
	Session
}

// ReadAll fetches the full content of an object
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	object, err := ioutil.ReadAll(io.LimitReader(reader, MaxObjectSizeInMemory+1))
	if err != nil {
		return nil, err
	}
	if len(object) > MaxObjectSizeInMemory {
		return nil, status.ErrObjectTooBig.Wrapf("object %q", key)
	}
	return object, nil
}

// Dir returns the container part of a key, using forward slashes as separators.
//
// An empty string is returned for keys without container.
func Dir(key string) string {
	dir := path.Dir(strings.TrimSuffix(key, "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// SplitBucket splits a remote path into its bucket and object key parts.
//
// Remote paths follow the "bucket/path/to/object" convention.
func SplitBucket(p string) (bucket, key string) {
	p = strings.TrimPrefix(p, "/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// FolderMarker is the key of the empty object standing for a folder on
// object stores without native directories.
func FolderMarker(key string) string {
	return strings.TrimSuffix(key, "/") + "/"
}
