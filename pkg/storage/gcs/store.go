// Copyright © 2018 One Concern

package gcs

import (
	"bytes"
	"context"
	"io"
	"sync"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcs struct {
	project    string
	clientOpts []option.ClientOption
	l          *zap.Logger

	mx     sync.RWMutex
	client *gcsStorage.Client
}

// New builds a GCS store. Paths are of the form "bucket/object".
//
// Parameters are those of ClientOptionsFromParams, plus "project" which is required to create buckets.
func New(params map[string]string, opts ...Option) storage.RemoteStore {
	g := &gcs{
		project:    params["project"],
		clientOpts: ClientOptionsFromParams(params),
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(g)
	}
	return g
}

func (g *gcs) String() string {
	return "gcs"
}

func (g *gcs) Open(ctx context.Context) error {
	g.mx.Lock()
	defer g.mx.Unlock()
	if g.client != nil {
		return nil
	}
	client, err := gcsStorage.NewClient(ctx, g.clientOpts...)
	if err != nil {
		return toSentinelErrors(err)
	}
	g.client = client
	g.l.Info("gcs client opened")
	return nil
}

func (g *gcs) Close() error {
	g.mx.Lock()
	defer g.mx.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func (g *gcs) object(p string) (*gcsStorage.ObjectHandle, error) {
	g.mx.RLock()
	defer g.mx.RUnlock()
	if g.client == nil {
		return nil, status.ErrSessionClosed
	}
	bucket, key := storage.SplitBucket(p)
	return g.client.Bucket(bucket).Object(key), nil
}

func (g *gcs) bucket(p string) (*gcsStorage.BucketHandle, string, error) {
	g.mx.RLock()
	defer g.mx.RUnlock()
	if g.client == nil {
		return nil, "", status.ErrSessionClosed
	}
	bucket, key := storage.SplitBucket(p)
	return g.client.Bucket(bucket), key, nil
}

func (g *gcs) Has(ctx context.Context, objectName string) (bool, error) {
	obj, err := g.object(objectName)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if err != nil {
		err = toSentinelErrors(err)
		if errors.Is(err, status.ErrNotExists) || errors.Is(err, status.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *gcs) Touch(ctx context.Context, objectName string) error {
	return g.Put(ctx, objectName, bytes.NewReader(nil))
}

func (g *gcs) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := g.object(objectName)
	if err != nil {
		return nil, err
	}
	objectReader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return objectReader, nil
}

func (g *gcs) Put(ctx context.Context, objectName string, reader io.Reader) error {
	obj, err := g.object(objectName)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	if _, err = io.Copy(writer, reader); err != nil {
		_ = writer.Close()
		return toSentinelErrors(err)
	}
	return toSentinelErrors(writer.Close())
}

// MakeContainer creates a bucket, or a folder marker object inside a bucket.
func (g *gcs) MakeContainer(ctx context.Context, p string) error {
	bucket, key, err := g.bucket(p)
	if err != nil {
		return err
	}
	if key == "" {
		return toSentinelErrors(bucket.Create(ctx, g.project, nil))
	}
	if _, err = bucket.Attrs(ctx); err != nil {
		err = toSentinelErrors(err)
		if !errors.Is(err, status.ErrNotExists) {
			return err
		}
		if err = toSentinelErrors(bucket.Create(ctx, g.project, nil)); err != nil && !errors.Is(err, status.ErrExists) {
			return err
		}
	}

	marker := bucket.Object(storage.FolderMarker(key))
	if _, err = marker.Attrs(ctx); err == nil {
		return status.ErrExists.Wrapf("folder %q", p)
	} else if err = toSentinelErrors(err); !errors.Is(err, status.ErrNotExists) {
		return err
	}
	writer := marker.NewWriter(ctx)
	return toSentinelErrors(writer.Close())
}

func (g *gcs) Delete(ctx context.Context, objectName string, recursive bool) error {
	bucket, key, err := g.bucket(objectName)
	if err != nil {
		return err
	}
	if recursive {
		it := bucket.Objects(ctx, &gcsStorage.Query{Prefix: storage.FolderMarker(key)})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return toSentinelErrors(err)
			}
			if err = bucket.Object(attrs.Name).Delete(ctx); err != nil {
				return toSentinelErrors(err)
			}
		}
	}
	err = toSentinelErrors(bucket.Object(key).Delete(ctx))
	if recursive && errors.Is(err, status.ErrNotExists) {
		return nil
	}
	return err
}

// Keys lists objects and sub-folders right under a folder.
func (g *gcs) Keys(ctx context.Context, p string) ([]string, error) {
	bucket, key, err := g.bucket(p)
	if err != nil {
		return nil, err
	}
	bucketName, _ := storage.SplitBucket(p)
	prefix := ""
	if key != "" {
		prefix = storage.FolderMarker(key)
	}

	var keys []string
	it := bucket.Objects(ctx, &gcsStorage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		objAttrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, toSentinelErrors(err)
		}
		switch {
		case objAttrs.Prefix != "":
			keys = append(keys, bucketName+"/"+objAttrs.Prefix)
		case objAttrs.Name != prefix:
			keys = append(keys, bucketName+"/"+objAttrs.Name)
		}
	}
	return keys, nil
}
