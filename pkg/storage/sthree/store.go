// Copyright © 2018 One Concern

package sthree

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/status"
	"go.uber.org/zap"
)

// PageSize is the number of keys fetched per listing call
const PageSize = 1000

// Option is a functor to pass optional parameters to the s3 store
type Option func(*s3FS)

// AWSConfig overrides the aws configuration derived from parameters
func AWSConfig(cfg *aws.Config) Option {
	return func(fs *s3FS) {
		if cfg != nil {
			fs.awsConfig = cfg
		}
	}
}

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(fs *s3FS) {
		if logger != nil {
			fs.l = logger
		}
	}
}

// ConfigFromParams builds an aws configuration from connection parameters.
//
// Recognized parameters: region, endpoint, access_key, secret_key, session_token, force_path_style.
func ConfigFromParams(params map[string]string) *aws.Config {
	cfg := aws.NewConfig()
	if region := params["region"]; region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint := params["endpoint"]; endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	if key := params["access_key"]; key != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(key, params["secret_key"], params["session_token"]))
	}
	if fps, err := strconv.ParseBool(params["force_path_style"]); err == nil {
		cfg = cfg.WithS3ForcePathStyle(fps)
	}
	return cfg
}

// New builds a S3 store. Paths are of the form "bucket/key".
//
// No connection is established before Open is called.
func New(params map[string]string, options ...Option) storage.RemoteStore {
	fs := &s3FS{
		awsConfig: ConfigFromParams(params),
		l:         zap.NewNop(),
	}
	for _, apply := range options {
		apply(fs)
	}
	return fs
}

type s3FS struct {
	awsConfig *aws.Config
	l         *zap.Logger

	mx       sync.RWMutex
	s3       *s3.S3
	uploader *s3manager.Uploader
}

func (s *s3FS) Open(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.s3 != nil {
		return nil
	}
	sess, err := session.NewSession(s.awsConfig)
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	s.s3 = s3.New(sess)
	s.uploader = s3manager.NewUploaderWithClient(s.s3)
	s.l.Info("s3 session opened", zap.String("region", aws.StringValue(s.awsConfig.Region)))
	return nil
}

func (s *s3FS) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.s3 = nil
	s.uploader = nil
	return nil
}

func (s *s3FS) client() (*s3.S3, *s3manager.Uploader, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if s.s3 == nil {
		return nil, nil, status.ErrSessionClosed
	}
	return s.s3, s.uploader, nil
}

func (s *s3FS) Has(ctx context.Context, p string) (bool, error) {
	client, _, err := s.client()
	if err != nil {
		return false, err
	}
	bucket, key := storage.SplitBucket(p)
	_, err = client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = toSentinelErrors(err)
		if errors.Is(err, status.ErrNotExists) || errors.Is(err, status.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *s3FS) Touch(ctx context.Context, p string) error {
	return s.Put(ctx, p, bytes.NewReader(nil))
}

func (s *s3FS) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	client, _, err := s.client()
	if err != nil {
		return nil, err
	}
	bucket, key := storage.SplitBucket(p)
	obj, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return obj.Body, nil
}

func (s *s3FS) Put(ctx context.Context, p string, rdr io.Reader) error {
	_, uploader, err := s.client()
	if err != nil {
		return err
	}
	bucket, key := storage.SplitBucket(p)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   rdr,
	})
	return toSentinelErrors(err)
}

// MakeContainer creates a bucket, or a folder marker object inside a bucket.
func (s *s3FS) MakeContainer(ctx context.Context, p string) error {
	client, _, err := s.client()
	if err != nil {
		return err
	}
	bucket, key := storage.SplitBucket(p)
	if key == "" {
		_, err = client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(bucket),
		})
		return toSentinelErrors(err)
	}

	if _, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		err = toSentinelErrors(err)
		if !errors.Is(err, status.ErrNotExists) && !errors.Is(err, status.ErrNotFound) {
			return err
		}
		if _, err = client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
			if err = toSentinelErrors(err); !errors.Is(err, status.ErrExists) {
				return err
			}
		}
	}

	marker := bucket + "/" + storage.FolderMarker(key)
	has, err := s.Has(ctx, marker)
	if err != nil {
		return err
	}
	if has {
		return status.ErrExists.Wrapf("folder %q", p)
	}
	return s.Put(ctx, marker, bytes.NewReader(nil))
}

func (s *s3FS) Delete(ctx context.Context, p string, recursive bool) error {
	client, _, err := s.client()
	if err != nil {
		return err
	}
	bucket, key := storage.SplitBucket(p)
	if recursive {
		params := &s3.ListObjectsInput{
			Bucket: aws.String(bucket),
			Prefix: aws.String(storage.FolderMarker(key)),
		}
		del := s3manager.NewBatchDeleteWithClient(client)
		if err = del.Delete(ctx, s3manager.NewDeleteListIterator(client, params)); err != nil {
			return toSentinelErrors(err)
		}
	}

	has, err := s.Has(ctx, p)
	if err != nil {
		return err
	}
	if !has {
		if recursive {
			return nil
		}
		return status.ErrNotExists.Wrapf("delete %q", p)
	}
	_, err = client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return toSentinelErrors(err)
}

// Keys lists objects and sub-folders right under a folder.
func (s *s3FS) Keys(ctx context.Context, p string) ([]string, error) {
	client, _, err := s.client()
	if err != nil {
		return nil, err
	}
	bucket, key := storage.SplitBucket(p)
	prefix := ""
	if key != "" {
		prefix = storage.FolderMarker(key)
	}

	var keys []string
	eachPage := func(page *s3.ListObjectsV2Output, more bool) bool {
		for _, obj := range page.Contents {
			k := aws.StringValue(obj.Key)
			if k != "" && k != prefix {
				keys = append(keys, bucket+"/"+k)
			}
		}
		for _, cp := range page.CommonPrefixes {
			keys = append(keys, bucket+"/"+aws.StringValue(cp.Prefix))
		}
		return true
	}
	params := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int64(PageSize),
	}
	if err = client.ListObjectsV2PagesWithContext(ctx, params, eachPage); err != nil {
		return nil, toSentinelErrors(err)
	}
	return keys, nil
}

func (s *s3FS) String() string {
	return "s3@" + aws.StringValue(s.awsConfig.Endpoint)
}
