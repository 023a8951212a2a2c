// Copyright © 2018 One Concern

package repo

import (
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/repobuf/pkg/dispatch"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/table"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultBufferMB is the default buffer threshold, in megabytes
const DefaultBufferMB = 5

// Config describes a repo
type Config struct {
	// Type selects the variant from the registry
	Type string `mapstructure:"type" json:"type,omitempty" yaml:"type,omitempty"`
	// Format is the output format of byte-oriented variants
	Format string `mapstructure:"format" json:"format,omitempty" yaml:"format,omitempty"`
	// BufferMB is the buffer threshold in megabytes
	BufferMB int `mapstructure:"buffer_mb" json:"buffer_mb,omitempty" yaml:"buffer_mb,omitempty"`
	// BufferSize is an optional human readable threshold (e.g. "512KiB"), overriding BufferMB
	BufferSize string `mapstructure:"buffer_size" json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	// Protocol of the network variant (e.g. s3, gcs)
	Protocol string `mapstructure:"protocol" json:"protocol,omitempty" yaml:"protocol,omitempty"`
	// Params are backend-specific connection parameters
	Params map[string]string `mapstructure:"params" json:"params,omitempty" yaml:"params,omitempty"`
}

// Threshold returns the buffer threshold in bytes
func (c Config) Threshold() (int64, error) {
	if c.BufferSize != "" {
		size, err := units.RAMInBytes(c.BufferSize)
		if err != nil {
			return 0, ConfigurationError("invalid buffer size %q: %v", c.BufferSize, err)
		}
		if size <= 0 {
			return 0, ConfigurationError("buffer size must be greater than zero, got %q", c.BufferSize)
		}
		return size, nil
	}
	if c.BufferMB <= 0 {
		return 0, ConfigurationError("buffer in megabytes must be greater than zero, got %d", c.BufferMB)
	}
	return int64(c.BufferMB) * units.MiB, nil
}

// CloneParams returns a copy of the connection parameters
func (c Config) CloneParams() map[string]string {
	params := make(map[string]string, len(c.Params))
	for k, v := range c.Params {
		params[k] = v
	}
	return params
}

// Settings gather the optional dependencies of repos
type Settings struct {
	Logger      *zap.Logger
	Serializers serialize.Lookup
	Fs          afero.Fs
	Pool        *dispatch.Pool
	Clock       func() time.Time
	Durable     table.Store
	Staging     table.Store
}

// Option is a functor to pass optional dependencies to repos
type Option func(*Settings)

// Logger injects a logger
func Logger(l *zap.Logger) Option {
	return func(s *Settings) {
		if l != nil {
			s.Logger = l
		}
	}
}

// Serializers overrides the serializer lookup
func Serializers(lookup serialize.Lookup) Option {
	return func(s *Settings) {
		if lookup != nil {
			s.Serializers = lookup
		}
	}
}

// Fs injects the file system of the local variant
func Fs(fs afero.Fs) Option {
	return func(s *Settings) {
		s.Fs = fs
	}
}

// Pool shares a worker pool for blocking backend calls. The pool is not released by the repo.
func Pool(p *dispatch.Pool) Option {
	return func(s *Settings) {
		s.Pool = p
	}
}

// Clock overrides the time source used for commit watermarks
func Clock(fn func() time.Time) Option {
	return func(s *Settings) {
		if fn != nil {
			s.Clock = fn
		}
	}
}

// Tables injects the durable and staging table stores of the tabular variant.
// Stores provided this way are released by the repo.
func Tables(durable, staging table.Store) Option {
	return func(s *Settings) {
		s.Durable = durable
		s.Staging = staging
	}
}

// ApplyOptions resolves settings, with defaults
func ApplyOptions(opts []Option) Settings {
	s := Settings{
		Logger:      zap.NewNop(),
		Serializers: serialize.Default(),
		Clock:       time.Now,
	}
	for _, apply := range opts {
		apply(&s)
	}
	return s
}
