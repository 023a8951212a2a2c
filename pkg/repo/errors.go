// Copyright © 2018 One Concern

package repo

import (
	"github.com/oneconcern/repobuf/pkg/errors"
)

var (
	// ErrConfiguration is a fatal error raised at construction time
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownTarget is returned when flushing a target without buffer
	ErrUnknownTarget = errors.New("unknown target")

	// ErrNoTarget is returned when no target is given and no cursor is set
	ErrNoTarget = errors.New("no target specified")

	// ErrNotSupported is returned when a variant does not implement an optional capability
	ErrNotSupported = errors.New("not supported")
)

// ConfigurationError builds an error matching ErrConfiguration
func ConfigurationError(format string, args ...interface{}) error {
	return ErrConfiguration.Wrapf(format, args...)
}

