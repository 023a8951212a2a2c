// Copyright © 2018 One Concern

package gcs

import (
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Option is a functor to pass optional parameters to the gcs store
type Option func(*gcs)

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(g *gcs) {
		if logger != nil {
			g.l = logger
		}
	}
}

// ClientOptions appends google API client options used when the session is opened
func ClientOptions(opts ...option.ClientOption) Option {
	return func(g *gcs) {
		g.clientOpts = append(g.clientOpts, opts...)
	}
}

// ClientOptionsFromParams derives client options from connection parameters.
//
// Recognized parameters: credentials (path to a JSON key file), endpoint, anonymous.
func ClientOptionsFromParams(params map[string]string) []option.ClientOption {
	var opts []option.ClientOption
	if cred := params["credentials"]; cred != "" {
		opts = append(opts, option.WithCredentialsFile(cred))
	}
	if endpoint := params["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if params["anonymous"] == "true" {
		opts = append(opts, option.WithoutAuthentication())
	}
	return opts
}
