// Copyright © 2018 One Concern

package repo

import (
	"sort"
	"sync"
)

// Constructor builds a repo variant from its configuration
type Constructor func(Config, ...Option) (Repo, error)

// Registry maps type tags to repo constructors
type Registry struct {
	mx           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry builds an empty registry
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register a constructor under a type tag
func (r *Registry) Register(tag string, constructor Constructor) error {
	if tag == "" {
		return ConfigurationError("a repo variant must be registered with a type tag")
	}
	if constructor == nil {
		return ConfigurationError("nil constructor for repo type %q", tag)
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, exists := r.constructors[tag]; exists {
		return ConfigurationError("repo type %q is already registered", tag)
	}
	r.constructors[tag] = constructor
	return nil
}

// Create a repo of the given type
func (r *Registry) Create(tag string, cfg Config, opts ...Option) (Repo, error) {
	r.mx.RLock()
	constructor, ok := r.constructors[tag]
	r.mx.RUnlock()
	if !ok {
		return nil, ConfigurationError("unknown repo type %q, expected one of %v", tag, r.Tags())
	}
	return constructor(cfg, opts...)
}

// New creates a repo from the type held by its configuration
func (r *Registry) New(cfg Config, opts ...Option) (Repo, error) {
	return r.Create(cfg.Type, cfg, opts...)
}

// Tags lists the registered type tags, sorted
func (r *Registry) Tags() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	tags := make([]string, 0, len(r.constructors))
	for tag := range r.constructors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
