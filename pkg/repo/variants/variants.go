// Copyright © 2018 One Concern

// Package variants registers the built-in repo variants.
package variants

import (
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/repo/local"
	"github.com/oneconcern/repobuf/pkg/repo/network"
	"github.com/oneconcern/repobuf/pkg/repo/tabular"
)

// Type tags of the built-in variants
const (
	Network = "network"
	Local   = "local"
	Tabular = "tabular"
	// SQL is an alias of Tabular
	SQL = "sql"
)

func newNetwork(cfg repo.Config, opts ...repo.Option) (repo.Repo, error) {
	r, err := network.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newLocal(cfg repo.Config, opts ...repo.Option) (repo.Repo, error) {
	r, err := local.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newTabular(cfg repo.Config, opts ...repo.Option) (repo.Repo, error) {
	r, err := tabular.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Register the built-in variants
func Register(reg *repo.Registry) error {
	for _, v := range []struct {
		tag         string
		constructor repo.Constructor
	}{
		{Network, newNetwork},
		{Local, newLocal},
		{Tabular, newTabular},
		{SQL, newTabular},
	} {
		if err := reg.Register(v.tag, v.constructor); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry builds a registry populated with the built-in variants
func NewRegistry() *repo.Registry {
	reg := repo.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
