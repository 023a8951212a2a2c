// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/spf13/cobra"
)

func browser(r repo.Repo) (repo.Browser, error) {
	b, ok := r.(repo.Browser)
	if !ok {
		return nil, repo.ErrNotSupported.Wrapf("%s has no containers", r.String())
	}
	return b, nil
}

func (c *cli) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list DIR",
		Aliases: []string{"ls"},
		Short:   "List the content of a container",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) > 0 {
				dir = args[0]
			}
			out := cmd.OutOrStdout()
			return c.session(cmd, func(ctx context.Context, r repo.Repo) error {
				b, err := browser(r)
				if err != nil {
					return err
				}
				keys, err := b.List(ctx, dir)
				if err != nil {
					return err
				}
				for _, key := range keys {
					_, _ = fmt.Fprintln(out, key)
				}
				return nil
			})
		},
	}
}

func (c *cli) newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir DIR",
		Short: "Create a container",
		Long:  "Create a container. An existing container is left as is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.session(cmd, func(ctx context.Context, r repo.Repo) error {
				b, err := browser(r)
				if err != nil {
					return err
				}
				return b.MakeContainer(ctx, args[0])
			})
		},
	}
}
