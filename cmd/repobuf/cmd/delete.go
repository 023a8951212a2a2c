// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/spf13/cobra"
)

func (c *cli) newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete TARGET",
		Aliases: []string{"rm"},
		Short:   "Delete a target",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return c.session(cmd, func(ctx context.Context, r repo.Repo) error {
				err := r.Delete(ctx, args[0], repo.DeleteOptions{
					Recursive:  c.flags.delete.recursive,
					OnlyBuffer: c.flags.delete.onlyBuffer,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "%s %s\n", color.YellowString("deleted"), args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&c.flags.delete.recursive, "recursive", false, "Delete containers with their content")
	cmd.Flags().BoolVar(&c.flags.delete.onlyBuffer, "only-buffer", false, "Only drop staged rows (tabular repos)")
	return cmd
}
