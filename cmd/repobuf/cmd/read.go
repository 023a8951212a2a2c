// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/spf13/cobra"
)

func (c *cli) newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read TARGET",
		Short: "Print the content of a target",
		Long: `Print the content of a target.

A missing target is created empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return c.session(cmd, func(ctx context.Context, r repo.Repo) error {
				v, err := r.Read(ctx, args[0], repo.ReadOptions{Stored: c.flags.read.stored})
				if err != nil {
					return err
				}
				return printView(out, v)
			})
		},
	}
	cmd.Flags().BoolVar(&c.flags.read.stored, "stored", true, "Read the stored content, merged with buffered records")
	return cmd
}

// printView writes raw content as is, and rows as JSON lines
func printView(out io.Writer, v *repo.View) error {
	if v == nil {
		return nil
	}
	if len(v.Data) > 0 {
		_, err := out.Write(v.Data)
		return err
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	for _, row := range v.Rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
