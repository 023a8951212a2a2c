// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/spf13/cobra"
)

// batchSize is the number of records handed over to the repo per write
const batchSize = 100

func (c *cli) newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write TARGET",
		Short: "Write records to a target",
		Long: `Write JSON records, one per line, read from stdin or from a file, to a target.

Records are buffered and flushed whenever the buffer threshold is reached, and when the command completes.`,
		Example: `% echo '{"id": 1}' | repobuf write --type local --param root=/tmp/out x/y.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if c.flags.write.file != "" {
				f, err := os.Open(c.flags.write.file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			target := args[0]
			out := cmd.OutOrStdout()

			return c.session(cmd, func(ctx context.Context, r repo.Repo) error {
				count, err := writeRecords(ctx, r, in, target)
				if err != nil {
					return err
				}
				pending, _ := pendingOf(r, target)
				_, _ = fmt.Fprintf(out, "%s %d records to %s %s\n",
					color.GreenString("wrote"), count, target,
					color.HiBlackString("(%s pending)", units.BytesSize(float64(pending))),
				)

				if c.flags.write.preview {
					v, err := r.Flush(ctx, target, repo.ModeOf(false, true))
					if err != nil {
						return err
					}
					if err = printView(out, v); err != nil {
						return err
					}
				}
				if c.flags.write.force {
					_, err = r.Flush(ctx, target, repo.ModeOf(true, false))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&c.flags.write.file, "file", "", "Read records from this file instead of stdin")
	cmd.Flags().BoolVar(&c.flags.write.preview, "preview", false, "Print the merged content of the target before flushing")
	cmd.Flags().BoolVar(&c.flags.write.force, "force", false, "Force a flush of the target after writing")
	return cmd
}

func writeRecords(ctx context.Context, r repo.Repo, in io.Reader, target string) (int, error) {
	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(in)
	batch := make([]serialize.Record, 0, batchSize)
	var count int
	for {
		var record serialize.Record
		err := dec.Decode(&record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("decoding record #%d: %w", count+len(batch)+1, err)
		}
		batch = append(batch, record)
		if len(batch) < batchSize {
			continue
		}
		if err = r.Write(ctx, batch, target); err != nil {
			return count, err
		}
		count += len(batch)
		batch = make([]serialize.Record, 0, batchSize)
	}
	if len(batch) > 0 {
		if err := r.Write(ctx, batch, target); err != nil {
			return count, err
		}
		count += len(batch)
	}
	return count, nil
}

func pendingOf(r repo.Repo, target string) (int64, bool) {
	in, ok := r.(repo.Inspector)
	if !ok {
		return 0, false
	}
	return in.Pending(target)
}
