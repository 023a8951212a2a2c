// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/oneconcern/repobuf/pkg/repo/network"
	"github.com/oneconcern/repobuf/pkg/repo/variants"
	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/spf13/cobra"
)

func (c *cli) newVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the supported repo types, protocols and formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s\t%s\n", "types", strings.Join(variants.NewRegistry().Tags(), ", "))
			_, _ = fmt.Fprintf(out, "%s\t%s\n", "protocols", strings.Join(network.Protocols(), ", "))
			_, _ = fmt.Fprintf(out, "%s\t%s %s\n", "formats", strings.Join(serialize.Default().Formats(), ", "),
				color.HiBlackString("(network and local repos)"))
			return nil
		},
	}
}
