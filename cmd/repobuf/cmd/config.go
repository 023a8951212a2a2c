// Copyright © 2018 One Concern

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func (c *cli) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Commands to manage the config of repobuf",
		Long:  `The namespace for managing config settings of repobuf`,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the config used",
		Long:  `Print the config used by the invocation of the repobuf command, as YAML`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(b))
			return err
		},
	})
	return configCmd
}
