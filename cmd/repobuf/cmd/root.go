// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oneconcern/repobuf/pkg/dlogger"
	"github.com/oneconcern/repobuf/pkg/repo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Execute runs the repobuf command line.
// This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		wrapFatalln("repobuf", err)
	}
}

type flagsT struct {
	configFile string
	logLevel   string
	params     map[string]string
	logJSON    bool
	metrics    bool

	read struct {
		stored bool
	}
	write struct {
		file    string
		force   bool
		preview bool
	}
	delete struct {
		recursive  bool
		onlyBuffer bool
	}
}

type cli struct {
	v     *viper.Viper
	flags flagsT
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	c := &cli{v: v}

	rootCmd := &cobra.Command{
		Use:   "repobuf",
		Short: "repobuf writes records to buffered repos",
		Long: `repobuf writes records to buffered repos.

Records are buffered per target, then merged into remote objects, local files or tables.

Repos are configured with a repobuf.yaml file (in the current directory, $HOME/.repobuf or /etc/repobuf),
with REPOBUF_* environment variables, or with flags.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.flags.configFile, "config", "", "Config file (default is repobuf.yaml)")
	flags.StringVar(&c.flags.logLevel, "loglevel", dlogger.LogLevelNone, "Log level: debug, info, warn, error or none")
	flags.BoolVar(&c.flags.logJSON, "logjson", false, "Log JSON entries rather than console lines")
	flags.BoolVar(&c.flags.metrics, "metrics", false, "Print repo metrics on stderr when done")
	flags.StringToStringVar(&c.flags.params, "param", nil, "Backend connection parameters, as key=value")
	flags.String("type", "", "Type of repo: network, local, tabular")
	flags.String("format", "", "Output format: json, ndjson, csv")
	flags.Int("buffer-mb", 0, "Buffer threshold, in megabytes")
	flags.String("buffer-size", "", "Buffer threshold, as a human readable size (e.g. 512KiB)")
	flags.String("protocol", "", "Protocol of a network repo: s3, gcs, memory")

	bindFlags(v, flags)

	rootCmd.AddCommand(
		c.newConfigCmd(),
		c.newWriteCmd(),
		c.newReadCmd(),
		c.newDeleteCmd(),
		c.newListCmd(),
		c.newMkdirCmd(),
		c.newVariantsCmd(),
	)
	return rootCmd
}

// bindFlags binds repo settings flags to their configuration keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for key, flag := range map[string]string{
		"type":        "type",
		"format":      "format",
		"buffer_mb":   "buffer-mb",
		"buffer_size": "buffer-size",
		"protocol":    "protocol",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig reads in config file and ENV variables if set.
func (c *cli) initConfig() error {
	c.v.SetDefault("type", "local")
	c.v.SetDefault("format", "json")
	c.v.SetDefault("buffer_mb", repo.DefaultBufferMB)

	switch {
	case c.flags.configFile != "":
		c.v.SetConfigFile(c.flags.configFile)
	case os.Getenv("REPOBUF_CONFIG") != "":
		c.v.SetConfigFile(os.Getenv("REPOBUF_CONFIG"))
	default:
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.repobuf")
		c.v.AddConfigPath("/etc/repobuf")
		c.v.SetConfigName("repobuf")
	}

	c.v.SetEnvPrefix("repobuf")
	c.v.AutomaticEnv()
	if err := c.v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return err
		}
	}
	return nil
}

// config resolves the repo configuration: flags take precedence over the environment,
// then over the config file.
func (c *cli) config() (repo.Config, error) {
	var cfg repo.Config
	if err := c.v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string, len(c.flags.params))
	}
	for k, v := range c.flags.params {
		cfg.Params[k] = v
	}
	return cfg, nil
}
