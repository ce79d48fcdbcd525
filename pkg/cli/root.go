package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TechXTT/pgraph/internal/logging"
	"github.com/TechXTT/pgraph/pkg/config"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// flagKeys maps command-line flags onto config keys. Flags that are not
// defined on the running command are skipped.
var flagKeys = map[string]string{
	"log-level":      config.KeyLogLevel,
	"log-format":     config.KeyLogFormat,
	"schema":         config.KeySchemaName,
	"host":           config.KeyHost,
	"port":           config.KeyPort,
	"migrations-dir": config.KeyMigrationsDir,
}

type app struct {
	envFiles []string
	cfg      *config.Config
	log      *zap.Logger
}

// setup loads configuration and the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	v := config.New(a.envFiles...)
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// NewRootCmd builds the top-level `pgraph` command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "pgraph",
		Short:             "pgraph serves a GraphQL API generated from a PostgreSQL schema",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: console or json")
	flags.String("schema", "", "PostgreSQL schema to expose")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newTokenCmd(a), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		// version works without a valid environment
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pgraph", Version)
		},
	}
}
