// Package restless is the restless command line: serve the REST API over a
// database, or print the entities it would expose.
package restless

import (
	"fmt"
	"os"

	"github.com/edgeflare/restless/pkg/config"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:           "restless",
		Short:         "restless serves database tables as a REST API",
		Long:          `restless reflects the tables of a PostgreSQL or SQLite database and serves search, CRUD, relation edits and aggregates over HTTP`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/restless.yaml)")
	f.StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	f.StringP("database.driver", "d", "pgx", "database driver (pgx, sqlite)")
	f.StringP("database.dsn", "c", "", "database connection string or SQLite file")
	f.StringSlice("database.schemas", nil, "database schemas to expose (postgres)")
	f.StringSlice("rest.include", nil, "expose only these entities")
	f.StringSlice("rest.exclude", nil, "never expose these entities")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}

	rootCmd.AddCommand(
		newServeCmd(load, &logLevel),
		newSchemaCmd(load),
	)
	return rootCmd
}

type loadFunc func(cmd *cobra.Command) (*config.Config, error)

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
