// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pillarhq/pillar/internal/config"
	"github.com/pillarhq/pillar/internal/xdg"
)

// serviceName tags every log record.
const serviceName = "pillar"

// NewRootCmd creates the root command for the Pillar CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pillar",
		Short: "Pillar - identity and session service",
		Long: `Pillar keeps user identities, bcrypt credentials and bearer sessions
in PostgreSQL and serves them over a small JSON API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML)")

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newStatusCmd(deps))
	cmd.AddCommand(newWaitCmd(deps))

	return cmd
}

// addCommonFlags registers the flags shared by every subcommand. Defaults
// mirror config.Default so unset flags never override other sources.
func addCommonFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("env", string(d.Env), "environment profile (development, test or production)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("database-host", d.Database.Host, "PostgreSQL host")
	fs.Int("database-port", d.Database.Port, "PostgreSQL port")
	fs.String("database-user", d.Database.User, "PostgreSQL user")
	fs.String("database-name", d.Database.Name, "PostgreSQL database name")
}

// loadConfig layers the config file, PILLAR_* environment and flags.
// Without --config, $XDG_CONFIG_HOME/pillar/config.yaml is read if present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err //nolint:wrapcheck // flag is always registered
	}
	if file == "" {
		path, ok, err := xdg.ConfigFile()
		if err != nil {
			return nil, err //nolint:wrapcheck // coded by xdg
		}
		if ok {
			file = path
		}
	}
	return config.Load(config.LoadOptions{File: file, Flags: cmd.Flags()})
}
