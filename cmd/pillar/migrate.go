// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pillarhq/pillar/internal/logging"
	"github.com/pillarhq/pillar/internal/store"
)

// migrateConfig holds configuration for the migrate command.
type migrateConfig struct {
	dryRun     bool
	jsonOutput bool
}

func newMigrateCmd(deps *Deps) *cobra.Command {
	mc := &migrateConfig{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply every pending migration in order. With --dry-run, list the
pending migrations without touching the database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, mc, deps.withDefaults())
		},
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().BoolVar(&mc.dryRun, "dry-run", false, "list pending migrations without applying them")
	cmd.Flags().BoolVar(&mc.jsonOutput, "json", false, "output migrations as JSON")
	return cmd
}

func runMigrate(cmd *cobra.Command, mc *migrateConfig, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

	gw, err := deps.GatewayFactory(cfg.Database, cfg.IsProduction())
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}
	migrator, err := store.NewMigrator(gw)
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}

	var migrations []store.Migration
	if mc.dryRun {
		migrations, err = migrator.ListPending(cmd.Context())
	} else {
		migrations, err = migrator.ApplyPending(cmd.Context())
	}
	if err != nil {
		return err //nolint:wrapcheck // ServiceUnavailable with cause
	}
	logger.InfoContext(cmd.Context(), "migrations finished", "dry_run", mc.dryRun, "count", len(migrations))

	out := cmd.OutOrStdout()
	if mc.jsonOutput {
		return writeJSON(out, migrations)
	}
	return formatMigrationTable(out, migrations, mc.dryRun)
}

func formatMigrationTable(w io.Writer, migrations []store.Migration, dryRun bool) error {
	if len(migrations) == 0 {
		_, err := fmt.Fprintln(w, "No pending migrations")
		return err //nolint:wrapcheck // terminal write
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tAPPLIED AT")
	for _, m := range migrations {
		applied := "pending"
		if !dryRun && m.AppliedAt != nil {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\n", m.Name, applied)
	}
	return tw.Flush() //nolint:wrapcheck // terminal write
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v) //nolint:wrapcheck // terminal write
}
