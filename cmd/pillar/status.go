// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pillarhq/pillar/internal/store"
)

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

func newStatusCmd(deps *Deps) *cobra.Command {
	sc := &statusConfig{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database status",
		Long:  `Show the same dependency report served by GET /api/v1/status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, sc, deps.withDefaults())
		},
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().BoolVar(&sc.jsonOutput, "json", false, "output status as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, sc *statusConfig, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := deps.GatewayFactory(cfg.Database, cfg.IsProduction())
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}
	st, err := gw.Status(cmd.Context(), cfg.Database.Name)
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}
	if sc.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	return formatStatusTable(cmd.OutOrStdout(), st)
}

func formatStatusTable(w io.Writer, st *store.Status) error {
	db := st.Dependencies.Database
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "UPDATED AT\t%s\n", st.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "DATABASE VERSION\t%s\n", db.Version)
	fmt.Fprintf(tw, "MAX CONNECTIONS\t%d\n", db.MaxConnections)
	fmt.Fprintf(tw, "OPEN CONNECTIONS\t%d\n", db.OpenConnections)
	return tw.Flush() //nolint:wrapcheck // terminal write
}
