// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

// waitConfig holds configuration for the wait command.
type waitConfig struct {
	timeout  time.Duration
	interval time.Duration
}

func newWaitCmd(deps *Deps) *cobra.Command {
	wc := &waitConfig{}
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the database accepts connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWait(cmd, wc, deps.withDefaults())
		},
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().DurationVar(&wc.timeout, "timeout", 30*time.Second, "give up after this long")
	cmd.Flags().DurationVar(&wc.interval, "interval", time.Second, "delay between attempts")
	return cmd
}

func runWait(cmd *cobra.Command, wc *waitConfig, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := deps.GatewayFactory(cfg.Database, cfg.IsProduction())
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}

	attempts := 0
	backoff := retry.WithMaxDuration(wc.timeout, retry.NewConstant(wc.interval))
	err = retry.Do(cmd.Context(), backoff, func(ctx context.Context) error {
		attempts++
		if pingErr := gw.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		// oops reports the deepest code, so the ping error stays in context.
		return oops.Code("DB_WAIT_TIMEOUT").
			With("attempts", attempts).
			With("timeout", wc.timeout.String()).
			With("last_error", err.Error()).
			Errorf("database not ready after %s", wc.timeout)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Database ready after %d attempt(s)\n", attempts)
	return err //nolint:wrapcheck // terminal write
}
