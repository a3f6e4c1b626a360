// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pillarhq/pillar/internal/api"
	"github.com/pillarhq/pillar/internal/auth"
	"github.com/pillarhq/pillar/internal/auth/postgres"
	"github.com/pillarhq/pillar/internal/config"
	"github.com/pillarhq/pillar/internal/logging"
	"github.com/pillarhq/pillar/internal/store"
	"github.com/pillarhq/pillar/pkg/errutil"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the /api/v1 HTTP API and, when metrics-addr is set, the
metrics and health probe endpoints. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps.withDefaults())
		},
	}

	d := config.Default()
	addCommonFlags(cmd.Flags())
	cmd.Flags().String("http-addr", d.HTTP.Addr, "HTTP API listen address")
	cmd.Flags().String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Int("credential-cost", d.Credential.Cost, "bcrypt cost override (0 = profile default)")
	return cmd
}

func runServe(cmd *cobra.Command, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)

	ctx, stop := deps.SignalContext(cmd.Context())
	defer stop()

	var ready atomic.Bool
	var (
		gwOpts   []store.GatewayOption
		observer api.RequestObserver
	)
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
	if cfg.Metrics.Addr != "" {
		gwOpts = append(gwOpts, store.WithObserver(obsServer.Metrics()))
		observer = obsServer.Metrics()
	}

	gw, err := deps.GatewayFactory(cfg.Database, cfg.IsProduction(), gwOpts...)
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}
	if err := checkServerVersion(ctx, logger, gw, cfg.Database.Name); err != nil {
		return err
	}

	handler, err := buildAPI(cfg, gw, logger, observer)
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if cfg.Metrics.Addr != "" {
		obsErrs, err := obsServer.Start()
		if err != nil {
			_ = listener.Close()
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go watchServer(ctx, stop, obsErrs, logger, "observability")
	}

	serveErrs := make(chan error, 1)
	go func() {
		defer close(serveErrs)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrs <- serveErr
		}
	}()
	ready.Store(true)

	logger.Info("pillar ready",
		"http_addr", listener.Addr().String(),
		"env", string(cfg.Env),
	)
	cmd.Println("Pillar listening on " + listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-serveErrs:
		if ok {
			runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	}
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errutil.LogError(shutdownCtx, logger, "http shutdown failed", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		errutil.LogError(shutdownCtx, logger, "observability shutdown failed", err)
	}
	logger.Info("pillar stopped")
	return runErr
}

// buildAPI wires the services onto the gateway.
func buildAPI(cfg *config.Config, gw *store.Gateway, logger *slog.Logger, observer api.RequestObserver) (http.Handler, error) {
	hasher, err := auth.NewBcryptHasher(cfg.HashCost())
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by auth
	}
	identities, err := auth.NewIdentityStore(postgres.NewUserRepository(gw), hasher)
	if err != nil {
		return nil, err //nolint:wrapcheck // constructor validation
	}
	issuer, err := auth.NewSessionIssuer(postgres.NewSessionRepository(gw))
	if err != nil {
		return nil, err //nolint:wrapcheck // constructor validation
	}
	authenticator, err := auth.NewAuthenticator(identities, hasher)
	if err != nil {
		return nil, err //nolint:wrapcheck // constructor validation
	}
	migrator, err := store.NewMigrator(gw)
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by store
	}

	deps := api.Deps{
		Migrations:  migrator,
		Users:       identities,
		Credentials: authenticator,
		Sessions:    issuer,
		Status: api.StatusFunc(func(ctx context.Context) (*store.Status, error) {
			return gw.Status(ctx, cfg.Database.Name)
		}),
		Observer:      observer,
		Logger:        logger,
		SecureCookies: cfg.IsProduction(),
	}
	return api.NewServer(deps) //nolint:wrapcheck // constructor validation
}

// checkServerVersion refuses to serve on an unsupported PostgreSQL. An
// unreachable database only logs a warning; /api/v1/status reports it.
func checkServerVersion(ctx context.Context, logger *slog.Logger, gw *store.Gateway, dbName string) error {
	health, err := gw.Health(ctx, dbName)
	if err != nil {
		logger.WarnContext(ctx, "database health check failed, continuing", "error", err)
		return nil
	}
	ok, err := store.CheckServerVersion(health.Version)
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	if !ok {
		return oops.Code("DB_VERSION_UNSUPPORTED").
			With("version", health.Version).
			With("constraint", store.MinimumServerVersion).
			Errorf("PostgreSQL %s is not supported", health.Version)
	}
	logger.InfoContext(ctx, "database reachable", "version", health.Version)
	return nil
}

// watchServer stops the process when a background server fails.
func watchServer(ctx context.Context, stop context.CancelFunc, errs <-chan error, logger *slog.Logger, name string) {
	select {
	case <-ctx.Done():
	case err, ok := <-errs:
		if ok && err != nil {
			errutil.LogError(ctx, logger, "background server failed", err, "server", name)
			stop()
		}
	}
}
