// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package store provides the relational storage primitives: the connection
// gateway every component runs its statements through, schema migrations
// and the database health report.
package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/config"
)

// closeTimeout bounds how long releasing a connection may take once the
// caller's context is done.
const closeTimeout = 5 * time.Second

// Conn is the subset of *pgx.Conn the gateway hands to callers.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Dialer opens a new connection.
type Dialer func(ctx context.Context) (Conn, error)

// Observer is notified of connection lifecycle events.
type Observer interface {
	ConnectionOpened()
	ConnectFailed()
	StatementFailed()
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened() {}
func (nopObserver) ConnectFailed()    {}
func (nopObserver) StatementFailed()  {}

// Result is the outcome of a single statement.
type Result struct {
	Rows     []map[string]any
	RowCount int64
}

// Gateway opens one connection per logical operation and releases it before
// returning. Connections are never shared between calls.
type Gateway struct {
	dial     Dialer
	observer Observer
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithObserver reports connection events to o.
func WithObserver(o Observer) GatewayOption {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// NewGateway creates a gateway that opens connections with dial.
func NewGateway(dial Dialer, opts ...GatewayOption) *Gateway {
	g := &Gateway{dial: dial, observer: nopObserver{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewPostgresGateway creates a gateway for the configured database.
func NewPostgresGateway(cfg config.Database, production bool, opts ...GatewayOption) (*Gateway, error) {
	connCfg, err := ConnConfig(cfg, production)
	if err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (Conn, error) {
		conn, err := pgx.ConnectConfig(ctx, connCfg.Copy())
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by WithConn
		}
		return conn, nil
	}
	return NewGateway(dial, opts...), nil
}

// WithConn opens a connection, runs fn and closes the connection on every
// exit path. A close failure is reported only when fn succeeded.
func (g *Gateway) WithConn(ctx context.Context, fn func(ctx context.Context, conn Conn) error) (err error) {
	conn, err := g.dial(ctx)
	if err != nil {
		g.observer.ConnectFailed()
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open connection").Wrap(err)
	}
	g.observer.ConnectionOpened()

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if closeErr := conn.Close(closeCtx); closeErr != nil && err == nil {
			err = oops.Code("DB_CLOSE_FAILED").With("operation", "close connection").Wrap(closeErr)
		}
	}()

	return fn(ctx, conn)
}

// Execute runs one parameterized statement on a fresh connection and returns
// every row it produced.
func (g *Gateway) Execute(ctx context.Context, statement string, args ...any) (*Result, error) {
	var result *Result
	err := g.WithConn(ctx, func(ctx context.Context, conn Conn) error {
		rows, err := conn.Query(ctx, statement, args...)
		if err != nil {
			return g.statementError(statement, err)
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return g.statementError(statement, err)
		}
		if maps == nil {
			maps = []map[string]any{}
		}
		result = &Result{Rows: maps, RowCount: rows.CommandTag().RowsAffected()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ping checks that a connection can be opened and used.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := g.Execute(ctx, "SELECT 1")
	return err
}

func (g *Gateway) statementError(statement string, err error) error {
	g.observer.StatementFailed()
	return StatementError(statement, err)
}

// StatementError wraps a failed statement with its leading keyword so logs
// identify the operation without carrying parameters.
func StatementError(statement string, err error) error {
	return oops.Code("DB_STATEMENT_FAILED").
		With("statement", statementVerb(statement)).
		Wrap(err)
}

func statementVerb(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// ConnConfig builds the pgx connection configuration for cfg.
func ConnConfig(cfg config.Database, production bool) (*pgx.ConnConfig, error) {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=disable",
	}
	connCfg, err := pgx.ParseConfig(u.String())
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}

	tlsCfg, err := TLSConfig(cfg, production)
	if err != nil {
		return nil, err
	}
	connCfg.TLSConfig = tlsCfg
	connCfg.Fallbacks = nil
	return connCfg, nil
}

// TLSConfig resolves the encryption mode. A configured CA is always used and
// verified against; otherwise production requires TLS with the system roots
// and every other profile connects in plaintext (nil).
func TLSConfig(cfg config.Database, production bool) (*tls.Config, error) {
	if cfg.CA != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CA)) {
			return nil, oops.Code("DB_CONFIG_INVALID").
				With("key", "database.ca").
				Errorf("database CA contains no valid PEM certificates")
		}
		return &tls.Config{
			RootCAs:    pool,
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		}, nil
	}
	if production {
		return &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		}, nil
	}
	return nil, nil
}
