// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package store

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// MinimumServerVersion is the oldest PostgreSQL release the schema supports.
const MinimumServerVersion = ">= 13"

var leadingVersion = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// DatabaseHealth describes the database as seen by one probe.
type DatabaseHealth struct {
	Version         string `json:"version"`
	MaxConnections  int    `json:"max_connections"`
	OpenConnections int    `json:"open_connections"`
}

// Dependencies groups the health of external dependencies.
type Dependencies struct {
	Database DatabaseHealth `json:"database"`
}

// Status is the body of the status endpoint.
type Status struct {
	UpdatedAt    time.Time    `json:"updated_at"`
	Dependencies Dependencies `json:"dependencies"`
}

// Health probes the database. Each figure is read on its own connection, so
// open_connections counts the probe itself.
func (g *Gateway) Health(ctx context.Context, databaseName string) (*DatabaseHealth, error) {
	version, err := g.scalar(ctx, "SHOW server_version", "server_version")
	if err != nil {
		return nil, err
	}

	maxRaw, err := g.scalar(ctx, "SHOW max_connections", "max_connections")
	if err != nil {
		return nil, err
	}
	maxConns, err := toInt(maxRaw)
	if err != nil {
		return nil, oops.Code("DB_HEALTH_FAILED").With("setting", "max_connections").Wrap(err)
	}

	openRaw, err := g.scalar(ctx,
		"SELECT count(*)::int AS open_connections FROM pg_stat_activity WHERE datname = $1",
		"open_connections", databaseName)
	if err != nil {
		return nil, err
	}
	opened, err := toInt(openRaw)
	if err != nil {
		return nil, oops.Code("DB_HEALTH_FAILED").With("setting", "open_connections").Wrap(err)
	}

	return &DatabaseHealth{
		Version:         fmt.Sprint(version),
		MaxConnections:  maxConns,
		OpenConnections: opened,
	}, nil
}

// Status returns the full status report with UpdatedAt set to now.
func (g *Gateway) Status(ctx context.Context, databaseName string) (*Status, error) {
	db, err := g.Health(ctx, databaseName)
	if err != nil {
		return nil, err
	}
	return &Status{
		UpdatedAt:    time.Now().UTC(),
		Dependencies: Dependencies{Database: *db},
	}, nil
}

func (g *Gateway) scalar(ctx context.Context, statement, column string, args ...any) (any, error) {
	res, err := g.Execute(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) != 1 {
		return nil, oops.Code("DB_HEALTH_FAILED").
			With("column", column).
			Errorf("expected one row, got %d", len(res.Rows))
	}
	v, ok := res.Rows[0][column]
	if !ok {
		return nil, oops.Code("DB_HEALTH_FAILED").With("column", column).Errorf("column %s missing", column)
	}
	return v, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// CheckServerVersion reports whether a server_version string satisfies
// MinimumServerVersion. Distribution suffixes such as "16.4 (Debian ...)"
// are ignored.
func CheckServerVersion(serverVersion string) (bool, error) {
	raw := leadingVersion.FindString(serverVersion)
	if raw == "" {
		return false, oops.Code("DB_VERSION_INVALID").
			With("server_version", serverVersion).
			Errorf("cannot parse server version")
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return false, oops.Code("DB_VERSION_INVALID").With("server_version", serverVersion).Wrap(err)
	}
	c, err := semver.NewConstraint(MinimumServerVersion)
	if err != nil {
		return false, oops.Code("DB_VERSION_INVALID").Wrap(err)
	}
	return c.Check(v), nil
}
