// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/apperr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LedgerTable records one row per applied migration.
const LedgerTable = "pgmigrations"

// migrationLockKey is the advisory lock held while migrations are applied.
const migrationLockKey int64 = 0x70696c6c6172

const (
	ledgerExistsSQL = `SELECT to_regclass('` + LedgerTable + `') IS NOT NULL AS present`
	createLedgerSQL = `CREATE TABLE IF NOT EXISTS ` + LedgerTable + ` (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		run_on TIMESTAMPTZ NOT NULL
	)`
	appliedNamesSQL = `SELECT name FROM ` + LedgerTable + ` ORDER BY run_on, id`
	appliedRowsSQL  = `SELECT name, run_on FROM ` + LedgerTable + ` ORDER BY run_on, id`
	recordSQL       = `INSERT INTO ` + LedgerTable + ` (name, run_on) VALUES ($1, now()) RETURNING run_on`
)

// Messages reported when the migration runner fails.
const (
	ListFailedMessage  = "Error fetching pending migrations."
	ApplyFailedMessage = "Error running migrations."
)

// Migration is a ledger view of one schema change. AppliedAt is nil while
// the migration is pending.
type Migration struct {
	Name      string     `json:"name"`
	AppliedAt *time.Time `json:"applied_at"`
}

type sourceMigration struct {
	version uint
	name    string
	sql     string
}

// Migrator discovers the forward-only migrations shipped with the binary and
// applies the pending ones in order. It holds no connection between calls.
type Migrator struct {
	gw         *Gateway
	migrations []sourceMigration
}

// NewMigrator creates a Migrator over the embedded migrations.
func NewMigrator(gw *Gateway) (*Migrator, error) {
	return NewMigratorFromFS(gw, migrationsFS, "migrations")
}

// NewMigratorFromFS creates a Migrator over the *.up.sql files in dir.
// Files are named <version>_<name>.up.sql and ordered by version.
func NewMigratorFromFS(gw *Gateway, fsys fs.FS, dir string) (*Migrator, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}
	defer func() {
		_ = src.Close() //nolint:errcheck // read-only fs source
	}()

	migrations, err := readMigrations(src)
	if err != nil {
		return nil, err
	}
	return &Migrator{gw: gw, migrations: migrations}, nil
}

func readMigrations(src source.Driver) ([]sourceMigration, error) {
	var out []sourceMigration

	version, err := src.First()
	for err == nil {
		var m sourceMigration
		if m, err = readUp(src, version); err != nil {
			return nil, err
		}
		out = append(out, m)
		version, err = src.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "list migrations").Wrap(err)
	}
	return out, nil
}

func readUp(src source.Driver, version uint) (sourceMigration, error) {
	r, identifier, err := src.ReadUp(version)
	if err != nil {
		return sourceMigration{}, oops.Code("MIGRATION_SOURCE_FAILED").
			With("version", version).
			Wrap(err)
	}
	defer func() {
		_ = r.Close() //nolint:errcheck // read-only fs file
	}()

	body, err := io.ReadAll(r)
	if err != nil {
		return sourceMigration{}, oops.Code("MIGRATION_SOURCE_FAILED").
			With("version", version).
			Wrap(err)
	}
	return sourceMigration{
		version: version,
		name:    fmt.Sprintf("%d_%s", version, identifier),
		sql:     string(body),
	}, nil
}

// Names returns the names of every known migration in apply order.
func (m *Migrator) Names() []string {
	names := make([]string, len(m.migrations))
	for i, mig := range m.migrations {
		names[i] = mig.name
	}
	return names
}

// ListPending returns the migrations that ApplyPending would run, in order.
// It never writes; a database without a ledger has nothing applied.
func (m *Migrator) ListPending(ctx context.Context) ([]Migration, error) {
	var pending []sourceMigration
	err := m.gw.WithConn(ctx, func(ctx context.Context, conn Conn) error {
		var present bool
		if err := conn.QueryRow(ctx, ledgerExistsSQL).Scan(&present); err != nil {
			return StatementError(ledgerExistsSQL, err)
		}
		var applied []string
		if present {
			var err error
			if applied, err = appliedNames(ctx, conn); err != nil {
				return err
			}
		}
		var err error
		pending, err = m.pendingAfter(applied)
		return err
	})
	if err != nil {
		return nil, apperr.ServiceUnavailable(ListFailedMessage, err)
	}

	out := make([]Migration, len(pending))
	for i, mig := range pending {
		out[i] = Migration{Name: mig.name}
	}
	return out, nil
}

// ApplyPending runs every pending migration, each in its own transaction
// together with its ledger row, and returns those it applied. Concurrent
// callers are serialized by an advisory lock. When a migration fails, the
// ones before it stay applied and the failure is returned.
func (m *Migrator) ApplyPending(ctx context.Context) ([]Migration, error) {
	var done []Migration
	err := m.gw.WithConn(ctx, func(ctx context.Context, conn Conn) error {
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
			return oops.Code("MIGRATION_LOCK_FAILED").Wrap(err)
		}
		defer func() {
			// Closing the connection releases the lock if this fails.
			_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey) //nolint:errcheck // see above
		}()

		if _, err := conn.Exec(ctx, createLedgerSQL); err != nil {
			return oops.Code("MIGRATION_LEDGER_FAILED").Wrap(err)
		}

		applied, err := appliedNames(ctx, conn)
		if err != nil {
			return err
		}
		pending, err := m.pendingAfter(applied)
		if err != nil {
			return err
		}

		for _, mig := range pending {
			appliedAt, err := applyOne(ctx, conn, mig)
			if err != nil {
				return err
			}
			done = append(done, Migration{Name: mig.name, AppliedAt: &appliedAt})
		}
		return nil
	})
	if err != nil {
		return nil, apperr.ServiceUnavailable(ApplyFailedMessage, err)
	}
	if done == nil {
		done = []Migration{}
	}
	return done, nil
}

// Applied returns the ledger in apply order.
func (m *Migrator) Applied(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.gw.WithConn(ctx, func(ctx context.Context, conn Conn) error {
		var present bool
		if err := conn.QueryRow(ctx, ledgerExistsSQL).Scan(&present); err != nil {
			return StatementError(ledgerExistsSQL, err)
		}
		if !present {
			return nil
		}
		rows, err := conn.Query(ctx, appliedRowsSQL)
		if err != nil {
			return StatementError(appliedRowsSQL, err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Migration, error) {
			var mig Migration
			var runOn time.Time
			if err := row.Scan(&mig.Name, &runOn); err != nil {
				return Migration{}, err //nolint:wrapcheck // wrapped below
			}
			mig.AppliedAt = &runOn
			return mig, nil
		})
		if err != nil {
			return StatementError(appliedRowsSQL, err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.ServiceUnavailable(ListFailedMessage, err)
	}
	if out == nil {
		out = []Migration{}
	}
	return out, nil
}

func appliedNames(ctx context.Context, conn Conn) ([]string, error) {
	rows, err := conn.Query(ctx, appliedNamesSQL)
	if err != nil {
		return nil, StatementError(appliedNamesSQL, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, StatementError(appliedNamesSQL, err)
	}
	return names, nil
}

// pendingAfter returns the migrations following the applied ones. The ledger
// must be a prefix of the known migrations.
func (m *Migrator) pendingAfter(applied []string) ([]sourceMigration, error) {
	for i, name := range applied {
		if i >= len(m.migrations) {
			return nil, oops.Code("MIGRATION_ORDER_VIOLATION").
				With("migration", name).
				Errorf("applied migration %s is not known to this build", name)
		}
		if m.migrations[i].name != name {
			return nil, oops.Code("MIGRATION_ORDER_VIOLATION").
				With("migration", m.migrations[i].name).
				With("applied", name).
				Errorf("pending migration %s precedes applied migration %s", m.migrations[i].name, name)
		}
	}
	if len(applied) >= len(m.migrations) {
		return nil, nil
	}
	return m.migrations[len(applied):], nil
}

func applyOne(ctx context.Context, conn Conn, mig sourceMigration) (time.Time, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return time.Time{}, oops.Code("MIGRATION_BEGIN_FAILED").With("migration", mig.name).Wrap(err)
	}

	var appliedAt time.Time
	if err := runInTx(ctx, tx, mig, &appliedAt); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // the migration error is reported
		return time.Time{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, oops.Code("MIGRATION_COMMIT_FAILED").With("migration", mig.name).Wrap(err)
	}
	return appliedAt, nil
}

func runInTx(ctx context.Context, tx pgx.Tx, mig sourceMigration, appliedAt *time.Time) error {
	if _, err := tx.Exec(ctx, mig.sql); err != nil {
		return oops.Code("MIGRATION_FAILED").With("migration", mig.name).Wrap(err)
	}
	if err := tx.QueryRow(ctx, recordSQL, mig.name).Scan(appliedAt); err != nil {
		return oops.Code("MIGRATION_LEDGER_FAILED").With("migration", mig.name).Wrap(err)
	}
	return nil
}
