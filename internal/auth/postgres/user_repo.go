// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/auth"
	"github.com/pillarhq/pillar/internal/store"
)

// Unique index names from the create-users migration.
const (
	usernameConstraint = "users_username_lower_key"
	emailConstraint    = "users_email_lower_key"
)

const userColumns = `id, username, email, password, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	gw *store.Gateway
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(gw *store.Gateway) *UserRepository {
	return &UserRepository{gw: gw}
}

// Create stores a new user and returns the persisted row.
func (r *UserRepository) Create(ctx context.Context, username, email, passwordHash string) (*auth.User, error) {
	var user *auth.User
	err := r.gw.WithConn(ctx, func(ctx context.Context, conn store.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO users (username, email, password)
			VALUES ($1, $2, $3)
			RETURNING `+userColumns,
			username, email, passwordHash,
		)
		var err error
		user, err = scanUser(row)
		return err
	})
	if err != nil {
		return nil, writeError(oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", username), err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username, ignoring case.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	user, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1`, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// Update writes the mutable fields of u and refreshes updated_at.
func (r *UserRepository) Update(ctx context.Context, u *auth.User) (*auth.User, error) {
	var user *auth.User
	err := r.gw.WithConn(ctx, func(ctx context.Context, conn store.Conn) error {
		row := conn.QueryRow(ctx, `
			UPDATE users
			SET username = $2, email = $3, password = $4, updated_at = now()
			WHERE id = $1
			RETURNING `+userColumns,
			u.ID, u.Username, u.Email, u.Password,
		)
		var err error
		user, err = scanUser(row)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", u.ID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, writeError(oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", u.ID.String()), err)
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*auth.User, error) {
	var user *auth.User
	err := r.gw.WithConn(ctx, func(ctx context.Context, conn store.Conn) error {
		var err error
		user, err = scanUser(conn.QueryRow(ctx, query, arg))
		return err
	})
	return user, err
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	return &u, nil
}

// writeError maps unique index violations onto the auth sentinels and wraps
// everything else unchanged.
func writeError(b oops.OopsErrorBuilder, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case usernameConstraint:
			return b.With("constraint", pgErr.ConstraintName).Wrap(auth.ErrUsernameTaken)
		case emailConstraint:
			return b.With("constraint", pgErr.ConstraintName).Wrap(auth.ErrEmailTaken)
		}
	}
	return b.Wrap(err)
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
