// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/auth"
	"github.com/pillarhq/pillar/internal/store"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	gw *store.Gateway
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(gw *store.Gateway) *SessionRepository {
	return &SessionRepository{gw: gw}
}

// Create stores a session. created_at and expires_at are both derived from
// the same transaction timestamp, so their difference is exactly lifetime.
func (r *SessionRepository) Create(ctx context.Context, token string, userID uuid.UUID, lifetime time.Duration) (*auth.Session, error) {
	var s auth.Session
	err := r.gw.WithConn(ctx, func(ctx context.Context, conn store.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO sessions (token, user_id, created_at, updated_at, expires_at)
			VALUES ($1, $2, now(), now(), now() + make_interval(secs => $3))
			RETURNING id, token, user_id, expires_at, created_at, updated_at
		`, token, userID, lifetime.Seconds())
		return row.Scan(&s.ID, &s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	})
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return &s, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
