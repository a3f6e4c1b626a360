// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 48                  // 48 bytes = 96 hex chars
	SessionLifetime   = 30 * 24 * time.Hour // 30 days
)

// Session is an opaque bearer token bound to a user.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a session for userID expiring lifetime after the
	// database clock's creation time and returns the stored row.
	Create(ctx context.Context, token string, userID uuid.UUID, lifetime time.Duration) (*Session, error)
}

// GenerateSessionToken creates a random hex-encoded token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// SessionIssuer creates sessions for authenticated users.
type SessionIssuer struct {
	sessions SessionRepository
	newToken func() (string, error)
}

// NewSessionIssuer creates a SessionIssuer.
func NewSessionIssuer(sessions SessionRepository) (*SessionIssuer, error) {
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	return &SessionIssuer{sessions: sessions, newToken: GenerateSessionToken}, nil
}

// Create issues a fresh token for userID valid for SessionLifetime.
func (i *SessionIssuer) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	token, err := i.newToken()
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "generate token").Wrap(err)
	}
	session, err := i.sessions.Create(ctx, token, userID, SessionLifetime)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return session, nil
}
