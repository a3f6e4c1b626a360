// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pillarhq/pillar/internal/auth"
	"github.com/pillarhq/pillar/internal/store"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "session_id"

// MigrationRunner lists and applies schema migrations.
type MigrationRunner interface {
	ListPending(ctx context.Context) ([]store.Migration, error)
	ApplyPending(ctx context.Context) ([]store.Migration, error)
}

// UserService manages identities.
type UserService interface {
	Create(ctx context.Context, in auth.NewUser) (*auth.User, error)
	FindByUsername(ctx context.Context, username string) (*auth.User, error)
	Update(ctx context.Context, username string, changes auth.UserChanges) (*auth.User, error)
}

// CredentialChecker verifies an email and password pair.
type CredentialChecker interface {
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
}

// SessionCreator issues sessions.
type SessionCreator interface {
	Create(ctx context.Context, userID uuid.UUID) (*auth.Session, error)
}

// StatusReporter reports dependency health.
type StatusReporter interface {
	Status(ctx context.Context) (*store.Status, error)
}

// StatusFunc adapts a function to StatusReporter.
type StatusFunc func(ctx context.Context) (*store.Status, error)

// Status calls f.
func (f StatusFunc) Status(ctx context.Context) (*store.Status, error) { return f(ctx) }

// sessionRequest carries no field constraints: a missing or empty pair is
// answered like any other bad login.
type sessionRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func (s *Server) listMigrations(w http.ResponseWriter, r *http.Request) {
	pending, err := s.deps.Migrations.ListPending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, pending)
}

func (s *Server) applyMigrations(w http.ResponseWriter, r *http.Request) {
	applied, err := s.deps.Migrations.ApplyPending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if len(applied) > 0 {
		status = http.StatusCreated
	}
	s.respond(w, r, status, applied)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in auth.NewUser
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.deps.Users.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.FindByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var changes auth.UserChanges
	if err := decodeBody(r, &changes); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.deps.Users.Update(r.Context(), chi.URLParam(r, "username"), changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, user)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var in sessionRequest
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.deps.Credentials.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := s.deps.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(auth.SessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
	})
	s.respond(w, r, http.StatusCreated, session)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Status.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, st)
}
