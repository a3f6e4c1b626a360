// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package api serves the Pillar HTTP API under /api/v1.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/apperr"
)

// Deps holds the services the API delegates to.
type Deps struct {
	Migrations  MigrationRunner
	Users       UserService
	Credentials CredentialChecker
	Sessions    SessionCreator
	Status      StatusReporter

	// Observer receives one observation per request. Optional.
	Observer RequestObserver
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// Server routes requests to the handlers.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// NewServer validates deps and builds the router.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Migrations == nil:
		return nil, oops.Errorf("migration runner is required")
	case deps.Users == nil:
		return nil, oops.Errorf("user service is required")
	case deps.Credentials == nil:
		return nil, oops.Errorf("credential checker is required")
	case deps.Sessions == nil:
		return nil, oops.Errorf("session creator is required")
	case deps.Status == nil:
		return nil, oops.Errorf("status reporter is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger, s.deps.Observer))
	r.Use(recoverer(s.logger))

	r.NotFound(s.noMatch)
	r.MethodNotAllowed(s.noMatch)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/migrations", s.listMigrations)
		r.Post("/migrations", s.applyMigrations)
		r.Post("/users", s.createUser)
		r.Get("/users/{username}", s.getUser)
		r.Patch("/users/{username}", s.updateUser)
		r.Post("/sessions", s.createSession)
		r.Get("/status", s.status)
	})
	return r
}

// noMatch answers unknown routes and methods alike.
func (s *Server) noMatch(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, s.logger, apperr.MethodNotAllowed())
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, s.logger, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	writeJSON(w, r, s.logger, status, v)
}
