// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package auth provides identities, credentials and sessions for Pillar.
//
// # Services
//
//   - IdentityStore - user creation, lookup and partial update
//   - SessionIssuer - bearer token issuance
//   - Authenticator - email and password verification
//
// Services are created with New* constructors that validate dependencies.
// They return *apperr.Error values for failures a caller can act on and
// oops-coded errors for everything else.
//
// # Repositories
//
// UserRepository and SessionRepository are implemented in the postgres
// subpackage. Repositories report ErrNotFound, ErrUsernameTaken and
// ErrEmailTaken wrapped with oops context.
package auth
