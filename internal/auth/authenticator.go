// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package auth

import (
	"context"

	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/apperr"
)

// dummyPassword is hashed once per Authenticator so lookups of unknown
// emails spend the same bcrypt work as a real comparison.
//
//nolint:gosec // G101: not a credential, it never matches a stored user.
const dummyPassword = "pillar-dummy-password"

// UserFinder looks users up by email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

func invalidCredentials() error {
	return apperr.Unauthorized(
		"Invalid email or password.",
		"Please check your credentials and try again. If the problem persists, consider resetting your password.",
	)
}

// Authenticator verifies email and password pairs.
type Authenticator struct {
	users     UserFinder
	hasher    PasswordHasher
	dummyHash string
}

// NewAuthenticator creates an Authenticator. It hashes a throwaway password
// with hasher so failed lookups cost as much as a mismatch.
func NewAuthenticator(users UserFinder, hasher PasswordHasher) (*Authenticator, error) {
	if users == nil {
		return nil, oops.Errorf("user finder is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	return &Authenticator{users: users, hasher: hasher, dummyHash: dummy}, nil
}

// Authenticate returns the user owning email when password matches. Unknown
// emails and wrong passwords produce the same Unauthorized error.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if apperr.IsKind(err, apperr.KindNotFound) {
		a.hasher.Compare(password, a.dummyHash)
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if !a.hasher.Compare(password, user.Password) {
		return nil, invalidCredentials()
	}
	return user, nil
}
