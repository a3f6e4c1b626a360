// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/apperr"
)

const userNotFoundMessage = "User not found."

func usernameNotFound(cause error) error {
	return apperr.NotFound(userNotFoundMessage, "Please check the username and try again.", apperr.WithCause(cause))
}

func emailNotFound(cause error) error {
	return apperr.NotFound(userNotFoundMessage, "Please check the email and try again.", apperr.WithCause(cause))
}

func usernameInUse() error {
	return apperr.Validation("Username already in use.", "Please choose a different username.")
}

func emailInUse() error {
	return apperr.Validation("Email already in use.", "Please choose a different email.")
}

// IdentityStore creates, finds and updates users. Username and email are
// unique ignoring case.
type IdentityStore struct {
	users  UserRepository
	hasher PasswordHasher
}

// NewIdentityStore creates an IdentityStore.
func NewIdentityStore(users UserRepository, hasher PasswordHasher) (*IdentityStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &IdentityStore{users: users, hasher: hasher}, nil
}

// Create validates the candidate, enforces uniqueness of username and then
// email, hashes the password and persists the user.
func (s *IdentityStore) Create(ctx context.Context, in NewUser) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, in.Username); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := s.users.Create(ctx, in.Username, in.Email, hash)
	if err != nil {
		return nil, translateWriteError(err, "USER_CREATE_FAILED")
	}
	return user, nil
}

// FindByUsername returns the user whose username matches ignoring case.
func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, usernameNotFound(err)
	}
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").With("operation", "get user by username").Wrap(err)
	}
	return user, nil
}

// FindByEmail returns the user whose email matches ignoring case.
func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, emailNotFound(err)
	}
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// Update applies the present fields of changes to the user identified by
// username. A present username or email must not match any stored user,
// the target itself included, so submitting an unchanged value is rejected.
func (s *IdentityStore) Update(ctx context.Context, username string, changes UserChanges) (*User, error) {
	user, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := changes.Validate(); err != nil {
		return nil, err
	}

	if changes.Username != nil {
		if err := s.ensureUsernameFree(ctx, *changes.Username); err != nil {
			return nil, err
		}
		user.Username = *changes.Username
	}
	if changes.Email != nil {
		if err := s.ensureEmailFree(ctx, *changes.Email); err != nil {
			return nil, err
		}
		user.Email = *changes.Email
	}
	if changes.Password != nil {
		hash, err := s.hasher.Hash(*changes.Password)
		if err != nil {
			return nil, oops.Code("USER_UPDATE_FAILED").With("operation", "hash password").Wrap(err)
		}
		user.Password = hash
	}

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, translateWriteError(err, "USER_UPDATE_FAILED")
	}
	return updated, nil
}

func (s *IdentityStore) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return usernameInUse()
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return oops.Code("USER_LOOKUP_FAILED").With("operation", "check username").Wrap(err)
	}
}

func (s *IdentityStore) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return emailInUse()
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return oops.Code("USER_LOOKUP_FAILED").With("operation", "check email").Wrap(err)
	}
}

// translateWriteError maps unique index rejections that slipped past the
// pre-checks onto the same validation errors.
func translateWriteError(err error, code string) error {
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return usernameInUse()
	case errors.Is(err, ErrEmailTaken):
		return emailInUse()
	case errors.Is(err, ErrNotFound):
		return usernameNotFound(err)
	default:
		return oops.Code(code).Wrap(err)
	}
}
