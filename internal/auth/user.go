// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pillarhq/pillar/internal/apperr"
)

// Field limits, matching the users table columns.
const (
	MaxUsernameLength = 32
	MaxEmailLength    = 254
)

// User is a stored identity. Password holds the bcrypt hash.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser is a candidate identity with a plaintext password.
type NewUser struct {
	Username string `json:"username" jsonschema:"minLength=1,maxLength=32"`
	Email    string `json:"email" jsonschema:"minLength=3,maxLength=254"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=72"`
}

// UserChanges is a partial update. Nil fields are left untouched.
type UserChanges struct {
	Username *string `json:"username,omitempty" jsonschema:"minLength=1,maxLength=32"`
	Email    *string `json:"email,omitempty" jsonschema:"minLength=3,maxLength=254"`
	Password *string `json:"password,omitempty" jsonschema:"minLength=1,maxLength=72"`
}

// UserRepository manages user persistence. Lookups are case-insensitive.
// Implementations return ErrNotFound, ErrUsernameTaken or ErrEmailTaken
// (wrapped) for the corresponding conditions.
type UserRepository interface {
	// Create inserts a user with an already hashed password and returns the
	// stored row.
	Create(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update writes username, email and password of u, refreshes updated_at
	// and returns the stored row.
	Update(ctx context.Context, u *User) (*User, error)
}

// ValidateUsername checks a username against the column limits.
func ValidateUsername(username string) error {
	switch n := utf8.RuneCountInString(username); {
	case strings.TrimSpace(username) == "":
		return apperr.Validation("Username is required.", "Please provide a username.")
	case n > MaxUsernameLength:
		return apperr.Validation("Username is too long.", "Please choose a username with at most 32 characters.")
	}
	return nil
}

// ValidateEmail performs a shape check only; deliverability is not verified.
func ValidateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	switch {
	case strings.TrimSpace(email) == "":
		return apperr.Validation("Email is required.", "Please provide an email.")
	case utf8.RuneCountInString(email) > MaxEmailLength:
		return apperr.Validation("Email is too long.", "Please provide an email with at most 254 characters.")
	case at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n"):
		return apperr.Validation("Email is invalid.", "Please provide a valid email.")
	}
	return nil
}

// ValidatePassword checks a plaintext password.
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return apperr.Validation("Password is required.", "Please provide a password.")
	case len(password) > MaxPasswordBytes:
		return apperr.Validation("Password is too long.", "Please choose a password with at most 72 bytes.")
	}
	return nil
}

// Validate checks every field of the candidate.
func (u NewUser) Validate() error {
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	return ValidatePassword(u.Password)
}

// Validate checks every present field of the changes.
func (c UserChanges) Validate() error {
	if c.Username != nil {
		if err := ValidateUsername(*c.Username); err != nil {
			return err
		}
	}
	if c.Email != nil {
		if err := ValidateEmail(*c.Email); err != nil {
			return err
		}
	}
	if c.Password != nil {
		return ValidatePassword(*c.Password)
	}
	return nil
}
