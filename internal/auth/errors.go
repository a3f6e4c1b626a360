// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package auth

import "errors"

// Repository sentinels. Repositories wrap them with oops context; services
// translate them into domain errors.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned when the username unique index rejects a write.
	ErrUsernameTaken = errors.New("username taken")

	// ErrEmailTaken is returned when the email unique index rejects a write.
	ErrEmailTaken = errors.New("email taken")
)
