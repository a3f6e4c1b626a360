// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pillarhq/pillar/internal/apperr"
	"github.com/pillarhq/pillar/internal/auth"
	"github.com/pillarhq/pillar/pkg/errutil"
)

func requireAppError(t *testing.T, err error, kind apperr.Kind, message, action string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr), "expected *apperr.Error, got %T: %v", err, err)
	assert.Equal(t, kind, appErr.Kind())
	assert.Equal(t, message, appErr.Message())
	if action != "" {
		assert.Equal(t, action, appErr.Action())
	}
}

func notFound() error {
	return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func storedUser(username, email string) *auth.User {
	now := time.Now()
	return &auth.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Password:  "$2a$04$stored",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func strPtr(s string) *string { return &s }

func newIdentityStore(t *testing.T) (*auth.IdentityStore, *mockUserRepository, *mockHasher) {
	t.Helper()
	users := new(mockUserRepository)
	hasher := new(mockHasher)
	t.Cleanup(func() {
		users.AssertExpectations(t)
		hasher.AssertExpectations(t)
	})
	store, err := auth.NewIdentityStore(users, hasher)
	require.NoError(t, err)
	return store, users, hasher
}

func TestNewIdentityStore(t *testing.T) {
	_, err := auth.NewIdentityStore(nil, new(mockHasher))
	assert.ErrorContains(t, err, "user repository is required")

	_, err = auth.NewIdentityStore(new(mockUserRepository), nil)
	assert.ErrorContains(t, err, "password hasher is required")
}

func TestIdentityStore_Create(t *testing.T) {
	ctx := context.Background()
	in := auth.NewUser{Username: "sam", Email: "sam@example.com", Password: "hunter22"}

	t.Run("hashes and persists a new user", func(t *testing.T) {
		store, users, hasher := newIdentityStore(t)
		want := storedUser("sam", "sam@example.com")
		want.Password = "hashed"

		users.On("GetByUsername", ctx, "sam").Return(nil, notFound())
		users.On("GetByEmail", ctx, "sam@example.com").Return(nil, notFound())
		hasher.On("Hash", "hunter22").Return("hashed", nil)
		users.On("Create", ctx, "sam", "sam@example.com", "hashed").Return(want, nil)

		got, err := store.Create(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEqual(t, in.Password, got.Password)
	})

	t.Run("rejects username taken in any case", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByUsername", ctx, "SAM").Return(storedUser("sam", "other@example.com"), nil)

		upper := in
		upper.Username = "SAM"
		_, err := store.Create(ctx, upper)
		requireAppError(t, err, apperr.KindValidation, "Username already in use.", "Please choose a different username.")
	})

	t.Run("checks username before email", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByUsername", ctx, "sam").Return(storedUser("sam", "sam@example.com"), nil)

		_, err := store.Create(ctx, in)
		requireAppError(t, err, apperr.KindValidation, "Username already in use.", "")
		users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("rejects email taken", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByUsername", ctx, "sam").Return(nil, notFound())
		users.On("GetByEmail", ctx, "sam@example.com").Return(storedUser("other", "SAM@example.com"), nil)

		_, err := store.Create(ctx, in)
		requireAppError(t, err, apperr.KindValidation, "Email already in use.", "Please choose a different email.")
	})

	t.Run("maps unique violations from a concurrent insert", func(t *testing.T) {
		for _, tc := range []struct {
			repoErr error
			message string
		}{
			{auth.ErrUsernameTaken, "Username already in use."},
			{auth.ErrEmailTaken, "Email already in use."},
		} {
			store, users, hasher := newIdentityStore(t)
			users.On("GetByUsername", ctx, "sam").Return(nil, notFound())
			users.On("GetByEmail", ctx, "sam@example.com").Return(nil, notFound())
			hasher.On("Hash", "hunter22").Return("hashed", nil)
			users.On("Create", ctx, "sam", "sam@example.com", "hashed").
				Return(nil, oops.Code("USER_CREATE_FAILED").Wrap(tc.repoErr))

			_, err := store.Create(ctx, in)
			requireAppError(t, err, apperr.KindValidation, tc.message, "")
		}
	})

	t.Run("validates fields before touching storage", func(t *testing.T) {
		cases := []auth.NewUser{
			{Username: "", Email: "sam@example.com", Password: "x"},
			{Username: strings.Repeat("a", 33), Email: "sam@example.com", Password: "x"},
			{Username: "sam", Email: "nope", Password: "x"},
			{Username: "sam", Email: "sam@example.com", Password: ""},
			{Username: "sam", Email: "sam@example.com", Password: strings.Repeat("p", 73)},
		}
		for i, c := range cases {
			t.Run(fmt.Sprint(i), func(t *testing.T) {
				store, _, _ := newIdentityStore(t)
				_, err := store.Create(ctx, c)
				assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
			})
		}
	})

	t.Run("wraps lookup failures", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByUsername", ctx, "sam").Return(nil, errors.New("connection refused"))

		_, err := store.Create(ctx, in)
		errutil.AssertErrorCode(t, err, "USER_LOOKUP_FAILED")
		assert.Equal(t, apperr.KindInternal, apperr.Normalize(err).Kind())
	})
}

func TestIdentityStore_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("finds by username", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		want := storedUser("Sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sAm").Return(want, nil)

		got, err := store.FindByUsername(ctx, "sAm")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing username is NotFound", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByUsername", ctx, "ghost").Return(nil, notFound())

		_, err := store.FindByUsername(ctx, "ghost")
		requireAppError(t, err, apperr.KindNotFound, "User not found.", "Please check the username and try again.")
	})

	t.Run("missing email is NotFound", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, notFound())

		_, err := store.FindByEmail(ctx, "ghost@example.com")
		requireAppError(t, err, apperr.KindNotFound, "User not found.", "Please check the email and try again.")
	})

	t.Run("storage failure is not NotFound", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByEmail", ctx, "sam@example.com").Return(nil, errors.New("boom"))

		_, err := store.FindByEmail(ctx, "sam@example.com")
		require.Error(t, err)
		assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
	})
}

func TestIdentityStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("changes username only", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		current := storedUser("sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sam").Return(current, nil).Once()
		users.On("GetByUsername", ctx, "samuel").Return(nil, notFound()).Once()
		users.On("Update", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.ID == current.ID && u.Username == "samuel" && u.Email == "sam@example.com" && u.Password == "$2a$04$stored"
		})).Return(func() *auth.User {
			updated := *current
			updated.Username = "samuel"
			updated.UpdatedAt = current.UpdatedAt.Add(time.Second)
			return &updated
		}(), nil)

		got, err := store.Update(ctx, "sam", auth.UserChanges{Username: strPtr("samuel")})
		require.NoError(t, err)
		assert.Equal(t, "samuel", got.Username)
		assert.True(t, got.UpdatedAt.After(current.CreatedAt))
	})

	t.Run("rehashes a new password", func(t *testing.T) {
		store, users, hasher := newIdentityStore(t)
		current := storedUser("sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sam").Return(current, nil)
		hasher.On("Hash", "newpassword").Return("rehashed", nil)
		users.On("Update", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Password == "rehashed"
		})).Return(current, nil)

		_, err := store.Update(ctx, "sam", auth.UserChanges{Password: strPtr("newpassword")})
		require.NoError(t, err)
	})

	t.Run("unknown target is NotFound", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		users.On("GetByUsername", ctx, "ghost").Return(nil, notFound())

		_, err := store.Update(ctx, "ghost", auth.UserChanges{Email: strPtr("g@example.com")})
		requireAppError(t, err, apperr.KindNotFound, "User not found.", "Please check the username and try again.")
	})

	t.Run("rejects the user's own unchanged email", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		current := storedUser("sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sam").Return(current, nil)
		users.On("GetByEmail", ctx, "sam@example.com").Return(current, nil)

		_, err := store.Update(ctx, "sam", auth.UserChanges{Email: strPtr("sam@example.com")})
		requireAppError(t, err, apperr.KindValidation, "Email already in use.", "")
		users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("rejects the user's own unchanged username", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		current := storedUser("sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sam").Return(current, nil)

		_, err := store.Update(ctx, "sam", auth.UserChanges{Username: strPtr("sam")})
		requireAppError(t, err, apperr.KindValidation, "Username already in use.", "")
	})

	t.Run("empty changes rewrite the record", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		current := storedUser("sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sam").Return(current, nil)
		users.On("Update", ctx, current).Return(current, nil)

		got, err := store.Update(ctx, "sam", auth.UserChanges{})
		require.NoError(t, err)
		assert.Equal(t, current, got)
	})

	t.Run("maps a racing unique violation", func(t *testing.T) {
		store, users, _ := newIdentityStore(t)
		current := storedUser("sam", "sam@example.com")
		users.On("GetByUsername", ctx, "sam").Return(current, nil)
		users.On("GetByEmail", ctx, "new@example.com").Return(nil, notFound())
		users.On("Update", ctx, mock.Anything).Return(nil, oops.Wrap(auth.ErrEmailTaken))

		_, err := store.Update(ctx, "sam", auth.UserChanges{Email: strPtr("new@example.com")})
		requireAppError(t, err, apperr.KindValidation, "Email already in use.", "")
	})
}
