// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package postgres implements the auth repositories on top of store.Gateway.
// Every call opens and closes its own connection.
package postgres
