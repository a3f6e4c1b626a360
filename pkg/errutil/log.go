// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. When err carries an oops error anywhere
// in its chain, the code and context of that error are logged as attributes.
// Extra attrs are appended after the error attributes.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if oc := oopsErr.Context(); len(oc) > 0 {
			fields = append(fields, "context", oc)
		}
	}
	fields = append(fields, attrs...)
	logger.ErrorContext(ctx, msg, fields...)
}
