// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pillarhq/pillar/internal/apperr"
	"github.com/pillarhq/pillar/pkg/errutil"
)

// WriteError renders err as the JSON error envelope. Internal and
// ServiceUnavailable failures are logged with their cause; the others are
// expected outcomes and only show up in the access log.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperr.Normalize(err)
	switch appErr.Kind() {
	case apperr.KindInternal, apperr.KindServiceUnavailable:
		errutil.LogError(r.Context(), logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
			"kind", appErr.Kind().Name(),
		)
	default:
	}
	writeJSON(w, r, logger, appErr.StatusCode(), appErr.Envelope())
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.DebugContext(r.Context(), "response write failed", "error", err)
	}
}
