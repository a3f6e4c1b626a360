// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

type response struct {
	status int
	header http.Header
	body   map[string]any
	list   []any
}

func call(method, path, body string) response {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	out := response{status: resp.StatusCode, header: resp.Header}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		Expect(json.Unmarshal(raw, &out.list)).To(Succeed())
	} else if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out.body)).To(Succeed())
	}
	return out
}

func expectEnvelope(r response, status int, name, message string) {
	GinkgoHelper()
	Expect(r.status).To(Equal(status))
	Expect(r.body).To(HaveKeyWithValue("name", name))
	Expect(r.body).To(HaveKeyWithValue("message", message))
	Expect(r.body).To(HaveKeyWithValue("status_code", float64(status)))
	Expect(r.body).To(HaveKey("action"))
}

var _ = Describe("HTTP API", Ordered, func() {
	Describe("/api/v1/migrations", func() {
		It("lists pending migrations without applying them", func() {
			first := call(http.MethodGet, "/api/v1/migrations", "")
			Expect(first.status).To(Equal(http.StatusOK))
			Expect(first.list).NotTo(BeEmpty())

			second := call(http.MethodGet, "/api/v1/migrations", "")
			Expect(second.list).To(Equal(first.list))
		})

		It("applies them once", func() {
			applied := call(http.MethodPost, "/api/v1/migrations", "")
			Expect(applied.status).To(Equal(http.StatusCreated))
			Expect(applied.list).NotTo(BeEmpty())

			again := call(http.MethodPost, "/api/v1/migrations", "")
			Expect(again.status).To(Equal(http.StatusOK))
			Expect(again.list).To(BeEmpty())

			pending := call(http.MethodGet, "/api/v1/migrations", "")
			Expect(pending.list).To(BeEmpty())
		})

		It("rejects other methods", func() {
			r := call(http.MethodDelete, "/api/v1/migrations", "")
			expectEnvelope(r, http.StatusMethodNotAllowed, "MethodNotAllowedError",
				"This method is not allowed for that endpoint.")
		})
	})

	Describe("users and sessions", func() {
		It("creates a user without exposing the plaintext password", func() {
			r := call(http.MethodPost, "/api/v1/users",
				`{"username":"Alice","email":"Alice@Example.com","password":"correct horse"}`)
			Expect(r.status).To(Equal(http.StatusCreated))
			Expect(r.body).To(HaveKeyWithValue("username", "Alice"))
			Expect(r.body["password"]).To(HavePrefix("$2"))
			Expect(r.body["password"]).NotTo(Equal("correct horse"))
		})

		It("rejects a username that differs only in case", func() {
			r := call(http.MethodPost, "/api/v1/users",
				`{"username":"alice","email":"other@example.com","password":"secret"}`)
			expectEnvelope(r, http.StatusBadRequest, "ValidationError", "Username already in use.")
		})

		It("rejects an email that differs only in case", func() {
			r := call(http.MethodPost, "/api/v1/users",
				`{"username":"bob","email":"alice@EXAMPLE.com","password":"secret"}`)
			expectEnvelope(r, http.StatusBadRequest, "ValidationError", "Email already in use.")
		})

		It("finds users case-insensitively", func() {
			r := call(http.MethodGet, "/api/v1/users/ALICE", "")
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.body).To(HaveKeyWithValue("username", "Alice"))

			missing := call(http.MethodGet, "/api/v1/users/nobody", "")
			expectEnvelope(missing, http.StatusNotFound, "NotFoundError", "User not found.")
		})

		It("rejects renaming to the current username", func() {
			r := call(http.MethodPatch, "/api/v1/users/Alice", `{"username":"Alice"}`)
			expectEnvelope(r, http.StatusBadRequest, "ValidationError", "Username already in use.")
		})

		It("updates the password and keeps the rest", func() {
			before := call(http.MethodGet, "/api/v1/users/alice", "")
			time.Sleep(10 * time.Millisecond)

			r := call(http.MethodPatch, "/api/v1/users/alice", `{"password":"new secret"}`)
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.body["email"]).To(Equal(before.body["email"]))
			Expect(r.body["password"]).NotTo(Equal(before.body["password"]))
			Expect(r.body["updated_at"]).NotTo(Equal(before.body["updated_at"]))
		})

		It("issues a session cookie for valid credentials", func() {
			r := call(http.MethodPost, "/api/v1/sessions",
				`{"email":"ALICE@example.com","password":"new secret"}`)
			Expect(r.status).To(Equal(http.StatusCreated))
			token, ok := r.body["token"].(string)
			Expect(ok).To(BeTrue())
			Expect(token).To(HaveLen(96))

			cookie := r.header.Get("Set-Cookie")
			Expect(cookie).To(ContainSubstring("session_id=" + token))
			Expect(cookie).To(ContainSubstring("Max-Age=2592000"))
			Expect(cookie).To(ContainSubstring("HttpOnly"))

			created, err := time.Parse(time.RFC3339Nano, r.body["created_at"].(string))
			Expect(err).NotTo(HaveOccurred())
			expires, err := time.Parse(time.RFC3339Nano, r.body["expires_at"].(string))
			Expect(err).NotTo(HaveOccurred())
			Expect(expires.Sub(created)).To(Equal(30 * 24 * time.Hour))
		})

		It("answers wrong passwords and unknown emails identically", func() {
			wrong := call(http.MethodPost, "/api/v1/sessions",
				`{"email":"alice@example.com","password":"correct horse"}`)
			unknown := call(http.MethodPost, "/api/v1/sessions",
				`{"email":"nobody@example.com","password":"whatever"}`)

			expectEnvelope(wrong, http.StatusUnauthorized, "UnauthorizedError", "Invalid email or password.")
			Expect(unknown.status).To(Equal(wrong.status))
			Expect(unknown.body).To(Equal(wrong.body))
			Expect(unknown.header.Get("Set-Cookie")).To(BeEmpty())

			missing := call(http.MethodPost, "/api/v1/sessions", `{}`)
			Expect(missing.status).To(Equal(wrong.status))
			Expect(missing.body).To(Equal(wrong.body))
		})
	})

	Describe("/api/v1/status", func() {
		It("reports the database", func() {
			r := call(http.MethodGet, "/api/v1/status", "")
			Expect(r.status).To(Equal(http.StatusOK))
			deps, ok := r.body["dependencies"].(map[string]any)
			Expect(ok).To(BeTrue())
			db, ok := deps["database"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(db["version"]).To(HavePrefix("16"))
			Expect(db["max_connections"]).To(BeNumerically(">", 0))
			Expect(db["open_connections"]).To(BeNumerically(">=", 1))
		})
	})
})
