// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"

	"github.com/pillarhq/pillar/internal/apperr"
	"github.com/pillarhq/pillar/internal/auth"
)

// maxBodyBytes bounds request bodies; every payload here is a few fields.
const maxBodyBytes = 1 << 16

// schemaCache holds compiled schemas keyed by payload type.
var schemaCache sync.Map // reflect.Type -> *jschema.Schema

// Payloads returns the request bodies the API validates, keyed by the file
// stem their exported schema is written under.
func Payloads() map[string]any {
	return map[string]any{
		"new-user":        &auth.NewUser{},
		"user-changes":    &auth.UserChanges{},
		"session-request": &sessionRequest{},
	}
}

// GenerateSchema reflects the JSON Schema for payload.
func GenerateSchema(payload any) ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(payload)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

func compiledSchema(payload any) (*jschema.Schema, error) {
	t := reflect.TypeOf(payload)
	if sch, ok := schemaCache.Load(t); ok {
		return sch.(*jschema.Schema), nil
	}

	raw, err := GenerateSchema(payload)
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}

	name := t.Name()
	if t.Kind() == reflect.Pointer {
		name = t.Elem().Name()
	}
	url := "mem://pillar/" + name + ".schema.json"
	c := jschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("type", t.String()).Wrap(err)
	}

	actual, _ := schemaCache.LoadOrStore(t, sch)
	return actual.(*jschema.Schema), nil
}

func invalidBody(cause error) error {
	return apperr.Validation(
		"The request body is invalid.",
		"Please check the submitted fields and try again.",
		apperr.WithCause(cause),
	)
}

// decodeBody validates the request body against the schema reflected from
// dst and decodes it into dst. An empty body is read as {}.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return invalidBody(err)
	}
	if len(body) > maxBodyBytes {
		return invalidBody(oops.Errorf("body exceeds %d bytes", maxBodyBytes))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return invalidBody(err)
	}
	sch, err := compiledSchema(dst)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return invalidBody(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return invalidBody(err)
	}
	return nil
}
