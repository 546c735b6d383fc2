package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ticket-bazaar/internal/apierr"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// Validate checks the request against a JSON schema before the handler runs:
// the query string for GET, form fields for multipart uploads and the JSON
// body otherwise. The schema is compiled, and so checked against the
// meta-schema, when the route is registered; a bad schema panics there.
func Validate(schema string) Middleware {
	compiled := jsonschema.MustCompileString("route.json", schema)

	return func(next Handler) Handler {
		return func(req *Request) (any, error) {
			doc, err := readPayload(req)
			if err != nil {
				return nil, err
			}
			if err := compiled.Validate(doc); err != nil {
				return nil, violation(err, doc)
			}
			if m, ok := doc.(map[string]any); ok {
				req.Payload = m
			}
			return next(req)
		}
	}
}

func readPayload(req *Request) (any, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return firstValues(req.URL.Query()), nil
	}

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, apierr.NotUnderstood("malformed multipart body")
		}
		return firstValues(req.MultipartForm.Value), nil
	}

	raw, err := io.ReadAll(io.LimitReader(req.Request.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return nil, apierr.NotUnderstood("request body too large")
	}
	req.Raw = raw

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apierr.NotUnderstood("expected a JSON body")
		}
		return nil, apierr.NotUnderstood("malformed JSON body")
	}
	if dec.More() {
		return nil, apierr.NotUnderstood("trailing data after JSON body")
	}
	return doc, nil
}

func firstValues(values map[string][]string) map[string]any {
	doc := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			doc[k] = vs[0]
		}
	}
	return doc
}

// violation reports the most specific failure: where, which constraint and
// the offending value.
func violation(err error, doc any) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate request: %w", err)
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	params := map[string]any{
		"path":       ve.InstanceLocation,
		"constraint": ve.KeywordLocation,
	}
	if v, ok := lookup(doc, ve.InstanceLocation); ok && ve.InstanceLocation != "" {
		params["value"] = v
	}
	return apierr.InvalidRequest(ve.Message, params)
}

// lookup resolves a JSON pointer into doc.
func lookup(doc any, pointer string) (any, bool) {
	cur := doc
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		tok = strings.NewReplacer("~1", "/", "~0", "~").Replace(tok)
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
