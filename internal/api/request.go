// Package api is the request pipeline shared by every route: a Handler
// returns a value or an error, and middlewares wrap it with validation,
// session handling, a per-request transaction and store-error translation.
package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/models"
)

type Request struct {
	*http.Request
	W  http.ResponseWriter
	ID string

	// Raw holds the body bytes once Validate has read them.
	Raw     []byte
	Payload map[string]any

	// Account is an id-only reference after Session, and the full row after
	// AccountRequired(true).
	Account *models.Account
	Tx      bun.IDB
	Log     *logger.Logger

	afterCommit []func(context.Context)
}

type Handler func(*Request) (any, error)

type Middleware func(Handler) Handler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AfterCommit queues fn to run once WithDB has committed. Nothing runs on
// rollback.
func (r *Request) AfterCommit(fn func(context.Context)) {
	r.afterCommit = append(r.afterCommit, fn)
}

func (r *Request) Param(name string) string {
	return chi.URLParam(r.Request, name)
}

// IDParam parses a positive integer URL parameter. A malformed id cannot
// name anything, so it is reported as NotFound of kind.
func (r *Request) IDParam(name, kind string) (int64, error) {
	raw := r.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound(kind, raw)
	}
	return id, nil
}

func (r *Request) Has(key string) bool {
	_, ok := r.Payload[key]
	return ok
}

// Int reads a validated integer from the payload: a JSON number with an
// integral value (1200, 1200.0, 1.2e3) or, for query and form input, its
// decimal string. A value with no exact int64 form is invalid_request rather
// than a silent zero. An absent key reads as 0.
func (r *Request) Int(key string) (int64, error) {
	v, ok := r.Payload[key]
	if !ok || v == nil {
		return 0, nil
	}
	var text string
	switch v := v.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	case float64:
		text = strconv.FormatFloat(v, 'g', -1, 64)
	}
	n, ok := exactInt64(text)
	if !ok {
		return 0, apierr.InvalidRequest(key+" is not a 64-bit integer", map[string]any{"path": "/" + key, "value": v})
	}
	return n, nil
}

// maxExponent bounds the work big.Rat does; no int64 needs more digits.
const maxExponent = 64

var decimalNumber = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?([eE][+-]?([0-9]+))?$`)

func exactInt64(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	m := decimalNumber.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	if m[3] != "" {
		if exp, err := strconv.Atoi(m[3]); err != nil || exp > maxExponent {
			return 0, false
		}
	}
	rat, ok := new(big.Rat).SetString(s)
	if !ok || !rat.IsInt() || !rat.Num().IsInt64() {
		return 0, false
	}
	return rat.Num().Int64(), true
}

func (r *Request) String(key string) string {
	s, _ := r.Payload[key].(string)
	return s
}

// OptString is nil when key is absent or null.
func (r *Request) OptString(key string) *string {
	s, ok := r.Payload[key].(string)
	if !ok {
		return nil
	}
	return &s
}
