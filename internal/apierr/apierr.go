// Package apierr holds the client-visible error catalog. Every failure that
// reaches a caller is one of these; anything else is logged and reduced to
// UnknownError by the api package.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindClientInput Kind = iota
	KindConflict
	KindNotFound
	KindPrecondition
	KindUpstream
	KindServer
)

type Error struct {
	Status  int
	Code    int
	Name    string
	Message string
	Context any
	Params  any
	Kind    Kind
	Header  http.Header
}

func (e *Error) Error() string {
	if e.Context != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Name, e.Code, e.Message, e.Context)
	}
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// Is matches on Name so errors.Is(err, apierr.ListingClaimed()) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

func (e *Error) MarshalJSON() ([]byte, error) {
	var message any
	if e.Message != "" {
		message = e.Message
	}
	return json.Marshal(struct {
		Code    int    `json:"code"`
		Message any    `json:"message"`
		Context any    `json:"context"`
		Params  any    `json:"params"`
		Error   string `json:"error"`
	}{e.Code, message, e.Context, e.Params, e.Name})
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(status, code int, name, message string, kind Kind) *Error {
	return &Error{Status: status, Code: code, Name: name, Message: message, Kind: kind}
}

func InvalidSession() *Error {
	e := newError(http.StatusBadRequest, 1000, "invalid_session", "invalid session key", KindClientInput)
	e.Header = http.Header{}
	e.Header.Set("WWW-Authenticate", `Basic realm="API"`)
	return e
}

// InvalidRequest reports a schema violation; params describes where and why.
func InvalidRequest(context string, params any) *Error {
	e := newError(http.StatusBadRequest, 1010, "invalid_request", "invalid request body", KindClientInput)
	e.Context = context
	e.Params = params
	return e
}

func NotUnderstood(context string) *Error {
	e := newError(http.StatusBadRequest, 1020, "not_understood", "request not understood", KindClientInput)
	if context != "" {
		e.Context = context
	}
	return e
}

func Forbidden() *Error {
	return newError(http.StatusForbidden, 1030, "forbidden", "", KindClientInput)
}

func NotFound(kind string, params any) *Error {
	e := newError(http.StatusNotFound, 1040, "not_found", "no such resource", KindNotFound)
	e.Context = kind
	e.Params = params
	return e
}

func CardMissing() *Error {
	return newError(http.StatusBadRequest, 1050, "card_missing", "no card available", KindPrecondition)
}

func FileMissing(field string) *Error {
	e := newError(http.StatusBadRequest, 1060, "file_missing", "expected file upload", KindClientInput)
	e.Context = field
	return e
}

func NotAcceptable(accept string) *Error {
	e := newError(http.StatusNotAcceptable, 1070, "not_acceptable", "response type not acceptable", KindClientInput)
	e.Context = accept
	return e
}

func TooManyRequests() *Error {
	return newError(http.StatusTooManyRequests, 1080, "too_many_requests", "too many requests", KindClientInput)
}

func MethodNotAllowed(method string) *Error {
	e := newError(http.StatusMethodNotAllowed, 1090, "method_not_allowed", "method not allowed", KindClientInput)
	e.Context = method
	return e
}

func BadRequest(message string, context any) *Error {
	e := newError(http.StatusBadRequest, 1099, "bad_request", message, KindClientInput)
	e.Context = context
	return e
}

func IdentityAuth(message string) *Error {
	e := newError(http.StatusBadRequest, 2000, "identity_auth", "identity provider OAuth error", KindUpstream)
	e.Context = message
	return e
}

func IdentityMisc(context any) *Error {
	e := newError(http.StatusBadRequest, 2010, "identity_misc", "misc identity provider error", KindUpstream)
	e.Context = context
	return e
}

func ListingClaimed() *Error {
	return newError(http.StatusForbidden, 3000, "listing_claimed", "listing already claimed", KindConflict)
}

func TicketUploaded() *Error {
	return newError(http.StatusForbidden, 3010, "ticket_uploaded", "ticket already uploaded", KindConflict)
}

func UnknownError() *Error {
	return newError(http.StatusInternalServerError, 9000, "unknown_error", "unknown error", KindServer)
}

func DatabaseError() *Error {
	return newError(http.StatusInternalServerError, 9010, "database_error", "unknown database error", KindServer)
}
