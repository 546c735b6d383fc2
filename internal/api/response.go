package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

const jsonType = "application/json"

type noContent struct{}

// NoContent makes Serve answer 204 with an empty body.
var NoContent any = noContent{}

// Status sends Body with a status other than 200.
type Status struct {
	Code int
	Body any
}

func Created(body any) Status { return Status{Code: http.StatusCreated, Body: body} }

// Responder writes its own body, for files and images.
type Responder interface {
	Respond(w http.ResponseWriter, r *http.Request) error
}

func noCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "Thu, 01 Jan 1970 00:00:00 GMT")
}

// Serve adapts h to net/http. Results become JSON, errors become the error
// body, and any fault that is not a catalog error is logged in full and
// reduced to unknown_error.
func Serve(h Handler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &Request{Request: r, W: w, ID: uuid.NewString(), Log: log}
		noCache(w.Header())

		defer func() {
			if p := recover(); p != nil {
				writeError(w, translate(req, fmt.Errorf("panic: %v", p)))
			}
		}()

		val, err := h(req)
		if err != nil {
			writeError(w, translate(req, err))
			return
		}

		switch v := val.(type) {
		case noContent:
			w.WriteHeader(http.StatusNoContent)
		case Responder:
			if err := v.Respond(w, r); err != nil {
				log.Error("API", fmt.Sprintf("request %s: write response: %v", req.ID, err))
			}
		case Status:
			writeJSON(w, v.Code, v.Body)
		default:
			writeJSON(w, http.StatusOK, v)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.MarshalIndent(apierr.UnknownError(), "", "  ")
	}
	w.Header().Set("Content-Type", jsonType)
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, e *apierr.Error) {
	for k, vs := range e.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	writeJSON(w, e.Status, e)
}

func notFound(kind string, key any) *apierr.Error {
	return apierr.NotFound(kind, map[string]any{"pk": key})
}

func translate(req *Request, err error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}

	var nf *mapper.NotFoundError
	if errors.As(err, &nf) {
		return notFound(nf.Kind, nf.Key)
	}
	if errors.Is(err, models.ErrListingClaimed) {
		return apierr.ListingClaimed()
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		req.Log.Error("DATABASE", fmt.Sprintf("request %s %s %s: table=%s %s (%s) constraint=%q",
			req.ID, req.Method, req.URL, pqErr.Table, pqErr.Message, pqErr.Code, pqErr.Constraint))
		return apierr.DatabaseError()
	}

	req.Log.Error("UNHANDLED", fmt.Sprintf("request %s %s %s agent=%q body=%q: %v",
		req.ID, req.Method, req.URL, req.UserAgent(), req.Raw, err))
	return apierr.UnknownError()
}

// Negotiate rejects requests whose Accept header rules out every type the
// route produces.
func Negotiate(produces ...string) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (any, error) {
			accept := req.Header.Get("Accept")
			if accept == "" || acceptable(accept, produces) {
				return next(req)
			}
			return nil, apierr.NotAcceptable(accept)
		}
	}
}

func acceptable(accept string, produces []string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q := params["q"]; q == "0" || q == "0.0" || q == "0.00" || q == "0.000" {
			continue
		}
		for _, p := range produces {
			if mediaType == "*/*" || mediaType == p {
				return true
			}
			major, _, _ := strings.Cut(p, "/")
			if mediaType == major+"/*" {
				return true
			}
		}
	}
	return false
}
