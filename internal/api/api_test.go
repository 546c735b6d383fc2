package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/auth"
	"ticket-bazaar/internal/database/dbtest"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

type errorBody struct {
	Code    int            `json:"code"`
	Message *string        `json:"message"`
	Context any            `json:"context"`
	Params  map[string]any `json:"params"`
	Error   string         `json:"error"`
}

func serve(t *testing.T, h Handler, r *http.Request) (*httptest.ResponseRecorder, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	w := httptest.NewRecorder()
	Serve(h, logger.New(&logs)).ServeHTTP(w, r)
	return w, &logs
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(req *Request) (any, error) {
				order = append(order, name)
				return next(req)
			}
		}
	}
	h := Chain(func(*Request) (any, error) {
		order = append(order, "handler")
		return nil, nil
	}, mw("outer"), mw("inner"))

	_, err := h(&Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestServeFormatsJSON(t *testing.T) {
	w, _ := serve(t, func(*Request) (any, error) {
		return map[string]any{"id": 1, "tags": []string{"a"}}, nil
	}, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "{\n  \"id\": 1,\n  \"tags\": [\n    \"a\"\n  ]\n}\n", w.Body.String())
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.Equal(t, "Thu, 01 Jan 1970 00:00:00 GMT", w.Header().Get("Expires"))
}

func TestServeStatuses(t *testing.T) {
	w, _ := serve(t, func(*Request) (any, error) { return NoContent, nil },
		httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w, _ = serve(t, func(*Request) (any, error) { return Created(map[string]int{"id": 3}), nil },
		httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id": 3}`, w.Body.String())
}

func TestServeTranslatesErrors(t *testing.T) {
	w, _ := serve(t, func(*Request) (any, error) {
		return nil, &mapper.NotFoundError{Kind: "listing", Key: int64(42)}
	}, httptest.NewRequest(http.MethodGet, "/listings/42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "not_found", body.Error)
	assert.Equal(t, "listing", body.Context)
	assert.Equal(t, float64(42), body.Params["pk"])

	w, _ = serve(t, func(*Request) (any, error) {
		return nil, models.ErrListingClaimed
	}, httptest.NewRequest(http.MethodPut, "/listings/42", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 3000, decodeError(t, w).Code)

	w, logs := serve(t, func(*Request) (any, error) {
		return nil, &pq.Error{Code: "23502", Message: "null value", Table: "listing"}
	}, httptest.NewRequest(http.MethodPost, "/listings", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "database_error", decodeError(t, w).Error)
	assert.Contains(t, logs.String(), "null value")

	w, _ = serve(t, func(*Request) (any, error) {
		return nil, apierr.InvalidSession()
	}, httptest.NewRequest(http.MethodGet, "/account", nil))
	assert.Equal(t, `Basic realm="API"`, w.Header().Get("WWW-Authenticate"))
}

func TestServeHidesUnknownFaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/boom?x=1", nil)
	r.Header.Set("User-Agent", "probe/1.0")
	w, logs := serve(t, func(*Request) (any, error) {
		return nil, errors.New("secret internal detail")
	}, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "unknown_error", body.Error)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, logs.String(), "UNHANDLED")
	assert.Contains(t, logs.String(), "secret internal detail")
	assert.Contains(t, logs.String(), "probe/1.0")
	assert.Contains(t, logs.String(), "/boom?x=1")

	w, logs = serve(t, func(*Request) (any, error) { panic("nil map") }, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), "nil map")
}

func TestNegotiate(t *testing.T) {
	h := Chain(func(*Request) (any, error) { return "ok", nil }, Negotiate("application/json"))

	for accept, want := range map[string]int{
		"":                                  http.StatusOK,
		"application/json":                  http.StatusOK,
		"text/html, application/*;q=0.8":    http.StatusOK,
		"*/*":                               http.StatusOK,
		"text/html":                         http.StatusNotAcceptable,
		"application/json;q=0, image/png":   http.StatusNotAcceptable,
		"application/xml, text/plain;q=0.5": http.StatusNotAcceptable,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if accept != "" {
			r.Header.Set("Accept", accept)
		}
		w, _ := serve(t, h, r)
		assert.Equal(t, want, w.Code, accept)
	}
}

const listingSchema = `{
	"type": "object",
	"properties": {
		"event": {"type": "integer", "minimum": 1},
		"price": {"type": "integer", "minimum": 0},
		"message": {"type": ["string", "null"], "minLength": 1}
	},
	"required": ["event", "price"],
	"additionalProperties": false
}`

func echoPayload(req *Request) (any, error) {
	event, err := req.Int("event")
	if err != nil {
		return nil, err
	}
	price, err := req.Int("price")
	if err != nil {
		return nil, err
	}
	return map[string]any{"event": event, "price": price, "message": req.OptString("message")}, nil
}

func TestValidateJSONBody(t *testing.T) {
	h := Chain(echoPayload, Validate(listingSchema))

	w, _ := serve(t, h, httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(`{"event": 5, "price": 1200}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"event": 5, "price": 1200, "message": null}`, w.Body.String())

	w, _ = serve(t, h, httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(`{"event": 5, "price": -1}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "invalid_request", body.Error)
	assert.Equal(t, "/price", body.Params["path"])
	assert.Contains(t, body.Params["constraint"], "minimum")
	assert.Equal(t, float64(-1), body.Params["value"])

	w, _ = serve(t, h, httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(`{"event": 5, "price": 1, "extra": true}`)))
	assert.Equal(t, "invalid_request", decodeError(t, w).Error)

	w, _ = serve(t, h, httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(`{"event": 5,`)))
	assert.Equal(t, "not_understood", decodeError(t, w).Error)

	w, _ = serve(t, h, httptest.NewRequest(http.MethodPost, "/listings", nil))
	assert.Equal(t, "not_understood", decodeError(t, w).Error)
}

func TestValidateQuery(t *testing.T) {
	h := Chain(func(req *Request) (any, error) {
		city, err := req.Int("city")
		if err != nil {
			return nil, err
		}
		return map[string]any{"city": city, "q": req.String("q")}, nil
	}, Validate(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "pattern": "^[1-9][0-9]*$"},
			"q": {"type": "string", "minLength": 2}
		},
		"required": ["city", "q"]
	}`))

	w, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/events?city=2&q=wilco&q=ignored", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"city": 2, "q": "wilco"}`, w.Body.String())

	w, _ = serve(t, h, httptest.NewRequest(http.MethodGet, "/events?city=0&q=wilco", nil))
	body := decodeError(t, w)
	assert.Equal(t, "invalid_request", body.Error)
	assert.Equal(t, "0", body.Params["value"])
}

func TestValidateIntegralNumberForms(t *testing.T) {
	h := Chain(echoPayload, Validate(listingSchema))

	for _, price := range []string{"1200", "1200.0", "1.2e3", "12000e-1"} {
		w, _ := serve(t, h, httptest.NewRequest(http.MethodPost, "/listings",
			strings.NewReader(`{"event": 5, "price": `+price+`}`)))
		assert.Equal(t, http.StatusOK, w.Code, price)
		assert.JSONEq(t, `{"event": 5, "price": 1200, "message": null}`, w.Body.String(), price)
	}

	for _, price := range []string{"1e30", "9223372036854775808", "1e99999"} {
		w, _ := serve(t, h, httptest.NewRequest(http.MethodPost, "/listings",
			strings.NewReader(`{"event": 5, "price": `+price+`}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code, price)
		body := decodeError(t, w)
		assert.Equal(t, "invalid_request", body.Error, price)
		assert.Equal(t, "/price", body.Params["path"], price)
	}
}

func TestValidateQueryIntegerOverflow(t *testing.T) {
	h := Chain(func(req *Request) (any, error) {
		city, err := req.Int("city")
		if err != nil {
			return nil, err
		}
		return map[string]any{"city": city}, nil
	}, Validate(`{"type": "object", "properties": {"city": {"type": "string", "pattern": "^[1-9][0-9]*$"}}}`))

	w, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/listings?city=99999999999999999999", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "invalid_request", body.Error)
	assert.Equal(t, "/city", body.Params["path"])
	assert.Equal(t, "99999999999999999999", body.Params["value"])
}

func TestValidateMultipartForm(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("checkout", "12"))
	require.NoError(t, mw.Close())

	h := Chain(func(req *Request) (any, error) {
		checkout, err := req.Int("checkout")
		if err != nil {
			return nil, err
		}
		return map[string]any{"checkout": checkout}, nil
	}, Validate(`{"type": "object", "properties": {"checkout": {"type": "string", "pattern": "^[0-9]+$"}}, "required": ["checkout"]}`))

	r := httptest.NewRequest(http.MethodPost, "/tickets", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w, _ := serve(t, h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"checkout": 12}`, w.Body.String())
}

func TestValidateRejectsBadSchemaAtRegistration(t *testing.T) {
	assert.Panics(t, func() { Validate(`{"type": "no-such-type"}`) })
	assert.Panics(t, func() { Validate(`{not json`) })
}

func testSessions() *auth.Sessions {
	return &auth.Sessions{Signer: auth.NewSigner("secret"), Name: "session", TTL: time.Hour}
}

func TestSessionAndAccountRequired(t *testing.T) {
	sessions := testSessions()
	h := Chain(func(req *Request) (any, error) {
		return map[string]int64{"account": req.Account.ID}, nil
	}, Session(sessions), AccountRequired(false))

	w, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/account", nil))
	assert.Equal(t, "invalid_session", decodeError(t, w).Error)

	r := httptest.NewRequest(http.MethodGet, "/account", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: "forged"})
	w, logs := serve(t, h, r)
	assert.Equal(t, "invalid_session", decodeError(t, w).Error)
	assert.Contains(t, logs.String(), "BAD_SESSION")

	c, err := sessions.Cookie(7)
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/account", nil)
	r.AddCookie(c)
	w, _ = serve(t, h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account": 7}`, w.Body.String())
}

func TestAccountRequiredFetchesFreshRow(t *testing.T) {
	db := dbtest.Open(t)
	seller := dbtest.CreateAccount(t, db, "fb-1", "Sam Seller")
	sessions := testSessions()

	h := Chain(func(req *Request) (any, error) {
		return req.Account.View(true), nil
	}, Session(sessions), WithDB(db), AccountRequired(true))

	c, err := sessions.Cookie(seller.ID)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/account", nil)
	r.AddCookie(c)
	w, _ := serve(t, h, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"full_name": "Sam Seller"`)
	assert.Contains(t, w.Body.String(), `"has_card": false`)

	gone, err := sessions.Cookie(999)
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/account", nil)
	r.AddCookie(gone)
	w, _ = serve(t, h, r)
	assert.Equal(t, "invalid_session", decodeError(t, w).Error)
}
