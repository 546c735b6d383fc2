package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBodyShape(t *testing.T) {
	body, err := json.Marshal(NotFound("event", map[string]any{"pk": 5}))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"code": 1040,
		"message": "no such resource",
		"context": "event",
		"params": {"pk": 5},
		"error": "not_found"
	}`, string(body))
}

func TestForbiddenHasNullMessage(t *testing.T) {
	body, err := json.Marshal(Forbidden())
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":1030,"message":null,"context":null,"params":null,"error":"forbidden"}`, string(body))
}

func TestInvalidSessionChallenge(t *testing.T) {
	e := InvalidSession()
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Equal(t, `Basic realm="API"`, e.Header.Get("WWW-Authenticate"))
}

func TestIsAndAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create checkout: %w", ListingClaimed())

	assert.True(t, errors.Is(wrapped, ListingClaimed()))
	assert.False(t, errors.Is(wrapped, CardMissing()))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, 3000, e.Code)
	assert.Equal(t, KindConflict, e.Kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
