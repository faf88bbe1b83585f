package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("user 4: %w", ErrNotFound), http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("redis: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{errors.New("secret detail"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, tc.status, body.Status)
		assert.NotContains(t, body.Detail, "secret")
	}
}

func TestJSONWritesStatusAndBody(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusCreated, map[string]string{"status": "ok"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
