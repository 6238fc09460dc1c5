package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpet/apperr"
)

func TestParsePage(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/products?page=2&pageSize=500", nil)
	page, size := ParsePage(r, 10, 100)
	assert.Equal(t, 2, page)
	assert.Equal(t, 100, size)

	r = httptest.NewRequest(http.MethodGet, "/api/products?page=-1&pageSize=abc", nil)
	page, size = ParsePage(r, 20, 100)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)
}

func TestRespondWithError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.E(apperr.NotFound, "Product not found"), http.StatusNotFound, "Product not found"},
		{apperr.E(apperr.EmptyCart, "Cart is empty"), http.StatusBadRequest, "Cart is empty"},
		{apperr.E(apperr.InvalidTransition, "nope"), http.StatusConflict, "nope"},
		{apperr.E(apperr.Forbidden, "no"), http.StatusForbidden, "no"},
		{errors.New("pq: connection refused to 10.0.0.5"), http.StatusInternalServerError, "An internal error occurred"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		RespondWithError(rec, req, tc.err)

		assert.Equal(t, tc.status, rec.Code)
		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.False(t, env.Success)
		assert.Equal(t, tc.msg, env.Message)
	}
}

func TestSendResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SendResponse(rec, http.StatusCreated, map[string]int{"id": 7}, "Created")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Created","data":{"id":7}}`, rec.Body.String())
}

func TestQueryTime(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?from=2025-03-01&to=2025-03-02T10:00:00%2B02:00&bad=yesterday", nil)

	from, err := QueryTime(r, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *from)

	to, err := QueryTime(r, "to")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC), *to)

	_, err = QueryTime(r, "bad")
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))

	missing, err := QueryTime(r, "none")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "cat_toy.png", SanitizeFilename("../../cat toy.png"))
	assert.Equal(t, "file", SanitizeFilename(".."))
}
