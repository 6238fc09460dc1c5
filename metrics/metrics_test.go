package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveQuantiles(t *testing.T) {
	reg := NewRegistry()
	for i := 1; i <= 100; i++ {
		reg.Observe("GET /api/products", time.Duration(i)*time.Millisecond, http.StatusOK)
	}
	reg.Observe("GET /api/products", 2*time.Minute, http.StatusInternalServerError)
	reg.Observe("POST /api/orders", 0, http.StatusCreated)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "GET /api/products", snap[0].Route)
	assert.Equal(t, "POST /api/orders", snap[1].Route)

	p := snap[0]
	assert.EqualValues(t, 101, p.Count)
	assert.EqualValues(t, 1, p.Errors)
	assert.InDelta(t, 50_000, p.P50Micros, 1500)
	assert.InDelta(t, 95_000, p.P95Micros, 1500)
	assert.InDelta(t, 60_000_000, p.MaxMicros, 60_000)

	assert.EqualValues(t, 1, snap[1].Count)
	assert.EqualValues(t, 1, snap[1].P50Micros)
}

func TestWrapRecordsStatus(t *testing.T) {
	reg := NewRegistry()
	h := reg.Wrap(http.MethodGet, "/boom", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/boom", nil), nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "GET /boom", snap[0].Route)
	assert.EqualValues(t, 1, snap[0].Errors)
}
