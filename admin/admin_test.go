package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpet/activity"
	"petpet/db"
	"petpet/db/dbtest"
	"petpet/metrics"
	"petpet/middleware"
	"petpet/models"
	"petpet/mq"
	"petpet/products"
	"petpet/reviews"
)

type fixture struct {
	store   *db.Store
	audit   *activity.Memory
	reviews *reviews.Service
	h       *Handlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.New(t)
	audit := &activity.Memory{}
	bus := mq.NewLocal()
	rv := reviews.NewService(store, bus, audit)
	svc := NewService(store, products.NewService(store, bus, audit, nil))
	return &fixture{
		store:   store,
		audit:   audit,
		reviews: rv,
		h:       NewHandlers(svc, rv, audit, metrics.NewRegistry(), 20, 100),
	}
}

func (f *fixture) review(t *testing.T, email string, rating int) int64 {
	t.Helper()
	user := dbtest.CreateUser(t, f.store, email)
	pid := dbtest.CreateProduct(t, f.store, dbtest.Product{Stock: 5})
	oid := dbtest.CreateOrder(t, f.store, user, pid, 1, "9.99", int(models.StatusCompleted))
	rv, err := f.reviews.Create(context.Background(), user, reviews.CreateInput{
		ProductID: pid, OrderID: oid, Rating: rating, Comment: "Solid",
	})
	require.NoError(t, err)
	return rv.ID
}

func asAdmin(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithClaims(req.Context(), &middleware.Claims{UserID: "admin-1", Role: []string{"Admin"}}))
}

func TestDashboardStats(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC().Add(-time.Hour)
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Old", Price: "2.50", Stock: 4, CreatedAt: base})
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "New", Price: "10.00", Stock: 20, Threshold: 5,
		CreatedAt: base.Add(time.Minute), ImageURL: "/new.png"})
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Gone", Price: "100", Stock: 100, Inactive: true})

	st, err := f.h.svc.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalProducts)
	assert.True(t, st.InventoryValue.Equal(decimal.RequireFromString("210")), st.InventoryValue.String())
	assert.Equal(t, 1, st.LowStockProductsCount)
	assert.Equal(t, models.CategoryCount, st.TotalCategories)
	require.Len(t, st.RecentProducts, 2)
	assert.Equal(t, "New", st.RecentProducts[0].Name)
	require.Len(t, st.RecentProducts[0].Images, 1)
	assert.Equal(t, "/new.png", st.RecentProducts[0].Images[0].ImageURL)
}

func TestDashboardRecentProductsCapped(t *testing.T) {
	f := newFixture(t)
	for range 8 {
		dbtest.CreateProduct(t, f.store, dbtest.Product{Stock: 50})
	}
	st, err := f.h.svc.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, st.TotalProducts)
	assert.Len(t, st.RecentProducts, recentProductsCount)
}

func TestLowStockView(t *testing.T) {
	f := newFixture(t)
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Plenty", Stock: 50})
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Few", Brand: "Acme", Price: "4.00", Stock: 3})
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "None", Stock: 0})

	items, err := f.h.svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "None", items[0].Name)
	assert.Equal(t, "Few", items[1].Name)
	assert.Equal(t, "Acme", items[1].Brand)
	assert.Equal(t, 10, items[1].LowStockThreshold)

	rec := httptest.NewRecorder()
	f.h.LowStock(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/admin/products/low-stock", nil)), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lowStockThreshold":10`)
}

func TestModerateHandler(t *testing.T) {
	f := newFixture(t)
	id := f.review(t, "a@petpet.test", 4)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/reviews/moderate", strings.NewReader(body))
		rec := httptest.NewRecorder()
		f.h.Moderate(rec, asAdmin(req), nil)
		return rec
	}

	rec := send(`{"reviewId":` + itoa(id) + `,"action":"Reject","reason":"spam"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Review rejected successfully")

	rv, err := f.reviews.AdminGet(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, rv.IsApproved)
	assert.Contains(t, f.audit.Actions(), "review.reject")

	assert.Equal(t, http.StatusBadRequest, send(`{"reviewId":`+itoa(id)+`,"action":"ban"}`).Code)
	assert.Equal(t, http.StatusBadRequest, send(`{"action":"approve"}`).Code)
	assert.Equal(t, http.StatusNotFound, send(`{"reviewId":999,"action":"approve"}`).Code)
}

func TestBulkModerateAndDeleteHandlers(t *testing.T) {
	f := newFixture(t)
	a := f.review(t, "a@petpet.test", 5)
	b := f.review(t, "b@petpet.test", 2)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/reviews/bulk-moderate",
		strings.NewReader(`{"reviewIds":[`+itoa(a)+`,`+itoa(b)+`,999],"action":"reject"}`))
	rec := httptest.NewRecorder()
	f.h.BulkModerate(rec, asAdmin(req), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"affected":2`)

	st, err := f.reviews.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.PendingReviews)

	req = httptest.NewRequest(http.MethodDelete, "/api/admin/reviews/"+itoa(a), nil)
	rec = httptest.NewRecorder()
	f.h.DeleteReview(rec, asAdmin(req), params("id", itoa(a)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, dbtest.Count(t, f.store, "reviews"))
}

func TestReviewListHandler(t *testing.T) {
	f := newFixture(t)
	f.review(t, "low@petpet.test", 1)
	f.review(t, "high@petpet.test", 5)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/reviews?minRating=3&sortBy=rating", nil)
	rec := httptest.NewRecorder()
	f.h.Reviews(rec, asAdmin(req), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "high@petpet.test")
	assert.NotContains(t, rec.Body.String(), "low@petpet.test")
	assert.Contains(t, rec.Body.String(), `"pageSize":20`)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/reviews?minRating=x", nil)
	rec = httptest.NewRecorder()
	f.h.Reviews(rec, asAdmin(req), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.review(t, "a@petpet.test", 3)
	activity.Log(context.Background(), f.audit, activity.Entry{Actor: "admin-1", Action: "product.create"})

	rec := httptest.NewRecorder()
	f.h.Activity(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/admin/activity?limit=1", nil)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "product.create")

	f.h.metrics.Observe("GET /api/products", 3*time.Millisecond, http.StatusOK)
	rec = httptest.NewRecorder()
	f.h.Metrics(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/admin/metrics", nil)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"route":"GET /api/products"`)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func params(name, value string) httprouter.Params {
	return httprouter.Params{{Key: name, Value: value}}
}
