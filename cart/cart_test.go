package cart

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpet/apperr"
	"petpet/db/dbtest"
	"petpet/globals"
)

func TestAddMergesAndChecksCumulativeStock(t *testing.T) {
	store := dbtest.New(t)
	svc := NewService(store)
	ctx := context.Background()
	user := dbtest.CreateUser(t, store, "a@petpet.test")
	pid := dbtest.CreateProduct(t, store, dbtest.Product{Name: "Ball", Price: "3.50", Stock: 5, ImageURL: "/ball.png"})

	item, err := svc.Add(ctx, user, pid, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "/ball.png", item.ProductImageURL)
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("7")))

	item, err = svc.Add(ctx, user, pid, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
	assert.Equal(t, 1, dbtest.Count(t, store, "cart_items"))

	_, err = svc.Add(ctx, user, pid, 1)
	assert.True(t, apperr.IsKind(err, apperr.InsufficientStock))

	_, err = svc.Add(ctx, user, pid, 0)
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))
}

func TestAddHugeQuantityIsInsufficientStock(t *testing.T) {
	store := dbtest.New(t)
	svc := NewService(store)
	ctx := context.Background()
	user := dbtest.CreateUser(t, store, "huge@petpet.test")
	pid := dbtest.CreateProduct(t, store, dbtest.Product{Name: "Laser Pointer", Stock: 5})

	_, err := svc.Add(ctx, user, pid, 1)
	require.NoError(t, err)

	_, err = svc.Add(ctx, user, pid, math.MaxInt)
	assert.True(t, apperr.IsKind(err, apperr.InsufficientStock), "got %v", err)

	sum, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, 1, sum.Items[0].Quantity)
}

func TestAddUnknownOrInactiveProduct(t *testing.T) {
	store := dbtest.New(t)
	svc := NewService(store)
	user := dbtest.CreateUser(t, store, "a@petpet.test")
	hidden := dbtest.CreateProduct(t, store, dbtest.Product{Stock: 5, Inactive: true})

	_, err := svc.Add(context.Background(), user, hidden, 1)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
	_, err = svc.Add(context.Background(), user, 999, 1)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestGetSummary(t *testing.T) {
	store := dbtest.New(t)
	svc := NewService(store)
	ctx := context.Background()
	user := dbtest.CreateUser(t, store, "a@petpet.test")
	a := dbtest.CreateProduct(t, store, dbtest.Product{Name: "A", Price: "2.50", Stock: 10})
	b := dbtest.CreateProduct(t, store, dbtest.Product{Name: "B", Price: "10.00", Stock: 1})

	_, err := svc.Add(ctx, user, a, 4)
	require.NoError(t, err)
	_, err = svc.Add(ctx, user, b, 1)
	require.NoError(t, err)

	sum, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.TotalItems)
	assert.Equal(t, 2, sum.UniqueProductCount)
	assert.True(t, sum.TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.False(t, sum.HasOutOfStockItems)

	// stock drops below the cart quantity behind the cart's back
	_, err = store.Conn().ExecContext(ctx, `UPDATE products SET stock_quantity = 0 WHERE id = ?`, b)
	require.NoError(t, err)
	sum, err = svc.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, sum.HasOutOfStockItems)
	assert.False(t, sum.Items[1].IsInStock)
}

func TestUpdateQuantityOwnership(t *testing.T) {
	store := dbtest.New(t)
	svc := NewService(store)
	ctx := context.Background()
	owner := dbtest.CreateUser(t, store, "owner@petpet.test")
	other := dbtest.CreateUser(t, store, "other@petpet.test")
	pid := dbtest.CreateProduct(t, store, dbtest.Product{Stock: 4})

	item, err := svc.Add(ctx, owner, pid, 1)
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, other, item.ID, 2)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = svc.UpdateQuantity(ctx, owner, item.ID, 5)
	assert.True(t, apperr.IsKind(err, apperr.InsufficientStock))

	item, err = svc.UpdateQuantity(ctx, owner, item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Quantity)
}

func TestRemoveAndClearAreIdempotent(t *testing.T) {
	store := dbtest.New(t)
	svc := NewService(store)
	ctx := context.Background()
	user := dbtest.CreateUser(t, store, "a@petpet.test")
	pid := dbtest.CreateProduct(t, store, dbtest.Product{Stock: 4})
	item, err := svc.Add(ctx, user, pid, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, user, item.ID))
	require.NoError(t, svc.Remove(ctx, user, item.ID))

	_, err = svc.Add(ctx, user, pid, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, user))
	require.NoError(t, svc.Clear(ctx, user))
	assert.Equal(t, 0, dbtest.Count(t, store, "cart_items"))
}

func TestAddHandler(t *testing.T) {
	store := dbtest.New(t)
	h := NewHandlers(NewService(store))
	user := dbtest.CreateUser(t, store, "a@petpet.test")
	dbtest.CreateProduct(t, store, dbtest.Product{Stock: 1})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(body))
		req = req.WithContext(context.WithValue(req.Context(), globals.UserIDKey, user))
		rec := httptest.NewRecorder()
		h.AddToCart(rec, req, nil)
		return rec
	}

	assert.Equal(t, http.StatusOK, send(`{"productId":1,"quantity":1}`).Code)
	rec := send(`{"productId":1,"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Insufficient stock")
	assert.Equal(t, http.StatusBadRequest, send(`{"productId":`).Code)
	assert.Equal(t, http.StatusNotFound, send(`{"productId":42,"quantity":1}`).Code)
}
