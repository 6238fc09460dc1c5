package products

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpet/activity"
	"petpet/apperr"
	"petpet/db"
	"petpet/db/dbtest"
	"petpet/filemgr"
	"petpet/models"
	"petpet/mq"
)

type fixture struct {
	store  *db.Store
	svc    *Service
	audit  *activity.Memory
	events []mq.Event
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{store: dbtest.New(t), audit: &activity.Memory{}}
	bus := mq.NewLocal()
	bus.Subscribe(func(_ context.Context, ev mq.Event) { f.events = append(f.events, ev) })
	f.svc = NewService(f.store, bus, f.audit, filemgr.New(t.TempDir(), "/uploads", 0))
	return f
}

func intp(v int) *int { return &v }

func validInput() Input {
	return Input{
		Name:          "Salmon Kibble",
		Description:   "Grain free",
		Price:         decimal.RequireFromString("24.50"),
		Brand:         "Purrfect",
		StockQuantity: 40,
		Section:       models.SectionCats,
		Category:      models.CategoryFood,
	}
}

func TestCreateDefaultsAndImages(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Images = []ImageInput{{ImageURL: "/a.png"}, {ImageURL: "/b.png", DisplayOrder: 5}}

	p, err := f.svc.Create(context.Background(), "admin-1", in)
	require.NoError(t, err)

	assert.True(t, p.Price.Equal(decimal.RequireFromString("24.5")))
	assert.Equal(t, 10, p.LowStockThreshold)
	assert.Equal(t, models.StateInStock, p.State)
	assert.False(t, p.OriginalPrice.Valid)
	require.Len(t, p.Images, 2)
	assert.Equal(t, "/a.png", p.Images[0].ImageURL)
	assert.Equal(t, 1, p.Images[0].DisplayOrder)
	assert.True(t, p.Images[0].IsPrimary)
	assert.Equal(t, "Salmon Kibble", p.Images[0].AltText)
	assert.Equal(t, 5, p.Images[1].DisplayOrder)
	assert.False(t, p.Images[1].IsPrimary)

	assert.Equal(t, []string{"product.create"}, f.audit.Actions())
	require.Len(t, f.events, 1)
	assert.Equal(t, mq.ProductCreated, f.events[0].Name)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Name = "  "
	in.Price = decimal.Zero
	in.StockQuantity = -1
	in.Category = 9

	_, err := f.svc.Create(context.Background(), "admin-1", in)
	require.Error(t, err)
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.InvalidArgument, e.Kind)
	assert.Len(t, e.Details, 4)
	assert.Equal(t, 0, dbtest.Count(t, f.store, "products"))
}

func TestListFiltersAndPagination(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		dbtest.CreateProduct(t, f.store, dbtest.Product{
			Name: "Rope Toy", Brand: "Knotty", Price: "5.00", Stock: 3,
			Section: 2, Category: 1, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	catFood := dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Tuna Pate", Brand: "Whiskas", Price: "2.25", Section: 1, Category: 2, ImageURL: "/tuna.png"})
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Old Tuna", Brand: "Whiskas", Price: "2.00", Section: 1, Category: 2, Inactive: true})

	ctx := context.Background()
	dogs := models.SectionDogs
	page, err := f.svc.List(ctx, Filter{Section: &dogs, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.True(t, page.HasPreviousPage)

	page, err = f.svc.List(ctx, Filter{SearchTerm: "TUNA", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, catFood, page.Items[0].ID)
	assert.Equal(t, "/tuna.png", page.Items[0].PrimaryImageURL())

	minPrice := decimal.RequireFromString("3")
	page, err = f.svc.List(ctx, Filter{MinPrice: &minPrice, Brand: "knot", Page: 1, PageSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalCount)

	maxPrice := decimal.RequireFromString("2.5")
	page, err = f.svc.List(ctx, Filter{MaxPrice: &maxPrice, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := validInput()
	in.Images = []ImageInput{{ImageURL: "/old.png"}}
	p, err := f.svc.Create(ctx, "admin-1", in)
	require.NoError(t, err)

	in.Name = "Salmon Kibble XL"
	in.OriginalPrice = decimal.NewNullDecimal(decimal.RequireFromString("30"))
	in.LowStockThreshold = intp(3)
	in.Images = []ImageInput{{ImageURL: "/new1.png"}, {ImageURL: "/new2.png", IsPrimary: true}}
	updated, err := f.svc.Update(ctx, "admin-1", p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Salmon Kibble XL", updated.Name)
	assert.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.OriginalPrice.Valid)
	require.Len(t, updated.Images, 2)
	assert.False(t, updated.Images[0].IsPrimary)
	assert.True(t, updated.Images[1].IsPrimary)

	// no images in the body keeps the current set
	in.Images = nil
	updated, err = f.svc.Update(ctx, "admin-1", p.ID, in)
	require.NoError(t, err)
	assert.Len(t, updated.Images, 2)

	require.NoError(t, f.svc.Delete(ctx, "admin-1", p.ID))
	_, err = f.svc.Get(ctx, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
	assert.True(t, apperr.IsKind(f.svc.Delete(ctx, "admin-1", p.ID), apperr.NotFound))
	_, err = f.svc.Update(ctx, "admin-1", p.ID, in)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	assert.Equal(t, []string{"product.create", "product.update", "product.update", "product.delete"}, f.audit.Actions())
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "plenty", Stock: 50})
	two := dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "two", Stock: 2})
	edge := dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "edge", Stock: 10})
	zero := dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "zero", Stock: 0})
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "gone", Stock: 0, Inactive: true})

	items, err := f.svc.LowStock(context.Background())
	require.NoError(t, err)
	ids := make([]int64, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	assert.Equal(t, []int64{zero, two, edge}, ids)
}

func TestUploadImageHandler(t *testing.T) {
	f := newFixture(t)
	id := dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Scratcher", ImageURL: "/first.png"})
	h := NewHandlers(f.svc, 10, 100, 5<<20)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 300, 300))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "scratcher.png")
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products/1/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.UploadImage(rec, req, httprouter.Params{{Key: "id", Value: itoa(id)}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, p.Images, 2)
	assert.Equal(t, 2, p.Images[1].DisplayOrder)
	assert.False(t, p.Images[1].IsPrimary)
	assert.Equal(t, "Scratcher", p.Images[1].AltText)
}

func TestListHandlerRejectsBadFilter(t *testing.T) {
	f := newFixture(t)
	h := NewHandlers(f.svc, 10, 100, 1<<20)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/products?section=Birds", nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "Cat Nip", Section: 1})
	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/products?section=cats", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data models.Paged[models.Product] `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, "Cat Nip", env.Data.Items[0].Name)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestSeedCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.SeedCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21, n)
	assert.Equal(t, 21, dbtest.Count(t, f.store, "products"))
	assert.Equal(t, 21, dbtest.Count(t, f.store, "product_images"))

	page, err := f.svc.List(ctx, Filter{Page: 1, PageSize: 50, SearchTerm: "orthopedic"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	bed := page.Items[0]
	assert.Equal(t, "ComfortPaw", bed.Brand)
	assert.True(t, decimal.RequireFromString("49.99").Equal(bed.Price))
	require.True(t, bed.OriginalPrice.Valid)
	assert.True(t, decimal.RequireFromString("59.99").Equal(bed.OriginalPrice.Decimal))
	assert.Equal(t, models.SectionCats, bed.Section)
	assert.Equal(t, models.CategoryAccessories, bed.Category)

	low, err := f.svc.LowStock(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, low)
	assert.Equal(t, "Cat Litter Premium", low[0].Name)

	again, err := f.svc.SeedCatalog(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Equal(t, 21, dbtest.Count(t, f.store, "products"))
}

func TestSeedCatalogSkipsNonEmptyTable(t *testing.T) {
	f := newFixture(t)
	dbtest.CreateProduct(t, f.store, dbtest.Product{Name: "retired", Inactive: true})

	n, err := f.svc.SeedCatalog(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, dbtest.Count(t, f.store, "products"))
}
