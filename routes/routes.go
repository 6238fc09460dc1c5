package routes

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"petpet/admin"
	"petpet/auth"
	"petpet/cart"
	"petpet/idempotency"
	"petpet/middleware"
	"petpet/orders"
	"petpet/products"
	"petpet/reviews"
)

func AddStaticRoutes(router *httprouter.Router, urlPrefix, dir string) {
	router.ServeFiles(strings.TrimSuffix(urlPrefix, "/")+"/*filepath", http.Dir(dir))
}

func AddAuthRoutes(a api, h *auth.Handlers) {
	a.handle(http.MethodPost, "/api/auth/register", a.limited(h.Register))
	a.handle(http.MethodPost, "/api/auth/login", a.limited(h.Login))
	a.handle(http.MethodPost, "/api/auth/refresh", a.limited(h.Refresh))
	a.handle(http.MethodPost, "/api/auth/revoke", a.limited(h.Revoke))
	a.handle(http.MethodPost, "/api/auth/logout", middleware.Authenticate(h.Logout))
	a.handle(http.MethodGet, "/api/auth/me", middleware.Authenticate(h.Me))
}

func AddProductRoutes(a api, h *products.Handlers) {
	a.handle(http.MethodGet, "/api/products", h.List)
	a.handle(http.MethodGet, "/api/products/:id", byParam("id", h.Get, map[string]httprouter.Handle{
		"low-stock": middleware.Admin(h.LowStock),
	}))
	a.handle(http.MethodPost, "/api/products", a.limited(middleware.Admin(h.Create)))
	a.handle(http.MethodPut, "/api/products/:id", a.limited(middleware.Admin(h.Update)))
	a.handle(http.MethodDelete, "/api/products/:id", a.limited(middleware.Admin(h.Delete)))
	a.handle(http.MethodPost, "/api/products/:id/images", a.limited(middleware.Admin(h.UploadImage)))
}

func AddCartRoutes(a api, h *cart.Handlers) {
	a.handle(http.MethodGet, "/api/cart", middleware.Authenticate(h.GetCart))
	a.handle(http.MethodDelete, "/api/cart", middleware.Authenticate(h.ClearCart))
	a.handle(http.MethodPost, "/api/cart/items", a.limited(middleware.Authenticate(h.AddToCart)))
	a.handle(http.MethodPut, "/api/cart/items/:id", a.limited(middleware.Authenticate(h.UpdateCartItem)))
	a.handle(http.MethodDelete, "/api/cart/items/:id", middleware.Authenticate(h.RemoveFromCart))
}

// AddOrderRoutes registers checkout and order queries. live is the
// WebSocket endpoint pushing the caller's order updates; nil disables it.
func AddOrderRoutes(a api, h *orders.Handlers, idem *idempotency.Middleware, live httprouter.Handle) {
	create := h.Create
	if idem != nil {
		create = idem.Wrap(create)
	}
	a.handle(http.MethodPost, "/api/orders", a.limited(middleware.Authenticate(create)))
	a.handle(http.MethodGet, "/api/orders", middleware.Admin(h.All))

	static := map[string]httprouter.Handle{
		"my-orders": middleware.Authenticate(h.MyOrders),
	}
	if live != nil {
		static["live"] = middleware.Authenticate(live)
	}
	a.handle(http.MethodGet, "/api/orders/:id", byParam("id", middleware.Authenticate(h.Get), static))
	a.handle(http.MethodPut, "/api/orders/:id/status", middleware.Admin(h.UpdateStatus))
	a.handle(http.MethodGet, "/api/orders/:id/invoice", middleware.Authenticate(h.Invoice))
}

func AddReviewsRoutes(a api, h *reviews.Handlers) {
	a.handle(http.MethodPost, "/api/reviews", a.limited(middleware.Authenticate(h.Create)))
	a.handle(http.MethodPost, "/api/reviews/helpfulness", a.limited(middleware.Authenticate(h.Vote)))
	a.handle(http.MethodPut, "/api/reviews/:id", a.limited(middleware.Authenticate(h.Update)))
	a.handle(http.MethodDelete, "/api/reviews/:id", middleware.Authenticate(h.Delete))

	a.handle(http.MethodGet, "/api/reviews/:id", byParam("id", middleware.OptionalAuth(h.Get), map[string]httprouter.Handle{
		"my":         middleware.Authenticate(h.Mine),
		"can-review": middleware.Authenticate(h.CanReview),
	}))
	// /api/reviews/product/:productId and /api/reviews/user/:userId
	a.handle(http.MethodGet, "/api/reviews/:id/:key", byParam("id", nil, map[string]httprouter.Handle{
		"product": alias("key", "productId", middleware.OptionalAuth(h.ForProduct)),
		"user":    alias("key", "userId", middleware.OptionalAuth(h.ForUser)),
	}))
	a.handle(http.MethodGet, "/api/reviews/:id/:key/summary", byParam("id", nil, map[string]httprouter.Handle{
		"product": alias("key", "productId", h.Summary),
	}))
}

func AddAdminRoutes(a api, h *admin.Handlers) {
	a.handle(http.MethodGet, "/api/admin/dashboard/stats", middleware.Admin(h.Dashboard))
	a.handle(http.MethodGet, "/api/admin/products/low-stock", middleware.Admin(h.LowStock))
	a.handle(http.MethodGet, "/api/admin/activity", middleware.Admin(h.Activity))
	a.handle(http.MethodGet, "/api/admin/metrics", middleware.Admin(h.Metrics))

	a.handle(http.MethodGet, "/api/admin/reviews", middleware.Admin(h.Reviews))
	a.handle(http.MethodGet, "/api/admin/reviews/:id", middleware.Admin(byParam("id", h.Review, map[string]httprouter.Handle{
		"stats": h.ReviewStats,
	})))
	a.handle(http.MethodPost, "/api/admin/reviews/moderate", middleware.Admin(h.Moderate))
	a.handle(http.MethodPost, "/api/admin/reviews/moderate/bulk", middleware.Admin(h.BulkModerate))
	a.handle(http.MethodPost, "/api/admin/reviews/bulk-moderate", middleware.Admin(h.BulkModerate))
	a.handle(http.MethodDelete, "/api/admin/reviews/:id", middleware.Admin(h.DeleteReview))
}
