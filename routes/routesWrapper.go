package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"petpet/admin"
	"petpet/auth"
	"petpet/cart"
	"petpet/idempotency"
	"petpet/metrics"
	"petpet/orders"
	"petpet/products"
	"petpet/ratelim"
	"petpet/reviews"
	"petpet/utils"
)

// Deps carries everything the routes hand requests to.
type Deps struct {
	Products    *products.Handlers
	Cart        *cart.Handlers
	Orders      *orders.Handlers
	Reviews     *reviews.Handlers
	Admin       *admin.Handlers
	Auth        *auth.Handlers
	Live        httprouter.Handle
	Idempotency *idempotency.Middleware
	Limiter     *ratelim.RateLimiter
	Metrics     *metrics.Registry
	UploadDir   string
	UploadURL   string
}

// api registers handlers, timing each one under its route pattern.
type api struct {
	router  *httprouter.Router
	metrics *metrics.Registry
	limiter *ratelim.RateLimiter
}

func (a api) handle(method, path string, h httprouter.Handle) {
	if a.metrics != nil {
		h = a.metrics.Wrap(method, path, h)
	}
	a.router.Handle(method, path, h)
}

// limited applies the per-client rate limit when one is configured.
func (a api) limited(h httprouter.Handle) httprouter.Handle {
	if a.limiter == nil {
		return h
	}
	return a.limiter.Limit(h)
}

func Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.SendResponse(w, http.StatusOK, "ok", "healthy")
}

// RoutesWrapper builds the router serving the whole API.
func RoutesWrapper(d Deps) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.SendError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.SendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	a := api{router: router, metrics: d.Metrics, limiter: d.Limiter}
	a.handle(http.MethodGet, "/health", Health)

	AddAuthRoutes(a, d.Auth)
	AddProductRoutes(a, d.Products)
	AddCartRoutes(a, d.Cart)
	AddOrderRoutes(a, d.Orders, d.Idempotency, d.Live)
	AddReviewsRoutes(a, d.Reviews)
	AddAdminRoutes(a, d.Admin)
	if d.UploadDir != "" {
		AddStaticRoutes(router, d.UploadURL, d.UploadDir)
	}
	return router
}
