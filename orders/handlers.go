package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/apperr"
	"petpet/invoice"
	"petpet/middleware"
	"petpet/models"
	"petpet/utils"
)

type Handlers struct {
	svc             *Service
	invoices        *invoice.Signer
	defaultPageSize int
	maxPageSize     int
}

func NewHandlers(svc *Service, invoices *invoice.Signer, defaultPageSize, maxPageSize int) *Handlers {
	return &Handlers{svc: svc, invoices: invoices, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

type createRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	Notes           string `json:"notes"`
}

// statusRequest accepts the status as a number or as its name.
type statusRequest struct {
	Status json.RawMessage `json:"status"`
}

func (req statusRequest) parse() (models.OrderStatus, error) {
	raw := strings.Trim(strings.TrimSpace(string(req.Status)), `"`)
	if raw == "" {
		return 0, apperr.E(apperr.InvalidArgument, "status is required")
	}
	s, err := models.ParseOrderStatus(raw)
	if err != nil {
		return 0, apperr.E(apperr.InvalidArgument, "Invalid order status", err.Error())
	}
	return s, nil
}

func (h *Handlers) parseFilter(r *http.Request) (models.OrderFilter, error) {
	var f models.OrderFilter
	f.Page, f.PageSize = utils.ParsePage(r, h.defaultPageSize, h.maxPageSize)

	if v := r.URL.Query().Get("status"); v != "" {
		s, err := models.ParseOrderStatus(v)
		if err != nil {
			return f, apperr.E(apperr.InvalidArgument, "Invalid status")
		}
		f.Status = &s
	}
	var err error
	if f.FromDate, err = utils.QueryTime(r, "fromDate"); err != nil {
		return f, err
	}
	if f.ToDate, err = utils.QueryTime(r, "toDate"); err != nil {
		return f, err
	}
	return f, nil
}

// POST /api/orders
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req createRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	order, err := h.svc.CreateOrder(ctx, utils.GetUserIDFromRequest(r), req.ShippingAddress, req.Notes)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(order.ID, 10))
	utils.SendResponse(w, http.StatusCreated, order, "Order created successfully")
}

// GET /api/orders/my-orders
func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	f, err := h.parseFilter(r)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	page, err := h.svc.ListForUser(ctx, utils.GetUserIDFromRequest(r), f)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, page, "Orders retrieved successfully")
}

// GET /api/orders
func (h *Handlers) All(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	f, err := h.parseFilter(r)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	page, err := h.svc.ListAll(ctx, f)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, page, "Orders retrieved successfully")
}

// visible loads the order named by the :id param for its owner or an admin.
func (h *Handlers) visible(ctx context.Context, ps httprouter.Params) (*models.Order, error) {
	id, err := utils.ParamID(ps, "id")
	if err != nil {
		return nil, err
	}
	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := middleware.OwnerOrAdmin(ctx, order.UserID); err != nil {
		return nil, err
	}
	return order, nil
}

// GET /api/orders/:id
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.visible(ctx, ps)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, order, "Order retrieved successfully")
}

// PUT /api/orders/:id/status
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	var req statusRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	status, err := req.parse()
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	order, err := h.svc.UpdateStatus(ctx, utils.GetUserIDFromRequest(r), id, status)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, order, "Order status updated successfully")
}

// GET /api/orders/:id/invoice
func (h *Handlers) Invoice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.visible(ctx, ps)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	pdf, err := h.invoices.Render(order)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=invoice-"+order.OrderNumber+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
