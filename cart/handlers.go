package cart

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/utils"
)

type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

type addRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// GET /api/cart
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sum, err := h.svc.Get(ctx, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, sum, "Cart retrieved successfully")
}

// POST /api/cart/items
func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req addRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	item, err := h.svc.Add(ctx, utils.GetUserIDFromRequest(r), req.ProductID, req.Quantity)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, item, "Product added to cart successfully")
}

// PUT /api/cart/items/:id
func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	var req quantityRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	item, err := h.svc.UpdateQuantity(ctx, utils.GetUserIDFromRequest(r), id, req.Quantity)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, item, "Cart item updated successfully")
}

// DELETE /api/cart/items/:id
func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if err := h.svc.Remove(ctx, utils.GetUserIDFromRequest(r), id); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, true, "Item removed from cart successfully")
}

// DELETE /api/cart
func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.svc.Clear(ctx, utils.GetUserIDFromRequest(r)); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, true, "Cart cleared successfully")
}
