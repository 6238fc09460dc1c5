package reviews

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/apperr"
	"petpet/models"
	"petpet/utils"
)

type Handlers struct {
	svc             *Service
	defaultPageSize int
	maxPageSize     int
}

func NewHandlers(svc *Service, defaultPageSize, maxPageSize int) *Handlers {
	return &Handlers{svc: svc, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

type voteRequest struct {
	ReviewID  int64 `json:"reviewId"`
	IsHelpful *bool `json:"isHelpful"`
}

// POST /api/reviews
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in CreateInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	rv, err := h.svc.Create(ctx, utils.GetUserIDFromRequest(r), in)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/reviews/"+strconv.FormatInt(rv.ID, 10))
	utils.SendResponse(w, http.StatusCreated, rv, "Review created successfully")
}

// PUT /api/reviews/:id
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	var in UpdateInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	rv, err := h.svc.Update(ctx, utils.GetUserIDFromRequest(r), id, in)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, rv, "Review updated successfully")
}

// DELETE /api/reviews/:id
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if err := h.svc.Delete(ctx, utils.GetUserIDFromRequest(r), id); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, true, "Review deleted successfully")
}

// GET /api/reviews/:id
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	rv, err := h.svc.Get(ctx, id, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, rv, "Review retrieved successfully")
}

// GET /api/reviews/product/:productId
func (h *Handlers) ForProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID, err := utils.ParamID(ps, "productId")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	page, size := utils.ParsePage(r, h.defaultPageSize, h.maxPageSize)
	list, err := h.svc.ListForProduct(ctx, productID, page, size, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, list, "Reviews retrieved successfully")
}

// GET /api/reviews/product/:productId/summary
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID, err := utils.ParamID(ps, "productId")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	sum, err := h.svc.Summary(ctx, productID)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, sum, "Review summary retrieved successfully")
}

// GET /api/reviews/user/:userId
func (h *Handlers) ForUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := strings.TrimSpace(ps.ByName("userId"))
	if userID == "" {
		utils.RespondWithError(w, r, apperr.E(apperr.InvalidArgument, "Invalid userId"))
		return
	}
	page, size := utils.ParsePage(r, h.defaultPageSize, h.maxPageSize)
	list, err := h.svc.ListForUser(ctx, userID, page, size, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, list, "Reviews retrieved successfully")
}

// GET /api/reviews/my
func (h *Handlers) Mine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	page, size := utils.ParsePage(r, h.defaultPageSize, h.maxPageSize)
	list, err := h.svc.ListMine(ctx, utils.GetUserIDFromRequest(r), page, size)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, list, "Reviews retrieved successfully")
}

// POST /api/reviews/helpfulness
func (h *Handlers) Vote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req voteRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if req.ReviewID < 1 || req.IsHelpful == nil {
		utils.RespondWithError(w, r, apperr.E(apperr.InvalidArgument, "reviewId and isHelpful are required"))
		return
	}
	rv, err := h.svc.Vote(ctx, utils.GetUserIDFromRequest(r), req.ReviewID, *req.IsHelpful)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, rv, "Vote recorded successfully")
}

// GET /api/reviews/can-review?productId=&orderId=
func (h *Handlers) CanReview(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID, err := utils.QueryInt64(r, "productId")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	orderID, err := utils.QueryInt64(r, "orderId")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if productID == nil || orderID == nil {
		utils.RespondWithError(w, r, apperr.E(apperr.InvalidArgument, "productId and orderId are required"))
		return
	}
	ok, err := h.svc.CanReview(ctx, utils.GetUserIDFromRequest(r), *productID, *orderID)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, map[string]bool{"canReview": ok}, "Eligibility checked")
}

// ParseAdminFilter reads the moderation list query string.
func ParseAdminFilter(r *http.Request, defaultSize, maxSize int) (models.AdminReviewFilter, error) {
	q := r.URL.Query()
	f := models.AdminReviewFilter{
		SearchTerm:    q.Get("searchTerm"),
		UserID:        strings.TrimSpace(q.Get("userId")),
		SortBy:        q.Get("sortBy"),
		SortDirection: q.Get("sortDirection"),
	}
	f.Page, f.PageSize = utils.ParsePage(r, defaultSize, maxSize)

	var err error
	if f.ProductID, err = utils.QueryInt64(r, "productId"); err != nil {
		return f, err
	}
	if f.IsApproved, err = utils.QueryBool(r, "isApproved"); err != nil {
		return f, err
	}
	if f.MinRating, err = utils.QueryInt(r, "minRating"); err != nil {
		return f, err
	}
	if f.MaxRating, err = utils.QueryInt(r, "maxRating"); err != nil {
		return f, err
	}
	if f.FromDate, err = utils.QueryTime(r, "fromDate"); err != nil {
		return f, err
	}
	if f.ToDate, err = utils.QueryTime(r, "toDate"); err != nil {
		return f, err
	}
	return f, nil
}
