package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/activity"
	"petpet/apperr"
	"petpet/metrics"
	"petpet/reviews"
	"petpet/utils"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

type Handlers struct {
	svc             *Service
	reviews         *reviews.Service
	audit           activity.Recorder
	metrics         *metrics.Registry
	defaultPageSize int
	maxPageSize     int
}

func NewHandlers(svc *Service, rv *reviews.Service, audit activity.Recorder, reg *metrics.Registry, defaultPageSize, maxPageSize int) *Handlers {
	return &Handlers{
		svc:             svc,
		reviews:         rv,
		audit:           audit,
		metrics:         reg,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

type moderateRequest struct {
	ReviewID int64  `json:"reviewId"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

type bulkModerateRequest struct {
	ReviewIDs []int64 `json:"reviewIds"`
	Action    string  `json:"action"`
	Reason    string  `json:"reason"`
}

// GET /api/admin/dashboard/stats
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	st, err := h.svc.DashboardStats(ctx)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, st, "Dashboard stats retrieved successfully")
}

// GET /api/admin/products/low-stock
func (h *Handlers) LowStock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, err := h.svc.LowStock(ctx)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, items, "Low stock products retrieved successfully")
}

// GET /api/admin/reviews
func (h *Handlers) Reviews(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	f, err := reviews.ParseAdminFilter(r, h.defaultPageSize, h.maxPageSize)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	list, err := h.reviews.AdminList(ctx, f)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, list, "Reviews retrieved successfully")
}

// GET /api/admin/reviews/stats
func (h *Handlers) ReviewStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	st, err := h.reviews.Stats(ctx)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, st, "Review stats retrieved successfully")
}

// GET /api/admin/reviews/:id
func (h *Handlers) Review(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	rv, err := h.reviews.AdminGet(ctx, id)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, rv, "Review retrieved successfully")
}

// POST /api/admin/reviews/moderate
func (h *Handlers) Moderate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req moderateRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if req.ReviewID < 1 {
		utils.RespondWithError(w, r, apperr.E(apperr.InvalidArgument, "reviewId is required"))
		return
	}
	action, err := reviews.ParseAction(req.Action)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if err := h.reviews.Moderate(ctx, utils.GetUserIDFromRequest(r), req.ReviewID, action, req.Reason); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, true, "Review "+done(action)+" successfully")
}

func done(a reviews.Action) string {
	switch a {
	case reviews.ActionApprove:
		return "approved"
	case reviews.ActionReject:
		return "rejected"
	}
	return "deleted"
}

// POST /api/admin/reviews/bulk-moderate
func (h *Handlers) BulkModerate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req bulkModerateRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	action, err := reviews.ParseAction(req.Action)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	n, err := h.reviews.BulkModerate(ctx, utils.GetUserIDFromRequest(r), req.ReviewIDs, action, req.Reason)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, map[string]int64{"affected": n},
		strconv.FormatInt(n, 10)+" reviews "+done(action)+" successfully")
}

// DELETE /api/admin/reviews/:id
func (h *Handlers) DeleteReview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if err := h.reviews.Moderate(ctx, utils.GetUserIDFromRequest(r), id, reviews.ActionDelete, ""); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, true, "Review deleted successfully")
}

// GET /api/admin/activity?limit=
func (h *Handlers) Activity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	limit, err := utils.QueryInt(r, "limit")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	n := defaultActivityLimit
	if limit != nil && *limit > 0 {
		n = min(*limit, maxActivityLimit)
	}
	entries, err := h.audit.Recent(ctx, n)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, entries, "Activity retrieved successfully")
}

// GET /api/admin/metrics
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.SendResponse(w, http.StatusOK, h.metrics.Snapshot(), "Metrics retrieved successfully")
}
