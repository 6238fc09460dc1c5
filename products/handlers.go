package products

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"

	"petpet/apperr"
	"petpet/models"
	"petpet/utils"
)

type Handlers struct {
	svc             *Service
	defaultPageSize int
	maxPageSize     int
	maxUploadBytes  int64
}

func NewHandlers(svc *Service, defaultPageSize, maxPageSize int, maxUploadBytes int64) *Handlers {
	return &Handlers{svc: svc, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize, maxUploadBytes: maxUploadBytes}
}

func parseFilter(r *http.Request, defaultSize, maxSize int) (Filter, error) {
	q := r.URL.Query()
	f := Filter{Brand: q.Get("brand"), SearchTerm: q.Get("searchTerm")}
	f.Page, f.PageSize = utils.ParsePage(r, defaultSize, maxSize)

	for key, dst := range map[string]**decimal.Decimal{"minPrice": &f.MinPrice, "maxPrice": &f.MaxPrice} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return f, apperr.Newf(apperr.InvalidArgument, "Invalid %s", key)
			}
			*dst = &d
		}
	}
	if v := q.Get("section"); v != "" {
		s, err := models.ParseSection(v)
		if err != nil {
			return f, apperr.E(apperr.InvalidArgument, "Invalid section")
		}
		f.Section = &s
	}
	if v := q.Get("category"); v != "" {
		c, err := models.ParseCategory(v)
		if err != nil {
			return f, apperr.E(apperr.InvalidArgument, "Invalid category")
		}
		f.Category = &c
	}
	if v := q.Get("state"); v != "" {
		s, err := models.ParseProductState(v)
		if err != nil {
			return f, apperr.E(apperr.InvalidArgument, "Invalid state")
		}
		f.State = &s
	}
	return f, nil
}

// GET /api/products
func (h *Handlers) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	f, err := parseFilter(r, h.defaultPageSize, h.maxPageSize)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	page, err := h.svc.List(ctx, f)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, page, "Products retrieved successfully")
}

// GET /api/products/:id
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	p, err := h.svc.Get(ctx, id)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, p, "Product retrieved successfully")
}

// POST /api/products
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in Input
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	p, err := h.svc.Create(ctx, utils.GetUserIDFromRequest(r), in)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/products/"+strconv.FormatInt(p.ID, 10))
	utils.SendResponse(w, http.StatusCreated, p, "Product created successfully")
}

// PUT /api/products/:id
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	var in Input
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	p, err := h.svc.Update(ctx, utils.GetUserIDFromRequest(r), id, in)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, p, "Product updated successfully")
}

// DELETE /api/products/:id
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
	utils.SendResponse(w, http.StatusOK, true, "Product deleted successfully")
}

// GET /api/products/low-stock
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

// POST /api/products/:id/images (multipart, field "image")
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	id, err := utils.ParamID(ps, "id")
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		utils.SendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		utils.SendError(w, http.StatusBadRequest, "Missing image file")
		return
	}
	defer file.Close()

	img, err := h.svc.AddImage(ctx, utils.GetUserIDFromRequest(r), id, utils.SanitizeFilename(header.Filename), r.FormValue("altText"), file)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusCreated, img, "Image uploaded successfully")
}
