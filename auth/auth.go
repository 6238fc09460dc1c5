package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/middleware"
	"petpet/utils"
)

const refreshCookie = "refreshToken"

type Handlers struct {
	svc *Service
	// secure sets the Secure flag on auth cookies; off for plain-http development.
	secure bool
}

func NewHandlers(svc *Service, secureCookies bool) *Handlers {
	return &Handlers{svc: svc, secure: secureCookies}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handlers) setCookies(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name: middleware.AuthCookie, Value: sess.Token, Path: "/", Expires: sess.ExpiresAt,
		HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshCookie, Value: sess.RefreshToken, Path: "/api/auth", Expires: time.Now().Add(h.svc.opts.RefreshTTL),
		HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearCookies(w http.ResponseWriter) {
	for name, path := range map[string]string{middleware.AuthCookie: "/", refreshCookie: "/api/auth"} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: path, MaxAge: -1, HttpOnly: true, Secure: h.secure})
	}
}

// refreshTokenFrom reads the token from the body, falling back to the cookie.
func refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, error) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			return "", err
		}
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	return req.RefreshToken, nil
}

// POST /api/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in RegisterInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	sess, err := h.svc.Register(ctx, in)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	h.setCookies(w, sess)
	utils.SendResponse(w, http.StatusOK, sess, "User registered successfully")
}

// POST /api/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req loginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	sess, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	h.setCookies(w, sess)
	utils.SendResponse(w, http.StatusOK, sess, "Login successful")
}

// POST /api/auth/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token, err := refreshTokenFrom(w, r)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	sess, err := h.svc.Refresh(ctx, token)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	h.setCookies(w, sess)
	utils.SendResponse(w, http.StatusOK, sess, "Token refreshed successfully")
}

// POST /api/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.svc.Logout(ctx, utils.GetUserIDFromRequest(r)); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	h.clearCookies(w)
	utils.SendResponse(w, http.StatusOK, true, "Logged out successfully")
}

// POST /api/auth/revoke
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token, err := refreshTokenFrom(w, r)
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	if err := h.svc.Revoke(ctx, token); err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, true, "Refresh token revoked successfully")
}

// GET /api/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	u, err := h.svc.Me(ctx, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, r, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, u, "User retrieved successfully")
}
