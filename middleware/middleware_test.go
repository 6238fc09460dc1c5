package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpet/apperr"
	"petpet/globals"
	"petpet/utils"
)

func sign(t *testing.T, userID string, roles []string, ttl time.Duration, secret []byte) string {
	t.Helper()
	claims := Claims{
		Username: userID + "@petpet.test",
		UserID:   userID,
		Role:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func whoami(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.SendResponse(w, http.StatusOK, map[string]any{
		"id":    utils.GetUserIDFromRequest(r),
		"admin": utils.IsAdmin(r),
	}, "")
}

func call(h httprouter.Handle, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	return rec
}

func TestAuthenticate(t *testing.T) {
	good := sign(t, "u1", []string{globals.RoleUser}, time.Minute, globals.JwtSecret)

	rec := call(Authenticate(whoami), good)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u1"`)
	assert.Contains(t, rec.Body.String(), `"admin":false`)

	assert.Equal(t, http.StatusUnauthorized, call(Authenticate(whoami), "").Code)

	expired := sign(t, "u1", nil, -time.Minute, globals.JwtSecret)
	assert.Equal(t, http.StatusUnauthorized, call(Authenticate(whoami), expired).Code)

	forged := sign(t, "u1", []string{globals.RoleAdmin}, time.Minute, []byte("other-secret"))
	assert.Equal(t, http.StatusUnauthorized, call(Authenticate(whoami), forged).Code)
}

func TestOptionalAuth(t *testing.T) {
	rec := call(OptionalAuth(whoami), "garbage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":""`)

	rec = call(OptionalAuth(whoami), sign(t, "u2", nil, time.Minute, globals.JwtSecret))
	assert.Contains(t, rec.Body.String(), `"id":"u2"`)
}

func TestAdmin(t *testing.T) {
	user := sign(t, "u1", []string{globals.RoleUser}, time.Minute, globals.JwtSecret)
	admin := sign(t, "a1", []string{globals.RoleUser, globals.RoleAdmin}, time.Minute, globals.JwtSecret)

	assert.Equal(t, http.StatusForbidden, call(Admin(whoami), user).Code)
	rec := call(Admin(whoami), admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin":true`)
}

func TestWebSocketTokenQuery(t *testing.T) {
	tok := sign(t, "u3", nil, time.Minute, globals.JwtSecret)
	req := httptest.NewRequest(http.MethodGet, "/api/orders/live?token="+tok, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()

	Authenticate(whoami)(rec, req, nil)
	assert.Contains(t, rec.Body.String(), `"id":"u3"`)

	// query tokens are ignored on plain requests
	req = httptest.NewRequest(http.MethodGet, "/x?token="+tok, nil)
	rec = httptest.NewRecorder()
	Authenticate(whoami)(rec, req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookie, Value: sign(t, "u4", nil, time.Minute, globals.JwtSecret)})
	rec := httptest.NewRecorder()

	Authenticate(whoami)(rec, req, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u4"`)
}

func TestOwnerOrAdmin(t *testing.T) {
	ctx := WithClaims(context.Background(), &Claims{UserID: "u1", Role: []string{globals.RoleUser}})
	assert.NoError(t, OwnerOrAdmin(ctx, "u1"))
	assert.True(t, apperr.IsKind(OwnerOrAdmin(ctx, "u2"), apperr.Forbidden))

	admin := WithClaims(context.Background(), &Claims{UserID: "a1", Role: []string{globals.RoleAdmin}})
	assert.NoError(t, OwnerOrAdmin(admin, "u2"))

	assert.True(t, apperr.IsKind(OwnerOrAdmin(context.Background(), "u1"), apperr.Unauthorized))
}
