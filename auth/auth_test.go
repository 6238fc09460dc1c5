package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"petpet/apperr"
	"petpet/db/dbtest"
	"petpet/globals"
	"petpet/middleware"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(dbtest.New(t), Options{
		Secret:     globals.JwtSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		HashCost:   bcrypt.MinCost,
	})
}

func register(t *testing.T, s *Service, email string) *Session {
	t.Helper()
	sess, err := s.Register(context.Background(), RegisterInput{
		Email: email, Password: "Secret1", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)
	return sess
}

func TestPasswordRules(t *testing.T) {
	tests := []struct {
		password string
		problems int
	}{
		{"Secret1", 0},
		{"Sec1", 1},
		{"secret1", 1},
		{"SECRET1", 1},
		{"Secrets", 1},
		{"abc", 3},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Len(t, passwordProblems(tt.password), tt.problems)
		})
	}
}

func TestRegister(t *testing.T) {
	s := newService(t)
	sess := register(t, s, " Ada@PetPet.test ")

	assert.Equal(t, "ada@petpet.test", sess.User.Email)
	assert.Equal(t, []string{globals.RoleUser}, sess.User.Roles)
	assert.Len(t, sess.RefreshToken, 2*refreshTokenBytes)

	claims, err := middleware.ValidateJWT(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)
	assert.Equal(t, "ada@petpet.test", claims.Username)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Minute)

	_, err = s.Register(context.Background(), RegisterInput{Email: "ada@petpet.test", Password: "Secret1"})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = s.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "weak"})
	require.True(t, apperr.IsKind(err, apperr.InvalidArgument))
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Details, 4)
}

func TestLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	reg := register(t, s, "ada@petpet.test")

	sess, err := s.Login(ctx, "ADA@petpet.test", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.User.ID)
	assert.NotNil(t, sess.User.LastLoginAt)

	for _, tc := range []struct{ email, password string }{
		{"ada@petpet.test", "Wrong1"},
		{"nobody@petpet.test", "Secret1"},
		{"", ""},
	} {
		_, err := s.Login(ctx, tc.email, tc.password)
		assert.True(t, apperr.IsKind(err, apperr.Unauthorized), tc.email)
	}

	_, err = s.store.Conn().ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, false, reg.User.ID)
	require.NoError(t, err)
	_, err = s.Login(ctx, "ada@petpet.test", "Secret1")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
}

func TestRefreshRotates(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	first := register(t, s, "ada@petpet.test")

	second, err := s.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = s.Refresh(ctx, first.RefreshToken)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized), "a used token is dead")

	_, err = s.Refresh(ctx, "unknown")
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	s.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = s.Refresh(ctx, second.RefreshToken)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized), "expired")
}

func TestLogoutAndRevoke(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	a := register(t, s, "ada@petpet.test")
	b, err := s.Login(ctx, "ada@petpet.test", "Secret1")
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, a.User.ID))
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		_, err := s.Refresh(ctx, tok)
		assert.True(t, apperr.IsKind(err, apperr.Unauthorized))
	}

	c, err := s.Login(ctx, "ada@petpet.test", "Secret1")
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, c.RefreshToken))
	require.NoError(t, s.Revoke(ctx, c.RefreshToken))
	_, err = s.Refresh(ctx, c.RefreshToken)
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	assert.True(t, apperr.IsKind(s.Revoke(ctx, "unknown"), apperr.NotFound))
}

func TestSeedAdmin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.SeedAdmin(ctx, "admin@petpet.com", "Admin123"))
	require.NoError(t, s.SeedAdmin(ctx, "admin@petpet.com", "Admin123"))
	assert.Equal(t, 1, dbtest.Count(t, s.store, "users"))

	sess, err := s.Login(ctx, "admin@petpet.com", "Admin123")
	require.NoError(t, err)
	assert.True(t, sess.User.HasRole(globals.RoleAdmin))

	assert.Error(t, s.SeedAdmin(ctx, "other@petpet.com", "weak"))
	assert.NoError(t, s.SeedAdmin(ctx, "", ""))
}

func TestLoginHandlerSetsCookies(t *testing.T) {
	s := newService(t)
	h := NewHandlers(s, true)
	register(t, s, "ada@petpet.test")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ada@petpet.test","password":"Secret1"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, middleware.AuthCookie)
	require.Contains(t, cookies, refreshCookie)
	assert.True(t, cookies[middleware.AuthCookie].HttpOnly)

	// refresh straight from the cookie
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(cookies[refreshCookie])
	rec = httptest.NewRecorder()
	h.Refresh(rec, req, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ada@petpet.test","password":"nope"}`))
	rec = httptest.NewRecorder()
	h.Login(rec, req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
}

func TestMeHandler(t *testing.T) {
	s := newService(t)
	sess := register(t, s, "ada@petpet.test")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	middleware.Authenticate(NewHandlers(s, false).Me)(rec, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ada@petpet.test"`)
	assert.NotContains(t, rec.Body.String(), "Secret1")
}

func TestAccessTokenUsesHS256(t *testing.T) {
	s := newService(t)
	sess := register(t, s, "ada@petpet.test")
	tok, _, err := jwt.NewParser().ParseUnverified(sess.Token, &middleware.Claims{})
	require.NoError(t, err)
	assert.Equal(t, "HS256", tok.Method.Alg())
}
