package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"petpet/apperr"
	"petpet/globals"
	"petpet/utils"
)

// JWT claims
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid token")

// AuthCookie carries the access token for browser clients.
const AuthCookie = "authToken"

// bearerToken pulls the token from the Authorization header, falling back
// to the auth cookie. WebSocket upgrades cannot set headers from the
// browser, so they may also pass ?token=.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h != "" {
		tok, ok := strings.CutPrefix(h, "Bearer ")
		return strings.TrimSpace(tok), ok && strings.TrimSpace(tok) != ""
	}
	if c, err := r.Cookie(AuthCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	if websocket.IsWebSocketUpgrade(r) {
		tok := r.URL.Query().Get("token")
		return tok, tok != ""
	}
	return "", false
}

// ValidateJWT parses a raw (non-prefixed) access token.
func ValidateJWT(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return globals.JwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// WithClaims stores the identity carried by claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, globals.UserIDKey, c.UserID)
	ctx = context.WithValue(ctx, globals.UsernameKey, c.Username)
	return context.WithValue(ctx, globals.RoleKey, c.Role)
}

func Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tokenString, ok := bearerToken(r)
		if !ok {
			utils.SendError(w, http.StatusUnauthorized, "Missing or malformed token")
			return
		}

		claims, err := ValidateJWT(tokenString)
		if err != nil {
			utils.SendError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims)), ps)
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and proceeds either way.
func OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if tokenString, ok := bearerToken(r); ok {
			if claims, err := ValidateJWT(tokenString); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
		}
		next(w, r, ps)
	}
}

// RequireRole must run inside Authenticate.
func RequireRole(role string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if !HasRole(r.Context(), role) {
				utils.SendError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next(w, r, ps)
		}
	}
}

// Admin is Authenticate followed by RequireRole(Admin).
func Admin(next httprouter.Handle) httprouter.Handle {
	return Authenticate(RequireRole(globals.RoleAdmin)(next))
}

func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(globals.RoleKey).([]string)
	return slices.Contains(roles, role)
}

// OwnerOrAdmin is the access policy for per-user resources: the caller must
// own the resource or hold the Admin role.
func OwnerOrAdmin(ctx context.Context, ownerID string) error {
	uid, _ := ctx.Value(globals.UserIDKey).(string)
	if uid == "" {
		return apperr.E(apperr.Unauthorized, "Authentication required")
	}
	if uid == ownerID || HasRole(ctx, globals.RoleAdmin) {
		return nil
	}
	return apperr.E(apperr.Forbidden, "You do not have access to this resource")
}
