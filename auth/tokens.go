package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"petpet/apperr"
	"petpet/db"
	"petpet/middleware"
	"petpet/models"
	"petpet/utils"
)

const refreshTokenBytes = 32

// Session is what a successful register, login or refresh hands back.
type Session struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         models.User `json:"user"`
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Service) accessToken(u *models.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.opts.AccessTTL)
	claims := &middleware.Claims{
		Username: u.Email,
		UserID:   u.ID,
		Role:     u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return tok, exp, nil
}

// issue signs an access token and stores a fresh refresh token for u on c.
func (s *Service) issue(ctx context.Context, c db.Conn, u *models.User) (*Session, error) {
	now := s.now().UTC()
	tok, exp, err := s.accessToken(u, now)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.RandomHex(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	_, err = c.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at, revoked) VALUES (?, ?, ?, ?, ?)`,
		u.ID, hashToken(refresh), now.Add(s.opts.RefreshTTL), now, false)
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Session{Token: tok, RefreshToken: refresh, ExpiresAt: exp, User: *u}, nil
}

// Refresh exchanges a live refresh token for a new session. The presented
// token is revoked, so each refresh token works once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.E(apperr.InvalidArgument, "refreshToken is required")
	}
	invalid := apperr.E(apperr.Unauthorized, "Invalid or expired refresh token", "Token validation failed")

	var sess *Session
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		var id int64
		var userID string
		var expires time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, expires_at FROM refresh_tokens
			 WHERE token_hash = ? AND revoked = ?`+tx.ForUpdate(), hashToken(refreshToken), false).
			Scan(&id, &userID, &expires)
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		if err != nil {
			return fmt.Errorf("find refresh token: %w", err)
		}
		if !expires.After(s.now().UTC()) {
			return invalid
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = ? WHERE id = ? AND revoked = ?`, true, id, false)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return invalid
		}

		u, err := findUser(ctx, tx, "id", userID)
		if err != nil {
			return err
		}
		if u == nil {
			return invalid
		}
		if !u.IsActive {
			return apperr.E(apperr.Unauthorized, "User account is inactive", "Account access denied")
		}
		sess, err = s.issue(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes every live refresh token of userID.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.E(apperr.Unauthorized, "Authentication required")
	}
	_, err := s.store.Conn().ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = ? WHERE user_id = ? AND revoked = ?`, true, userID, false)
	if err != nil {
		return fmt.Errorf("logout %s: %w", userID, err)
	}
	return nil
}

// Revoke marks one refresh token as revoked. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	c := s.store.Conn()
	var id int64
	err := c.QueryRowContext(ctx, `SELECT id FROM refresh_tokens WHERE token_hash = ?`, hashToken(refreshToken)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.E(apperr.NotFound, "Refresh token not found")
	}
	if err != nil {
		return fmt.Errorf("find refresh token: %w", err)
	}
	if _, err := c.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = ? WHERE id = ?`, true, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
