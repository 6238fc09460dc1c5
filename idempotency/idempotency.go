// Package idempotency replays the stored response of a mutating request when
// a client retries it with the same Idempotency-Key header.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/db"
	"petpet/utils"
)

const (
	Header     = "Idempotency-Key"
	DefaultTTL = 24 * time.Hour
	maxKeyLen  = 255
)

type Middleware struct {
	store *db.Store
	ttl   time.Duration
	now   func() time.Time
}

func New(store *db.Store, ttl time.Duration) *Middleware {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Middleware{store: store, ttl: ttl, now: time.Now}
}

func requestHash(r *http.Request, body []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(r.Method + ":" + r.URL.Path + ":" + userID + ":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// captureWriter tees the response so it can be stored after the handler ran.
type captureWriter struct {
	http.ResponseWriter
	status      int
	buf         bytes.Buffer
	wroteHeader bool
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
		c.ResponseWriter.WriteHeader(code)
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

type record struct {
	hash     string
	status   sql.NullInt64
	body     sql.NullString
	location sql.NullString
}

// Wrap guards next. Without the header the request passes straight through.
// The first request with a key runs and its response is stored; repeats with
// the same body get that response back, a different body is a 409, and a
// repeat that arrives while the first is still running is a 409 too.
func (m *Middleware) Wrap(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		key := r.Header.Get(Header)
		if key == "" {
			next(w, r, ps)
			return
		}
		if len(key) > maxKeyLen {
			utils.SendError(w, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			utils.SendError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		userID := utils.GetUserIDFromRequest(r)
		hash := requestHash(r, body, userID)

		fresh, err := m.claim(ctx, key, userID, r, hash)
		if err != nil {
			slog.Error("idempotency claim failed", "key", key, "error", err)
			utils.SendError(w, http.StatusInternalServerError, "An internal error occurred")
			return
		}
		if fresh {
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next(cw, r, ps)
			m.finish(context.WithoutCancel(ctx), key, cw)
			return
		}

		rec, err := m.load(ctx, key)
		if err != nil {
			slog.Error("idempotency lookup failed", "key", key, "error", err)
			utils.SendError(w, http.StatusInternalServerError, "An internal error occurred")
			return
		}
		switch {
		case rec == nil:
			utils.SendError(w, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
		case rec.hash != hash:
			utils.SendError(w, http.StatusConflict, "Idempotency-Key was already used with a different request")
		case !rec.status.Valid:
			utils.SendError(w, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			if rec.location.String != "" {
				w.Header().Set("Location", rec.location.String)
			}
			w.WriteHeader(int(rec.status.Int64))
			io.WriteString(w, rec.body.String)
		}
	}
}

// claim inserts the placeholder row for key, clearing an expired one first.
// It reports false when a live row already exists.
func (m *Middleware) claim(ctx context.Context, key, userID string, r *http.Request, hash string) (bool, error) {
	c := m.store.Conn()
	now := m.now().UTC()

	if _, err := c.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE idem_key = ? AND expires_at < ?`, key, now); err != nil {
		return false, fmt.Errorf("clear expired key: %w", err)
	}

	_, err := c.ExecContext(ctx,
		`INSERT INTO idempotency_keys (idem_key, user_id, method, path, request_hash, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, userID, r.Method, r.URL.Path, hash, now, now.Add(m.ttl))
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, fmt.Errorf("insert key: %w", err)
}

func (m *Middleware) load(ctx context.Context, key string) (*record, error) {
	var rec record
	err := m.store.Conn().QueryRowContext(ctx,
		`SELECT request_hash, status_code, response_body, response_location FROM idempotency_keys WHERE idem_key = ?`, key).
		Scan(&rec.hash, &rec.status, &rec.body, &rec.location)
	if errors.Is(err, sql.ErrNoRows) {
		// released or swept between claim and load
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// finish stores the captured response with its Location header. Server errors
// release the key so the client can retry.
func (m *Middleware) finish(ctx context.Context, key string, cw *captureWriter) {
	c := m.store.Conn()
	var err error
	if cw.status >= http.StatusInternalServerError {
		_, err = c.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE idem_key = ?`, key)
	} else {
		loc := cw.Header().Get("Location")
		_, err = c.ExecContext(ctx,
			`UPDATE idempotency_keys SET status_code = ?, response_body = ?, response_location = ? WHERE idem_key = ?`,
			cw.status, cw.buf.String(), sql.NullString{String: loc, Valid: loc != ""}, key)
	}
	if err != nil {
		slog.Error("idempotency store failed", "key", key, "error", err)
	}
}

// Sweep deletes expired keys.
func (m *Middleware) Sweep(ctx context.Context) (int64, error) {
	res, err := m.store.Conn().ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < ?`, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency keys: %w", err)
	}
	return res.RowsAffected()
}

// Run sweeps every interval until ctx is done.
func (m *Middleware) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.Sweep(ctx); err != nil {
				slog.Error("idempotency sweep failed", "error", err)
			} else if n > 0 {
				slog.Debug("idempotency keys swept", "count", n)
			}
		}
	}
}
