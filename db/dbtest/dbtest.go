// Package dbtest provides migrated in-memory stores and row fixtures for
// package tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"petpet/db"
)

// New returns a fresh, fully migrated in-memory SQLite store that is closed
// when the test ends.
func New(t testing.TB) *db.Store {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(ctx, "sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

// CreateUser inserts an active user and returns its id. The password hash is
// not a valid bcrypt hash; auth tests register users through the service.
func CreateUser(t testing.TB, s *db.Store, email string, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"User"}
	}
	roleList := roles[0]
	for _, r := range roles[1:] {
		roleList += "," + r
	}

	id := uuid.NewString()
	_, err := s.Conn().ExecContext(context.Background(),
		`INSERT INTO users (id, email, password_hash, first_name, last_name, roles, is_active, created_at)
		 VALUES (?, ?, 'x', 'Test', 'User', ?, ?, ?)`,
		id, email, roleList, true, time.Now().UTC())
	require.NoError(t, err)
	return id
}

type Product struct {
	Name      string
	Brand     string
	Price     string
	Stock     int
	Threshold int
	Section   int
	Category  int
	Inactive  bool
	CreatedAt time.Time
	ImageURL  string
}

// CreateProduct inserts a product row (and a primary image when ImageURL is
// set) filling unset fields with sensible defaults.
func CreateProduct(t testing.TB, s *db.Store, p Product) int64 {
	t.Helper()
	if p.Name == "" {
		p.Name = "Chew Toy"
	}
	if p.Price == "" {
		p.Price = "9.99"
	}
	if p.Threshold == 0 {
		p.Threshold = 10
	}
	if p.Section == 0 {
		p.Section = 2
	}
	if p.Category == 0 {
		p.Category = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	ctx := context.Background()
	c := s.Conn()
	id, err := c.InsertID(ctx,
		`INSERT INTO products (name, description, price, brand, stock_quantity, low_stock_threshold,
		 section, category, state, is_active, created_at)
		 VALUES (?, '', ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		p.Name, p.Price, p.Brand, p.Stock, p.Threshold, p.Section, p.Category, !p.Inactive, p.CreatedAt)
	require.NoError(t, err)

	if p.ImageURL != "" {
		_, err := c.ExecContext(ctx,
			`INSERT INTO product_images (product_id, image_url, alt_text, display_order, is_primary)
			 VALUES (?, ?, ?, 1, ?)`, id, p.ImageURL, p.Name, true)
		require.NoError(t, err)
	}
	return id
}

// CreateOrder inserts an order with a single line for productID at the
// given unit price, bypassing checkout.
func CreateOrder(t testing.TB, s *db.Store, userID string, productID int64, qty int, unitPrice string, status int) int64 {
	t.Helper()
	ctx := context.Background()
	c := s.Conn()

	id, err := c.InsertID(ctx,
		`INSERT INTO orders (user_id, order_number, total_amount, status, shipping_address, notes, created_at)
		 VALUES (?, ?, ?, ?, '1 Test Lane', '', ?)`,
		userID, "ORD-TEST-"+uuid.NewString()[:8], unitPrice, status, time.Now().UTC())
	require.NoError(t, err)

	_, err = c.ExecContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price) VALUES (?, ?, ?, ?, ?)`,
		id, productID, qty, unitPrice, unitPrice)
	require.NoError(t, err)
	return id
}

func Stock(t testing.TB, s *db.Store, productID int64) int {
	t.Helper()
	var n int
	require.NoError(t, s.Conn().QueryRowContext(context.Background(),
		`SELECT stock_quantity FROM products WHERE id = ?`, productID).Scan(&n))
	return n
}

func Count(t testing.TB, s *db.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.Conn().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
