package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"petpet/apperr"
	"petpet/db"
	"petpet/models"
)

type Service struct {
	store *db.Store
}

func NewService(store *db.Store) *Service {
	return &Service{store: store}
}

var itemQuery = `SELECT ci.id, ci.product_id, p.name, ` + db.PrimaryImageURL("p.id") + `, p.price,
	ci.quantity, p.is_active, p.stock_quantity, ci.created_at
	FROM cart_items ci JOIN products p ON p.id = ci.product_id`

func scanItem(row interface{ Scan(...any) error }) (models.CartItem, error) {
	var it models.CartItem
	var active bool
	err := row.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.ProductImageURL, &it.ProductPrice,
		&it.Quantity, &active, &it.StockQuantity, &it.CreatedAt)
	if err != nil {
		return it, err
	}
	it.IsInStock = active && it.StockQuantity > 0
	it.TotalPrice = it.ProductPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	return it, nil
}

// Get returns the user's cart priced at live product prices.
func (s *Service) Get(ctx context.Context, userID string) (models.CartSummary, error) {
	rows, err := s.store.Conn().QueryContext(ctx, itemQuery+` WHERE ci.user_id = ? ORDER BY ci.created_at, ci.id`, userID)
	if err != nil {
		return models.CartSummary{}, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return models.CartSummary{}, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return models.CartSummary{}, err
	}
	return models.NewCartSummary(items), nil
}

func (s *Service) item(ctx context.Context, userID string, itemID int64) (*models.CartItem, error) {
	it, err := scanItem(s.store.Conn().QueryRowContext(ctx, itemQuery+` WHERE ci.id = ? AND ci.user_id = ?`, itemID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "Cart item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return &it, nil
}

func validQuantity(qty int) error {
	if qty < 1 {
		return apperr.E(apperr.InvalidArgument, "Quantity must be at least 1")
	}
	return nil
}

// Add puts qty of a product in the cart, merging with an existing line. The
// merged quantity must fit in the live stock.
func (s *Service) Add(ctx context.Context, userID string, productID int64, qty int) (*models.CartItem, error) {
	if err := validQuantity(qty); err != nil {
		return nil, err
	}

	var itemID int64
	var err error
	// a concurrent add of the same product can win the insert; the retry merges
	for attempt := 0; attempt < 2; attempt++ {
		itemID, err = s.add(ctx, userID, productID, qty)
		if err == nil || !db.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return s.item(ctx, userID, itemID)
}

func (s *Service) add(ctx context.Context, userID string, productID int64, qty int) (int64, error) {
	var itemID int64
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT stock_quantity FROM products WHERE id = ? AND is_active = ?`, productID, true).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.E(apperr.NotFound, "Product not found")
		}
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}

		var current int
		err = tx.QueryRowContext(ctx,
			`SELECT id, quantity FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID).Scan(&itemID, &current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			itemID = 0
		case err != nil:
			return fmt.Errorf("load cart item: %w", err)
		}

		if qty > stock-current {
			return apperr.Newf(apperr.InsufficientStock, "Insufficient stock: %d available", stock)
		}

		now := time.Now().UTC()
		if itemID != 0 {
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ?`, current+qty, now, itemID)
			return err
		}
		itemID, err = tx.InsertID(ctx,
			`INSERT INTO cart_items (user_id, product_id, quantity, created_at) VALUES (?, ?, ?, ?)`,
			userID, productID, qty, now)
		return err
	})
	return itemID, err
}

// UpdateQuantity overwrites the quantity of one of the user's lines.
func (s *Service) UpdateQuantity(ctx context.Context, userID string, itemID int64, qty int) (*models.CartItem, error) {
	if err := validQuantity(qty); err != nil {
		return nil, err
	}
	it, err := s.item(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if qty > it.StockQuantity {
		return nil, apperr.Newf(apperr.InsufficientStock, "Insufficient stock: %d available", it.StockQuantity)
	}

	_, err = s.store.Conn().ExecContext(ctx,
		`UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		qty, time.Now().UTC(), itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return s.item(ctx, userID, itemID)
}

// Remove deletes one line. Removing a line that is not there succeeds.
func (s *Service) Remove(ctx context.Context, userID string, itemID int64) error {
	_, err := s.store.Conn().ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND user_id = ?`, itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.store.Conn().ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
