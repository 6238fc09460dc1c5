package admin

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"petpet/db"
	"petpet/models"
	"petpet/products"
)

const recentProductsCount = 6

// Service computes the dashboard aggregates over the catalog.
type Service struct {
	store    *db.Store
	products *products.Service
}

func NewService(store *db.Store, catalog *products.Service) *Service {
	return &Service{store: store, products: catalog}
}

func (s *Service) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	st := &models.DashboardStats{TotalCategories: models.CategoryCount}

	rows, err := s.store.Conn().QueryContext(ctx,
		`SELECT price, stock_quantity, low_stock_threshold FROM products WHERE is_active = ?`, true)
	if err != nil {
		return nil, fmt.Errorf("dashboard products: %w", err)
	}
	value := decimal.Zero
	for rows.Next() {
		var price decimal.Decimal
		var stock, threshold int
		if err := rows.Scan(&price, &stock, &threshold); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dashboard product: %w", err)
		}
		st.TotalProducts++
		value = value.Add(price.Mul(decimal.NewFromInt(int64(stock))))
		if stock <= threshold {
			st.LowStockProductsCount++
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("dashboard products: %w", err)
	}
	st.InventoryValue = value.Round(2)

	recent, err := s.products.List(ctx, products.Filter{Page: 1, PageSize: recentProductsCount})
	if err != nil {
		return nil, err
	}
	st.RecentProducts = recent.Items
	return st, nil
}

// LowStock returns the restocking view of every product at or below its threshold.
func (s *Service) LowStock(ctx context.Context) ([]models.LowStockProduct, error) {
	items, err := s.products.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.LowStockProduct, len(items))
	for i, p := range items {
		out[i] = models.LowStockProduct{
			ID:                p.ID,
			Name:              p.Name,
			StockQuantity:     p.StockQuantity,
			LowStockThreshold: p.LowStockThreshold,
			Brand:             p.Brand,
			Price:             p.Price,
		}
	}
	return out, nil
}
