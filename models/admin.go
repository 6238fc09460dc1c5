package models

import "github.com/shopspring/decimal"

type DashboardStats struct {
	TotalProducts         int             `json:"totalProducts"`
	InventoryValue        decimal.Decimal `json:"inventoryValue"`
	LowStockProductsCount int             `json:"lowStockProductsCount"`
	TotalCategories       int             `json:"totalCategories"`
	RecentProducts        []Product       `json:"recentProducts"`
}

// LowStockProduct is the restocking view of a product.
type LowStockProduct struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	StockQuantity     int             `json:"stockQuantity"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	Brand             string          `json:"brand"`
	Price             decimal.Decimal `json:"price"`
}
