package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"productId"`
	ProductName     string          `json:"productName"`
	ProductImageURL string          `json:"productImageUrl"`
	ProductPrice    decimal.Decimal `json:"productPrice"`
	Quantity        int             `json:"quantity"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	IsInStock       bool            `json:"isInStock"`
	StockQuantity   int             `json:"stockQuantity"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type CartSummary struct {
	Items              []CartItem      `json:"items"`
	TotalItems         int             `json:"totalItems"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	UniqueProductCount int             `json:"uniqueProductCount"`
	HasOutOfStockItems bool            `json:"hasOutOfStockItems"`
}

// NewCartSummary derives the cart totals from its lines.
func NewCartSummary(items []CartItem) CartSummary {
	if items == nil {
		items = []CartItem{}
	}
	sum := CartSummary{Items: items, TotalAmount: decimal.Zero, UniqueProductCount: len(items)}
	for _, it := range items {
		sum.TotalItems += it.Quantity
		sum.TotalAmount = sum.TotalAmount.Add(it.TotalPrice)
		if !it.IsInStock || it.Quantity > it.StockQuantity {
			sum.HasOutOfStockItems = true
		}
	}
	return sum
}
