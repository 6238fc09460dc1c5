package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus int

const (
	StatusWaiting      OrderStatus = 1
	StatusInProcessing OrderStatus = 2
	StatusCompleted    OrderStatus = 3
	StatusWithdrawn    OrderStatus = 4
	StatusRejected     OrderStatus = 5
)

var statusNames = map[OrderStatus]string{
	StatusWaiting:      "Waiting",
	StatusInProcessing: "InProcessing",
	StatusCompleted:    "Completed",
	StatusWithdrawn:    "Withdrawn",
	StatusRejected:     "Rejected",
}

func (s OrderStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s OrderStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "OrderStatus(" + strconv.Itoa(int(s)) + ")"
}

// ParseOrderStatus accepts "3" or "Completed".
func ParseOrderStatus(v string) (OrderStatus, error) {
	n, err := parseEnum(v, toNames(statusNames))
	return OrderStatus(n), err
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          string          `json:"userId"`
	OrderNumber     string          `json:"orderNumber"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       *time.Time      `json:"updatedAt"`
	OrderItems      []OrderItem     `json:"orderItems"`
}

type OrderItem struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	ProductImageURL string          `json:"productImageUrl"`
}

type OrderFilter struct {
	Status   *OrderStatus
	FromDate *time.Time
	ToDate   *time.Time
	Page     int
	PageSize int
}
