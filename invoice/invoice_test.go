package invoice

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpet/models"
)

func sampleOrder() *models.Order {
	return &models.Order{
		ID:              7,
		OrderNumber:     "ORD-20250301120000-4321",
		TotalAmount:     decimal.RequireFromString("59.5"),
		Status:          models.StatusWaiting,
		ShippingAddress: "12 Paw Street",
		CreatedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		OrderItems: []models.OrderItem{
			{ProductName: "Salmon Kibble", Quantity: 2, UnitPrice: decimal.RequireFromString("24.5"), TotalPrice: decimal.RequireFromString("49")},
			{ProductName: "Feather Wand", Quantity: 1, UnitPrice: decimal.RequireFromString("10.5"), TotalPrice: decimal.RequireFromString("10.5")},
		},
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	s := NewSigner("secret")
	payload := s.Payload(sampleOrder())
	assert.Contains(t, payload, "ORD-20250301120000-4321|59.50|")

	num, total, err := s.Verify(payload)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20250301120000-4321", num)
	assert.Equal(t, "59.50", total)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner("secret")
	payload := s.Payload(sampleOrder())

	_, _, err := s.Verify(payload[:len(payload)-2] + "xx")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, _, err = NewSigner("other").Verify(payload)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, _, err = s.Verify("ORD-1|1.00")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestRenderProducesPDF(t *testing.T) {
	out, err := NewSigner("secret").Render(sampleOrder())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Greater(t, len(out), 1000)
}
