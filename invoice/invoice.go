// Package invoice renders order invoices as PDF documents carrying a signed
// QR code that lets staff verify an invoice was issued by the shop.
package invoice

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"petpet/models"
)

var ErrBadSignature = errors.New("invoice: bad signature")

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Payload returns orderNumber|total|signature.
func (s *Signer) Payload(o *models.Order) string {
	data := fmt.Sprintf("%s|%s", o.OrderNumber, o.TotalAmount.StringFixed(2))
	return data + "|" + s.sign(data)
}

// Verify checks a payload produced by Payload and returns the order number
// and total it carries.
func (s *Signer) Verify(payload string) (orderNumber, total string, err error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return "", "", ErrBadSignature
	}
	want := s.sign(parts[0] + "|" + parts[1])
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return "", "", ErrBadSignature
	}
	return parts[0], parts[1], nil
}

// Render builds the invoice PDF for o.
func (s *Signer) Render(o *models.Order) ([]byte, error) {
	qrPNG, err := qrcode.Encode(s.Payload(o), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+o.OrderNumber, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, "PetPet Invoice")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, "Order: "+o.OrderNumber)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Date: "+o.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Status: "+o.Status.String())
	pdf.Ln(7)
	if o.ShippingAddress != "" {
		pdf.MultiCell(120, 7, "Ship to: "+o.ShippingAddress, "", "L", false)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 155, 20, 40, 40, false, opts, 0, "")

	pdf.SetY(70)
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(95, 8, "Product", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, it := range o.OrderItems {
		pdf.CellFormat(95, 8, it.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprint(it.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, it.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, it.TotalPrice.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(150, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, o.TotalAmount.StringFixed(2), "1", 1, "R", false, 0, "")

	if o.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 6, "Notes: "+o.Notes, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}
	return buf.Bytes(), nil
}
