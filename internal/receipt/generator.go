package receipt

import (
	"bytes"
	"fmt"
	"strings"

	"storefront-service/internal/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// Generator renders order receipts as PDF documents
type Generator struct {
	brand   string
	address string
}

// NewGenerator creates a receipt generator; brand and address appear in the header
func NewGenerator(brand, address string) *Generator {
	return &Generator{brand: brand, address: address}
}

// Filename returns the attachment name used for an order's receipt
func Filename(order *models.Order) string {
	if order.ExternalOrderID != "" {
		return fmt.Sprintf("receipt-%s.pdf", order.ExternalOrderID)
	}
	return fmt.Sprintf("receipt-%d.pdf", order.ID)
}

// Generate renders the receipt for an order
func (g *Generator) Generate(order *models.Order, customer *models.Customer, items []models.OrderItem,
	shipping, billing *models.Address) ([]byte, error) {
	if order == nil || customer == nil {
		return nil, fmt.Errorf("receipt requires an order and a customer")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("%s receipt %s", g.brand, orderRef(order)), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(g.brand), "", 1, "L", false, 0, "")
	if g.address != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, tr(g.address), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Receipt", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Order: %s", orderRef(order)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s", order.OrderDate.Format("02 Jan 2006 15:04")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Customer: %s <%s>", strings.TrimSpace(customer.FullName()), customer.Email)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	top := pdf.GetY()
	writeAddress(pdf, tr, "Ship to", shipping, 10, top)
	writeAddress(pdf, tr, "Bill to", billing, 110, top)
	pdf.SetXY(10, top+34)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(90, 7, "Product", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 7, "Quantity", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(40, 7, "Line total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	subtotal := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
		pdf.CellFormat(90, 7, fmt.Sprintf("Product #%d", item.ProductID), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, line.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(150, 7, "Items subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(150, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, order.TotalAmount.StringFixed(2), "", 1, "R", false, 0, "")

	if order.Note != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr("Note: "+order.Note), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAddress(pdf *gofpdf.Fpdf, tr func(string) string, title string, a *models.Address, x, y float64) {
	pdf.SetXY(x, y)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 6, title, "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if a == nil {
		pdf.CellFormat(90, 5, "-", "", 2, "L", false, 0, "")
		return
	}
	lines := []string{
		strings.TrimSpace(a.FirstName + " " + a.LastName),
		strings.TrimSpace(a.StreetName + " " + a.StreetNumber),
		strings.TrimSpace(a.PostalCode + " " + a.City),
		a.CountryCode,
		a.Phone,
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		pdf.CellFormat(90, 5, tr(line), "", 2, "L", false, 0, "")
	}
}

func orderRef(order *models.Order) string {
	if order.ExternalOrderID != "" {
		return order.ExternalOrderID
	}
	return fmt.Sprintf("#%d", order.ID)
}
