package artifact

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/weftline/orderdesk/internal/domain/order"
)

// phonePlaceholder replaces a missing phone number on the sticker; a blank
// contact field confuses dispatch staff more than an explicit dash.
const phonePlaceholder = "-"

// StickerRenderer produces the printable delivery sticker: a 100x150mm PDF
// label with the tracking code, QR, recipient block, itemized line list, and
// total. Output is built fully in memory and returned whole.
type StickerRenderer struct {
	qr *QRRenderer
}

// NewStickerRenderer creates a StickerRenderer. The embedded QR uses a
// smaller size suited for the label corner.
func NewStickerRenderer() *StickerRenderer {
	return &StickerRenderer{qr: NewQRRenderer(128)}
}

func (r *StickerRenderer) Kind() Kind { return KindSticker }

func (r *StickerRenderer) ContentType() string { return "application/pdf" }

// Render builds the sticker PDF for the order.
func (r *StickerRenderer) Render(o *order.Order) ([]byte, error) {
	if err := checkRenderable(KindSticker, o); err != nil {
		return nil, err
	}

	qrPNG, err := r.qr.Render(o)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "mm",
		Size:    fpdf.SizeType{Wd: 100, Ht: 150},
	})
	pdf.SetMargins(6, 6, 6)
	pdf.SetAutoPageBreak(false, 6)
	pdf.AddPage()

	// Header: tracking code left, QR top-right.
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(60, 10, o.TrackingCode, "", 1, "L", false, 0, "")
	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 68, 6, 26, 26, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	// Recipient block.
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetY(20)
	phone := o.Billing.Phone
	if phone == "" {
		phone = phonePlaceholder
	}
	pdf.MultiCell(58, 5, fmt.Sprintf("%s\n%s\n%s\nTel: %s",
		o.Billing.Name, o.Billing.Address, o.Billing.City, phone), "", "L", false)

	// Line items.
	pdf.SetY(46)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(52, 6, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(12, 6, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(24, 6, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, li := range o.Items {
		name := li.Name
		if li.Size != "" {
			name = fmt.Sprintf("%s (%s)", name, li.Size)
		}
		pdf.CellFormat(52, 5, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(12, 5, fmt.Sprintf("%d", li.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(24, 5, formatCents(li.LineTotal()), "", 1, "R", false, 0, "")
	}

	// Totals.
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(64, 7, "Total", "T", 0, "L", false, 0, "")
	pdf.CellFormat(24, 7, formatCents(o.Total), "T", 1, "R", false, 0, "")

	if o.PaymentMethod == order.PaymentCOD {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(88, 6, "CASH ON DELIVERY", "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Kind: KindSticker, Reason: err.Error()}
	}
	return buf.Bytes(), nil
}

// formatCents renders minor units as a decimal amount, e.g. 1250 -> "12.50".
func formatCents(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}
