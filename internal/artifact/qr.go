package artifact

import (
	qrcode "github.com/skip2/go-qrcode"

	"github.com/weftline/orderdesk/internal/domain/order"
)

// defaultQRSize is the rendered image edge in pixels; large enough to scan
// from a printed sticker.
const defaultQRSize = 256

// QRRenderer encodes exactly the tracking-code string as a PNG QR image.
// The encoding is deterministic: the same code always yields the same bytes.
type QRRenderer struct {
	size int
}

// NewQRRenderer creates a QRRenderer with the given image size in pixels.
// Non-positive sizes fall back to the default.
func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = defaultQRSize
	}
	return &QRRenderer{size: size}
}

func (r *QRRenderer) Kind() Kind { return KindQR }

func (r *QRRenderer) ContentType() string { return "image/png" }

// Render returns the PNG-encoded QR code for the order's tracking code.
func (r *QRRenderer) Render(o *order.Order) ([]byte, error) {
	if err := checkRenderable(KindQR, o); err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(o.TrackingCode, qrcode.Medium, r.size)
	if err != nil {
		return nil, &RenderError{Kind: KindQR, Reason: err.Error()}
	}
	return png, nil
}
