// Package artifact renders per-order tracking artifacts: the scannable QR
// image and the printable delivery sticker. Rendering is pure read-and-
// compute, safe to repeat and to run concurrently. Output for a given order
// never changes, so results can be cached by tracking code.
package artifact

import (
	"fmt"

	"github.com/weftline/orderdesk/internal/domain/order"
)

// Kind tags a renderer's output format.
type Kind string

const (
	// KindQR is the tracking-code QR image, PNG encoded.
	KindQR Kind = "qr"
	// KindSticker is the printable delivery sticker, PDF encoded.
	KindSticker Kind = "sticker"
)

// Renderer produces one artifact kind for an order. Render must either
// return the complete document or an error; partial output is never
// surfaced.
type Renderer interface {
	Kind() Kind
	ContentType() string
	Render(o *order.Order) ([]byte, error)
}

// RenderError indicates an order is structurally unfit for rendering, e.g.
// it has no line items. Distinct from validation errors; retrying without
// fixing the order will fail the same way, but retrying is side-effect free.
type RenderError struct {
	Kind   Kind
	Reason string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s", e.Kind, e.Reason)
}

// checkRenderable verifies the structural invariants every renderer needs.
func checkRenderable(kind Kind, o *order.Order) error {
	if o.TrackingCode == "" {
		return &RenderError{Kind: kind, Reason: "order has no tracking code"}
	}
	if len(o.Items) == 0 {
		return &RenderError{Kind: kind, Reason: "order has no line items"}
	}
	return nil
}
