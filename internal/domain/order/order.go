// Package order implements the order lifecycle: cart validation, pricing,
// tracking-code assignment, payment routing, and the fulfillment status
// pipeline. All monetary amounts are int64 minor currency units (cents).
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/weftline/orderdesk/internal/domain/payment"
)

// Status is a stage in the fulfillment pipeline.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPacked         Status = "packed"
	StatusReadyToDeliver Status = "ready_to_deliver"
	StatusDelivered      Status = "delivered"
)

// PaymentMethod aliases payment.Method so order types can name it without a
// second import.
type PaymentMethod = payment.Method

const (
	PaymentCOD  = payment.MethodCOD
	PaymentCard = payment.MethodCard
)

// LineItem is one product entry within an order. UnitPrice is captured from
// the catalog at checkout and never updated afterwards, so later catalog
// price changes do not affect existing orders.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns UnitPrice multiplied by Quantity.
func (li LineItem) LineTotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// BillingAddress is the recipient contact block printed on the sticker.
// Phone is optional.
type BillingAddress struct {
	Name    string
	Address string
	City    string
	Phone   string
}

// StatusChange is one entry in an order's append-only status history.
type StatusChange struct {
	Status Status
	At     time.Time
}

// Order is a priced, uniquely tracking-coded purchase. Items and all monetary
// fields are frozen at creation; only Status, History, and the
// AwaitingConfirmation flag change afterwards.
type Order struct {
	ID           string
	TrackingCode string
	Items        []LineItem
	Subtotal     int64
	ShippingFee  int64
	Tax          int64
	Total        int64

	PaymentMethod PaymentMethod
	// AwaitingConfirmation marks a card order whose gateway confirmation has
	// not arrived yet. It is orthogonal to Status: an unconfirmed order sits
	// at StatusPending but is hidden from the fulfillment queue.
	AwaitingConfirmation bool

	Status    Status
	Billing   BillingAddress
	CreatedAt time.Time
	History   []StatusChange
}

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	Status *Status
	From   *time.Time
	To     *time.Time
	// IncludeAwaiting also returns card orders still awaiting gateway
	// confirmation. Fulfillment views leave this false.
	IncludeAwaiting bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order atomically: stock is decremented, the order
	// row and its initial history entry are written in one transaction.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByTrackingCode(ctx context.Context, code string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateStatus performs a compare-and-swap from the expected current
	// status to the new one and appends a history entry in the same
	// transaction. It returns ErrStatusConflict when another writer changed
	// the status first.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	// ConfirmPayment clears the awaiting-confirmation flag. Confirming an
	// already-confirmed order is a no-op so gateway callback retries stay safe.
	ConfirmPayment(ctx context.Context, trackingCode string) error
	Delete(ctx context.Context, id string) error
	TrackingCodeExists(ctx context.Context, code string) (bool, error)
}

// Sentinel errors shared across order operations.
var (
	ErrNotFound = errors.New("order not found")
	// ErrEmptyItems is returned when a checkout request carries no items.
	ErrEmptyItems = errors.New("items required")
	// ErrStatusConflict is returned when a compare-and-swap status update
	// lost a race against another writer.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrDuplicateTrackingCode is returned by Create when the generated
	// tracking code collided with a concurrently committed order.
	ErrDuplicateTrackingCode = errors.New("tracking code already exists")
	// ErrPaymentUnconfirmed is returned when fulfillment is attempted on a
	// card order whose gateway confirmation has not arrived.
	ErrPaymentUnconfirmed = errors.New("payment confirmation pending")
)

// ProductNotFoundError indicates a cart entry references a product that no
// longer exists in the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a cart entry has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds the stock
// available at checkout time.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// UnknownSizeError indicates the selected size is not offered for the product.
type UnknownSizeError struct {
	ProductID string
	Size      string
}

func (e *UnknownSizeError) Error() string {
	return fmt.Sprintf("size %q is not available for product %s", e.Size, e.ProductID)
}
