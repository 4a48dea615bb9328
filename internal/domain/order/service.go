package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/weftline/orderdesk/internal/domain/payment"
)

// ValidationError reports a missing or malformed checkout field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// CreateOrderRequest holds the input for checkout.
type CreateOrderRequest struct {
	Items         []CartItem
	PaymentMethod PaymentMethod
	Billing       BillingAddress
}

// CreateOrderResult holds the outcome of a successful checkout. RedirectURL
// is set only for card payments.
type CreateOrderResult struct {
	Order       *Order
	RedirectURL string
}

// Service owns checkout and the administrative order operations. Status
// transitions go through StateMachine instead.
type Service struct {
	carts   *Aggregator
	codes   *CodeGenerator
	router  *payment.Router
	orders  Repository
	pricing PricingConfig
	now     func() time.Time
}

// NewService creates an order Service with the required collaborators.
func NewService(
	carts *Aggregator,
	codes *CodeGenerator,
	router *payment.Router,
	orders Repository,
	pricing PricingConfig,
) *Service {
	return &Service{
		carts:   carts,
		codes:   codes,
		router:  router,
		orders:  orders,
		pricing: pricing,
		now:     time.Now,
	}
}

// CreateOrder turns a cart into a persisted order: validates and prices the
// cart, assigns a unique tracking code, routes the payment method, and
// commits everything (including the stock decrement and the initial history
// entry) in one repository transaction.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if !req.PaymentMethod.Valid() {
		return nil, &payment.UnsupportedMethodError{Method: req.PaymentMethod}
	}
	if err := validateBilling(req.Billing); err != nil {
		return nil, err
	}

	lines, err := s.carts.BuildLineItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	quote := Price(lines, s.pricing)

	// The generator already checks code uniqueness, but a concurrent checkout
	// can still win the unique index race; regenerate and retry when it does.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}

		route, err := s.router.Route(ctx, req.PaymentMethod, code, quote.Total)
		if err != nil {
			return nil, err
		}

		createdAt := s.now()
		o := &Order{
			ID:                   uuid.New().String(),
			TrackingCode:         code,
			Items:                lines,
			Subtotal:             quote.Subtotal,
			ShippingFee:          quote.ShippingFee,
			Tax:                  quote.Tax,
			Total:                quote.Total,
			PaymentMethod:        req.PaymentMethod,
			AwaitingConfirmation: route.AwaitingConfirmation,
			Status:               StatusPending,
			Billing:              req.Billing,
			CreatedAt:            createdAt,
			History:              []StatusChange{{Status: StatusPending, At: createdAt}},
		}

		if err := s.orders.Create(ctx, o); err != nil {
			if errors.Is(err, ErrDuplicateTrackingCode) {
				s.codes.Observe(code)
				continue
			}
			return nil, errors.Wrap(err, "create order")
		}

		return &CreateOrderResult{Order: o, RedirectURL: route.RedirectURL}, nil
	}

	return nil, ErrCodeGenerationExhausted
}

// Get fetches an order by internal ID or customer-facing tracking code,
// whichever the reference looks like.
func (s *Service) Get(ctx context.Context, ref string) (*Order, error) {
	if IsTrackingCode(ref) {
		return s.orders.GetByTrackingCode(ctx, ref)
	}
	return s.orders.GetByID(ctx, ref)
}

// List returns orders matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.orders.List(ctx, filter)
}

// ConfirmPayment applies a gateway confirmation callback: the order becomes
// visible to fulfillment. Repeated confirmations are no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, trackingCode string) error {
	return s.orders.ConfirmPayment(ctx, trackingCode)
}

// Delete permanently removes an order. Deleting a missing order returns
// ErrNotFound; callers must not assume idempotence.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.orders.Delete(ctx, id)
}

func validateBilling(b BillingAddress) error {
	if strings.TrimSpace(b.Name) == "" {
		return &ValidationError{Field: "billing.name", Message: "required"}
	}
	if strings.TrimSpace(b.Address) == "" {
		return &ValidationError{Field: "billing.address", Message: "required"}
	}
	if strings.TrimSpace(b.City) == "" {
		return &ValidationError{Field: "billing.city", Message: "required"}
	}
	// Phone stays optional: the sticker renders a placeholder instead.
	return nil
}
