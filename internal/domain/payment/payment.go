// Package payment decides, per payment method, whether a new order is
// immediately actionable or must wait for an external gateway confirmation.
// Gateway settlement itself is out of scope; only the redirect decision and
// the confirmation flag live here.
package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
)

// Method selects how an order is paid for.
type Method string

const (
	// MethodCOD is cash on delivery: no external confirmation required.
	MethodCOD Method = "cod"
	// MethodCard routes through an external gateway; the order awaits an
	// explicit confirmation callback before fulfillment sees it.
	MethodCard Method = "card"
)

// Valid reports whether m is a recognized payment method.
func (m Method) Valid() bool {
	return m == MethodCOD || m == MethodCard
}

// Gateway issues redirect URLs for card payments. The later confirmation
// callback arrives on the HTTP layer and is applied through the order
// repository, not through this interface.
type Gateway interface {
	RedirectURL(ctx context.Context, trackingCode string, amount int64) (string, error)
}

// UnsupportedMethodError indicates an unknown payment method was requested.
type UnsupportedMethodError struct {
	Method Method
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported payment method %q", e.Method)
}

// Route is the routing decision for a new order.
type Route struct {
	// AwaitingConfirmation is true for card orders until the gateway callback
	// arrives; such orders stay invisible to fulfillment.
	AwaitingConfirmation bool
	// RedirectURL is where the customer must be sent to complete payment.
	// Empty for COD.
	RedirectURL string
}

// Router maps a payment method to its routing decision.
type Router struct {
	gateway Gateway
}

// NewRouter creates a Router that uses the given gateway for card payments.
func NewRouter(gateway Gateway) *Router {
	return &Router{gateway: gateway}
}

// Route decides how the order identified by trackingCode proceeds after
// checkout. COD orders are immediately actionable; card orders get a gateway
// redirect and the awaiting-confirmation flag.
func (r *Router) Route(ctx context.Context, method Method, trackingCode string, amount int64) (Route, error) {
	switch method {
	case MethodCOD:
		return Route{}, nil
	case MethodCard:
		redirect, err := r.gateway.RedirectURL(ctx, trackingCode, amount)
		if err != nil {
			return Route{}, errors.Wrap(err, "gateway redirect")
		}
		return Route{AwaitingConfirmation: true, RedirectURL: redirect}, nil
	default:
		return Route{}, &UnsupportedMethodError{Method: method}
	}
}

// URLGateway is a Gateway that builds hosted-checkout URLs from a base URL.
type URLGateway struct {
	base string
}

// NewURLGateway creates a URLGateway. base is the gateway's hosted checkout
// endpoint, e.g. https://pay.example.com/checkout.
func NewURLGateway(base string) *URLGateway {
	return &URLGateway{base: base}
}

// RedirectURL returns the hosted checkout URL carrying the order reference
// and the amount in minor units.
func (g *URLGateway) RedirectURL(_ context.Context, trackingCode string, amount int64) (string, error) {
	u, err := url.Parse(g.base)
	if err != nil {
		return "", errors.Wrap(err, "parse gateway base URL")
	}

	q := u.Query()
	q.Set("reference", trackingCode)
	q.Set("amount", strconv.FormatInt(amount, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
