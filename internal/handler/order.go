package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weftline/orderdesk/internal/domain/order"
)

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type billingRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Phone   string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	Items         []cartItemRequest `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Billing       billingRequest    `json:"billing"`
}

type createOrderResponse struct {
	TrackingCode         string `json:"tracking_code"`
	TotalCents           int64  `json:"total_cents"`
	AwaitingConfirmation bool   `json:"awaiting_confirmation"`
	RedirectURL          string `json:"redirect_url,omitempty"`
}

type lineItemResponse struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Size           string `json:"size,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type statusChangeResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type orderResponse struct {
	ID                   string                 `json:"id"`
	TrackingCode         string                 `json:"tracking_code"`
	Items                []lineItemResponse     `json:"items"`
	SubtotalCents        int64                  `json:"subtotal_cents"`
	ShippingFeeCents     int64                  `json:"shipping_fee_cents"`
	TaxCents             int64                  `json:"tax_cents"`
	TotalCents           int64                  `json:"total_cents"`
	PaymentMethod        string                 `json:"payment_method"`
	AwaitingConfirmation bool                   `json:"awaiting_confirmation"`
	Status               string                 `json:"status"`
	Billing              billingRequest         `json:"billing"`
	CreatedAt            time.Time              `json:"created_at"`
	History              []statusChangeResponse `json:"history"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]lineItemResponse, len(o.Items))
	for i, li := range o.Items {
		items[i] = lineItemResponse{
			ProductID:      li.ProductID,
			Name:           li.Name,
			Size:           li.Size,
			UnitPriceCents: li.UnitPrice,
			Quantity:       li.Quantity,
			LineTotalCents: li.LineTotal(),
		}
	}
	history := make([]statusChangeResponse, len(o.History))
	for i, h := range o.History {
		history[i] = statusChangeResponse{Status: string(h.Status), At: h.At}
	}
	return orderResponse{
		ID:                   o.ID,
		TrackingCode:         o.TrackingCode,
		Items:                items,
		SubtotalCents:        o.Subtotal,
		ShippingFeeCents:     o.ShippingFee,
		TaxCents:             o.Tax,
		TotalCents:           o.Total,
		PaymentMethod:        string(o.PaymentMethod),
		AwaitingConfirmation: o.AwaitingConfirmation,
		Status:               string(o.Status),
		Billing: billingRequest{
			Name:    o.Billing.Name,
			Address: o.Billing.Address,
			City:    o.Billing.City,
			Phone:   o.Billing.Phone,
		},
		CreatedAt: o.CreatedAt,
		History:   history,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	items := make([]order.CartItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.CartItem{ProductID: it.ProductID, Quantity: it.Quantity, Size: it.Size}
	}

	result, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		Items:         items,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Billing: order.BillingAddress{
			Name:    req.Billing.Name,
			Address: req.Billing.Address,
			City:    req.Billing.City,
			Phone:   req.Billing.Phone,
		},
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		TrackingCode:         result.Order.TrackingCode,
		TotalCents:           result.Order.Total,
		AwaitingConfirmation: result.Order.AwaitingConfirmation,
		RedirectURL:          result.RedirectURL,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(list))
	for i := range list {
		resp[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := h.fulfillment.Advance(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmPaymentRequest struct {
	TrackingCode string `json:"tracking_code"`
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TrackingCode == "" {
		writeError(w, http.StatusBadRequest, "tracking_code is required")
		return
	}

	if err := h.orders.ConfirmPayment(r.Context(), req.TrackingCode); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseListFilter reads the optional status/from/to/include_awaiting query
// parameters. Dates use RFC 3339.
func parseListFilter(r *http.Request) (order.ListFilter, error) {
	var filter order.ListFilter
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status := order.Status(s)
		if !status.Valid() {
			return filter, &order.ValidationError{Field: "status", Message: "unknown status"}
		}
		filter.Status = &status
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, &order.ValidationError{Field: "from", Message: "must be RFC 3339"}
		}
		filter.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, &order.ValidationError{Field: "to", Message: "must be RFC 3339"}
		}
		filter.To = &t
	}
	filter.IncludeAwaiting = q.Get("include_awaiting") == "true"

	return filter, nil
}
