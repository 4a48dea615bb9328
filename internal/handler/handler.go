// Package handler exposes the order lifecycle over HTTP with chi routing.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/weftline/orderdesk/internal/artifact"
	"github.com/weftline/orderdesk/internal/domain/catalog"
	"github.com/weftline/orderdesk/internal/domain/order"
	"github.com/weftline/orderdesk/internal/domain/payment"
)

// Handler wires the order service, fulfillment state machine, and artifact
// service into HTTP endpoints.
type Handler struct {
	orders      *order.Service
	fulfillment *order.StateMachine
	artifacts   *artifact.Service
}

// New constructs a Handler with the required services.
func New(orders *order.Service, fulfillment *order.StateMachine, artifacts *artifact.Service) *Handler {
	return &Handler{
		orders:      orders,
		fulfillment: fulfillment,
		artifacts:   artifacts,
	}
}

// Routes returns the chi router for all API endpoints, mounted under /api by
// the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{ref}", h.getOrder)
		r.Patch("/{id}/status", h.updateOrderStatus)
		r.Delete("/{id}", h.deleteOrder)
		r.Get("/{id}/sticker", h.downloadSticker)
	})
	r.Get("/tracking/{code}/qr", h.trackingQR)
	r.Post("/payments/confirm", h.confirmPayment)

	return r
}

// errorResponse is the JSON error envelope for every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Validation problems
// are 400/422 with field detail, lookups 404, rejected transitions 409, and
// anything unrecognized is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *order.ValidationError
		quantityErr   *order.InvalidQuantityError
		notFoundErr   *order.ProductNotFoundError
		stockErr      *order.InsufficientStockError
		sizeErr       *order.UnknownSizeError
		transitionErr *order.InvalidTransitionError
		methodErr     *payment.UnsupportedMethodError
		renderErr     *artifact.RenderError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusUnprocessableEntity, quantityErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusUnprocessableEntity, notFoundErr.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusUnprocessableEntity, stockErr.Error())
	case errors.As(err, &sizeErr):
		writeError(w, http.StatusUnprocessableEntity, sizeErr.Error())
	case errors.As(err, &methodErr):
		writeError(w, http.StatusBadRequest, methodErr.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	case errors.Is(err, order.ErrPaymentUnconfirmed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &renderErr):
		writeError(w, http.StatusInternalServerError, renderErr.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
