package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftline/orderdesk/internal/artifact"
	"github.com/weftline/orderdesk/internal/domain/catalog"
	"github.com/weftline/orderdesk/internal/domain/order"
	"github.com/weftline/orderdesk/internal/domain/payment"
)

type stubCatalog struct {
	byID map[string]catalog.Product
}

func (s *stubCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (s *stubCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: make(map[string]*order.Order)}
}

func (s *stubOrders) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.TrackingCode == o.TrackingCode {
			return order.ErrDuplicateTrackingCode
		}
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *stubOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubOrders) GetByTrackingCode(_ context.Context, code string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TrackingCode == code {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *stubOrders) List(_ context.Context, filter order.ListFilter) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, o := range s.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if !filter.IncludeAwaiting && o.AwaitingConfirmation {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, id string, from, to order.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from || o.AwaitingConfirmation {
		return order.ErrStatusConflict
	}
	o.Status = to
	o.History = append(o.History, order.StatusChange{Status: to, At: at})
	return nil
}

func (s *stubOrders) ConfirmPayment(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TrackingCode == code {
			o.AwaitingConfirmation = false
			return nil
		}
	}
	return order.ErrNotFound
}

func (s *stubOrders) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *stubOrders) TrackingCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func newTestHandler() *Handler {
	cat := &stubCatalog{byID: map[string]catalog.Product{
		"tee":    {ID: "tee", Name: "Classic Tee", Price: 1250, Sizes: []string{"S", "M", "L"}, Stock: 20},
		"hoodie": {ID: "hoodie", Name: "Hoodie", Price: 4200, Sizes: []string{"M", "L"}, Stock: 5},
	}}
	repo := newStubOrders()

	pricing := order.PricingConfig{ShippingFee: 450, TaxRate: decimal.RequireFromString("0.10")}
	svc := order.NewService(
		order.NewAggregator(cat),
		order.NewCodeGenerator(repo),
		payment.NewRouter(payment.NewURLGateway("https://pay.test/checkout")),
		repo,
		pricing,
	)
	return New(svc, order.NewStateMachine(repo), artifact.NewService(repo, nil))
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func validCreateBody(method string) map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": "tee", "quantity": 2, "size": "M"},
		},
		"payment_method": method,
		"billing": map[string]any{
			"name":    "Dana Miles",
			"address": "12 Foundry Row",
			"city":    "Leeds",
			"phone":   "0113 555 0101",
		},
	}
}

func createOrderViaAPI(t *testing.T, h http.Handler, method string) createOrderResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/orders", validCreateBody(method))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateOrderEndpoint_COD(t *testing.T) {
	h := newTestHandler().Routes()

	resp := createOrderViaAPI(t, h, "cod")

	assert.True(t, strings.HasPrefix(resp.TrackingCode, "WL-"))
	assert.Equal(t, int64(3200), resp.TotalCents)
	assert.False(t, resp.AwaitingConfirmation)
	assert.Empty(t, resp.RedirectURL)
}

func TestCreateOrderEndpoint_Card(t *testing.T) {
	h := newTestHandler().Routes()

	resp := createOrderViaAPI(t, h, "card")

	assert.True(t, resp.AwaitingConfirmation)
	assert.Contains(t, resp.RedirectURL, "https://pay.test/checkout")
	assert.Contains(t, resp.RedirectURL, resp.TrackingCode)
}

func TestCreateOrderEndpoint_InvalidJSON(t *testing.T) {
	h := newTestHandler().Routes()

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderEndpoint_EmptyItems(t *testing.T) {
	h := newTestHandler().Routes()

	body := validCreateBody("cod")
	body["items"] = []map[string]any{}
	rec := doJSON(t, h, http.MethodPost, "/orders", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorEnvelope(t, rec)
}

func TestCreateOrderEndpoint_UnknownProduct(t *testing.T) {
	h := newTestHandler().Routes()

	body := validCreateBody("cod")
	body["items"] = []map[string]any{{"product_id": "ghost", "quantity": 1}}
	rec := doJSON(t, h, http.MethodPost, "/orders", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assertErrorEnvelope(t, rec)
}

func TestCreateOrderEndpoint_InsufficientStock(t *testing.T) {
	h := newTestHandler().Routes()

	body := validCreateBody("cod")
	body["items"] = []map[string]any{{"product_id": "hoodie", "quantity": 50, "size": "M"}}
	rec := doJSON(t, h, http.MethodPost, "/orders", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateOrderEndpoint_UnsupportedPaymentMethod(t *testing.T) {
	h := newTestHandler().Routes()

	rec := doJSON(t, h, http.MethodPost, "/orders", validCreateBody("bitcoin"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderEndpoint_MissingBillingCity(t *testing.T) {
	h := newTestHandler().Routes()

	body := validCreateBody("cod")
	body["billing"] = map[string]any{"name": "Dana Miles", "address": "12 Foundry Row"}
	rec := doJSON(t, h, http.MethodPost, "/orders", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Message, "billing.city")
}

func TestGetOrderEndpoint_ByTrackingCode(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "cod")

	rec := doJSON(t, h, http.MethodGet, "/orders/"+created.TrackingCode, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.TrackingCode, resp.TrackingCode)
	assert.Equal(t, "pending", resp.Status)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "pending", resp.History[0].Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(2500), resp.Items[0].LineTotalCents)
}

func TestGetOrderEndpoint_NotFound(t *testing.T) {
	h := newTestHandler().Routes()

	rec := doJSON(t, h, http.MethodGet, "/orders/WL-ZZZZZZZZ", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assertErrorEnvelope(t, rec)
}

func TestListOrdersEndpoint_HidesAwaitingByDefault(t *testing.T) {
	h := newTestHandler().Routes()
	createOrderViaAPI(t, h, "cod")
	card := createOrderViaAPI(t, h, "card")

	rec := doJSON(t, h, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var visible []orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
	require.Len(t, visible, 1)
	assert.NotEqual(t, card.TrackingCode, visible[0].TrackingCode)

	rec = doJSON(t, h, http.MethodGet, "/orders?include_awaiting=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestListOrdersEndpoint_RejectsUnknownStatus(t *testing.T) {
	h := newTestHandler().Routes()

	rec := doJSON(t, h, http.MethodGet, "/orders?status=shipped", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusEndpoint_AdvancesPipeline(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "cod")
	id := lookupOrderID(t, h, created.TrackingCode)

	rec := doJSON(t, h, http.MethodPatch, "/orders/"+id+"/status", map[string]string{"status": "packed"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "packed", resp.Status)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "packed", resp.History[1].Status)
}

func TestUpdateStatusEndpoint_RejectsSkip(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "cod")
	id := lookupOrderID(t, h, created.TrackingCode)

	rec := doJSON(t, h, http.MethodPatch, "/orders/"+id+"/status", map[string]string{"status": "delivered"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assertErrorEnvelope(t, rec)
}

func TestUpdateStatusEndpoint_RejectsUnconfirmedCardOrder(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "card")
	id := lookupOrderID(t, h, created.TrackingCode)

	rec := doJSON(t, h, http.MethodPatch, "/orders/"+id+"/status", map[string]string{"status": "packed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	confirm := doJSON(t, h, http.MethodPost, "/payments/confirm", map[string]string{"tracking_code": created.TrackingCode})
	require.Equal(t, http.StatusNoContent, confirm.Code)

	rec = doJSON(t, h, http.MethodPatch, "/orders/"+id+"/status", map[string]string{"status": "packed"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteOrderEndpoint(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "cod")
	id := lookupOrderID(t, h, created.TrackingCode)

	rec := doJSON(t, h, http.MethodDelete, "/orders/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/orders/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmPaymentEndpoint_RequiresTrackingCode(t *testing.T) {
	h := newTestHandler().Routes()

	rec := doJSON(t, h, http.MethodPost, "/payments/confirm", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStickerEndpoint(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "cod")
	id := lookupOrderID(t, h, created.TrackingCode)

	rec := doJSON(t, h, http.MethodGet, "/orders/"+id+"/sticker", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		fmt.Sprintf("attachment; filename=%q", "delivery-sticker-"+created.TrackingCode+".pdf"),
		rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestTrackingQREndpoint(t *testing.T) {
	h := newTestHandler().Routes()
	created := createOrderViaAPI(t, h, "cod")

	rec := doJSON(t, h, http.MethodGet, "/tracking/"+created.TrackingCode+"/qr", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}))
}

func TestTrackingQREndpoint_UnknownCode(t *testing.T) {
	h := newTestHandler().Routes()

	rec := doJSON(t, h, http.MethodGet, "/tracking/WL-ZZZZZZZZ/qr", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func lookupOrderID(t *testing.T, h http.Handler, trackingCode string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/orders/"+trackingCode, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func assertErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	var envelope errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, rec.Code, envelope.Code)
	assert.NotEmpty(t, envelope.Message)
}
