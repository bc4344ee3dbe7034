package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguthrie/ucp-agent/internal/domain"
	"github.com/nguthrie/ucp-agent/internal/repository"
	"github.com/nguthrie/ucp-agent/internal/repository/memory"
	"github.com/nguthrie/ucp-agent/internal/service"
	"github.com/nguthrie/ucp-agent/internal/ucp"
)

// --- Stub transport ---

type stubTransport struct {
	discoverFn    func(ctx context.Context, baseURL string) (*domain.MerchantProfile, error)
	createFn      func(ctx context.Context, baseURL string, req ucp.CreateCheckoutRequest) (*domain.CheckoutSession, error)
	getFn         func(ctx context.Context, baseURL, checkoutID string) (*domain.CheckoutSession, error)
	updateFn      func(ctx context.Context, baseURL, checkoutID string, codes []string) (*domain.CheckoutSession, error)
	fulfillmentFn func(ctx context.Context, baseURL, checkoutID, addressID, optionID string) (*domain.CheckoutSession, error)
	completeFn    func(ctx context.Context, baseURL, checkoutID string, req ucp.CompletePaymentRequest) (*domain.CheckoutSession, error)
}

func (s *stubTransport) Discover(ctx context.Context, baseURL string) (*domain.MerchantProfile, error) {
	return s.discoverFn(ctx, baseURL)
}

func (s *stubTransport) CreateCheckout(ctx context.Context, baseURL string, req ucp.CreateCheckoutRequest) (*domain.CheckoutSession, error) {
	return s.createFn(ctx, baseURL, req)
}

func (s *stubTransport) GetCheckout(ctx context.Context, baseURL, checkoutID string) (*domain.CheckoutSession, error) {
	return s.getFn(ctx, baseURL, checkoutID)
}

func (s *stubTransport) UpdateCheckout(ctx context.Context, baseURL, checkoutID string, codes []string) (*domain.CheckoutSession, error) {
	return s.updateFn(ctx, baseURL, checkoutID, codes)
}

func (s *stubTransport) SetFulfillment(ctx context.Context, baseURL, checkoutID, addressID, optionID string) (*domain.CheckoutSession, error) {
	return s.fulfillmentFn(ctx, baseURL, checkoutID, addressID, optionID)
}

func (s *stubTransport) CompleteCheckout(ctx context.Context, baseURL, checkoutID string, req ucp.CompletePaymentRequest) (*domain.CheckoutSession, error) {
	return s.completeFn(ctx, baseURL, checkoutID, req)
}

// --- Test helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	handler  *UCPHandler
	router   *chi.Mux
	sessions *memory.SessionStore
	profiles *memory.ProfileStore
}

func newFixture(transport *stubTransport) *fixture {
	f := &fixture{
		sessions: memory.NewSessionStore(),
		profiles: memory.NewProfileStore(),
	}
	orch := service.NewOrchestrator(transport, f.sessions, f.profiles, nil, nil, testLogger())
	f.handler = NewUCPHandler(orch, testLogger())

	// Matches the production router layout.
	f.router = chi.NewRouter()
	f.router.Route("/api/v1/ucp", func(r chi.Router) {
		r.Post("/discover", f.handler.Discover)
		r.Post("/checkouts", f.handler.CreateCheckout)
		r.Post("/checkouts/{id}/discounts", f.handler.ApplyDiscounts)
		r.Post("/checkouts/{id}/fulfillment", f.handler.SetFulfillment)
		r.Post("/checkouts/{id}/complete", f.handler.CompleteCheckout)
	})
	return f
}

func (f *fixture) seedSession(t *testing.T, status domain.CheckoutStatus) {
	t.Helper()
	err := f.sessions.Save(context.Background(), &repository.SessionState{
		CheckoutID:  "chk_1",
		MerchantURL: "https://merchant.example",
		Status:      status,
		Currency:    "USD",
		Total:       2597,
	})
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error
}

func wireSession() *domain.CheckoutSession {
	return &domain.CheckoutSession{
		CheckoutID:     "chk_1",
		MerchantStatus: "ready_for_complete",
		Currency:       "USD",
		LineItems: []domain.LineItem{
			{ID: "li_1", ItemID: "item_1", Title: "Widget", UnitPrice: 2599, Quantity: 1},
		},
		Subtotal: 2599,
		Total:    2597,
	}
}

// ============================================================================
// Discover
// ============================================================================

func TestDiscoverEndpoint_Success(t *testing.T) {
	transport := &stubTransport{
		discoverFn: func(_ context.Context, _ string) (*domain.MerchantProfile, error) {
			return &domain.MerchantProfile{
				UCPVersion: "2026-01-01",
				Capabilities: []domain.Capability{
					{Name: "dev.ucp.shopping.checkout", Version: "2026-01-01"},
				},
				PaymentHandlers: []domain.PaymentHandler{
					{ID: "mock_handler", Name: "Mock Payments", Version: "1.0"},
				},
			}, nil
		},
	}
	f := newFixture(transport)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/discover", map[string]string{
		"merchant_url": "https://merchant.example",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			UCPVersion string `json:"ucp_version"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "2026-01-01", envelope.Data.UCPVersion)
}

func TestDiscoverEndpoint_MissingURL(t *testing.T) {
	f := newFixture(&stubTransport{})

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/discover", map[string]string{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
}

func TestDiscoverEndpoint_MerchantUnreachable(t *testing.T) {
	transport := &stubTransport{
		discoverFn: func(_ context.Context, _ string) (*domain.MerchantProfile, error) {
			return nil, &ucp.TransportError{Kind: ucp.MerchantUnreachable, Operation: ucp.OpDiscover}
		},
	}
	f := newFixture(transport)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/discover", map[string]string{
		"merchant_url": "https://merchant.example",
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "MERCHANT_UNREACHABLE", errBody["code"])
}

// ============================================================================
// CreateCheckout
// ============================================================================

func createBody() map[string]any {
	return map[string]any{
		"merchant_url": "https://merchant.example",
		"items": []map[string]any{
			{"id": "item_1", "title": "Widget", "quantity": 1},
		},
		"buyer_name":  "Jane Doe",
		"buyer_email": "jane@example.com",
		"currency":    "USD",
	}
}

func TestCreateCheckoutEndpoint_Success(t *testing.T) {
	transport := &stubTransport{
		createFn: func(_ context.Context, _ string, req ucp.CreateCheckoutRequest) (*domain.CheckoutSession, error) {
			assert.Equal(t, "USD", req.Currency)
			return wireSession(), nil
		},
	}
	f := newFixture(transport)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts", createBody())

	require.Equal(t, http.StatusCreated, rec.Code)

	var envelope struct {
		Data struct {
			CheckoutID string `json:"checkout_id"`
			Status     string `json:"status"`
			Total      int64  `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "chk_1", envelope.Data.CheckoutID)
	assert.Equal(t, "created", envelope.Data.Status)
	assert.Equal(t, int64(2597), envelope.Data.Total)
}

func TestCreateCheckoutEndpoint_CurrencyDefaultsToUSD(t *testing.T) {
	transport := &stubTransport{
		createFn: func(_ context.Context, _ string, req ucp.CreateCheckoutRequest) (*domain.CheckoutSession, error) {
			assert.Equal(t, "USD", req.Currency)
			return wireSession(), nil
		},
	}
	f := newFixture(transport)

	body := createBody()
	delete(body, "currency")

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts", body)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateCheckoutEndpoint_InvalidBody(t *testing.T) {
	f := newFixture(&stubTransport{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ucp/checkouts", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", errBody["code"])
}

func TestCreateCheckoutEndpoint_ValidationFields(t *testing.T) {
	f := newFixture(&stubTransport{})

	body := createBody()
	body["currency"] = "DOLLARS"

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	fields, ok := errBody["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "Currency")
}

func TestCreateCheckoutEndpoint_MerchantRejected(t *testing.T) {
	transport := &stubTransport{
		createFn: func(_ context.Context, _ string, _ ucp.CreateCheckoutRequest) (*domain.CheckoutSession, error) {
			return nil, &ucp.TransportError{
				Kind:      ucp.MerchantRejected,
				Operation: ucp.OpCreateCheckout,
				Status:    422,
				Code:      "out_of_stock",
				Message:   "item item_1 is out of stock",
			}
		},
	}
	f := newFixture(transport)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts", createBody())

	// Merchant status and code pass through verbatim.
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "out_of_stock", errBody["code"])
	assert.Contains(t, errBody["message"], "out of stock")
}

// ============================================================================
// ApplyDiscounts
// ============================================================================

func TestApplyDiscountsEndpoint_SuccessWithWarnings(t *testing.T) {
	transport := &stubTransport{
		updateFn: func(_ context.Context, _ string, _ string, codes []string) (*domain.CheckoutSession, error) {
			session := wireSession()
			session.Discounts = []domain.AppliedDiscount{{Code: "SAVE10", AmountSaved: 260}}
			session.DiscountTotal = 260
			session.Total = 2339
			return session, nil
		},
	}
	f := newFixture(transport)
	f.seedSession(t, domain.StatusCreated)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/discounts", map[string]any{
		"merchant_url":   "https://merchant.example",
		"discount_codes": []string{"SAVE10", "EXPIRED"},
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Session struct {
				Status string `json:"status"`
				Total  int64  `json:"total"`
			} `json:"session"`
			Warnings []string `json:"warnings"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "updated", envelope.Data.Session.Status)
	assert.Equal(t, int64(2339), envelope.Data.Session.Total)
	require.Len(t, envelope.Data.Warnings, 1)
	assert.Contains(t, envelope.Data.Warnings[0], "EXPIRED")
}

func TestApplyDiscountsEndpoint_UnknownCheckout(t *testing.T) {
	f := newFixture(&stubTransport{})

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_missing/discounts", map[string]any{
		"merchant_url":   "https://merchant.example",
		"discount_codes": []string{"SAVE10"},
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "UNKNOWN_CHECKOUT", errBody["code"])
}

func TestApplyDiscountsEndpoint_InvalidTransition(t *testing.T) {
	f := newFixture(&stubTransport{})
	f.seedSession(t, domain.StatusCompleted)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/discounts", map[string]any{
		"merchant_url":   "https://merchant.example",
		"discount_codes": []string{"SAVE10"},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "INVALID_TRANSITION", errBody["code"])
}

func TestApplyDiscountsEndpoint_EmptyCodes(t *testing.T) {
	f := newFixture(&stubTransport{})
	f.seedSession(t, domain.StatusCreated)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/discounts", map[string]any{
		"merchant_url":   "https://merchant.example",
		"discount_codes": []string{},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
}

// ============================================================================
// SetFulfillment
// ============================================================================

func TestSetFulfillmentEndpoint_Success(t *testing.T) {
	offer := wireSession()
	offer.Fulfillment = &domain.Fulfillment{
		Addresses: []domain.FulfillmentAddress{{ID: "addr_1", FullName: "Jane Doe"}},
		Options:   []domain.DeliveryOption{{ID: "opt_standard", Title: "Standard", Price: 499}},
	}
	transport := &stubTransport{
		getFn: func(_ context.Context, _ string, _ string) (*domain.CheckoutSession, error) {
			return offer, nil
		},
		fulfillmentFn: func(_ context.Context, _ string, _ string, addressID, optionID string) (*domain.CheckoutSession, error) {
			session := wireSession()
			session.Fulfillment = &domain.Fulfillment{
				SelectedAddressID: addressID,
				SelectedOptionID:  optionID,
			}
			session.FulfillmentCost = 499
			session.Total = 3096
			return session, nil
		},
	}
	f := newFixture(transport)
	f.seedSession(t, domain.StatusUpdated)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/fulfillment", map[string]string{
		"merchant_url": "https://merchant.example",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Session struct {
				Status string `json:"status"`
			} `json:"session"`
			Selection struct {
				AddressID        string `json:"address_id"`
				DeliveryOptionID string `json:"delivery_option_id"`
				Cost             int64  `json:"cost"`
			} `json:"selection"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "fulfillment_set", envelope.Data.Session.Status)
	assert.Equal(t, "addr_1", envelope.Data.Selection.AddressID)
	assert.Equal(t, "opt_standard", envelope.Data.Selection.DeliveryOptionID)
	assert.Equal(t, int64(499), envelope.Data.Selection.Cost)
}

func TestSetFulfillmentEndpoint_NoOptions(t *testing.T) {
	transport := &stubTransport{
		getFn: func(_ context.Context, _ string, _ string) (*domain.CheckoutSession, error) {
			session := wireSession()
			session.Fulfillment = &domain.Fulfillment{
				Addresses: []domain.FulfillmentAddress{{ID: "addr_1"}},
			}
			return session, nil
		},
	}
	f := newFixture(transport)
	f.seedSession(t, domain.StatusCreated)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/fulfillment", map[string]string{
		"merchant_url": "https://merchant.example",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "NO_FULFILLMENT_OPTIONS", errBody["code"])
}

// ============================================================================
// CompleteCheckout
// ============================================================================

func completeBody() map[string]any {
	return map[string]any{
		"merchant_url":       "https://merchant.example",
		"payment_handler_id": "mock_handler",
		"card_token":         "tok_visa",
		"card_brand":         "visa",
		"card_last_digits":   "4242",
	}
}

func TestCompleteCheckoutEndpoint_Success(t *testing.T) {
	transport := &stubTransport{
		completeFn: func(_ context.Context, _ string, _ string, req ucp.CompletePaymentRequest) (*domain.CheckoutSession, error) {
			assert.Equal(t, "mock_handler", req.HandlerID)
			session := wireSession()
			session.MerchantStatus = "complete"
			session.Order = &domain.Order{OrderID: "ord_99", OrderURL: "https://merchant.example/orders/ord_99", FinalTotal: 2597}
			return session, nil
		},
	}
	f := newFixture(transport)
	f.seedSession(t, domain.StatusFulfillmentSet)
	require.NoError(t, f.profiles.Save(context.Background(), "https://merchant.example", &domain.MerchantProfile{
		UCPVersion:      "2026-01-01",
		PaymentHandlers: []domain.PaymentHandler{{ID: "mock_handler", Name: "Mock", Version: "1.0"}},
	}))

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/complete", completeBody())

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Status string `json:"status"`
			Order  struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "completed", envelope.Data.Status)
	assert.Equal(t, "ord_99", envelope.Data.Order.OrderID)
}

func TestCompleteCheckoutEndpoint_UnknownHandler(t *testing.T) {
	f := newFixture(&stubTransport{})
	f.seedSession(t, domain.StatusFulfillmentSet)
	require.NoError(t, f.profiles.Save(context.Background(), "https://merchant.example", &domain.MerchantProfile{
		UCPVersion: "2026-01-01",
	}))

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/complete", completeBody())

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "UNKNOWN_PAYMENT_HANDLER", errBody["code"])
}

func TestCompleteCheckoutEndpoint_WrongState(t *testing.T) {
	f := newFixture(&stubTransport{})
	f.seedSession(t, domain.StatusCreated)

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/complete", completeBody())

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "INVALID_TRANSITION", errBody["code"])
}

func TestCompleteCheckoutEndpoint_PaymentDeclined(t *testing.T) {
	transport := &stubTransport{
		completeFn: func(_ context.Context, _ string, _ string, _ ucp.CompletePaymentRequest) (*domain.CheckoutSession, error) {
			return nil, &ucp.TransportError{
				Kind:      ucp.MerchantRejected,
				Operation: ucp.OpCompleteCheckout,
				Status:    402,
				Code:      "card_declined",
				Message:   "insufficient funds",
			}
		},
	}
	f := newFixture(transport)
	f.seedSession(t, domain.StatusFulfillmentSet)
	require.NoError(t, f.profiles.Save(context.Background(), "https://merchant.example", &domain.MerchantProfile{
		UCPVersion:      "2026-01-01",
		PaymentHandlers: []domain.PaymentHandler{{ID: "mock_handler", Name: "Mock", Version: "1.0"}},
	}))

	rec := f.do(t, http.MethodPost, "/api/v1/ucp/checkouts/chk_1/complete", completeBody())

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "card_declined", errBody["code"])
	assert.Contains(t, errBody["message"], "insufficient funds")
}

// ============================================================================
// Middleware
// ============================================================================

func TestContentTypeJSON_RejectsNonJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ucp/discover", bytes.NewBufferString("merchant_url=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestContentTypeJSON_AllowsEmptyBody(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ucp/checkouts/chk_1/fulfillment", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
