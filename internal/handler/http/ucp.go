package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nguthrie/ucp-agent/internal/service"
	"github.com/nguthrie/ucp-agent/pkg/httputil"
	"github.com/nguthrie/ucp-agent/pkg/validator"
)

// UCPHandler handles HTTP requests for the UCP tool adapter endpoints.
type UCPHandler struct {
	orchestrator *service.Orchestrator
	logger       *slog.Logger
}

// NewUCPHandler creates a new UCP tool adapter HTTP handler.
func NewUCPHandler(orch *service.Orchestrator, logger *slog.Logger) *UCPHandler {
	return &UCPHandler{
		orchestrator: orch,
		logger:       logger,
	}
}

// --- Request DTOs ---

// DiscoverRequest is the JSON request body for merchant discovery.
type DiscoverRequest struct {
	MerchantURL string `json:"merchant_url" validate:"required,url"`
}

// CreateCheckoutRequest is the JSON request body for creating a checkout.
type CreateCheckoutRequest struct {
	MerchantURL string              `json:"merchant_url" validate:"required,url"`
	Items       []CheckoutItemInput `json:"items" validate:"required,min=1,dive"`
	BuyerName   string              `json:"buyer_name"`
	BuyerEmail  string              `json:"buyer_email" validate:"omitempty,email"`
	Currency    string              `json:"currency" validate:"omitempty,len=3"`
}

// CheckoutItemInput represents a single item in the create checkout request.
type CheckoutItemInput struct {
	ID       string `json:"id" validate:"required"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// ApplyDiscountsRequest is the JSON request body for applying discount codes.
type ApplyDiscountsRequest struct {
	MerchantURL   string   `json:"merchant_url" validate:"required,url"`
	DiscountCodes []string `json:"discount_codes" validate:"required,min=1,dive,required"`
}

// SetFulfillmentRequest is the JSON request body for setting fulfillment.
type SetFulfillmentRequest struct {
	MerchantURL string `json:"merchant_url" validate:"required,url"`
}

// CompleteCheckoutRequest is the JSON request body for completing a checkout.
type CompleteCheckoutRequest struct {
	MerchantURL      string `json:"merchant_url" validate:"required,url"`
	PaymentHandlerID string `json:"payment_handler_id" validate:"required"`
	CardToken        string `json:"card_token" validate:"required"`
	CardBrand        string `json:"card_brand"`
	CardLastDigits   string `json:"card_last_digits" validate:"omitempty,len=4,numeric"`
}

// --- Response DTOs ---

// ApplyDiscountsResponse wraps the updated session with per-code warnings.
type ApplyDiscountsResponse struct {
	Session  any      `json:"session"`
	Warnings []string `json:"warnings,omitempty"`
}

// SetFulfillmentResponse wraps the updated session with the auto-selected
// address and delivery option.
type SetFulfillmentResponse struct {
	Session   any `json:"session"`
	Selection any `json:"selection"`
}

// --- Handlers ---

// Discover handles POST /api/v1/ucp/discover
// @Summary Discover a UCP merchant
// @Description Fetches the merchant's UCP profile (capabilities and payment handlers) and caches it.
// @Tags ucp
// @Accept json
// @Produce json
// @Param request body DiscoverRequest true "Merchant discovery data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/ucp/discover [post]
func (h *UCPHandler) Discover(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	profile, err := h.orchestrator.Discover(r.Context(), req.MerchantURL)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: profile})
}

// CreateCheckout handles POST /api/v1/ucp/checkouts
// @Summary Create a checkout session
// @Description Creates a checkout at the merchant for the requested items. Totals come from the merchant.
// @Tags ucp
// @Accept json
// @Produce json
// @Param request body CreateCheckoutRequest true "Checkout creation data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/ucp/checkouts [post]
func (h *UCPHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	// Currency is optional on the wire; USD is the default.
	if req.Currency == "" {
		req.Currency = "USD"
	}

	items := make([]service.ItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.ItemInput{
			ID:       item.ID,
			Title:    item.Title,
			Quantity: item.Quantity,
		}
	}

	session, err := h.orchestrator.CreateCheckout(r.Context(), service.CreateCheckoutInput{
		MerchantURL: req.MerchantURL,
		Items:       items,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		Currency:    req.Currency,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: session})
}

// ApplyDiscounts handles POST /api/v1/ucp/checkouts/{id}/discounts
// @Summary Apply discount codes
// @Description Submits discount codes to the merchant. Codes the merchant declines are returned as warnings.
// @Tags ucp
// @Accept json
// @Produce json
// @Param id path string true "Checkout session ID"
// @Param request body ApplyDiscountsRequest true "Discount codes"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/ucp/checkouts/{id}/discounts [post]
func (h *UCPHandler) ApplyDiscounts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "checkout id is required"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ApplyDiscountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.orchestrator.ApplyDiscounts(r.Context(), id, req.MerchantURL, req.DiscountCodes)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ApplyDiscountsResponse{
		Session:  result.Session,
		Warnings: result.Warnings,
	}})
}

// SetFulfillment handles POST /api/v1/ucp/checkouts/{id}/fulfillment
// @Summary Set fulfillment
// @Description Auto-selects a shipping address and delivery option from the merchant's offer and records it.
// @Tags ucp
// @Accept json
// @Produce json
// @Param id path string true "Checkout session ID"
// @Param request body SetFulfillmentRequest true "Merchant reference"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/ucp/checkouts/{id}/fulfillment [post]
func (h *UCPHandler) SetFulfillment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "checkout id is required"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SetFulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.orchestrator.SetFulfillment(r.Context(), id, req.MerchantURL)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SetFulfillmentResponse{
		Session:   result.Session,
		Selection: result.Selection,
	}})
}

// CompleteCheckout handles POST /api/v1/ucp/checkouts/{id}/complete
// @Summary Complete a checkout
// @Description Finalizes the checkout with a payment handler advertised by the merchant's UCP profile.
// @Tags ucp
// @Accept json
// @Produce json
// @Param id path string true "Checkout session ID"
// @Param request body CompleteCheckoutRequest true "Payment data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/ucp/checkouts/{id}/complete [post]
func (h *UCPHandler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "checkout id is required"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CompleteCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.orchestrator.CompleteCheckout(r.Context(), id, req.MerchantURL, service.CompletePaymentInput{
		HandlerID:      req.PaymentHandlerID,
		CardToken:      req.CardToken,
		CardBrand:      req.CardBrand,
		CardLastDigits: req.CardLastDigits,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}
