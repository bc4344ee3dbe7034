package ucp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nguthrie/ucp-agent/internal/domain"
)

const (
	discoveryPath = "/.well-known/ucp"
	sessionsPath  = "/checkout-sessions"

	// agentProfile identifies this agent to merchants on write requests.
	agentProfile = `profile="https://github.com/nguthrie/ucp-agent/profile"`

	// maxErrorBodyLen caps how much of a merchant error body is carried
	// verbatim into error messages.
	maxErrorBodyLen = 512
)

// Operation names used in errors, logs, and metrics.
const (
	OpDiscover         = "discover"
	OpCreateCheckout   = "create_checkout"
	OpGetCheckout      = "get_checkout"
	OpUpdateCheckout   = "update_checkout"
	OpSetFulfillment   = "set_fulfillment"
	OpCompleteCheckout = "complete_checkout"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client speaks the UCP wire protocol to merchants. Each operation is exactly
// one HTTP round trip; retry policy belongs to the caller because UCP write
// operations are not guaranteed idempotent.
type Client struct {
	httpClient HTTPDoer
	logger     *slog.Logger
}

// NewClient creates a UCP transport client on top of the given HTTP client.
func NewClient(httpClient HTTPDoer, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// CheckoutItemInput is one item requested at checkout creation.
type CheckoutItemInput struct {
	ID       string
	Title    string
	Quantity int
}

// CreateCheckoutRequest holds the parameters for creating a checkout session.
type CreateCheckoutRequest struct {
	Items      []CheckoutItemInput
	BuyerName  string
	BuyerEmail string
	Currency   string
}

// CompletePaymentRequest holds the opaque payment fields for completing a
// checkout. The card fields pass through to the merchant and are never stored.
type CompletePaymentRequest struct {
	HandlerID      string
	CardToken      string
	CardBrand      string
	CardLastDigits string
}

// Discover fetches and validates a merchant's UCP discovery document.
func (c *Client) Discover(ctx context.Context, baseURL string) (*domain.MerchantProfile, error) {
	op := OpDiscover
	start := time.Now()

	raw, err := c.execute(ctx, op, http.MethodGet, NormalizeBaseURL(baseURL)+discoveryPath, nil, false)
	var profile *domain.MerchantProfile
	if err == nil {
		profile, err = domain.ParseMerchantProfile(raw)
		if err != nil {
			err = &TransportError{Kind: InvalidResponse, Operation: op, Err: err}
		}
	}
	c.observe(op, start, err)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "merchant discovered",
		slog.String("merchant_url", baseURL),
		slog.String("ucp_version", profile.UCPVersion),
		slog.Int("payment_handlers", len(profile.PaymentHandlers)),
	)

	return profile, nil
}

// CreateCheckout creates a new checkout session at the merchant.
func (c *Client) CreateCheckout(ctx context.Context, baseURL string, req CreateCheckoutRequest) (*domain.CheckoutSession, error) {
	type lineItemPayload struct {
		Item struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"item"`
		Quantity int `json:"quantity"`
	}

	payload := struct {
		LineItems []lineItemPayload `json:"line_items"`
		Buyer     struct {
			FullName string `json:"full_name"`
			Email    string `json:"email"`
		} `json:"buyer"`
		Currency string `json:"currency"`
		Payment  struct {
			Instruments []any `json:"instruments"`
			Handlers    []any `json:"handlers"`
		} `json:"payment"`
	}{
		LineItems: make([]lineItemPayload, len(req.Items)),
		Currency:  req.Currency,
	}
	payload.Buyer.FullName = req.BuyerName
	payload.Buyer.Email = req.BuyerEmail
	payload.Payment.Instruments = []any{}
	payload.Payment.Handlers = []any{}

	for i, item := range req.Items {
		payload.LineItems[i].Item.ID = item.ID
		payload.LineItems[i].Item.Title = item.Title
		payload.LineItems[i].Quantity = item.Quantity
	}

	session, err := c.doSession(ctx, OpCreateCheckout, http.MethodPost, NormalizeBaseURL(baseURL)+sessionsPath, payload)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "checkout session created",
		slog.String("checkout_id", session.CheckoutID),
		slog.Int64("total", session.Total),
	)

	return session, nil
}

// GetCheckout fetches the current state of a checkout session.
func (c *Client) GetCheckout(ctx context.Context, baseURL, checkoutID string) (*domain.CheckoutSession, error) {
	url := NormalizeBaseURL(baseURL) + sessionsPath + "/" + checkoutID
	return c.doSession(ctx, OpGetCheckout, http.MethodGet, url, nil)
}

// UpdateCheckout applies discount codes to a checkout session. The merchant
// is authoritative for code validity and discount amounts.
func (c *Client) UpdateCheckout(ctx context.Context, baseURL, checkoutID string, discountCodes []string) (*domain.CheckoutSession, error) {
	payload := struct {
		ID        string `json:"id"`
		Discounts struct {
			Codes []string `json:"codes"`
		} `json:"discounts"`
	}{ID: checkoutID}
	payload.Discounts.Codes = discountCodes

	url := NormalizeBaseURL(baseURL) + sessionsPath + "/" + checkoutID
	session, err := c.doSession(ctx, OpUpdateCheckout, http.MethodPut, url, payload)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "checkout session updated",
		slog.String("checkout_id", session.CheckoutID),
		slog.Int64("discount_total", session.DiscountTotal),
		slog.Int64("total", session.Total),
	)

	return session, nil
}

// SetFulfillment records the chosen address and delivery option on a session.
func (c *Client) SetFulfillment(ctx context.Context, baseURL, checkoutID, addressID, optionID string) (*domain.CheckoutSession, error) {
	payload := struct {
		ID          string `json:"id"`
		Fulfillment struct {
			SelectedAddressID string `json:"selected_address_id"`
			SelectedOptionID  string `json:"selected_option_id"`
		} `json:"fulfillment"`
	}{ID: checkoutID}
	payload.Fulfillment.SelectedAddressID = addressID
	payload.Fulfillment.SelectedOptionID = optionID

	url := NormalizeBaseURL(baseURL) + sessionsPath + "/" + checkoutID
	session, err := c.doSession(ctx, OpSetFulfillment, http.MethodPut, url, payload)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fulfillment set",
		slog.String("checkout_id", session.CheckoutID),
		slog.String("address_id", addressID),
		slog.String("option_id", optionID),
		slog.Int64("total", session.Total),
	)

	return session, nil
}

// CompleteCheckout finalizes a checkout session with the given payment.
func (c *Client) CompleteCheckout(ctx context.Context, baseURL, checkoutID string, req CompletePaymentRequest) (*domain.CheckoutSession, error) {
	type instrumentPayload struct {
		Type       string `json:"type"`
		HandlerID  string `json:"handler_id"`
		Token      string `json:"token"`
		Brand      string `json:"brand,omitempty"`
		LastDigits string `json:"last_digits,omitempty"`
	}

	payload := struct {
		Payment struct {
			HandlerID   string              `json:"handler_id"`
			Instruments []instrumentPayload `json:"instruments"`
		} `json:"payment"`
	}{}
	payload.Payment.HandlerID = req.HandlerID
	payload.Payment.Instruments = []instrumentPayload{{
		Type:       "card",
		HandlerID:  req.HandlerID,
		Token:      req.CardToken,
		Brand:      req.CardBrand,
		LastDigits: req.CardLastDigits,
	}}

	url := NormalizeBaseURL(baseURL) + sessionsPath + "/" + checkoutID + "/complete"
	session, err := c.doSession(ctx, OpCompleteCheckout, http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "checkout session completed",
		slog.String("checkout_id", session.CheckoutID),
		slog.Int64("total", session.Total),
	)

	return session, nil
}

// doSession executes one round trip and parses the body as a checkout session.
func (c *Client) doSession(ctx context.Context, op, method, url string, payload any) (*domain.CheckoutSession, error) {
	start := time.Now()

	raw, err := c.execute(ctx, op, method, url, payload, true)
	var session *domain.CheckoutSession
	if err == nil {
		session, err = domain.ParseCheckoutSession(raw)
		if err != nil {
			err = &TransportError{Kind: InvalidResponse, Operation: op, Err: err}
		}
	}
	c.observe(op, start, err)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// execute performs a single HTTP round trip and returns the raw 2xx body.
// There are no retries here: one call, one request.
func (c *Client) execute(ctx context.Context, op, method, url string, payload any, write bool) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if write {
		c.setWriteHeaders(req)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, &TransportError{Kind: MerchantUnreachable, Operation: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: MerchantUnreachable, Operation: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, rejectionError(op, resp.StatusCode, raw)
	}

	return raw, nil
}

// setWriteHeaders adds the UCP write-request headers. Idempotency-Key and
// Request-Id are fresh UUIDs per request.
func (c *Client) setWriteHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("UCP-Agent", agentProfile)
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("Request-Id", uuid.New().String())
}

func (c *Client) observe(op string, start time.Time, err error) {
	clientRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	outcome := outcomeSuccess
	var terr *TransportError
	switch {
	case err == nil:
	case errors.As(err, &terr):
		switch terr.Kind {
		case MerchantUnreachable:
			outcome = outcomeUnreachable
		case MerchantRejected:
			outcome = outcomeRejected
		case InvalidResponse:
			outcome = outcomeInvalidResponse
		}
	default:
		outcome = outcomeError
	}
	clientRequestsTotal.WithLabelValues(op, outcome).Inc()
}

// rejectionError builds a MerchantRejected error, preserving the merchant's
// code and message verbatim. The expected body shape is
// {"error": {"code": "...", "message": "..."}}; anything else falls back to
// the raw body.
func rejectionError(op string, status int, body []byte) *TransportError {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	terr := &TransportError{Kind: MerchantRejected, Operation: op, Status: status}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		terr.Code = envelope.Error.Code
		terr.Message = envelope.Error.Message
		return terr
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyLen {
		// Back off to a rune boundary so the cut never splits a UTF-8
		// sequence in the merchant's message.
		n := maxErrorBodyLen
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n]
	}
	terr.Message = msg
	return terr
}

// NormalizeBaseURL trims the trailing slash so path joins are stable.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
