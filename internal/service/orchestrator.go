package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nguthrie/ucp-agent/internal/domain"
	"github.com/nguthrie/ucp-agent/internal/repository"
	"github.com/nguthrie/ucp-agent/internal/ucp"
)

// Transport is the UCP wire client used by the orchestrator.
// *ucp.Client satisfies this.
type Transport interface {
	Discover(ctx context.Context, baseURL string) (*domain.MerchantProfile, error)
	CreateCheckout(ctx context.Context, baseURL string, req ucp.CreateCheckoutRequest) (*domain.CheckoutSession, error)
	GetCheckout(ctx context.Context, baseURL, checkoutID string) (*domain.CheckoutSession, error)
	UpdateCheckout(ctx context.Context, baseURL, checkoutID string, discountCodes []string) (*domain.CheckoutSession, error)
	SetFulfillment(ctx context.Context, baseURL, checkoutID, addressID, optionID string) (*domain.CheckoutSession, error)
	CompleteCheckout(ctx context.Context, baseURL, checkoutID string, req ucp.CompletePaymentRequest) (*domain.CheckoutSession, error)
}

// EventPublisher publishes checkout lifecycle events. *event.Producer
// satisfies this; a nil publisher disables events.
type EventPublisher interface {
	PublishCheckoutCreated(ctx context.Context, merchantURL string, session *domain.CheckoutSession) error
	PublishCheckoutCompleted(ctx context.Context, merchantURL string, session *domain.CheckoutSession) error
}

// Orchestrator drives checkouts through the UCP lifecycle
// (discover -> create -> update -> set fulfillment -> complete). All
// precondition checks run locally before any HTTP is issued, and local state
// mutates only after a successful, fully parsed merchant response. The
// orchestrator never retries; callers own retry policy.
type Orchestrator struct {
	transport Transport
	sessions  repository.SessionStore
	profiles  repository.ProfileStore
	publisher EventPublisher
	policy    FulfillmentPolicy
	logger    *slog.Logger
}

// NewOrchestrator creates a checkout orchestrator. A nil policy defaults to
// FirstAvailable; a nil publisher disables lifecycle events.
func NewOrchestrator(
	transport Transport,
	sessions repository.SessionStore,
	profiles repository.ProfileStore,
	publisher EventPublisher,
	policy FulfillmentPolicy,
	logger *slog.Logger,
) *Orchestrator {
	if policy == nil {
		policy = FirstAvailable
	}
	return &Orchestrator{
		transport: transport,
		sessions:  sessions,
		profiles:  profiles,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
	}
}

// CreateCheckoutInput holds the parameters for creating a checkout.
type CreateCheckoutInput struct {
	MerchantURL string
	Items       []ItemInput
	BuyerName   string
	BuyerEmail  string
	Currency    string
}

// ItemInput is one requested item at checkout creation.
type ItemInput struct {
	ID       string
	Title    string
	Quantity int
}

// CompletePaymentInput holds the opaque payment fields for completing a
// checkout. The card fields pass through to the merchant and are never
// stored locally.
type CompletePaymentInput struct {
	HandlerID      string
	CardToken      string
	CardBrand      string
	CardLastDigits string
}

// ApplyDiscountsResult is the outcome of an ApplyDiscounts call. Warnings
// list requested codes the merchant did not apply; they are non-fatal.
type ApplyDiscountsResult struct {
	Session  *domain.CheckoutSession
	Warnings []string
}

// SetFulfillmentResult is the outcome of a SetFulfillment call.
type SetFulfillmentResult struct {
	Session   *domain.CheckoutSession
	Selection domain.FulfillmentSelection
}

// Discover fetches a merchant's UCP profile and caches it for later handler
// checks. It has no session side effects and is idempotent.
func (o *Orchestrator) Discover(ctx context.Context, merchantURL string) (*domain.MerchantProfile, error) {
	if merchantURL == "" {
		return nil, invalidArgument("merchant_url is required")
	}

	profile, err := o.transport.Discover(ctx, merchantURL)
	if err != nil {
		return nil, err
	}

	// The profile cache is advisory: a store failure must not hide a
	// successful discovery from the caller.
	if err := o.profiles.Save(ctx, ucp.NormalizeBaseURL(merchantURL), profile); err != nil {
		o.logger.WarnContext(ctx, "failed to cache merchant profile",
			slog.String("merchant_url", merchantURL),
			slog.String("error", err.Error()),
		)
	}

	return profile, nil
}

// CreateCheckout creates a new checkout session at the merchant and records
// it locally in the created state. Totals come from the merchant response;
// the orchestrator performs no price arithmetic.
func (o *Orchestrator) CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*domain.CheckoutSession, error) {
	if input.MerchantURL == "" {
		return nil, invalidArgument("merchant_url is required")
	}
	if len(input.Items) == 0 {
		return nil, invalidArgument("at least one item is required")
	}
	for i, item := range input.Items {
		if item.ID == "" {
			return nil, invalidArgument(fmt.Sprintf("item %d: id is required", i))
		}
		if item.Quantity <= 0 {
			return nil, invalidArgument(fmt.Sprintf("item %d: quantity must be greater than 0", i))
		}
	}
	if !domain.ValidCurrencyCode(input.Currency) {
		return nil, invalidArgument("currency must be a 3-letter ISO code")
	}

	req := ucp.CreateCheckoutRequest{
		Items:      make([]ucp.CheckoutItemInput, len(input.Items)),
		BuyerName:  input.BuyerName,
		BuyerEmail: input.BuyerEmail,
		Currency:   input.Currency,
	}
	for i, item := range input.Items {
		req.Items[i] = ucp.CheckoutItemInput{ID: item.ID, Title: item.Title, Quantity: item.Quantity}
	}

	session, err := o.transport.CreateCheckout(ctx, input.MerchantURL, req)
	if err != nil {
		return nil, err
	}
	session.Status = domain.StatusCreated

	if err := o.saveState(ctx, input.MerchantURL, session); err != nil {
		return nil, err
	}

	if o.publisher != nil {
		if err := o.publisher.PublishCheckoutCreated(ctx, input.MerchantURL, session); err != nil {
			o.logger.ErrorContext(ctx, "failed to publish checkout.created event",
				slog.String("checkout_id", session.CheckoutID),
				slog.String("error", err.Error()),
			)
		}
	}

	o.logger.InfoContext(ctx, "checkout created",
		slog.String("checkout_id", session.CheckoutID),
		slog.String("merchant_url", input.MerchantURL),
		slog.String("currency", session.Currency),
		slog.Int64("total", session.Total),
	)

	return session, nil
}

// ApplyDiscounts submits discount codes, in the caller's order, to the
// merchant. The merchant is authoritative for validity and amounts; codes it
// declines surface as warnings, not errors.
func (o *Orchestrator) ApplyDiscounts(ctx context.Context, checkoutID, merchantURL string, codes []string) (*ApplyDiscountsResult, error) {
	if len(codes) == 0 {
		return nil, invalidArgument("at least one discount code is required")
	}
	for i, code := range codes {
		if code == "" {
			return nil, invalidArgument(fmt.Sprintf("discount code %d is empty", i))
		}
	}

	state, err := o.getState(ctx, checkoutID, merchantURL)
	if err != nil {
		return nil, err
	}
	if !state.Status.CanAdvanceTo(domain.StatusUpdated) {
		return nil, invalidTransition(fmt.Sprintf("cannot apply discounts in state %q", state.Status))
	}

	session, err := o.transport.UpdateCheckout(ctx, state.MerchantURL, checkoutID, codes)
	if err != nil {
		return nil, err
	}
	if err := o.checkCurrency(state, session); err != nil {
		return nil, err
	}
	session.Status = domain.StatusUpdated

	var warnings []string
	for _, code := range codes {
		if !discountApplied(session, code) {
			warnings = append(warnings, fmt.Sprintf("discount code %q was not applied by the merchant", code))
		}
	}

	state.Status = domain.StatusUpdated
	state.Total = session.Total
	state.UpdatedAt = time.Now().UTC()
	if err := o.sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save session state: %w", err)
	}

	o.logger.InfoContext(ctx, "discounts applied",
		slog.String("checkout_id", checkoutID),
		slog.Int("codes", len(codes)),
		slog.Int("warnings", len(warnings)),
		slog.Int64("discount_total", session.DiscountTotal),
		slog.Int64("total", session.Total),
	)

	return &ApplyDiscountsResult{Session: session, Warnings: warnings}, nil
}

// SetFulfillment fetches the merchant's fulfillment offer, auto-selects an
// address and delivery option via the configured policy, and records the
// selection at the merchant.
func (o *Orchestrator) SetFulfillment(ctx context.Context, checkoutID, merchantURL string) (*SetFulfillmentResult, error) {
	state, err := o.getState(ctx, checkoutID, merchantURL)
	if err != nil {
		return nil, err
	}
	if !state.Status.CanAdvanceTo(domain.StatusFulfillmentSet) {
		return nil, invalidTransition(fmt.Sprintf("cannot set fulfillment in state %q", state.Status))
	}

	current, err := o.transport.GetCheckout(ctx, state.MerchantURL, checkoutID)
	if err != nil {
		return nil, err
	}
	if err := o.checkCurrency(state, current); err != nil {
		return nil, err
	}

	selection, err := o.policy(current.Fulfillment)
	if err != nil {
		return nil, err
	}

	session, err := o.transport.SetFulfillment(ctx, state.MerchantURL, checkoutID, selection.AddressID, selection.DeliveryOptionID)
	if err != nil {
		return nil, err
	}
	if err := o.checkCurrency(state, session); err != nil {
		return nil, err
	}
	session.Status = domain.StatusFulfillmentSet

	state.Status = domain.StatusFulfillmentSet
	state.Total = session.Total
	state.UpdatedAt = time.Now().UTC()
	if err := o.sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save session state: %w", err)
	}

	o.logger.InfoContext(ctx, "fulfillment set",
		slog.String("checkout_id", checkoutID),
		slog.String("address_id", selection.AddressID),
		slog.String("option_id", selection.DeliveryOptionID),
		slog.Int64("cost", selection.Cost),
		slog.Int64("total", session.Total),
	)

	return &SetFulfillmentResult{Session: session, Selection: selection}, nil
}

// CompleteCheckout finalizes the checkout with the given payment handler.
// The handler must have been advertised by a prior Discover of this
// merchant; the card fields are opaque pass-through values.
func (o *Orchestrator) CompleteCheckout(ctx context.Context, checkoutID, merchantURL string, payment CompletePaymentInput) (*domain.CheckoutSession, error) {
	if payment.HandlerID == "" {
		return nil, invalidArgument("payment_handler_id is required")
	}
	if payment.CardToken == "" {
		return nil, invalidArgument("card_token is required")
	}

	state, err := o.getState(ctx, checkoutID, merchantURL)
	if err != nil {
		return nil, err
	}
	if !state.Status.CanAdvanceTo(domain.StatusCompleted) {
		return nil, invalidTransition(fmt.Sprintf("cannot complete checkout in state %q; fulfillment must be set first", state.Status))
	}

	profile, err := o.profiles.Get(ctx, state.MerchantURL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unknownPaymentHandler("merchant has not been discovered; call discover before completing")
		}
		return nil, fmt.Errorf("get merchant profile: %w", err)
	}
	if _, ok := profile.HandlerByID(payment.HandlerID); !ok {
		return nil, unknownPaymentHandler(fmt.Sprintf("payment handler %q is not advertised by this merchant", payment.HandlerID))
	}

	session, err := o.transport.CompleteCheckout(ctx, state.MerchantURL, checkoutID, ucp.CompletePaymentRequest{
		HandlerID:      payment.HandlerID,
		CardToken:      payment.CardToken,
		CardBrand:      payment.CardBrand,
		CardLastDigits: payment.CardLastDigits,
	})
	if err != nil {
		return nil, err
	}
	if err := o.checkCurrency(state, session); err != nil {
		return nil, err
	}
	session.Status = domain.StatusCompleted

	state.Status = domain.StatusCompleted
	state.Total = session.Total
	state.UpdatedAt = time.Now().UTC()
	if err := o.sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save session state: %w", err)
	}

	if o.publisher != nil {
		if err := o.publisher.PublishCheckoutCompleted(ctx, state.MerchantURL, session); err != nil {
			o.logger.ErrorContext(ctx, "failed to publish checkout.completed event",
				slog.String("checkout_id", session.CheckoutID),
				slog.String("error", err.Error()),
			)
		}
	}

	orderID := ""
	if session.Order != nil {
		orderID = session.Order.OrderID
	}
	o.logger.InfoContext(ctx, "checkout completed",
		slog.String("checkout_id", session.CheckoutID),
		slog.String("order_id", orderID),
		slog.Int64("total", session.Total),
	)

	return session, nil
}

// getState loads local session state, mapping a missing entry to
// UnknownCheckout. The caller-supplied merchant URL must match the one the
// checkout was created against.
func (o *Orchestrator) getState(ctx context.Context, checkoutID, merchantURL string) (*repository.SessionState, error) {
	if checkoutID == "" {
		return nil, invalidArgument("checkout_id is required")
	}
	if merchantURL == "" {
		return nil, invalidArgument("merchant_url is required")
	}
	state, err := o.sessions.Get(ctx, checkoutID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unknownCheckout(checkoutID)
		}
		return nil, fmt.Errorf("get session state: %w", err)
	}
	if ucp.NormalizeBaseURL(merchantURL) != state.MerchantURL {
		return nil, invalidArgument("merchant_url does not match the checkout's merchant")
	}
	return state, nil
}

// saveState records a freshly created session locally.
func (o *Orchestrator) saveState(ctx context.Context, merchantURL string, session *domain.CheckoutSession) error {
	state := &repository.SessionState{
		CheckoutID:  session.CheckoutID,
		MerchantURL: ucp.NormalizeBaseURL(merchantURL),
		Status:      session.Status,
		Currency:    session.Currency,
		Total:       session.Total,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := o.sessions.Save(ctx, state); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// checkCurrency rejects a merchant response that switches currency
// mid-lifecycle. Currency is fixed when the checkout is created.
func (o *Orchestrator) checkCurrency(state *repository.SessionState, session *domain.CheckoutSession) error {
	if session.Currency != state.Currency {
		return &ucp.TransportError{
			Kind:      ucp.InvalidResponse,
			Operation: "currency_check",
			Err:       fmt.Errorf("merchant switched currency from %s to %s", state.Currency, session.Currency),
		}
	}
	return nil
}

func discountApplied(session *domain.CheckoutSession, code string) bool {
	for _, d := range session.Discounts {
		if d.Code == code {
			return true
		}
	}
	return false
}
