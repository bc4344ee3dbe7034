package service

import "net/http"

// OrchestrationErrorKind classifies local precondition failures. None of
// these involve a network call: they are raised before any HTTP is issued.
type OrchestrationErrorKind string

const (
	// InvalidTransition means the requested operation is not legal from the
	// session's current lifecycle position.
	InvalidTransition OrchestrationErrorKind = "invalid_transition"

	// NoFulfillmentOptions means the merchant offered zero eligible
	// addresses or delivery options for auto-selection.
	NoFulfillmentOptions OrchestrationErrorKind = "no_fulfillment_options"

	// UnknownPaymentHandler means the requested handler was not advertised
	// by a prior discovery of this merchant.
	UnknownPaymentHandler OrchestrationErrorKind = "unknown_payment_handler"

	// InvalidArgument means the caller's input failed local validation.
	InvalidArgument OrchestrationErrorKind = "invalid_argument"

	// UnknownCheckout means the checkout id has no local session state.
	UnknownCheckout OrchestrationErrorKind = "unknown_checkout"
)

// OrchestrationError is a precondition failure raised by the orchestrator.
type OrchestrationError struct {
	Kind    OrchestrationErrorKind
	Message string
}

func (e *OrchestrationError) Error() string {
	return e.Message
}

// HTTPStatus maps the failure onto the tool adapter's response status.
func (e *OrchestrationError) HTTPStatus() int {
	switch e.Kind {
	case InvalidTransition:
		return http.StatusConflict
	case NoFulfillmentOptions:
		return http.StatusUnprocessableEntity
	case UnknownCheckout:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// ErrorCode returns the stable machine-readable code for the failure.
func (e *OrchestrationError) ErrorCode() string {
	switch e.Kind {
	case InvalidTransition:
		return "INVALID_TRANSITION"
	case NoFulfillmentOptions:
		return "NO_FULFILLMENT_OPTIONS"
	case UnknownPaymentHandler:
		return "UNKNOWN_PAYMENT_HANDLER"
	case UnknownCheckout:
		return "UNKNOWN_CHECKOUT"
	default:
		return "INVALID_ARGUMENT"
	}
}

func invalidTransition(msg string) *OrchestrationError {
	return &OrchestrationError{Kind: InvalidTransition, Message: msg}
}

func invalidArgument(msg string) *OrchestrationError {
	return &OrchestrationError{Kind: InvalidArgument, Message: msg}
}

func unknownCheckout(checkoutID string) *OrchestrationError {
	return &OrchestrationError{Kind: UnknownCheckout, Message: "unknown checkout: " + checkoutID}
}

func unknownPaymentHandler(msg string) *OrchestrationError {
	return &OrchestrationError{Kind: UnknownPaymentHandler, Message: msg}
}
