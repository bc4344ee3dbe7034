package ucp

import (
	"fmt"
	"net/http"
)

// TransportErrorKind classifies how a UCP round trip failed.
type TransportErrorKind string

const (
	// MerchantUnreachable covers connection, dial, and timeout failures.
	// The request may never have reached the merchant; callers that want
	// retries apply their own backoff.
	MerchantUnreachable TransportErrorKind = "merchant_unreachable"

	// InvalidResponse covers 2xx responses whose body is not JSON or does
	// not match the UCP schema.
	InvalidResponse TransportErrorKind = "invalid_response"

	// MerchantRejected covers any response with status >= 400. The
	// merchant's status, code, and message are preserved verbatim.
	MerchantRejected TransportErrorKind = "merchant_rejected"
)

// TransportError is the failure result of a single UCP round trip.
type TransportError struct {
	Kind      TransportErrorKind
	Operation string
	Status    int    // HTTP status, set for MerchantRejected
	Code      string // merchant error code, verbatim
	Message   string // merchant error message, verbatim
	Err       error  // underlying cause
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case MerchantUnreachable:
		return fmt.Sprintf("ucp %s: merchant unreachable: %v", e.Operation, e.Err)
	case InvalidResponse:
		return fmt.Sprintf("ucp %s: invalid merchant response: %v", e.Operation, e.Err)
	case MerchantRejected:
		if e.Code != "" {
			return fmt.Sprintf("ucp %s: merchant rejected request (%d %s): %s", e.Operation, e.Status, e.Code, e.Message)
		}
		return fmt.Sprintf("ucp %s: merchant rejected request (%d): %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("ucp %s: transport error", e.Operation)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the transport failure onto the tool adapter's response
// status. Merchant rejections pass the merchant's status through.
func (e *TransportError) HTTPStatus() int {
	if e.Kind == MerchantRejected && e.Status >= 400 {
		return e.Status
	}
	return http.StatusBadGateway
}

// ErrorCode returns the stable machine-readable code for the failure.
// Merchant rejections surface the merchant's own code when one was given.
func (e *TransportError) ErrorCode() string {
	switch e.Kind {
	case MerchantUnreachable:
		return "MERCHANT_UNREACHABLE"
	case InvalidResponse:
		return "INVALID_RESPONSE"
	case MerchantRejected:
		if e.Code != "" {
			return e.Code
		}
		return "MERCHANT_REJECTED"
	}
	return "TRANSPORT_ERROR"
}
