package service

import (
	"github.com/nguthrie/ucp-agent/internal/domain"
)

// FulfillmentPolicy chooses a shipping address and delivery option from the
// merchant's offer. Policies must be deterministic: given the same offer they
// return the same selection.
type FulfillmentPolicy func(f *domain.Fulfillment) (domain.FulfillmentSelection, error)

// FirstAvailable selects the first offered address and the first offered
// delivery option. It fails with NoFulfillmentOptions when either list is
// empty.
func FirstAvailable(f *domain.Fulfillment) (domain.FulfillmentSelection, error) {
	if f == nil || len(f.Addresses) == 0 || len(f.Options) == 0 {
		return domain.FulfillmentSelection{}, &OrchestrationError{
			Kind:    NoFulfillmentOptions,
			Message: "merchant offered no eligible fulfillment options",
		}
	}

	option := f.Options[0]
	return domain.FulfillmentSelection{
		AddressID:        f.Addresses[0].ID,
		DeliveryOptionID: option.ID,
		Cost:             option.Price,
	}, nil
}
