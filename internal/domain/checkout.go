package domain

import (
	"encoding/json"
)

// CheckoutStatus is the local lifecycle position of a checkout session.
// It only ever advances forward.
type CheckoutStatus string

const (
	StatusCreated        CheckoutStatus = "created"
	StatusUpdated        CheckoutStatus = "updated"
	StatusFulfillmentSet CheckoutStatus = "fulfillment_set"
	StatusCompleted      CheckoutStatus = "completed"
)

// CanAdvanceTo reports whether the lifecycle permits moving from s to next.
// Updates may repeat; fulfillment_set is required before completion;
// completed is terminal.
func (s CheckoutStatus) CanAdvanceTo(next CheckoutStatus) bool {
	switch s {
	case StatusCreated, StatusUpdated:
		return next == StatusUpdated || next == StatusFulfillmentSet
	case StatusFulfillmentSet:
		return next == StatusCompleted
	default:
		return false
	}
}

// IsTerminal reports whether the session can accept no further operations.
func (s CheckoutStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// ParseCheckoutStatus maps a stored status string onto a CheckoutStatus.
// The merchant wire value "complete" is accepted as an alias for completed.
func ParseCheckoutStatus(raw string) (CheckoutStatus, error) {
	switch raw {
	case string(StatusCreated):
		return StatusCreated, nil
	case string(StatusUpdated):
		return StatusUpdated, nil
	case string(StatusFulfillmentSet):
		return StatusFulfillmentSet, nil
	case string(StatusCompleted), "complete":
		return StatusCompleted, nil
	}
	return "", invalidEnum("status", raw)
}

// LineItem is one validated item on a checkout session. UnitPrice is in minor
// currency units (cents for USD).
type LineItem struct {
	ID        string `json:"id,omitempty"`
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// AppliedDiscount is a discount the merchant reports as applied.
type AppliedDiscount struct {
	Code        string `json:"code"`
	Title       string `json:"title,omitempty"`
	AmountSaved int64  `json:"amount_saved"`
	Automatic   bool   `json:"automatic"`
}

// FulfillmentAddress is a shipping destination offered on a session.
type FulfillmentAddress struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name,omitempty"`
	AddressLine string `json:"address_line,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
}

// DeliveryOption is a shipping method offered on a session. Price is in
// minor currency units.
type DeliveryOption struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Price int64  `json:"price"`
}

// Fulfillment carries the merchant's offered addresses and delivery options
// plus any selection already recorded on the session.
type Fulfillment struct {
	Addresses         []FulfillmentAddress `json:"addresses,omitempty"`
	Options           []DeliveryOption     `json:"options,omitempty"`
	SelectedAddressID string               `json:"selected_address_id,omitempty"`
	SelectedOptionID  string               `json:"selected_option_id,omitempty"`
}

// FulfillmentSelection is the orchestrator's chosen address and delivery
// option, with the option's cost.
type FulfillmentSelection struct {
	AddressID        string `json:"address_id"`
	DeliveryOptionID string `json:"delivery_option_id"`
	Cost             int64  `json:"cost"`
}

// Order is the terminal artifact of a completed checkout.
type Order struct {
	OrderID    string `json:"order_id"`
	OrderURL   string `json:"order_url,omitempty"`
	FinalTotal int64  `json:"final_total"`
}

// CheckoutSession is a validated UCP checkout session. Status is the local
// lifecycle position assigned by the orchestrator; MerchantStatus is the
// merchant's verbatim status string. All amounts are int64 minor currency
// units, taken from the merchant response without client-side arithmetic.
type CheckoutSession struct {
	CheckoutID      string            `json:"checkout_id"`
	Status          CheckoutStatus    `json:"status"`
	MerchantStatus  string            `json:"merchant_status"`
	Currency        string            `json:"currency"`
	LineItems       []LineItem        `json:"line_items"`
	Subtotal        int64             `json:"subtotal"`
	DiscountTotal   int64             `json:"discount_total"`
	FulfillmentCost int64             `json:"fulfillment_cost"`
	Total           int64             `json:"total"`
	DiscountCodes   []string          `json:"discount_codes,omitempty"`
	Discounts       []AppliedDiscount `json:"discounts,omitempty"`
	Fulfillment     *Fulfillment      `json:"fulfillment,omitempty"`
	Order           *Order            `json:"order,omitempty"`
}

// ValidCurrencyCode reports whether code is shaped like an ISO 4217 code:
// exactly three ASCII uppercase letters.
func ValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

type wireItem struct {
	ID    *string `json:"id"`
	Title string  `json:"title"`
	Price *int64  `json:"price"`
}

type wireLineItem struct {
	ID       string    `json:"id"`
	Item     *wireItem `json:"item"`
	Quantity *int      `json:"quantity"`
}

type wireTotal struct {
	Type   *string `json:"type"`
	Amount *int64  `json:"amount"`
}

type wireAppliedDiscount struct {
	Code      *string `json:"code"`
	Title     string  `json:"title"`
	Amount    *int64  `json:"amount"`
	Automatic bool    `json:"automatic"`
}

type wireDiscounts struct {
	Codes   []string              `json:"codes"`
	Applied []wireAppliedDiscount `json:"applied"`
}

type wireAddress struct {
	ID          *string `json:"id"`
	FullName    string  `json:"full_name"`
	AddressLine string  `json:"address_line"`
	City        string  `json:"city"`
	State       string  `json:"state"`
	PostalCode  string  `json:"postal_code"`
	Country     string  `json:"country"`
}

type wireOption struct {
	ID    *string `json:"id"`
	Title string  `json:"title"`
	Price *int64  `json:"price"`
}

type wireFulfillment struct {
	Addresses         []wireAddress `json:"addresses"`
	Options           []wireOption  `json:"options"`
	SelectedAddressID string        `json:"selected_address_id"`
	SelectedOptionID  string        `json:"selected_option_id"`
}

type wireOrder struct {
	ID           *string `json:"id"`
	PermalinkURL string  `json:"permalink_url"`
}

type wireSession struct {
	ID          *string          `json:"id"`
	Status      *string          `json:"status"`
	Currency    *string          `json:"currency"`
	LineItems   []wireLineItem   `json:"line_items"`
	Totals      []wireTotal      `json:"totals"`
	Discounts   *wireDiscounts   `json:"discounts"`
	Fulfillment *wireFulfillment `json:"fulfillment"`
	Order       *wireOrder       `json:"order"`
}

// ParseCheckoutSession builds a CheckoutSession from a raw merchant session
// body. Parsing is atomic: any missing or mistyped field fails with
// *SchemaError and no session is returned. The local Status is left unset;
// the orchestrator assigns it after a successful transition.
func ParseCheckoutSession(data []byte) (*CheckoutSession, error) {
	var wire wireSession
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, schemaErrorFromJSON(err)
	}

	if wire.ID == nil || *wire.ID == "" {
		return nil, missingField("id")
	}
	if wire.Status == nil || *wire.Status == "" {
		return nil, missingField("status")
	}
	if wire.Currency == nil || *wire.Currency == "" {
		return nil, missingField("currency")
	}

	session := &CheckoutSession{
		CheckoutID:     *wire.ID,
		MerchantStatus: *wire.Status,
		Currency:       *wire.Currency,
		LineItems:      make([]LineItem, 0, len(wire.LineItems)),
	}

	for i, li := range wire.LineItems {
		if li.Item == nil {
			return nil, missingField(indexed("line_items", i, "item"))
		}
		if li.Item.ID == nil || *li.Item.ID == "" {
			return nil, missingField(indexed("line_items", i, "item.id"))
		}
		if li.Item.Price == nil {
			return nil, missingField(indexed("line_items", i, "item.price"))
		}
		if li.Quantity == nil {
			return nil, missingField(indexed("line_items", i, "quantity"))
		}
		if *li.Quantity <= 0 {
			return nil, invalidType(indexed("line_items", i, "quantity"), "non-positive integer")
		}
		session.LineItems = append(session.LineItems, LineItem{
			ID:        li.ID,
			ItemID:    *li.Item.ID,
			Title:     li.Item.Title,
			UnitPrice: *li.Item.Price,
			Quantity:  *li.Quantity,
		})
	}

	for i, t := range wire.Totals {
		if t.Type == nil {
			return nil, missingField(indexed("totals", i, "type"))
		}
		if t.Amount == nil {
			return nil, missingField(indexed("totals", i, "amount"))
		}
		switch *t.Type {
		case "subtotal":
			session.Subtotal = *t.Amount
		case "discount":
			session.DiscountTotal = *t.Amount
		case "fulfillment":
			session.FulfillmentCost = *t.Amount
		case "total":
			session.Total = *t.Amount
		default:
			return nil, invalidEnum(indexed("totals", i, "type"), *t.Type)
		}
	}

	if wire.Discounts != nil {
		session.DiscountCodes = wire.Discounts.Codes
		var saved int64
		for i, d := range wire.Discounts.Applied {
			if d.Code == nil || *d.Code == "" {
				return nil, missingField(indexed("discounts.applied", i, "code"))
			}
			if d.Amount == nil {
				return nil, missingField(indexed("discounts.applied", i, "amount"))
			}
			saved += *d.Amount
			session.Discounts = append(session.Discounts, AppliedDiscount{
				Code:        *d.Code,
				Title:       d.Title,
				AmountSaved: *d.Amount,
				Automatic:   d.Automatic,
			})
		}
		// Applied discounts can never save more than the subtotal.
		if saved > session.Subtotal {
			return nil, invalidType("discounts.applied", "amounts exceed subtotal")
		}
	}

	if wire.Fulfillment != nil {
		f := &Fulfillment{
			SelectedAddressID: wire.Fulfillment.SelectedAddressID,
			SelectedOptionID:  wire.Fulfillment.SelectedOptionID,
		}
		for i, a := range wire.Fulfillment.Addresses {
			if a.ID == nil || *a.ID == "" {
				return nil, missingField(indexed("fulfillment.addresses", i, "id"))
			}
			f.Addresses = append(f.Addresses, FulfillmentAddress{
				ID:          *a.ID,
				FullName:    a.FullName,
				AddressLine: a.AddressLine,
				City:        a.City,
				State:       a.State,
				PostalCode:  a.PostalCode,
				Country:     a.Country,
			})
		}
		for i, o := range wire.Fulfillment.Options {
			if o.ID == nil || *o.ID == "" {
				return nil, missingField(indexed("fulfillment.options", i, "id"))
			}
			if o.Price == nil {
				return nil, missingField(indexed("fulfillment.options", i, "price"))
			}
			f.Options = append(f.Options, DeliveryOption{
				ID:    *o.ID,
				Title: o.Title,
				Price: *o.Price,
			})
		}
		session.Fulfillment = f
	}

	if wire.Order != nil {
		if wire.Order.ID == nil || *wire.Order.ID == "" {
			return nil, missingField("order.id")
		}
		session.Order = &Order{
			OrderID:    *wire.Order.ID,
			OrderURL:   wire.Order.PermalinkURL,
			FinalTotal: session.Total,
		}
	}

	return session, nil
}
