package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// Capability name suffixes that gate checkout operations.
const (
	CapabilityCheckout    = "checkout"
	CapabilityDiscount    = "discount"
	CapabilityFulfillment = "fulfillment"
)

// Capability is a UCP capability declared by a merchant.
type Capability struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Spec    string `json:"spec,omitempty"`
	Schema  string `json:"schema,omitempty"`
	Extends string `json:"extends,omitempty"`
}

// PaymentHandler is a payment method advertised by a merchant.
type PaymentHandler struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Version             string         `json:"version"`
	Spec                string         `json:"spec,omitempty"`
	SupportedCardBrands []string       `json:"supported_card_brands,omitempty"`
	Config              map[string]any `json:"config,omitempty"`
}

// MerchantProfile is the validated result of UCP discovery for one merchant.
type MerchantProfile struct {
	UCPVersion      string           `json:"ucp_version"`
	Capabilities    []Capability     `json:"capabilities"`
	PaymentHandlers []PaymentHandler `json:"payment_handlers"`
}

// HasCapability reports whether the merchant declares a capability whose name
// ends with the given suffix (e.g. "checkout" matches "dev.ucp.shopping.checkout").
func (p *MerchantProfile) HasCapability(suffix string) bool {
	for _, c := range p.Capabilities {
		if c.Name == suffix || strings.HasSuffix(c.Name, "."+suffix) {
			return true
		}
	}
	return false
}

// HandlerByID returns the advertised payment handler with the given id.
func (p *MerchantProfile) HandlerByID(id string) (PaymentHandler, bool) {
	for _, h := range p.PaymentHandlers {
		if h.ID == id {
			return h, true
		}
	}
	return PaymentHandler{}, false
}

type wireCapability struct {
	Name    *string `json:"name"`
	Version *string `json:"version"`
	Spec    string  `json:"spec"`
	Schema  string  `json:"schema"`
	Extends string  `json:"extends"`
}

type wireHandler struct {
	ID      *string        `json:"id"`
	Name    *string        `json:"name"`
	Version *string        `json:"version"`
	Spec    string         `json:"spec"`
	Config  map[string]any `json:"config"`
}

type wireDiscovery struct {
	UCP *struct {
		Version      *string          `json:"version"`
		Capabilities []wireCapability `json:"capabilities"`
	} `json:"ucp"`
	Payment *struct {
		Handlers []wireHandler `json:"handlers"`
	} `json:"payment"`
}

// ParseMerchantProfile builds a MerchantProfile from a raw /.well-known/ucp
// discovery body. Malformed data fails with *SchemaError; no defaults are
// substituted for missing or mistyped fields.
func ParseMerchantProfile(data []byte) (*MerchantProfile, error) {
	var wire wireDiscovery
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, schemaErrorFromJSON(err)
	}

	if wire.UCP == nil {
		return nil, missingField("ucp")
	}
	if wire.UCP.Version == nil || *wire.UCP.Version == "" {
		return nil, missingField("ucp.version")
	}

	profile := &MerchantProfile{
		UCPVersion:   *wire.UCP.Version,
		Capabilities: make([]Capability, 0, len(wire.UCP.Capabilities)),
	}

	for i, c := range wire.UCP.Capabilities {
		if c.Name == nil || *c.Name == "" {
			return nil, missingField(indexed("ucp.capabilities", i, "name"))
		}
		if c.Version == nil || *c.Version == "" {
			return nil, missingField(indexed("ucp.capabilities", i, "version"))
		}
		profile.Capabilities = append(profile.Capabilities, Capability{
			Name:    *c.Name,
			Version: *c.Version,
			Spec:    c.Spec,
			Schema:  c.Schema,
			Extends: c.Extends,
		})
	}

	// The payment section is optional: a merchant may support discovery
	// without advertising any payment handlers.
	if wire.Payment != nil {
		profile.PaymentHandlers = make([]PaymentHandler, 0, len(wire.Payment.Handlers))
		for i, h := range wire.Payment.Handlers {
			if h.ID == nil || *h.ID == "" {
				return nil, missingField(indexed("payment.handlers", i, "id"))
			}
			if h.Name == nil || *h.Name == "" {
				return nil, missingField(indexed("payment.handlers", i, "name"))
			}
			if h.Version == nil || *h.Version == "" {
				return nil, missingField(indexed("payment.handlers", i, "version"))
			}
			profile.PaymentHandlers = append(profile.PaymentHandlers, PaymentHandler{
				ID:                  *h.ID,
				Name:                *h.Name,
				Version:             *h.Version,
				Spec:                h.Spec,
				SupportedCardBrands: stringSlice(h.Config["supported_brands"]),
				Config:              h.Config,
			})
		}
	}

	return profile, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// schemaErrorFromJSON converts json decoding failures into SchemaError where
// the failure is a type mismatch; syntax errors pass through for the caller
// to classify as a non-JSON body.
func schemaErrorFromJSON(err error) error {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		return invalidType(ute.Field, ute.Value)
	}
	return err
}
