package domain

import "net/http"

// ProviderCallback is the provider-neutral content of a callback.
type ProviderCallback struct {
	ExternalReference     string
	ProviderTransactionID string
	Outcome               Outcome
	Reason                string
	Amount                int64
}

// DedupeKey identifies a delivery across provider retries.
func (c ProviderCallback) DedupeKey() string {
	if c.ProviderTransactionID != "" {
		return c.ProviderTransactionID
	}
	return c.ExternalReference + ":" + string(c.Outcome)
}

// CallbackAdapter verifies and decodes one provider's callback format.
type CallbackAdapter interface {
	Provider() Provider
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (ProviderCallback, error)
	// Encode renders a callback in the provider's wire format.
	Encode(cb ProviderCallback) ([]byte, error)
	// Sign produces the signature header a genuine callback would carry.
	Sign(payload []byte) (header string, value string)
}
