package mtn

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
)

const SignatureHeader = "X-Callback-Signature"

// Adapter decodes MTN MoMo collection callbacks. The signature header is a
// hex HMAC-SHA256 of the raw body.
type Adapter struct {
	secret   string
	unsigned bool
}

// New verifies callbacks against secret. An empty secret rejects every
// callback.
func New(secret string) *Adapter {
	return &Adapter{secret: strings.TrimSpace(secret)}
}

// Unsigned accepts callbacks without checking the signature. Sandbox only.
func Unsigned() *Adapter {
	return &Adapter{unsigned: true}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderMTN
}

type reason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type callback struct {
	FinancialTransactionID string  `json:"financialTransactionId"`
	ExternalID             string  `json:"externalId"`
	Amount                 string  `json:"amount,omitempty"`
	Currency               string  `json:"currency,omitempty"`
	Status                 string  `json:"status"`
	Reason                 *reason `json:"reason,omitempty"`
}

func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	if a.unsigned {
		return nil
	}
	if a.secret == "" {
		return domain.ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimSpace(headers.Get(SignatureHeader)))
	if err != nil || len(got) == 0 {
		return domain.ErrInvalidSignature
	}
	if !adapters.EqualMAC(adapters.HMACSHA256(a.secret, payload), got) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(payload []byte) (domain.ProviderCallback, error) {
	var body callback
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.ProviderCallback{}, domain.ErrInvalidPayload
	}
	ref := strings.TrimSpace(body.ExternalID)
	if ref == "" {
		return domain.ProviderCallback{}, domain.ErrInvalidPayload
	}

	out := domain.ProviderCallback{
		ExternalReference:     ref,
		ProviderTransactionID: strings.TrimSpace(body.FinancialTransactionID),
	}
	switch strings.ToUpper(strings.TrimSpace(body.Status)) {
	case "SUCCESSFUL":
		out.Outcome = domain.OutcomeSuccess
	case "FAILED", "REJECTED", "TIMEOUT":
		out.Outcome = domain.OutcomeFailed
		if body.Reason != nil {
			out.Reason = strings.TrimSpace(body.Reason.Code + " " + body.Reason.Message)
		}
		if out.Reason == "" {
			out.Reason = strings.ToLower(body.Status)
		}
	case "PENDING":
		return domain.ProviderCallback{}, domain.ErrCallbackIgnored
	default:
		return domain.ProviderCallback{}, domain.ErrInvalidOutcome
	}

	if amount := strings.TrimSpace(body.Amount); amount != "" {
		parsed, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			return domain.ProviderCallback{}, domain.ErrInvalidPayload
		}
		out.Amount = parsed
	}
	return out, nil
}

func (a *Adapter) Encode(cb domain.ProviderCallback) ([]byte, error) {
	body := callback{
		FinancialTransactionID: cb.ProviderTransactionID,
		ExternalID:             cb.ExternalReference,
		Status:                 "SUCCESSFUL",
	}
	if cb.Amount > 0 {
		body.Amount = strconv.FormatInt(cb.Amount, 10)
	}
	if cb.Outcome == domain.OutcomeFailed {
		body.Status = "FAILED"
		body.Reason = &reason{Message: cb.Reason}
	}
	return json.Marshal(body)
}

func (a *Adapter) Sign(payload []byte) (string, string) {
	return SignatureHeader, hex.EncodeToString(adapters.HMACSHA256(a.secret, payload))
}
