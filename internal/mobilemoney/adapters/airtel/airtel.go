package airtel

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
)

const SignatureHeader = "X-Signature"

// Adapter decodes Airtel Money collection callbacks. The signature header
// is a base64 HMAC-SHA256 of the raw body.
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
	return domain.ProviderAirtel
}

type callback struct {
	Transaction struct {
		ID            string `json:"id"`
		Message       string `json:"message"`
		StatusCode    string `json:"status_code"`
		AirtelMoneyID string `json:"airtel_money_id"`
	} `json:"transaction"`
}

func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	if a.unsigned {
		return nil
	}
	if a.secret == "" {
		return domain.ErrInvalidSignature
	}
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(headers.Get(SignatureHeader)))
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
	ref := strings.TrimSpace(body.Transaction.ID)
	if ref == "" {
		return domain.ProviderCallback{}, domain.ErrInvalidPayload
	}

	out := domain.ProviderCallback{
		ExternalReference:     ref,
		ProviderTransactionID: strings.TrimSpace(body.Transaction.AirtelMoneyID),
	}
	switch strings.ToUpper(strings.TrimSpace(body.Transaction.StatusCode)) {
	case "TS":
		out.Outcome = domain.OutcomeSuccess
	case "TF", "TE":
		out.Outcome = domain.OutcomeFailed
		out.Reason = strings.TrimSpace(body.Transaction.Message)
		if out.Reason == "" {
			out.Reason = "transaction failed"
		}
	case "TIP", "TA":
		return domain.ProviderCallback{}, domain.ErrCallbackIgnored
	default:
		return domain.ProviderCallback{}, domain.ErrInvalidOutcome
	}
	return out, nil
}

func (a *Adapter) Encode(cb domain.ProviderCallback) ([]byte, error) {
	var body callback
	body.Transaction.ID = cb.ExternalReference
	body.Transaction.AirtelMoneyID = cb.ProviderTransactionID
	body.Transaction.StatusCode = "TS"
	body.Transaction.Message = "Transaction successful"
	if cb.Outcome == domain.OutcomeFailed {
		body.Transaction.StatusCode = "TF"
		body.Transaction.Message = cb.Reason
	}
	return json.Marshal(body)
}

func (a *Adapter) Sign(payload []byte) (string, string) {
	return SignatureHeader, base64.StdEncoding.EncodeToString(adapters.HMACSHA256(a.secret, payload))
}
