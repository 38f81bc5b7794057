package domain

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type InitiateRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=9,max=15,numeric"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Provider    string `json:"provider" validate:"required,oneof=mtn airtel"`
	EntityType  string `json:"entity_type" validate:"required,oneof=invoice plan_installment general_payment"`
	EntityID    string `json:"entity_id" validate:"required"`
	FeeType     string `json:"fee_type"`
	PaymentID   string `json:"payment_id"`
}

// CallbackRequest is a resolved provider outcome. TransactionID takes
// precedence over ExternalReference when both are set.
type CallbackRequest struct {
	TransactionID         string  `json:"transaction_id"`
	ExternalReference     string  `json:"external_reference"`
	Outcome               Outcome `json:"outcome"`
	ProviderTransactionID string  `json:"provider_transaction_id"`
	Reason                string  `json:"reason"`
	Amount                int64   `json:"amount"`
	RawPayload            []byte  `json:"-"`
}

type CallbackResult struct {
	Transaction Transaction `json:"transaction"`
	// Stale is true when the transaction had already been resolved and the callback changed nothing.
	Stale bool `json:"stale"`
}

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (Transaction, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)
	// IngestProviderCallback verifies, records and applies a raw provider delivery.
	IngestProviderCallback(ctx context.Context, provider string, payload []byte, headers http.Header) (CallbackResult, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	// RetryCallbacks reprocesses recorded deliveries that failed earlier.
	RetryCallbacks(ctx context.Context, now time.Time, limit int) (int, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error)
}

var (
	ErrInvalidSchool        = errors.New("invalid_school")
	ErrInvalidPhoneNumber   = errors.New("invalid_phone_number")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrUnsupportedProvider  = errors.New("unsupported_provider")
	ErrInvalidEntityType    = errors.New("invalid_entity_type")
	ErrInvalidEntityID      = errors.New("invalid_entity_id")
	ErrInvalidOutcome       = errors.New("invalid_callback_outcome")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrInvalidPayload       = errors.New("invalid_callback_payload")
	ErrInvalidSignature     = errors.New("invalid_callback_signature")
	ErrTransactionNotFound  = errors.New("mobile_money_transaction_not_found")
	ErrStaleTransaction     = errors.New("mobile_money_transaction_already_resolved")
	ErrCallbackInProgress   = errors.New("mobile_money_callback_in_progress")
	ErrAmountMismatch       = errors.New("mobile_money_amount_mismatch")
	ErrRateLimited          = errors.New("mobile_money_rate_limited")
	ErrPaymentNotReservable = errors.New("payment_not_reservable")
	ErrCallbackIgnored      = errors.New("mobile_money_callback_ignored")
)
