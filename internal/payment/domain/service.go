package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"gorm.io/gorm"
)

// RecordPaymentRequest targets either an invoice or a student's general
// account. A general payment settles the student's oldest outstanding invoice.
type RecordPaymentRequest struct {
	InvoiceID string     `json:"invoice_id"`
	StudentID string     `json:"student_id"`
	FeeType   string     `json:"fee_type"`
	Amount    int64      `json:"amount" validate:"gt=0"`
	Method    string     `json:"payment_method" validate:"required"`
	Reference string     `json:"reference"`
	Notes     string     `json:"notes"`
	PaidAt    *time.Time `json:"payment_date"`
}

// ReservePaymentRequest creates a pending payment that a later mobile money
// confirmation completes.
type ReservePaymentRequest struct {
	InvoiceID     string `json:"invoice_id"`
	InstallmentID string `json:"installment_id"`
	StudentID     string `json:"student_id"`
	FeeType       string `json:"fee_type"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	Method        string `json:"payment_method"`
	Notes         string `json:"notes"`
}

type ListPaymentsRequest struct {
	StudentID string `form:"student_id"`
	InvoiceID string `form:"invoice_id"`
	Limit     int    `form:"limit"`
}

type InstallmentInput struct {
	Amount  int64     `json:"amount" validate:"gt=0"`
	DueDate time.Time `json:"due_date" validate:"required"`
}

type CreatePaymentPlanRequest struct {
	InvoiceID    string             `json:"invoice_id" validate:"required"`
	Installments []InstallmentInput `json:"installments" validate:"required,min=1,dive"`
}

type PayInstallmentRequest struct {
	InstallmentID string `json:"installment_id"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	Method        string `json:"payment_method" validate:"required"`
	Notes         string `json:"notes"`
}

// ApplyInput describes money to settle inside an existing transaction.
// Exactly one target is used, in order: InstallmentID, InvoiceID, StudentID.
type ApplyInput struct {
	SchoolID      snowflake.ID
	InvoiceID     snowflake.ID
	InstallmentID snowflake.ID
	StudentID     snowflake.ID
	// PaymentID completes a pending payment instead of creating a new one.
	PaymentID snowflake.ID
	FeeType   string
	Amount    int64
	Method    Method
	Reference string
	Notes     string
	PaidAt    time.Time
}

type ApplyResult struct {
	Payment     FeePayment
	Invoice     invoicedomain.Invoice
	Installment *PlanInstallment
	// Replayed is set when the reference matched an earlier payment and
	// nothing was applied.
	Replayed bool
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (FeePayment, error)
	ReservePayment(ctx context.Context, req ReservePaymentRequest) (FeePayment, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]FeePayment, error)
	CreatePaymentPlan(ctx context.Context, req CreatePaymentPlanRequest) (PaymentPlan, error)
	GetPaymentPlan(ctx context.Context, id string) (PaymentPlan, error)
	PayInstallment(ctx context.Context, req PayInstallmentRequest) (FeePayment, error)

	// Apply settles money against an invoice inside tx: the invoice row is
	// locked, amounts are updated, the credit is posted and the ledger is
	// checked against the new balance.
	Apply(ctx context.Context, tx *gorm.DB, in ApplyInput) (ApplyResult, error)
	// FailReserved marks a pending payment failed. It returns false if it was not pending.
	FailReserved(ctx context.Context, tx *gorm.DB, schoolID, paymentID snowflake.ID, reason string) (bool, error)
}

var (
	ErrInvalidSchool          = errors.New("invalid_school")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidMethod          = errors.New("invalid_payment_method")
	ErrInvalidTarget          = errors.New("invalid_payment_target")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidInstallments    = errors.New("invalid_installments")
	ErrInstallmentSumMismatch = errors.New("installment_sum_mismatch")
	ErrInvoiceSettled         = errors.New("invoice_already_settled")
	ErrPlanExists             = errors.New("payment_plan_already_exists")
	ErrPlanNotFound           = errors.New("payment_plan_not_found")
	ErrInstallmentNotFound    = errors.New("installment_not_found")
	ErrInstallmentMismatch    = errors.New("installment_invoice_mismatch")
	ErrPaymentNotFound        = errors.New("payment_not_found")
	ErrPaymentNotPending      = errors.New("payment_not_pending")
	ErrAmountMismatch         = errors.New("payment_amount_mismatch")
	ErrConcurrentUpdate       = errors.New("concurrent_invoice_update")
	ErrTransactionRequired    = errors.New("transaction_required")
	ErrReferenceConflict      = errors.New("payment_reference_conflict")
)
