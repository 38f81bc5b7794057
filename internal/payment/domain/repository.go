package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *FeePayment) error
	FindPaymentForUpdate(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*FeePayment, error)
	FindPayment(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*FeePayment, error)
	FindPaymentByIdempotencyKey(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, key string) (*FeePayment, error)
	// CompletePayment settles a pending payment. It returns false when the
	// payment was no longer pending.
	CompletePayment(ctx context.Context, db *gorm.DB, payment *FeePayment) (bool, error)
	FailPayment(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID, notes string, at time.Time) (bool, error)
	ListPayments(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, filter PaymentFilter) ([]*FeePayment, error)

	InsertPlan(ctx context.Context, db *gorm.DB, plan *PaymentPlan) error
	InsertInstallments(ctx context.Context, db *gorm.DB, items []PlanInstallment) error
	FindPlan(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*PaymentPlan, error)
	FindActivePlanForInvoice(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (*PaymentPlan, error)
	ListInstallments(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]PlanInstallment, error)
	FindInstallmentForUpdate(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*PlanInstallment, error)
	FindInstallment(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*PlanInstallment, error)
	UpdateInstallment(ctx context.Context, db *gorm.DB, item *PlanInstallment) error
	CompletePlanIfSettled(ctx context.Context, db *gorm.DB, planID snowflake.ID, at time.Time) (bool, error)
}

type PaymentFilter struct {
	StudentID snowflake.ID
	InvoiceID snowflake.ID
	Limit     int
}
