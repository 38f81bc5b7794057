package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodMobileMoney  Method = "mobile_money"
	MethodCheque       Method = "cheque"
	MethodCard         Method = "card"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCheque, MethodCard:
		return true
	}
	return false
}

type PaymentStatus string

const (
	// PaymentStatusPending marks a reserved payment awaiting confirmation. It has no financial effect.
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type FeePayment struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	SchoolID      snowflake.ID  `gorm:"not null;index:idx_fee_payments_student,priority:1;uniqueIndex:uidx_fee_payments_idempotency_key,priority:1" json:"school_id"`
	StudentID     snowflake.ID  `gorm:"not null;index:idx_fee_payments_student,priority:2" json:"student_id"`
	InvoiceID     *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	InstallmentID *snowflake.ID `json:"installment_id,omitempty"`
	FeeType       string        `json:"fee_type,omitempty"`
	AmountPaid    int64         `gorm:"not null" json:"amount_paid"`
	PaymentDate   time.Time     `gorm:"not null" json:"payment_date"`
	PaymentMethod Method        `gorm:"type:text;not null" json:"payment_method"`
	Status        PaymentStatus `gorm:"type:text;not null" json:"status"`
	Reference     string        `json:"reference,omitempty"`
	// IdempotencyKey is the trimmed reference of a recorded payment, nil when
	// no reference was given.
	IdempotencyKey *string   `gorm:"size:191;uniqueIndex:uidx_fee_payments_idempotency_key,priority:2" json:"-"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (FeePayment) TableName() string { return "fee_payments" }

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
)

type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPartial InstallmentStatus = "partial"
	InstallmentStatusPaid    InstallmentStatus = "paid"
)

// PaymentPlan splits an invoice balance into dated installments.
type PaymentPlan struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID    snowflake.ID `gorm:"not null;index" json:"school_id"`
	StudentID   snowflake.ID `gorm:"not null" json:"student_id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	TotalAmount int64        `gorm:"not null" json:"total_amount"`
	Status      PlanStatus   `gorm:"type:text;not null" json:"status"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`

	Installments []PlanInstallment `gorm:"-" json:"installments"`
}

func (PaymentPlan) TableName() string { return "payment_plans" }

type PlanInstallment struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	SchoolID   snowflake.ID      `gorm:"not null" json:"school_id"`
	PlanID     snowflake.ID      `gorm:"not null;index" json:"plan_id"`
	Sequence   int               `gorm:"not null" json:"sequence"`
	Amount     int64             `gorm:"not null" json:"amount"`
	PaidAmount int64             `gorm:"not null;default:0" json:"paid_amount"`
	DueDate    time.Time         `gorm:"not null" json:"due_date"`
	Status     InstallmentStatus `gorm:"type:text;not null" json:"status"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

func (PlanInstallment) TableName() string { return "plan_installments" }

func InstallmentStatusFor(amount, paid int64) InstallmentStatus {
	switch {
	case paid >= amount:
		return InstallmentStatusPaid
	case paid > 0:
		return InstallmentStatusPartial
	default:
		return InstallmentStatusPending
	}
}
