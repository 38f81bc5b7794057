package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Invoice is the term bill for one student. Balance is always
// TotalAmount minus AmountPaid and goes negative on overpayment.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	SchoolID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_invoices_student_term,priority:1;uniqueIndex:ux_invoices_number,priority:1" json:"school_id"`
	StudentID     snowflake.ID  `gorm:"not null;uniqueIndex:ux_invoices_student_term,priority:2" json:"student_id"`
	InvoiceNumber string        `gorm:"size:64;not null;uniqueIndex:ux_invoices_number,priority:2" json:"invoice_number"`
	Term          int           `gorm:"not null;uniqueIndex:ux_invoices_student_term,priority:3" json:"term"`
	Year          int           `gorm:"not null;uniqueIndex:ux_invoices_student_term,priority:4" json:"year"`
	TotalAmount   int64         `gorm:"not null" json:"total_amount"`
	AmountPaid    int64         `gorm:"not null;default:0" json:"amount_paid"`
	Balance       int64         `gorm:"not null" json:"balance"`
	DueDate       time.Time     `gorm:"not null" json:"due_date"`
	Status        InvoiceStatus `gorm:"size:32;not null;index" json:"status"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`

	Items []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// Outstanding reports whether the invoice still expects money.
func (i Invoice) Outstanding() bool {
	return i.Balance > 0
}

type InvoiceItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	FeeType     string       `gorm:"not null" json:"fee_type"`
	Description string       `json:"description,omitempty"`
	Amount      int64        `gorm:"not null" json:"amount"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence hands out per-school, per-year invoice numbers.
type InvoiceSequence struct {
	SchoolID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Year      int          `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64        `gorm:"not null;default:0"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

// StatusFor derives the settlement status from amounts. An invoice already
// marked overdue stays overdue until it is fully paid.
func StatusFor(total, paid int64, previous InvoiceStatus) InvoiceStatus {
	balance := total - paid
	switch {
	case balance <= 0:
		return InvoiceStatusPaid
	case previous == InvoiceStatusOverdue:
		return InvoiceStatusOverdue
	case paid > 0:
		return InvoiceStatusPartial
	default:
		return InvoiceStatusUnpaid
	}
}
