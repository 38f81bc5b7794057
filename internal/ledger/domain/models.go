package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryType is the direction of a student finance transaction.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// ReferenceType names the record a finance transaction was posted for.
type ReferenceType string

const (
	ReferenceTypeInvoice    ReferenceType = "invoice"
	ReferenceTypeFeePayment ReferenceType = "fee_payment"
)

// FinanceTransaction is an append-only ledger row. One row exists per
// (reference_type, reference_id, type), which makes posting idempotent.
type FinanceTransaction struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	SchoolID      snowflake.ID  `gorm:"not null;index:idx_finance_tx_student,priority:1" json:"school_id"`
	StudentID     snowflake.ID  `gorm:"not null;index:idx_finance_tx_student,priority:2" json:"student_id"`
	Type          EntryType     `gorm:"size:32;not null;uniqueIndex:ux_finance_tx_reference,priority:3" json:"type"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Term          int           `gorm:"not null;index:idx_finance_tx_student,priority:3" json:"term"`
	Year          int           `gorm:"not null;index:idx_finance_tx_student,priority:4" json:"year"`
	Date          time.Time     `gorm:"not null" json:"date"`
	Description   string        `json:"description"`
	ReferenceType ReferenceType `gorm:"size:32;not null;uniqueIndex:ux_finance_tx_reference,priority:1" json:"reference_type"`
	ReferenceID   snowflake.ID  `gorm:"not null;uniqueIndex:ux_finance_tx_reference,priority:2" json:"reference_id"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
}

func (FinanceTransaction) TableName() string { return "finance_transactions" }

// Signed returns the amount as it moves the student's balance.
func (t FinanceTransaction) Signed() int64 {
	if t.Type == EntryTypeCredit {
		return -t.Amount
	}
	return t.Amount
}

// LedgerRow is a finance transaction with the balance after it was applied.
type LedgerRow struct {
	FinanceTransaction
	RunningBalance int64 `json:"running_balance"`
}

type StudentLedger struct {
	StudentID snowflake.ID `json:"student_id"`
	Entries   []LedgerRow  `json:"entries"`
	Balance   int64        `json:"balance"`
}

// Drift is an invoice whose stored balance disagrees with its ledger.
type Drift struct {
	InvoiceID      snowflake.ID `json:"invoice_id"`
	SchoolID       snowflake.ID `json:"school_id"`
	StudentID      snowflake.ID `json:"student_id"`
	Term           int          `json:"term"`
	Year           int          `json:"year"`
	InvoiceBalance int64        `json:"invoice_balance"`
	LedgerBalance  int64        `json:"ledger_balance"`
}
