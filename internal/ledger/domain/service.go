package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Entry is the input for one ledger posting.
type Entry struct {
	SchoolID      snowflake.ID
	StudentID     snowflake.ID
	Type          EntryType
	Amount        int64
	Term          int
	Year          int
	Date          time.Time
	Description   string
	ReferenceType ReferenceType
	ReferenceID   snowflake.ID
}

type StudentLedgerRequest struct {
	StudentID string
	Term      *int
	Year      *int
}

type Service interface {
	// Append posts an entry inside tx. A repeated reference is a no-op and returns false.
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error)
	// Verify fails with ErrInconsistentState when the ledger balance for the
	// student and term differs from expected.
	Verify(ctx context.Context, tx *gorm.DB, schoolID, studentID snowflake.ID, term, year int, expected int64) error
	StudentLedger(ctx context.Context, req StudentLedgerRequest) (StudentLedger, error)
	FindDrift(ctx context.Context, limit int) ([]Drift, error)
}

var (
	ErrInvalidSchool       = errors.New("invalid_school")
	ErrInvalidStudent      = errors.New("invalid_student_id")
	ErrInvalidEntryType    = errors.New("invalid_entry_type")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReference    = errors.New("invalid_reference")
	ErrInvalidTermOrYear   = errors.New("invalid_term_or_year")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrInconsistentState   = errors.New("inconsistent_ledger_state")
	ErrTransactionRequired = errors.New("transaction_required")
)
