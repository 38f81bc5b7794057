package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*Invoice, error)
	// FindByIDForUpdate locks the invoice row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*Invoice, error)
	FindByStudentTerm(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, term, year int) (*Invoice, error)
	// FindOldestOutstanding returns the earliest-due invoice with a positive balance.
	FindOldestOutstanding(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Invoice, error)
	ListOutstanding(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, term, year int) ([]*Invoice, error)
	NextSequence(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, year int) (int64, error)
	// UpdateSettlement applies new amounts only if amount_paid still equals expectedPaid.
	UpdateSettlement(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedPaid int64) (bool, error)
	MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
	SumOutstandingBySchool(ctx context.Context, db *gorm.DB) ([]OutstandingTotal, error)
}

type ListFilter struct {
	StudentID snowflake.ID
	Term      int
	Year      int
	Status    InvoiceStatus
}

type OutstandingTotal struct {
	SchoolID    snowflake.ID
	Debtors     int64
	Outstanding int64
}
