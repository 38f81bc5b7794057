package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert returns false when an entry for the same reference and type exists.
	Insert(ctx context.Context, db *gorm.DB, entry *FinanceTransaction) (bool, error)
	Balance(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, term, year int) (int64, error)
	ListForStudent(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, filter StudentLedgerFilter) ([]*FinanceTransaction, error)
	ListDrift(ctx context.Context, db *gorm.DB, limit int) ([]Drift, error)
}

type StudentLedgerFilter struct {
	Term *int
	Year *int
}
