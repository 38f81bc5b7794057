package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert appends entry. It returns false when an entry of the same type
// already exists for the reference.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.FinanceTransaction) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference_type"}, {Name: "reference_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Balance(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, term, year int) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)
		 FROM finance_transactions
		 WHERE school_id = ? AND student_id = ? AND term = ? AND year = ?`,
		string(domain.EntryTypeDebit), schoolID, studentID, term, year,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) ListForStudent(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, filter domain.StudentLedgerFilter) ([]*domain.FinanceTransaction, error) {
	query := db.WithContext(ctx).
		Model(&domain.FinanceTransaction{}).
		Where("school_id = ? AND student_id = ?", schoolID, studentID)
	if filter.Term != nil {
		query = query.Where("term = ?", *filter.Term)
	}
	if filter.Year != nil {
		query = query.Where("year = ?", *filter.Year)
	}

	var items []*domain.FinanceTransaction
	if err := query.Order("date ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListDrift compares every invoice balance with the ledger for the same student and term.
func (r *repo) ListDrift(ctx context.Context, db *gorm.DB, limit int) ([]domain.Drift, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []domain.Drift
	err := db.WithContext(ctx).Raw(
		`SELECT i.id AS invoice_id, i.school_id, i.student_id, i.term, i.year,
			i.balance AS invoice_balance, COALESCE(l.balance, 0) AS ledger_balance
		 FROM invoices i
		 LEFT JOIN (
			SELECT school_id, student_id, term, year,
				SUM(CASE WHEN type = ? THEN amount ELSE -amount END) AS balance
			FROM finance_transactions
			GROUP BY school_id, student_id, term, year
		 ) l ON l.school_id = i.school_id AND l.student_id = i.student_id
			AND l.term = i.term AND l.year = i.year
		 WHERE i.balance <> COALESCE(l.balance, 0)
		 ORDER BY i.id ASC
		 LIMIT ?`,
		string(domain.EntryTypeDebit), limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
