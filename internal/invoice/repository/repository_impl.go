package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/pkg/db/option"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("school_id = ? AND id = ?", schoolID, id))
}

func (r *repo) FindByStudentTerm(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, term, year int) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).
		Where("school_id = ? AND student_id = ? AND term = ? AND year = ?", schoolID, studentID, term, year))
}

func (r *repo) FindOldestOutstanding(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).
		Where("school_id = ? AND student_id = ? AND balance > 0", schoolID, studentID).
		Order("due_date ASC, id ASC"))
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]domain.InvoiceItem, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	var items []domain.InvoiceItem
	if err := db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("invoice_id ASC, fee_type ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	query := db.WithContext(ctx).Model(&domain.Invoice{}).Where("school_id = ?", schoolID)
	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.Term > 0 {
		query = query.Where("term = ?", filter.Term)
	}
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	query = option.ApplyPagination(page).Apply(query)

	var items []*domain.Invoice
	if err := query.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOutstanding(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, term, year int) ([]*domain.Invoice, error) {
	query := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("school_id = ? AND balance > 0", schoolID)
	if term > 0 {
		query = query.Where("term = ?", term)
	}
	if year > 0 {
		query = query.Where("year = ?", year)
	}

	var items []*domain.Invoice
	if err := query.Order("due_date ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// NextSequence increments and returns the school's invoice counter for year.
// Callers must run it inside the transaction that inserts the invoice.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, year int) (int64, error) {
	db = db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.InvoiceSequence{SchoolID: schoolID, Year: year}).Error; err != nil {
		return 0, err
	}
	if err := db.Exec(
		`UPDATE invoice_sequences SET last_value = last_value + 1 WHERE school_id = ? AND year = ?`,
		schoolID, year,
	).Error; err != nil {
		return 0, err
	}

	var value int64
	if err := db.Raw(
		`SELECT last_value FROM invoice_sequences WHERE school_id = ? AND year = ?`,
		schoolID, year,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) UpdateSettlement(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, expectedPaid int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?, balance = ?, status = ?, updated_at = ?
		 WHERE school_id = ? AND id = ? AND amount_paid = ?`,
		invoice.AmountPaid,
		invoice.Balance,
		string(invoice.Status),
		invoice.UpdatedAt,
		invoice.SchoolID,
		invoice.ID,
		expectedPaid,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	open := []string{string(domain.InvoiceStatusUnpaid), string(domain.InvoiceStatusPartial)}

	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status IN ? AND balance > 0 AND due_date < ?", open, now).
		Order("due_date ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// status is re-checked so a payment landing in between is not overwritten
	result := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id IN ? AND status IN ? AND balance > 0", ids, open).
		Updates(map[string]any{
			"status":     string(domain.InvoiceStatusOverdue),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) SumOutstandingBySchool(ctx context.Context, db *gorm.DB) ([]domain.OutstandingTotal, error) {
	var rows []domain.OutstandingTotal
	err := db.WithContext(ctx).Raw(
		`SELECT school_id, COUNT(DISTINCT student_id) AS debtors, COALESCE(SUM(balance), 0) AS outstanding
		 FROM invoices
		 WHERE balance > 0
		 GROUP BY school_id`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func first(query *gorm.DB) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := query.First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}
