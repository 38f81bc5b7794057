package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.FeePayment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPaymentForUpdate(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.FeePayment, error) {
	var item domain.FeePayment
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&item).Error
	return found(&item, err)
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.FeePayment, error) {
	var item domain.FeePayment
	err := db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id).First(&item).Error
	return found(&item, err)
}

func (r *repo) FindPaymentByIdempotencyKey(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, key string) (*domain.FeePayment, error) {
	var item domain.FeePayment
	err := db.WithContext(ctx).
		Where("school_id = ? AND idempotency_key = ?", schoolID, key).
		First(&item).Error
	return found(&item, err)
}

func (r *repo) CompletePayment(ctx context.Context, db *gorm.DB, payment *domain.FeePayment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE fee_payments
		 SET status = ?, invoice_id = ?, installment_id = ?, payment_date = ?,
			payment_method = ?, reference = ?, updated_at = ?
		 WHERE school_id = ? AND id = ? AND status = ?`,
		string(domain.PaymentStatusCompleted),
		payment.InvoiceID,
		payment.InstallmentID,
		payment.PaymentDate,
		string(payment.PaymentMethod),
		payment.Reference,
		payment.UpdatedAt,
		payment.SchoolID,
		payment.ID,
		string(domain.PaymentStatusPending),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FailPayment(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID, notes string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE fee_payments SET status = ?, notes = ?, updated_at = ?
		 WHERE school_id = ? AND id = ? AND status = ?`,
		string(domain.PaymentStatusFailed),
		notes,
		at,
		schoolID,
		id,
		string(domain.PaymentStatusPending),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, filter domain.PaymentFilter) ([]*domain.FeePayment, error) {
	query := db.WithContext(ctx).Model(&domain.FeePayment{}).Where("school_id = ?", schoolID)
	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.InvoiceID != 0 {
		query = query.Where("invoice_id = ?", filter.InvoiceID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []*domain.FeePayment
	if err := query.Order("payment_date DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.PaymentPlan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repo) InsertInstallments(ctx context.Context, db *gorm.DB, items []domain.PlanInstallment) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.PaymentPlan, error) {
	var item domain.PaymentPlan
	err := db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id).First(&item).Error
	return found(&item, err)
}

func (r *repo) FindActivePlanForInvoice(ctx context.Context, db *gorm.DB, schoolID, invoiceID snowflake.ID) (*domain.PaymentPlan, error) {
	var item domain.PaymentPlan
	err := db.WithContext(ctx).
		Where("school_id = ? AND invoice_id = ? AND status = ?", schoolID, invoiceID, string(domain.PlanStatusActive)).
		First(&item).Error
	return found(&item, err)
}

func (r *repo) ListInstallments(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]domain.PlanInstallment, error) {
	var items []domain.PlanInstallment
	if err := db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("sequence ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindInstallmentForUpdate(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.PlanInstallment, error) {
	var item domain.PlanInstallment
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&item).Error
	return found(&item, err)
}

func (r *repo) FindInstallment(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.PlanInstallment, error) {
	var item domain.PlanInstallment
	err := db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id).First(&item).Error
	return found(&item, err)
}

func (r *repo) UpdateInstallment(ctx context.Context, db *gorm.DB, item *domain.PlanInstallment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE plan_installments SET paid_amount = ?, status = ?, updated_at = ?
		 WHERE school_id = ? AND id = ?`,
		item.PaidAmount,
		string(item.Status),
		item.UpdatedAt,
		item.SchoolID,
		item.ID,
	).Error
}

// CompletePlanIfSettled closes an active plan once no installment is left unpaid.
func (r *repo) CompletePlanIfSettled(ctx context.Context, db *gorm.DB, planID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_plans SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		 AND NOT EXISTS (
			SELECT 1 FROM plan_installments WHERE plan_id = ? AND status <> ?
		 )`,
		string(domain.PlanStatusCompleted),
		at,
		planID,
		string(domain.PlanStatusActive),
		planID,
		string(domain.InstallmentStatusPaid),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func found[T any](item *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}
