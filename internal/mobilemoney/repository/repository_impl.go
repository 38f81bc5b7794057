package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	return found(&item, err)
}

func (r *repo) FindBySchoolAndID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id).First(&item).Error
	return found(&item, err)
}

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Where("external_reference = ?", reference).First(&item).Error
	return found(&item, err)
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.Resolution) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE mobile_money_transactions
		 SET status = ?, callback_received_at = ?, provider_transaction_id = ?,
			failure_reason = ?, raw_callback_data = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(update.Status),
		update.ReceivedAt,
		update.ProviderTransactionID,
		update.FailureReason,
		update.RawCallbackData,
		update.ReceivedAt,
		id,
		string(domain.StatusPending),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) LinkPayment(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ?", id).
		Update("payment_id", paymentID).Error
}

func (r *repo) ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []*domain.Transaction
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(domain.StatusPending), before).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountPendingByProvider(ctx context.Context, db *gorm.DB) ([]domain.PendingCount, error) {
	var rows []domain.PendingCount
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("provider, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("status = ?", string(domain.StatusPending)).
		Group("provider").
		Order("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertEvent records a delivery. It returns false when the same delivery was already recorded.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.CallbackEvent) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider domain.Provider, dedupeKey string) (*domain.CallbackEvent, error) {
	var item domain.CallbackEvent
	err := db.WithContext(ctx).
		Where("provider = ? AND dedupe_key = ?", string(provider), dedupeKey).
		First(&item).Error
	return found(&item, err)
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE mobile_money_callback_events
		 SET processed_at = ?, attempts = attempts + 1, last_error = ''
		 WHERE id = ? AND processed_at IS NULL`,
		at,
		id,
	).Error
}

func (r *repo) MarkEventFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE mobile_money_callback_events
		 SET attempts = attempts + 1, last_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		reason,
		id,
	).Error
}

func (r *repo) ListRetryableEvents(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts, limit int) ([]*domain.CallbackEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := db.WithContext(ctx).
		Where("processed_at IS NULL AND received_at < ?", receivedBefore)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	var items []*domain.CallbackEvent
	if err := query.Order("received_at ASC, id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
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
