package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindBySchoolAndID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*Transaction, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, reference string) (*Transaction, error)
	// Resolve moves a pending transaction to its final status. It returns
	// false when the transaction had already left pending.
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, update Resolution) (bool, error)
	LinkPayment(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID) error
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Transaction, error)
	CountPendingByProvider(ctx context.Context, db *gorm.DB) ([]PendingCount, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *CallbackEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider Provider, dedupeKey string) (*CallbackEvent, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkEventFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	ListRetryableEvents(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts, limit int) ([]*CallbackEvent, error)
}

type Resolution struct {
	Status                Status
	ReceivedAt            time.Time
	ProviderTransactionID string
	FailureReason         string
	RawCallbackData       datatypes.JSON
}

type PendingCount struct {
	Provider Provider
	Count    int64
	Amount   int64
}
