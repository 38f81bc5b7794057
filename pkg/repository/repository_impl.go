package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/pkg/db/option"
	"gorm.io/gorm"
)

type schoolStore[T any] struct {
	db       *gorm.DB
	schoolID snowflake.ID
}

// ForSchool opens a Store on db, which may be a transaction.
func ForSchool[T any](db *gorm.DB, schoolID snowflake.ID) Store[T] {
	return &schoolStore[T]{db: db, schoolID: schoolID}
}

// Find matches on the non-zero fields of query.
func (s *schoolStore[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	err := s.scoped(ctx, query, opts...).Find(&result).Error
	return result, err
}

// FindOne returns nil, nil when nothing matches.
func (s *schoolStore[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	err := s.scoped(ctx, query, opts...).Take(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *schoolStore[T]) Exists(ctx context.Context, query *T, opts ...option.QueryOption) (bool, error) {
	var count int64
	err := s.scoped(ctx, query, opts...).Limit(1).Count(&count).Error
	return count > 0, err
}

func (s *schoolStore[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *schoolStore[T]) scoped(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx).Model(new(T)).Where("school_id = ?", s.schoolID)
	if filter != nil {
		db = db.Where(filter)
	}
	for _, opt := range opts {
		db = opt.Apply(db)
	}
	return db
}
