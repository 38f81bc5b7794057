package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/fee/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertStructure(ctx context.Context, db *gorm.DB, fs *domain.FeeStructure) error {
	return db.WithContext(ctx).Create(fs).Error
}

func (r *repo) ListStructures(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, filter domain.StructureFilter) ([]*domain.FeeStructure, error) {
	query := db.WithContext(ctx).Model(&domain.FeeStructure{}).Where("school_id = ?", schoolID)
	if classLevel := strings.TrimSpace(filter.ClassLevel); classLevel != "" {
		query = query.Where("class_level = ?", classLevel)
	}
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var items []*domain.FeeStructure
	if err := query.Order("class_level ASC, fee_type ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertOverride inserts or replaces the override for its scope.
func (r *repo) UpsertOverride(ctx context.Context, db *gorm.DB, o *domain.FeeOverride) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "school_id"},
			{Name: "student_id"},
			{Name: "fee_type"},
			{Name: "year"},
			{Name: "term_scope"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"custom_amount", "term", "is_active", "reason", "updated_at"}),
	}).Create(o).Error
}

func (r *repo) FindOverrideByScope(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, feeType string, termScope, year int) (*domain.FeeOverride, error) {
	var o domain.FeeOverride
	err := db.WithContext(ctx).
		Where("school_id = ? AND student_id = ? AND fee_type = ? AND term_scope = ? AND year = ?",
			schoolID, studentID, feeType, termScope, year).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *repo) FindOverrideByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.FeeOverride, error) {
	var o domain.FeeOverride
	err := db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *repo) DeactivateOverride(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE fee_overrides SET is_active = ?, updated_at = ?
		 WHERE school_id = ? AND id = ?`,
		false, at, schoolID, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListActiveOverrides(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, studentIDs []snowflake.ID, year int) ([]*domain.FeeOverride, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var items []*domain.FeeOverride
	err := db.WithContext(ctx).
		Where("school_id = ? AND student_id IN ? AND year = ? AND is_active = ?", schoolID, studentIDs, year, true).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
