package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertStructure(ctx context.Context, db *gorm.DB, fs *FeeStructure) error
	ListStructures(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, filter StructureFilter) ([]*FeeStructure, error)

	UpsertOverride(ctx context.Context, db *gorm.DB, o *FeeOverride) error
	FindOverrideByScope(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID, feeType string, termScope, year int) (*FeeOverride, error)
	FindOverrideByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*FeeOverride, error)
	DeactivateOverride(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID, at time.Time) (bool, error)
	ListActiveOverrides(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, studentIDs []snowflake.ID, year int) ([]*FeeOverride, error)
}

type StructureFilter struct {
	ClassLevel string
	Year       int
	ActiveOnly bool
}
