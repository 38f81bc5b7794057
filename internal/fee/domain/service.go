package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"gorm.io/gorm"
)

type CreateFeeStructureRequest struct {
	ClassLevel     string  `json:"class_level" validate:"required"`
	FeeType        string  `json:"fee_type" validate:"required"`
	Description    string  `json:"description"`
	Amount         int64   `json:"amount" validate:"gte=0"`
	Term           *int    `json:"term" validate:"omitempty,min=1,max=3"`
	Year           int     `json:"year" validate:"required,min=2000,max=2100"`
	BoardingStatus *string `json:"boarding_status" validate:"omitempty,oneof=day boarding all"`
}

type ListFeeStructuresRequest struct {
	ClassLevel string `form:"class_level"`
	Year       int    `form:"year"`
}

type UpsertFeeOverrideRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	FeeType      string `json:"fee_type" validate:"required"`
	CustomAmount int64  `json:"custom_amount" validate:"gt=0"`
	Term         *int   `json:"term" validate:"omitempty,min=1,max=3"`
	Year         int    `json:"year" validate:"required,min=2000,max=2100"`
	Reason       string `json:"reason"`
}

type FeeBreakdownRequest struct {
	StudentID string
	Term      int
	Year      int
}

type Service interface {
	CreateFeeStructure(ctx context.Context, req CreateFeeStructureRequest) (FeeStructure, error)
	ListFeeStructures(ctx context.Context, req ListFeeStructuresRequest) ([]FeeStructure, error)
	UpsertFeeOverride(ctx context.Context, req UpsertFeeOverrideRequest) (FeeOverride, error)
	DeactivateFeeOverride(ctx context.Context, id string) error
	GetStudentFeeBreakdown(ctx context.Context, req FeeBreakdownRequest) ([]LineItem, error)

	// ResolveCohort resolves line items for many students of one school using db,
	// which may be a transaction.
	ResolveCohort(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, students []studentdomain.Student, term, year int) (map[snowflake.ID][]LineItem, error)
}

var (
	ErrInvalidSchool     = errors.New("invalid_school")
	ErrInvalidStudent    = errors.New("invalid_student_id")
	ErrInvalidFeeType    = errors.New("invalid_fee_type")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidTerm       = errors.New("invalid_term")
	ErrInvalidYear       = errors.New("invalid_year")
	ErrInvalidClassLevel = errors.New("invalid_class_level")
	ErrInvalidBoarding   = errors.New("invalid_boarding_status")
	ErrInvalidOverrideID = errors.New("invalid_fee_override_id")
	ErrOverrideNotFound  = errors.New("fee_override_not_found")
)
