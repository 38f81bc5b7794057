package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const BoardingStatusAll = "all"

// FeeStructure is the standard charge for a class level. A nil Term applies to
// every term of the year; a nil or "all" BoardingStatus applies to everyone.
type FeeStructure struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID `gorm:"not null;index:idx_fee_structures_lookup" json:"school_id"`
	ClassLevel     string       `gorm:"size:64;not null;index:idx_fee_structures_lookup" json:"class_level"`
	FeeType        string       `gorm:"not null" json:"fee_type"`
	Description    string       `json:"description,omitempty"`
	Amount         int64        `gorm:"not null" json:"amount"`
	Term           *int         `json:"term,omitempty"`
	Year           int          `gorm:"not null;index:idx_fee_structures_lookup" json:"year"`
	BoardingStatus *string      `json:"boarding_status,omitempty"`
	IsActive       bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (FeeStructure) TableName() string { return "fee_structures" }

// FeeOverride replaces the amount of one fee type for one student.
// TermScope is 0 when the override spans every term; it keys the upsert.
type FeeOverride struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID     snowflake.ID `gorm:"not null;uniqueIndex:ux_fee_overrides_scope,priority:1" json:"school_id"`
	StudentID    snowflake.ID `gorm:"not null;uniqueIndex:ux_fee_overrides_scope,priority:2" json:"student_id"`
	FeeType      string       `gorm:"size:64;not null;uniqueIndex:ux_fee_overrides_scope,priority:3" json:"fee_type"`
	CustomAmount int64        `gorm:"not null" json:"custom_amount"`
	Term         *int         `json:"term,omitempty"`
	TermScope    int          `gorm:"not null;default:0;uniqueIndex:ux_fee_overrides_scope,priority:5" json:"-"`
	Year         int          `gorm:"not null;uniqueIndex:ux_fee_overrides_scope,priority:4" json:"year"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
	Reason       string       `json:"reason,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (FeeOverride) TableName() string { return "fee_overrides" }

// StudentProfile is the subset of a student the resolver matches on.
type StudentProfile struct {
	StudentID      snowflake.ID
	ClassLevel     string
	BoardingStatus string
}

// LineItem is one resolved fee for a student and term.
type LineItem struct {
	FeeType         string `json:"fee_type"`
	Description     string `json:"description,omitempty"`
	StandardAmount  int64  `json:"standard_amount"`
	CustomAmount    *int64 `json:"custom_amount"`
	EffectiveAmount int64  `json:"effective_amount"`
}

func TotalOf(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.EffectiveAmount
	}
	return total
}
