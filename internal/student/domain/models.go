package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	BoardingStatusDay      = "day"
	BoardingStatusBoarding = "boarding"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Student is the roster record billing reads. The roster itself is owned elsewhere.
type Student struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID        snowflake.ID `gorm:"not null;index" json:"school_id"`
	AdmissionNumber string       `gorm:"not null" json:"admission_number"`
	FirstName       string       `gorm:"not null" json:"first_name"`
	LastName        string       `gorm:"not null" json:"last_name"`
	ClassLevel      string       `gorm:"size:64;not null;index" json:"class_level"`
	Stream          string       `json:"stream,omitempty"`
	BoardingStatus  string       `gorm:"not null;default:day" json:"boarding_status"`
	Status          string       `gorm:"not null;default:active" json:"status"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (Student) TableName() string { return "students" }

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}
