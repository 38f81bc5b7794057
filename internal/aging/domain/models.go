package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DebtorView is one outstanding invoice with its age.
type DebtorView struct {
	InvoiceID       snowflake.ID `json:"invoice_id"`
	InvoiceNumber   string       `json:"invoice_number"`
	StudentID       snowflake.ID `json:"student_id"`
	StudentName     string       `json:"student_name"`
	AdmissionNumber string       `json:"admission_number"`
	ClassLevel      string       `json:"class_level"`
	Term            int          `json:"term"`
	Year            int          `json:"year"`
	TotalAmount     int64        `json:"total_amount"`
	AmountPaid      int64        `json:"amount_paid"`
	Balance         int64        `json:"balance"`
	DueDate         time.Time    `json:"due_date"`
	DaysOverdue     int          `json:"days_overdue"`
	AgingCategory   string       `json:"aging_category"`
}

type BucketTotal struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Amount int64  `json:"amount"`
}

type AgingSummary struct {
	TotalDebtors     int           `json:"total_debtors"`
	TotalOutstanding int64         `json:"total_outstanding"`
	Buckets          []BucketTotal `json:"buckets"`
}

type DebtorsReport struct {
	Debtors []DebtorView `json:"debtors"`
	Summary AgingSummary `json:"summary"`
	AsOf    time.Time    `json:"as_of"`
}

type GetDebtorsRequest struct {
	Term int `form:"term"`
	Year int `form:"year"`
}

type Service interface {
	GetDebtors(ctx context.Context, req GetDebtorsRequest) (DebtorsReport, error)
}

var (
	ErrInvalidSchool = errors.New("invalid_school")
	ErrInvalidTerm   = errors.New("invalid_term")
	ErrInvalidYear   = errors.New("invalid_year")
)
