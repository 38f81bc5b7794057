package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type GenerateInvoicesRequest struct {
	Term       int        `json:"term" validate:"min=1,max=3"`
	Year       int        `json:"year" validate:"min=2000,max=2100"`
	ClassLevel string     `json:"class_level"`
	DueDate    *time.Time `json:"due_date"`
}

type GenerateInvoicesResult struct {
	GeneratedCount int      `json:"generated_count"`
	SkippedCount   int      `json:"skipped_count"`
	InvoiceIDs     []string `json:"invoice_ids"`
}

type CreateInvoiceRequest struct {
	StudentID string     `json:"student_id" validate:"required"`
	Term      int        `json:"term" validate:"min=1,max=3"`
	Year      int        `json:"year" validate:"min=2000,max=2100"`
	DueDate   *time.Time `json:"due_date"`
}

type ListInvoicesRequest struct {
	Term      int    `form:"term"`
	Year      int    `form:"year"`
	StudentID string `form:"student_id"`
	Status    string `form:"status"`
	pagination.Pagination
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	GenerateInvoices(ctx context.Context, req GenerateInvoicesRequest) (GenerateInvoicesResult, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	// MarkOverdue flags past-due unpaid and partial invoices across all schools.
	MarkOverdue(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	ErrInvalidSchool    = errors.New("invalid_school")
	ErrInvalidID        = errors.New("invalid_invoice_id")
	ErrInvalidStudent   = errors.New("invalid_student_id")
	ErrInvalidTerm      = errors.New("invalid_term")
	ErrInvalidYear      = errors.New("invalid_year")
	ErrInvalidStatus    = errors.New("invalid_invoice_status")
	ErrInvalidDueDate   = errors.New("invalid_due_date")
	ErrNotFound         = errors.New("invoice_not_found")
	ErrDuplicateInvoice = errors.New("invoice_already_exists")
)
