package domain

import (
	"context"
	"errors"
)

type CreateStudentRequest struct {
	AdmissionNumber string `json:"admission_number" validate:"required"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name"`
	ClassLevel      string `json:"class_level" validate:"required"`
	Stream          string `json:"stream"`
	BoardingStatus  string `json:"boarding_status" validate:"omitempty,oneof=day boarding"`
}

type Service interface {
	Create(ctx context.Context, req CreateStudentRequest) (Student, error)
	Get(ctx context.Context, id string) (Student, error)
	ListActive(ctx context.Context, classLevel string) ([]Student, error)
}

var (
	ErrInvalidSchool      = errors.New("invalid_school")
	ErrInvalidID          = errors.New("invalid_student_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidClassLevel  = errors.New("invalid_class_level")
	ErrInvalidBoarding    = errors.New("invalid_boarding_status")
	ErrNotFound           = errors.New("student_not_found")
	ErrDuplicateAdmission = errors.New("duplicate_admission_number")
)
