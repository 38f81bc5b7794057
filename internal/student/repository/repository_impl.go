package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/pkg/db/option"
	"github.com/smallbiznis/bursar/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, student *domain.Student) error {
	return repository.ForSchool[domain.Student](db, student.SchoolID).Create(ctx, student)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.Student, error) {
	return repository.ForSchool[domain.Student](db, schoolID).FindOne(ctx, &domain.Student{ID: id})
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, ids []snowflake.ID) ([]*domain.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return repository.ForSchool[domain.Student](db, schoolID).Find(ctx, nil, option.WithWhere("id IN ?", ids))
}

func (r *repo) AdmissionNumberTaken(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, admissionNumber string) (bool, error) {
	return repository.ForSchool[domain.Student](db, schoolID).Exists(ctx, &domain.Student{AdmissionNumber: admissionNumber})
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, classLevel string) ([]*domain.Student, error) {
	return repository.ForSchool[domain.Student](db, schoolID).Find(ctx,
		&domain.Student{
			ClassLevel: strings.TrimSpace(classLevel),
			Status:     domain.StatusActive,
		},
		option.WithSortBy("id", "asc"),
	)
}
