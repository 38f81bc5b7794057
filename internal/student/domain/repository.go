package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, student *Student) error
	FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*Student, error)
	FindByIDs(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, ids []snowflake.ID) ([]*Student, error)
	ListActive(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, classLevel string) ([]*Student, error)
	AdmissionNumberTaken(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, admissionNumber string) (bool, error)
}
