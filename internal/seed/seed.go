package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type demoStudent struct {
	admission string
	first     string
	last      string
	class     string
	boarding  string
}

var demoStudents = []demoStudent{
	{"SBX-001", "Amina", "Nakato", "P5", studentdomain.BoardingStatusDay},
	{"SBX-002", "Brian", "Okello", "P5", studentdomain.BoardingStatusDay},
	{"SBX-003", "Grace", "Atim", "S2", studentdomain.BoardingStatusBoarding},
	{"SBX-004", "Daniel", "Mugisha", "S2", studentdomain.BoardingStatusDay},
}

type demoFee struct {
	class    string
	feeType  string
	amount   int64
	term     *int
	boarding *string
}

func demoFees() []demoFee {
	termOne := 1
	boarding := studentdomain.BoardingStatusBoarding
	return []demoFee{
		{"P5", "tuition", 450000, nil, nil},
		{"P5", "development", 50000, &termOne, nil},
		{"S2", "tuition", 700000, nil, nil},
		{"S2", "boarding", 350000, nil, &boarding},
		{"S2", "library", 20000, nil, nil},
	}
}

// Register seeds demo students and fee structures for the default school when
// the mobile money sandbox is on.
func Register(cfg config.Config, db *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
	if !cfg.MobileMoney.Sandbox || cfg.DefaultSchoolID <= 0 {
		return nil
	}
	if err := EnsureSandboxSchool(context.Background(), db, node, snowflake.ID(cfg.DefaultSchoolID), clk.Now()); err != nil {
		return err
	}
	log.Info("sandbox school seeded", zap.Int64("school_id", cfg.DefaultSchoolID))
	return nil
}

// EnsureSandboxSchool inserts the demo records once. Existing rows are left as they are.
func EnsureSandboxSchool(ctx context.Context, db *gorm.DB, node *snowflake.Node, schoolID snowflake.ID, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}
	now = now.UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, demo := range demoStudents {
			if err := ensureStudentTx(ctx, tx, node, schoolID, demo, now); err != nil {
				return err
			}
		}
		return ensureFeeStructuresTx(ctx, tx, node, schoolID, now)
	})
}

func ensureStudentTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, schoolID snowflake.ID, demo demoStudent, now time.Time) error {
	var existing studentdomain.Student
	err := tx.WithContext(ctx).
		Where("school_id = ? AND admission_number = ?", schoolID, demo.admission).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	student := studentdomain.Student{
		ID:              node.Generate(),
		SchoolID:        schoolID,
		AdmissionNumber: demo.admission,
		FirstName:       demo.first,
		LastName:        demo.last,
		ClassLevel:      demo.class,
		BoardingStatus:  demo.boarding,
		Status:          studentdomain.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return tx.WithContext(ctx).Create(&student).Error
}

func ensureFeeStructuresTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, schoolID snowflake.ID, now time.Time) error {
	year := now.Year()
	var count int64
	if err := tx.WithContext(ctx).
		Model(&feedomain.FeeStructure{}).
		Where("school_id = ? AND year = ?", schoolID, year).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, fee := range demoFees() {
		fs := feedomain.FeeStructure{
			ID:             node.Generate(),
			SchoolID:       schoolID,
			ClassLevel:     fee.class,
			FeeType:        fee.feeType,
			Amount:         fee.amount,
			Term:           fee.term,
			Year:           year,
			BoardingStatus: fee.boarding,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(&fs).Error; err != nil {
			return err
		}
	}
	return nil
}
