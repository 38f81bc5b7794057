package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	"github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	validate *validator.Validate
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("student.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateStudentRequest) (domain.Student, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.Student{}, domain.ErrInvalidSchool
	}

	req.AdmissionNumber = strings.TrimSpace(req.AdmissionNumber)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.ClassLevel = strings.TrimSpace(req.ClassLevel)
	req.BoardingStatus = strings.ToLower(strings.TrimSpace(req.BoardingStatus))
	if err := s.validate.Struct(req); err != nil {
		return domain.Student{}, mapValidationError(err)
	}

	taken, err := s.repo.AdmissionNumberTaken(ctx, s.db, schoolID, req.AdmissionNumber)
	if err != nil {
		return domain.Student{}, err
	}
	if taken {
		return domain.Student{}, domain.ErrDuplicateAdmission
	}

	boarding := req.BoardingStatus
	if boarding == "" {
		boarding = domain.BoardingStatusDay
	}

	now := s.clock.Now().UTC()
	student := domain.Student{
		ID:              s.genID.Generate(),
		SchoolID:        schoolID,
		AdmissionNumber: req.AdmissionNumber,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		ClassLevel:      req.ClassLevel,
		Stream:          strings.TrimSpace(req.Stream),
		BoardingStatus:  boarding,
		Status:          domain.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, &student); err != nil {
		return domain.Student{}, err
	}
	return student, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Student, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.Student{}, domain.ErrInvalidSchool
	}
	studentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || studentID == 0 {
		return domain.Student{}, domain.ErrInvalidID
	}

	student, err := s.repo.FindByID(ctx, s.db, schoolID, studentID)
	if err != nil {
		return domain.Student{}, err
	}
	if student == nil {
		return domain.Student{}, domain.ErrNotFound
	}
	return *student, nil
}

func (s *Service) ListActive(ctx context.Context, classLevel string) ([]domain.Student, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidSchool
	}
	items, err := s.repo.ListActive(ctx, s.db, schoolID, classLevel)
	if err != nil {
		return nil, err
	}
	students := make([]domain.Student, 0, len(items))
	for _, item := range items {
		if item != nil {
			students = append(students, *item)
		}
	}
	return students, nil
}

func mapValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Field() {
	case "ClassLevel":
		return domain.ErrInvalidClassLevel
	case "BoardingStatus":
		return domain.ErrInvalidBoarding
	default:
		return domain.ErrInvalidName
	}
}
