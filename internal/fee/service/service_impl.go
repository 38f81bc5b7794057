package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/fee/domain"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	StudentRepo studentdomain.Repository
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	studentRepo studentdomain.Repository
	clock       clock.Clock
	validate    *validator.Validate
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("fee.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		studentRepo: p.StudentRepo,
		clock:       clk,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) CreateFeeStructure(ctx context.Context, req domain.CreateFeeStructureRequest) (domain.FeeStructure, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.FeeStructure{}, domain.ErrInvalidSchool
	}

	req.ClassLevel = strings.TrimSpace(req.ClassLevel)
	req.FeeType = strings.ToLower(strings.TrimSpace(req.FeeType))
	if req.BoardingStatus != nil {
		normalized := strings.ToLower(strings.TrimSpace(*req.BoardingStatus))
		req.BoardingStatus = &normalized
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.FeeStructure{}, mapValidationError(err)
	}

	now := s.clock.Now().UTC()
	fs := domain.FeeStructure{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		ClassLevel:     req.ClassLevel,
		FeeType:        req.FeeType,
		Description:    strings.TrimSpace(req.Description),
		Amount:         req.Amount,
		Term:           req.Term,
		Year:           req.Year,
		BoardingStatus: req.BoardingStatus,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertStructure(ctx, s.db, &fs); err != nil {
		return domain.FeeStructure{}, err
	}
	return fs, nil
}

func (s *Service) ListFeeStructures(ctx context.Context, req domain.ListFeeStructuresRequest) ([]domain.FeeStructure, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidSchool
	}
	items, err := s.repo.ListStructures(ctx, s.db, schoolID, domain.StructureFilter{
		ClassLevel: req.ClassLevel,
		Year:       req.Year,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.FeeStructure, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) UpsertFeeOverride(ctx context.Context, req domain.UpsertFeeOverrideRequest) (domain.FeeOverride, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.FeeOverride{}, domain.ErrInvalidSchool
	}

	req.FeeType = strings.ToLower(strings.TrimSpace(req.FeeType))
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := s.validate.Struct(req); err != nil {
		return domain.FeeOverride{}, mapValidationError(err)
	}
	studentID, err := snowflake.ParseString(req.StudentID)
	if err != nil || studentID == 0 {
		return domain.FeeOverride{}, domain.ErrInvalidStudent
	}

	termScope := 0
	if req.Term != nil {
		termScope = *req.Term
	}

	var saved *domain.FeeOverride
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.FindByID(ctx, tx, schoolID, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return studentdomain.ErrNotFound
		}

		now := s.clock.Now().UTC()
		override := domain.FeeOverride{
			ID:           s.genID.Generate(),
			SchoolID:     schoolID,
			StudentID:    studentID,
			FeeType:      req.FeeType,
			CustomAmount: req.CustomAmount,
			Term:         req.Term,
			TermScope:    termScope,
			Year:         req.Year,
			IsActive:     true,
			Reason:       strings.TrimSpace(req.Reason),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.UpsertOverride(ctx, tx, &override); err != nil {
			return err
		}

		saved, err = s.repo.FindOverrideByScope(ctx, tx, schoolID, studentID, req.FeeType, termScope, req.Year)
		if err != nil {
			return err
		}
		if saved == nil {
			return domain.ErrOverrideNotFound
		}
		return nil
	})
	if err != nil {
		return domain.FeeOverride{}, err
	}

	s.log.Info("fee override saved",
		zap.String("school_id", schoolID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("fee_type", saved.FeeType),
		zap.Int("year", saved.Year),
		zap.Int("term_scope", termScope),
	)
	return *saved, nil
}

func (s *Service) DeactivateFeeOverride(ctx context.Context, id string) error {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidSchool
	}
	overrideID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || overrideID == 0 {
		return domain.ErrInvalidOverrideID
	}

	updated, err := s.repo.DeactivateOverride(ctx, s.db, schoolID, overrideID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrOverrideNotFound
	}
	return nil
}

func (s *Service) GetStudentFeeBreakdown(ctx context.Context, req domain.FeeBreakdownRequest) ([]domain.LineItem, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidSchool
	}
	if req.Term < 1 || req.Term > 3 {
		return nil, domain.ErrInvalidTerm
	}
	if req.Year <= 0 {
		return nil, domain.ErrInvalidYear
	}
	studentID, err := snowflake.ParseString(strings.TrimSpace(req.StudentID))
	if err != nil || studentID == 0 {
		return nil, domain.ErrInvalidStudent
	}

	student, err := s.studentRepo.FindByID(ctx, s.db, schoolID, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, studentdomain.ErrNotFound
	}

	resolved, err := s.ResolveCohort(ctx, s.db, schoolID, []studentdomain.Student{*student}, req.Term, req.Year)
	if err != nil {
		return nil, err
	}
	items := resolved[studentID]
	if items == nil {
		items = []domain.LineItem{}
	}
	return items, nil
}

func (s *Service) ResolveCohort(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, students []studentdomain.Student, term, year int) (map[snowflake.ID][]domain.LineItem, error) {
	out := make(map[snowflake.ID][]domain.LineItem, len(students))
	if len(students) == 0 {
		return out, nil
	}
	if db == nil {
		db = s.db
	}

	structures, err := s.repo.ListStructures(ctx, db, schoolID, domain.StructureFilter{Year: year, ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	studentIDs := make([]snowflake.ID, 0, len(students))
	for _, st := range students {
		studentIDs = append(studentIDs, st.ID)
	}
	overrides, err := s.repo.ListActiveOverrides(ctx, db, schoolID, studentIDs, year)
	if err != nil {
		return nil, err
	}

	structureValues := make([]domain.FeeStructure, 0, len(structures))
	for _, fs := range structures {
		if fs != nil {
			structureValues = append(structureValues, *fs)
		}
	}
	overridesByStudent := make(map[snowflake.ID][]domain.FeeOverride)
	for _, o := range overrides {
		if o != nil {
			overridesByStudent[o.StudentID] = append(overridesByStudent[o.StudentID], *o)
		}
	}

	for _, st := range students {
		out[st.ID] = domain.Resolve(domain.StudentProfile{
			StudentID:      st.ID,
			ClassLevel:     st.ClassLevel,
			BoardingStatus: st.BoardingStatus,
		}, term, year, structureValues, overridesByStudent[st.ID])
	}
	return out, nil
}

func mapValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Field() {
	case "StudentID":
		return domain.ErrInvalidStudent
	case "FeeType":
		return domain.ErrInvalidFeeType
	case "Amount", "CustomAmount":
		return domain.ErrInvalidAmount
	case "Term":
		return domain.ErrInvalidTerm
	case "Year":
		return domain.ErrInvalidYear
	case "ClassLevel":
		return domain.ErrInvalidClassLevel
	case "BoardingStatus":
		return domain.ErrInvalidBoarding
	default:
		return err
	}
}
