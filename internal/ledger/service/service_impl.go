package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/clock"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
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
	Repo        ledgerdomain.Repository
	StudentRepo studentdomain.Repository
	Clock       clock.Clock
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        ledgerdomain.Repository
	studentRepo studentdomain.Repository
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		studentRepo: p.StudentRepo,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry ledgerdomain.Entry) (bool, error) {
	if tx == nil {
		return false, ledgerdomain.ErrTransactionRequired
	}
	if entry.SchoolID == 0 {
		return false, ledgerdomain.ErrInvalidSchool
	}
	if entry.StudentID == 0 {
		return false, ledgerdomain.ErrInvalidStudent
	}
	entryType, err := normalizeEntryType(entry.Type)
	if err != nil {
		return false, err
	}
	if entry.Amount <= 0 {
		return false, ledgerdomain.ErrInvalidAmount
	}
	if entry.ReferenceID == 0 {
		return false, ledgerdomain.ErrInvalidReference
	}
	switch entry.ReferenceType {
	case ledgerdomain.ReferenceTypeInvoice, ledgerdomain.ReferenceTypeFeePayment:
	default:
		return false, ledgerdomain.ErrInvalidReference
	}
	if entry.Term <= 0 || entry.Year <= 0 {
		return false, ledgerdomain.ErrInvalidTermOrYear
	}
	if entry.Date.IsZero() {
		return false, ledgerdomain.ErrInvalidDate
	}

	row := ledgerdomain.FinanceTransaction{
		ID:            s.genID.Generate(),
		SchoolID:      entry.SchoolID,
		StudentID:     entry.StudentID,
		Type:          entryType,
		Amount:        entry.Amount,
		Term:          entry.Term,
		Year:          entry.Year,
		Date:          entry.Date.UTC(),
		Description:   strings.TrimSpace(entry.Description),
		ReferenceType: entry.ReferenceType,
		ReferenceID:   entry.ReferenceID,
		CreatedAt:     s.clock.Now().UTC(),
	}

	inserted, err := s.repo.Insert(ctx, tx, &row)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug("finance transaction already posted",
			zap.String("reference_type", string(entry.ReferenceType)),
			zap.String("reference_id", entry.ReferenceID.String()),
			zap.String("type", string(entryType)),
		)
		return false, nil
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(entryType))
	}
	return true, nil
}

func (s *Service) Verify(ctx context.Context, tx *gorm.DB, schoolID, studentID snowflake.ID, term, year int, expected int64) error {
	if tx == nil {
		tx = s.db
	}
	balance, err := s.repo.Balance(ctx, tx, schoolID, studentID, term, year)
	if err != nil {
		return err
	}
	if balance != expected {
		s.log.Error("ledger balance mismatch",
			zap.String("school_id", schoolID.String()),
			zap.String("student_id", studentID.String()),
			zap.Int("term", term),
			zap.Int("year", year),
			zap.Int64("ledger_balance", balance),
			zap.Int64("expected_balance", expected),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLedgerInconsistency(ctx, "posting")
		}
		return ledgerdomain.ErrInconsistentState
	}
	return nil
}

func (s *Service) StudentLedger(ctx context.Context, req ledgerdomain.StudentLedgerRequest) (ledgerdomain.StudentLedger, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return ledgerdomain.StudentLedger{}, ledgerdomain.ErrInvalidSchool
	}
	studentID, err := snowflake.ParseString(strings.TrimSpace(req.StudentID))
	if err != nil || studentID == 0 {
		return ledgerdomain.StudentLedger{}, ledgerdomain.ErrInvalidStudent
	}

	student, err := s.studentRepo.FindByID(ctx, s.db, schoolID, studentID)
	if err != nil {
		return ledgerdomain.StudentLedger{}, err
	}
	if student == nil {
		return ledgerdomain.StudentLedger{}, studentdomain.ErrNotFound
	}

	items, err := s.repo.ListForStudent(ctx, s.db, schoolID, studentID, ledgerdomain.StudentLedgerFilter{
		Term: req.Term,
		Year: req.Year,
	})
	if err != nil {
		return ledgerdomain.StudentLedger{}, err
	}

	out := ledgerdomain.StudentLedger{
		StudentID: studentID,
		Entries:   make([]ledgerdomain.LedgerRow, 0, len(items)),
	}
	var running int64
	for _, item := range items {
		if item == nil {
			continue
		}
		running += item.Signed()
		out.Entries = append(out.Entries, ledgerdomain.LedgerRow{
			FinanceTransaction: *item,
			RunningBalance:     running,
		})
	}
	out.Balance = running
	return out, nil
}

func (s *Service) FindDrift(ctx context.Context, limit int) ([]ledgerdomain.Drift, error) {
	drift, err := s.repo.ListDrift(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	if s.obsMetrics != nil {
		for range drift {
			s.obsMetrics.RecordLedgerInconsistency(ctx, "consistency_check")
		}
	}
	return drift, nil
}

func normalizeEntryType(entryType ledgerdomain.EntryType) (ledgerdomain.EntryType, error) {
	switch ledgerdomain.EntryType(strings.ToLower(strings.TrimSpace(string(entryType)))) {
	case ledgerdomain.EntryTypeDebit:
		return ledgerdomain.EntryTypeDebit, nil
	case ledgerdomain.EntryTypeCredit:
		return ledgerdomain.EntryTypeCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidEntryType
	}
}
