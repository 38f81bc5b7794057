package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/invoice/format"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	obslogger "github.com/smallbiznis/bursar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	pkgdb "github.com/smallbiznis/bursar/pkg/db"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        invoicedomain.Repository
	StudentRepo studentdomain.Repository
	FeeSvc      feedomain.Service
	LedgerSvc   ledgerdomain.Service
	Billing     *config.BillingConfigHolder
	Clock       clock.Clock
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	repo        invoicedomain.Repository
	studentRepo studentdomain.Repository
	feeSvc      feedomain.Service
	ledgerSvc   ledgerdomain.Service
	billing     *config.BillingConfigHolder
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:       p.GenID,
		repo:        p.Repo,
		studentRepo: p.StudentRepo,
		feeSvc:      p.FeeSvc,
		ledgerSvc:   p.LedgerSvc,
		billing:     p.Billing,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
	}
}

// GenerateInvoices bills every active student of the cohort for a term. Each
// student is a separate unit of work: the invoice, its items and its ledger
// debit commit together or not at all. Students already invoiced are skipped.
func (s *Service) GenerateInvoices(ctx context.Context, req invoicedomain.GenerateInvoicesRequest) (invoicedomain.GenerateInvoicesResult, error) {
	result := invoicedomain.GenerateInvoicesResult{InvoiceIDs: []string{}}

	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return result, invoicedomain.ErrInvalidSchool
	}
	if err := validateTermYear(req.Term, req.Year); err != nil {
		return result, err
	}
	dueDate, err := s.resolveDueDate(req.DueDate)
	if err != nil {
		return result, err
	}

	students, err := s.studentRepo.ListActive(ctx, s.db, schoolID, req.ClassLevel)
	if err != nil {
		return result, err
	}
	cohort := make([]studentdomain.Student, 0, len(students))
	for _, st := range students {
		if st != nil {
			cohort = append(cohort, *st)
		}
	}

	resolved, err := s.feeSvc.ResolveCohort(ctx, s.db, schoolID, cohort, req.Term, req.Year)
	if err != nil {
		return result, err
	}

	for _, student := range cohort {
		invoice, err := s.createForStudent(ctx, schoolID, student, req.Term, req.Year, dueDate, resolved[student.ID])
		if errors.Is(err, invoicedomain.ErrDuplicateInvoice) {
			result.SkippedCount++
			continue
		}
		if err != nil {
			obslogger.WithStudent(obslogger.WithContext(ctx, s.log), student.ID.String(), req.Term, req.Year).Error("invoice generation stopped",
				zap.String("school_id", schoolID.String()),
				zap.Int("generated", result.GeneratedCount),
				zap.Error(err),
			)
			s.recordGeneration(ctx, result)
			return result, fmt.Errorf("generate invoice for student %s: %w", student.ID, err)
		}
		result.GeneratedCount++
		result.InvoiceIDs = append(result.InvoiceIDs, invoice.ID.String())
	}

	s.recordGeneration(ctx, result)
	s.log.Info("invoices generated",
		zap.String("school_id", schoolID.String()),
		zap.String("class_level", req.ClassLevel),
		zap.Int("term", req.Term),
		zap.Int("year", req.Year),
		zap.Int("generated", result.GeneratedCount),
		zap.Int("skipped", result.SkippedCount),
	)
	return result, nil
}

func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidSchool
	}
	if err := validateTermYear(req.Term, req.Year); err != nil {
		return invoicedomain.Invoice{}, err
	}
	studentID, err := snowflake.ParseString(strings.TrimSpace(req.StudentID))
	if err != nil || studentID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStudent
	}
	dueDate, err := s.resolveDueDate(req.DueDate)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	student, err := s.studentRepo.FindByID(ctx, s.db, schoolID, studentID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if student == nil {
		return invoicedomain.Invoice{}, studentdomain.ErrNotFound
	}

	resolved, err := s.feeSvc.ResolveCohort(ctx, s.db, schoolID, []studentdomain.Student{*student}, req.Term, req.Year)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice, err := s.createForStudent(ctx, schoolID, *student, req.Term, req.Year, dueDate, resolved[studentID])
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	s.recordGeneration(ctx, invoicedomain.GenerateInvoicesResult{GeneratedCount: 1})
	return invoice, nil
}

func (s *Service) createForStudent(ctx context.Context, schoolID snowflake.ID, student studentdomain.Student, term, year int, dueDate time.Time, lines []feedomain.LineItem) (invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	policy := s.billing.Get()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByStudentTerm(ctx, tx, schoolID, student.ID, term, year)
		if err != nil {
			return err
		}
		if existing != nil {
			return invoicedomain.ErrDuplicateInvoice
		}

		seq, err := s.repo.NextSequence(ctx, tx, schoolID, year)
		if err != nil {
			return err
		}
		number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, policy.InvoicePrefix, year, seq)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		total := feedomain.TotalOf(lines)
		invoice = invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			SchoolID:      schoolID,
			StudentID:     student.ID,
			InvoiceNumber: number,
			Term:          term,
			Year:          year,
			TotalAmount:   total,
			AmountPaid:    0,
			Balance:       total,
			DueDate:       dueDate,
			Status:        invoicedomain.StatusFor(total, 0, ""),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrDuplicateInvoice
			}
			return err
		}

		items := make([]invoicedomain.InvoiceItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				FeeType:     line.FeeType,
				Description: line.Description,
				Amount:      line.EffectiveAmount,
				CreatedAt:   now,
			})
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		invoice.Items = items

		if total > 0 {
			if _, err := s.ledgerSvc.Append(ctx, tx, ledgerdomain.Entry{
				SchoolID:      schoolID,
				StudentID:     student.ID,
				Type:          ledgerdomain.EntryTypeDebit,
				Amount:        total,
				Term:          term,
				Year:          year,
				Date:          now,
				Description:   fmt.Sprintf("Invoice %s", number),
				ReferenceType: ledgerdomain.ReferenceTypeInvoice,
				ReferenceID:   invoice.ID,
			}); err != nil {
				return err
			}
		}
		return s.ledgerSvc.Verify(ctx, tx, schoolID, student.ID, term, year, invoice.Balance)
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidSchool
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, schoolID, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, []snowflake.ID{invoice.ID})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Items = items
	if invoice.Items == nil {
		invoice.Items = []invoicedomain.InvoiceItem{}
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, req invoicedomain.ListInvoicesRequest) (invoicedomain.ListInvoicesResponse, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidSchool
	}

	filter := invoicedomain.ListFilter{Term: req.Term, Year: req.Year}
	if req.Term < 0 || req.Term > 3 {
		return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidTerm
	}
	if studentID := strings.TrimSpace(req.StudentID); studentID != "" {
		parsed, err := snowflake.ParseString(studentID)
		if err != nil || parsed == 0 {
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidStudent
		}
		filter.StudentID = parsed
	}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		switch invoicedomain.InvoiceStatus(status) {
		case invoicedomain.InvoiceStatusUnpaid, invoicedomain.InvoiceStatusPartial,
			invoicedomain.InvoiceStatusPaid, invoicedomain.InvoiceStatusOverdue:
			filter.Status = invoicedomain.InvoiceStatus(status)
		default:
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidStatus
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	items, err := s.repo.List(ctx, s.db, schoolID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(invoice *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item != nil {
			invoices = append(invoices, *item)
		}
	}
	return invoicedomain.ListInvoicesResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) MarkOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	if now.IsZero() {
		now = s.clock.Now()
	}
	updated, err := s.repo.MarkOverdue(ctx, s.db, now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", updated))
	}
	return int(updated), nil
}

func (s *Service) resolveDueDate(requested *time.Time) (time.Time, error) {
	if requested != nil {
		if requested.IsZero() {
			return time.Time{}, invoicedomain.ErrInvalidDueDate
		}
		return requested.UTC(), nil
	}
	days := s.billing.Get().DefaultDueDays
	if days <= 0 {
		days = config.DefaultBillingConfig().DefaultDueDays
	}
	return s.clock.Now().UTC().AddDate(0, 0, days), nil
}

func (s *Service) recordGeneration(ctx context.Context, result invoicedomain.GenerateInvoicesResult) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordInvoiceGeneration(ctx, result.GeneratedCount, result.SkippedCount)
}

func validateTermYear(term, year int) error {
	if term < 1 || term > 3 {
		return invoicedomain.ErrInvalidTerm
	}
	if year < 2000 || year > 2100 {
		return invoicedomain.ErrInvalidYear
	}
	return nil
}
