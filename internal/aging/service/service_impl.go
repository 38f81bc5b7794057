package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/aging/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
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
	InvoiceRepo invoicedomain.Repository
	StudentRepo studentdomain.Repository
	Billing     *config.BillingConfigHolder
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	invoiceRepo invoicedomain.Repository
	studentRepo studentdomain.Repository
	billing     *config.BillingConfigHolder
	clock       clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("aging.service"),
		invoiceRepo: p.InvoiceRepo,
		studentRepo: p.StudentRepo,
		billing:     p.Billing,
		clock:       clk,
	}
}

// GetDebtors recomputes the aging report from current invoice balances.
// Nothing is cached or stored.
func (s *Service) GetDebtors(ctx context.Context, req domain.GetDebtorsRequest) (domain.DebtorsReport, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.DebtorsReport{}, domain.ErrInvalidSchool
	}
	if req.Term < 1 || req.Term > 3 {
		return domain.DebtorsReport{}, domain.ErrInvalidTerm
	}
	if req.Year < 2000 || req.Year > 2100 {
		return domain.DebtorsReport{}, domain.ErrInvalidYear
	}

	now := s.clock.Now().UTC()
	buckets := s.billing.Get().AgingBuckets
	report := domain.DebtorsReport{
		Debtors: []domain.DebtorView{},
		AsOf:    now,
	}
	report.Summary.Buckets = make([]domain.BucketTotal, 0, len(buckets))
	index := make(map[string]int, len(buckets))
	for _, bucket := range buckets {
		index[bucket.Label] = len(report.Summary.Buckets)
		report.Summary.Buckets = append(report.Summary.Buckets, domain.BucketTotal{Label: bucket.Label})
	}

	invoices, err := s.invoiceRepo.ListOutstanding(ctx, s.db, schoolID, req.Term, req.Year)
	if err != nil {
		s.log.Warn("debtor report degraded to empty",
			zap.String("school_id", schoolID.String()),
			zap.Int("term", req.Term),
			zap.Int("year", req.Year),
			zap.Error(err),
		)
		return report, nil
	}
	if len(invoices) == 0 {
		return report, nil
	}

	students := s.loadStudents(ctx, schoolID, invoices)
	debtors := make(map[snowflake.ID]struct{}, len(invoices))
	for _, inv := range invoices {
		if inv == nil || inv.Balance <= 0 {
			continue
		}
		days := domain.DaysOverdue(now, inv.DueDate)
		view := domain.DebtorView{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			StudentID:     inv.StudentID,
			Term:          inv.Term,
			Year:          inv.Year,
			TotalAmount:   inv.TotalAmount,
			AmountPaid:    inv.AmountPaid,
			Balance:       inv.Balance,
			DueDate:       inv.DueDate,
			DaysOverdue:   days,
			AgingCategory: domain.Categorize(days, inv.Balance, buckets),
		}
		if st, ok := students[inv.StudentID]; ok {
			view.StudentName = st.FullName()
			view.AdmissionNumber = st.AdmissionNumber
			view.ClassLevel = st.ClassLevel
		}
		report.Debtors = append(report.Debtors, view)

		debtors[inv.StudentID] = struct{}{}
		report.Summary.TotalOutstanding += inv.Balance
		if i, ok := index[view.AgingCategory]; ok {
			report.Summary.Buckets[i].Count++
			report.Summary.Buckets[i].Amount += inv.Balance
		}
	}
	report.Summary.TotalDebtors = len(debtors)
	return report, nil
}

// loadStudents degrades to an empty map; names are decoration on the report.
func (s *Service) loadStudents(ctx context.Context, schoolID snowflake.ID, invoices []*invoicedomain.Invoice) map[snowflake.ID]studentdomain.Student {
	ids := make([]snowflake.ID, 0, len(invoices))
	seen := make(map[snowflake.ID]struct{}, len(invoices))
	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		if _, ok := seen[inv.StudentID]; ok {
			continue
		}
		seen[inv.StudentID] = struct{}{}
		ids = append(ids, inv.StudentID)
	}

	out := make(map[snowflake.ID]studentdomain.Student, len(ids))
	items, err := s.studentRepo.FindByIDs(ctx, s.db, schoolID, ids)
	if err != nil {
		s.log.Warn("load debtor names", zap.String("school_id", schoolID.String()), zap.Error(err))
		return out
	}
	for _, st := range items {
		if st != nil {
			out[st.ID] = *st
		}
	}
	return out
}
