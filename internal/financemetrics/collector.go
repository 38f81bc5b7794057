package financemetrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"gorm.io/gorm"
)

// Snapshot holds the finance gauges pushed on every interval. Each refresh
// replaces the previous label set, so settled schools drop out.
type Snapshot struct {
	registry *prometheus.Registry
	db       *gorm.DB

	invoiceRepo     invoicedomain.Repository
	mobileMoneyRepo mobilemoneydomain.Repository

	outstanding   *prometheus.GaugeVec
	debtors       *prometheus.GaugeVec
	pendingCount  *prometheus.GaugeVec
	pendingAmount *prometheus.GaugeVec
}

func NewSnapshot(db *gorm.DB, invoiceRepo invoicedomain.Repository, mobileMoneyRepo mobilemoneydomain.Repository) *Snapshot {
	s := &Snapshot{
		registry:        prometheus.NewRegistry(),
		db:              db,
		invoiceRepo:     invoiceRepo,
		mobileMoneyRepo: mobileMoneyRepo,
		outstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bursar_finance_outstanding_amount",
			Help: "Sum of positive invoice balances per school.",
		}, []string{"school_id"}),
		debtors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bursar_finance_debtors",
			Help: "Students with an outstanding balance per school.",
		}, []string{"school_id"}),
		pendingCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bursar_mobile_money_pending_transactions",
			Help: "Mobile money transactions awaiting a callback.",
		}, []string{"provider"}),
		pendingAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bursar_mobile_money_pending_amount",
			Help: "Amount held in pending mobile money transactions.",
		}, []string{"provider"}),
	}
	s.registry.MustRegister(s.outstanding, s.debtors, s.pendingCount, s.pendingAmount)
	return s
}

func (s *Snapshot) Registry() *prometheus.Registry {
	return s.registry
}

// Refresh reloads every gauge from the database.
func (s *Snapshot) Refresh(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("finance snapshot is not configured")
	}

	totals, err := s.invoiceRepo.SumOutstandingBySchool(ctx, s.db)
	if err != nil {
		return err
	}
	pending, err := s.mobileMoneyRepo.CountPendingByProvider(ctx, s.db)
	if err != nil {
		return err
	}

	s.outstanding.Reset()
	s.debtors.Reset()
	for _, row := range totals {
		school := row.SchoolID.String()
		s.outstanding.WithLabelValues(school).Set(float64(row.Outstanding))
		s.debtors.WithLabelValues(school).Set(float64(row.Debtors))
	}

	s.pendingCount.Reset()
	s.pendingAmount.Reset()
	for _, row := range pending {
		provider := string(row.Provider)
		s.pendingCount.WithLabelValues(provider).Set(float64(row.Count))
		s.pendingAmount.WithLabelValues(provider).Set(float64(row.Amount))
	}
	return nil
}
