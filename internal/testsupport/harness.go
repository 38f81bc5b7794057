// Package testsupport wires the billing services against an in-memory
// SQLite database for tests.
package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	agingdomain "github.com/smallbiznis/bursar/internal/aging/domain"
	agingservice "github.com/smallbiznis/bursar/internal/aging/service"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	feerepository "github.com/smallbiznis/bursar/internal/fee/repository"
	feeservice "github.com/smallbiznis/bursar/internal/fee/service"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/bursar/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/bursar/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/bursar/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/bursar/internal/ledger/service"
	"github.com/smallbiznis/bursar/internal/migration"
	"github.com/smallbiznis/bursar/internal/mobilemoney"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	mobilemoneyrepository "github.com/smallbiznis/bursar/internal/mobilemoney/repository"
	mobilemoneyservice "github.com/smallbiznis/bursar/internal/mobilemoney/service"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/bursar/internal/payment/repository"
	paymentservice "github.com/smallbiznis/bursar/internal/payment/service"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	studentrepository "github.com/smallbiznis/bursar/internal/student/repository"
	studentservice "github.com/smallbiznis/bursar/internal/student/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting time in every harness.
var Epoch = time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC)

var dbSeq atomic.Int64

// OpenDB returns a private in-memory database with the full schema. It holds
// a single connection, so concurrent transactions are serialized.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Harness holds every billing service over one database.
type Harness struct {
	DB      *gorm.DB
	Node    *snowflake.Node
	Clock   *clock.FakeClock
	Log     *zap.Logger
	Config  config.Config
	Billing *config.BillingConfigHolder

	StudentRepo     studentdomain.Repository
	FeeRepo         feedomain.Repository
	LedgerRepo      ledgerdomain.Repository
	InvoiceRepo     invoicedomain.Repository
	PaymentRepo     paymentdomain.Repository
	MobileMoneyRepo mobilemoneydomain.Repository
	Registry        *adapters.Registry

	Students    studentdomain.Service
	Fees        feedomain.Service
	Ledger      ledgerdomain.Service
	Invoices    invoicedomain.Service
	Payments    paymentdomain.Service
	MobileMoney mobilemoneydomain.Service
	Aging       agingdomain.Service
}

// New builds a harness with sandbox mode off and no callback secret.
func New(t testing.TB) *Harness {
	return NewWithConfig(t, config.Config{Environment: "test"})
}

func NewWithConfig(t testing.TB, cfg config.Config) *Harness {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	h := &Harness{
		DB:      OpenDB(t),
		Node:    node,
		Clock:   clock.NewFakeClock(Epoch),
		Log:     zap.NewNop(),
		Config:  cfg,
		Billing: config.StaticBillingConfig(config.DefaultBillingConfig()),

		StudentRepo:     studentrepository.Provide(),
		FeeRepo:         feerepository.Provide(),
		LedgerRepo:      ledgerrepository.Provide(),
		InvoiceRepo:     invoicerepository.Provide(),
		PaymentRepo:     paymentrepository.Provide(),
		MobileMoneyRepo: mobilemoneyrepository.Provide(),
		Registry:        mobilemoney.NewRegistry(cfg),
	}

	h.Students = studentservice.New(studentservice.Params{
		DB:    h.DB,
		Log:   h.Log,
		GenID: h.Node,
		Repo:  h.StudentRepo,
		Clock: h.Clock,
	})
	h.Fees = feeservice.New(feeservice.Params{
		DB:          h.DB,
		Log:         h.Log,
		GenID:       h.Node,
		Repo:        h.FeeRepo,
		StudentRepo: h.StudentRepo,
		Clock:       h.Clock,
	})
	h.Ledger = ledgerservice.NewService(ledgerservice.Params{
		DB:          h.DB,
		Log:         h.Log,
		GenID:       h.Node,
		Repo:        h.LedgerRepo,
		StudentRepo: h.StudentRepo,
		Clock:       h.Clock,
	})
	h.Invoices = invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:          h.DB,
		Log:         h.Log,
		GenID:       h.Node,
		Repo:        h.InvoiceRepo,
		StudentRepo: h.StudentRepo,
		FeeSvc:      h.Fees,
		LedgerSvc:   h.Ledger,
		Billing:     h.Billing,
		Clock:       h.Clock,
	})
	h.Payments = paymentservice.NewService(paymentservice.Params{
		DB:          h.DB,
		Log:         h.Log,
		GenID:       h.Node,
		Repo:        h.PaymentRepo,
		InvoiceRepo: h.InvoiceRepo,
		StudentRepo: h.StudentRepo,
		LedgerSvc:   h.Ledger,
		Clock:       h.Clock,
	})
	h.MobileMoney = mobilemoneyservice.NewService(mobilemoneyservice.Params{
		DB:          h.DB,
		Log:         h.Log,
		GenID:       h.Node,
		Repo:        h.MobileMoneyRepo,
		PaymentSvc:  h.Payments,
		PaymentRepo: h.PaymentRepo,
		InvoiceRepo: h.InvoiceRepo,
		StudentRepo: h.StudentRepo,
		Registry:    h.Registry,
		Clock:       h.Clock,
	})
	h.Aging = agingservice.New(agingservice.Params{
		DB:          h.DB,
		Log:         h.Log,
		InvoiceRepo: h.InvoiceRepo,
		StudentRepo: h.StudentRepo,
		Billing:     h.Billing,
		Clock:       h.Clock,
	})
	return h
}

// Ctx returns a context scoped to schoolID.
func (h *Harness) Ctx(schoolID snowflake.ID) context.Context {
	return schoolcontext.WithSchoolID(context.Background(), schoolID)
}

// SeedStudent inserts an active student directly through the repository.
func (h *Harness) SeedStudent(t testing.TB, schoolID snowflake.ID, classLevel, boarding string) studentdomain.Student {
	t.Helper()
	now := h.Clock.Now()
	id := h.Node.Generate()
	student := studentdomain.Student{
		ID:              id,
		SchoolID:        schoolID,
		AdmissionNumber: "ADM-" + id.String(),
		FirstName:       "Student",
		LastName:        id.String(),
		ClassLevel:      classLevel,
		BoardingStatus:  boarding,
		Status:          studentdomain.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.StudentRepo.Insert(context.Background(), h.DB, &student); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return student
}

// SeedFeeStructure inserts an active fee structure. Term and boarding may be nil.
func (h *Harness) SeedFeeStructure(t testing.TB, schoolID snowflake.ID, classLevel, feeType string, amount int64, year int, term *int, boarding *string) feedomain.FeeStructure {
	t.Helper()
	now := h.Clock.Now()
	fs := feedomain.FeeStructure{
		ID:             h.Node.Generate(),
		SchoolID:       schoolID,
		ClassLevel:     classLevel,
		FeeType:        feeType,
		Amount:         amount,
		Term:           term,
		Year:           year,
		BoardingStatus: boarding,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.FeeRepo.InsertStructure(context.Background(), h.DB, &fs); err != nil {
		t.Fatalf("seed fee structure: %v", err)
	}
	return fs
}

// LedgerBalance sums a student's ledger for one term.
func (h *Harness) LedgerBalance(t testing.TB, schoolID, studentID snowflake.ID, term, year int) int64 {
	t.Helper()
	balance, err := h.LedgerRepo.Balance(context.Background(), h.DB, schoolID, studentID, term, year)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	return balance
}

func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
