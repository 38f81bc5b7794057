package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/bursar/internal/clock"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	pkgdb "github.com/smallbiznis/bursar/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	StudentRepo studentdomain.Repository
	LedgerSvc   ledgerdomain.Service
	Clock       clock.Clock
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	studentRepo studentdomain.Repository
	ledgerSvc   ledgerdomain.Service
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	validate    *validator.Validate
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		studentRepo: p.StudentRepo,
		ledgerSvc:   p.LedgerSvc,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.FeePayment, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidSchool
	}
	if err := s.validate.Struct(req); err != nil {
		return paymentdomain.FeePayment{}, mapValidationError(err)
	}
	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method)))
	if !method.Valid() {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidMethod
	}

	invoiceID, err := parseOptionalID(req.InvoiceID)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}
	studentID, err := parseOptionalID(req.StudentID)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}
	if invoiceID == 0 && studentID == 0 {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidTarget
	}

	in := paymentdomain.ApplyInput{
		SchoolID:  schoolID,
		InvoiceID: invoiceID,
		StudentID: studentID,
		FeeType:   strings.ToLower(strings.TrimSpace(req.FeeType)),
		Amount:    req.Amount,
		Method:    method,
		Reference: strings.TrimSpace(req.Reference),
		Notes:     strings.TrimSpace(req.Notes),
	}
	if req.PaidAt != nil {
		in.PaidAt = req.PaidAt.UTC()
	}

	var result paymentdomain.ApplyResult
	apply := func(tx *gorm.DB) error {
		var applyErr error
		result, applyErr = s.Apply(ctx, tx, in)
		return applyErr
	}
	err = s.db.WithContext(ctx).Transaction(apply)
	if err != nil && in.Reference != "" && pkgdb.IsDuplicateKeyErr(err) {
		// a concurrent retry committed the same reference first
		err = s.db.WithContext(ctx).Transaction(apply)
	}
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}

	if result.Replayed {
		s.log.Info("payment replayed",
			zap.String("school_id", schoolID.String()),
			zap.String("payment_id", result.Payment.ID.String()),
			zap.String("reference", in.Reference),
		)
		return result.Payment, nil
	}
	s.recordPayment(ctx, result)
	return result.Payment, nil
}

func (s *Service) ReservePayment(ctx context.Context, req paymentdomain.ReservePaymentRequest) (paymentdomain.FeePayment, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidSchool
	}
	if err := s.validate.Struct(req); err != nil {
		return paymentdomain.FeePayment{}, mapValidationError(err)
	}
	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		method = paymentdomain.MethodMobileMoney
	}
	if !method.Valid() {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidMethod
	}

	invoiceID, err := parseOptionalID(req.InvoiceID)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}
	installmentID, err := parseOptionalID(req.InstallmentID)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}
	studentID, err := parseOptionalID(req.StudentID)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}

	now := s.clock.Now().UTC()
	payment := paymentdomain.FeePayment{
		ID:            s.genID.Generate(),
		SchoolID:      schoolID,
		FeeType:       strings.ToLower(strings.TrimSpace(req.FeeType)),
		AmountPaid:    req.Amount,
		PaymentDate:   now,
		PaymentMethod: method,
		Status:        paymentdomain.PaymentStatusPending,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch {
	case installmentID != 0:
		inst, err := s.repo.FindInstallment(ctx, s.db, schoolID, installmentID)
		if err != nil {
			return paymentdomain.FeePayment{}, err
		}
		if inst == nil {
			return paymentdomain.FeePayment{}, paymentdomain.ErrInstallmentNotFound
		}
		plan, err := s.repo.FindPlan(ctx, s.db, schoolID, inst.PlanID)
		if err != nil {
			return paymentdomain.FeePayment{}, err
		}
		if plan == nil {
			return paymentdomain.FeePayment{}, paymentdomain.ErrPlanNotFound
		}
		payment.StudentID = plan.StudentID
		payment.InvoiceID = &plan.InvoiceID
		payment.InstallmentID = &inst.ID
	case invoiceID != 0:
		invoice, err := s.invoiceRepo.FindByID(ctx, s.db, schoolID, invoiceID)
		if err != nil {
			return paymentdomain.FeePayment{}, err
		}
		if invoice == nil {
			return paymentdomain.FeePayment{}, invoicedomain.ErrNotFound
		}
		payment.StudentID = invoice.StudentID
		payment.InvoiceID = &invoice.ID
	case studentID != 0:
		student, err := s.studentRepo.FindByID(ctx, s.db, schoolID, studentID)
		if err != nil {
			return paymentdomain.FeePayment{}, err
		}
		if student == nil {
			return paymentdomain.FeePayment{}, studentdomain.ErrNotFound
		}
		payment.StudentID = student.ID
	default:
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidTarget
	}

	if err := s.repo.InsertPayment(ctx, s.db, &payment); err != nil {
		return paymentdomain.FeePayment{}, err
	}
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, req paymentdomain.ListPaymentsRequest) ([]paymentdomain.FeePayment, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidSchool
	}
	studentID, err := parseOptionalID(req.StudentID)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseOptionalID(req.InvoiceID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListPayments(ctx, s.db, schoolID, paymentdomain.PaymentFilter{
		StudentID: studentID,
		InvoiceID: invoiceID,
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]paymentdomain.FeePayment, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) PayInstallment(ctx context.Context, req paymentdomain.PayInstallmentRequest) (paymentdomain.FeePayment, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidSchool
	}
	if err := s.validate.Struct(req); err != nil {
		return paymentdomain.FeePayment{}, mapValidationError(err)
	}
	installmentID, err := parseOptionalID(req.InstallmentID)
	if err != nil || installmentID == 0 {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidID
	}
	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method)))
	if !method.Valid() {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidMethod
	}

	var result paymentdomain.ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var applyErr error
		result, applyErr = s.Apply(ctx, tx, paymentdomain.ApplyInput{
			SchoolID:      schoolID,
			InstallmentID: installmentID,
			Amount:        req.Amount,
			Method:        method,
			Notes:         strings.TrimSpace(req.Notes),
		})
		return applyErr
	})
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}

	s.recordPayment(ctx, result)
	return result.Payment, nil
}

func (s *Service) Apply(ctx context.Context, tx *gorm.DB, in paymentdomain.ApplyInput) (paymentdomain.ApplyResult, error) {
	if tx == nil {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrTransactionRequired
	}
	if in.SchoolID == 0 {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrInvalidSchool
	}
	if in.Amount <= 0 {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrInvalidAmount
	}
	if !in.Method.Valid() {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrInvalidMethod
	}

	if key := strings.TrimSpace(in.Reference); key != "" && in.PaymentID == 0 {
		existing, err := s.repo.FindPaymentByIdempotencyKey(ctx, tx, in.SchoolID, key)
		if err != nil {
			return paymentdomain.ApplyResult{}, err
		}
		if existing != nil {
			return s.replay(ctx, tx, in, existing)
		}
	}

	now := s.clock.Now().UTC()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	var (
		installment *paymentdomain.PlanInstallment
		planID      snowflake.ID
	)
	invoiceID := in.InvoiceID
	if in.InstallmentID != 0 {
		inst, err := s.repo.FindInstallmentForUpdate(ctx, tx, in.SchoolID, in.InstallmentID)
		if err != nil {
			return paymentdomain.ApplyResult{}, err
		}
		if inst == nil {
			return paymentdomain.ApplyResult{}, paymentdomain.ErrInstallmentNotFound
		}
		plan, err := s.repo.FindPlan(ctx, tx, in.SchoolID, inst.PlanID)
		if err != nil {
			return paymentdomain.ApplyResult{}, err
		}
		if plan == nil {
			return paymentdomain.ApplyResult{}, paymentdomain.ErrPlanNotFound
		}
		if invoiceID != 0 && invoiceID != plan.InvoiceID {
			return paymentdomain.ApplyResult{}, paymentdomain.ErrInstallmentMismatch
		}
		invoiceID = plan.InvoiceID
		installment = inst
		planID = plan.ID
	}
	if invoiceID == 0 {
		if in.StudentID == 0 {
			return paymentdomain.ApplyResult{}, paymentdomain.ErrInvalidTarget
		}
		oldest, err := s.invoiceRepo.FindOldestOutstanding(ctx, tx, in.SchoolID, in.StudentID)
		if err != nil {
			return paymentdomain.ApplyResult{}, err
		}
		if oldest == nil {
			return paymentdomain.ApplyResult{}, invoicedomain.ErrNotFound
		}
		invoiceID = oldest.ID
	}

	invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, in.SchoolID, invoiceID)
	if err != nil {
		return paymentdomain.ApplyResult{}, err
	}
	if invoice == nil {
		return paymentdomain.ApplyResult{}, invoicedomain.ErrNotFound
	}
	if in.StudentID != 0 && in.StudentID != invoice.StudentID {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrInvalidTarget
	}

	payment, err := s.savePayment(ctx, tx, in, invoice, installment, paidAt, now)
	if err != nil {
		return paymentdomain.ApplyResult{}, err
	}

	previousPaid := invoice.AmountPaid
	invoice.AmountPaid = previousPaid + in.Amount
	invoice.Balance = invoice.TotalAmount - invoice.AmountPaid
	invoice.Status = invoicedomain.StatusFor(invoice.TotalAmount, invoice.AmountPaid, invoice.Status)
	invoice.UpdatedAt = now
	updated, err := s.invoiceRepo.UpdateSettlement(ctx, tx, invoice, previousPaid)
	if err != nil {
		return paymentdomain.ApplyResult{}, err
	}
	if !updated {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrConcurrentUpdate
	}

	if installment != nil {
		installment.PaidAmount += in.Amount
		installment.Status = paymentdomain.InstallmentStatusFor(installment.Amount, installment.PaidAmount)
		installment.UpdatedAt = now
		if err := s.repo.UpdateInstallment(ctx, tx, installment); err != nil {
			return paymentdomain.ApplyResult{}, err
		}
		if _, err := s.repo.CompletePlanIfSettled(ctx, tx, planID, now); err != nil {
			return paymentdomain.ApplyResult{}, err
		}
	}

	if _, err := s.ledgerSvc.Append(ctx, tx, ledgerdomain.Entry{
		SchoolID:      in.SchoolID,
		StudentID:     invoice.StudentID,
		Type:          ledgerdomain.EntryTypeCredit,
		Amount:        in.Amount,
		Term:          invoice.Term,
		Year:          invoice.Year,
		Date:          paidAt,
		Description:   fmt.Sprintf("Payment (%s) for %s", payment.PaymentMethod, invoice.InvoiceNumber),
		ReferenceType: ledgerdomain.ReferenceTypeFeePayment,
		ReferenceID:   payment.ID,
	}); err != nil {
		return paymentdomain.ApplyResult{}, err
	}
	if err := s.ledgerSvc.Verify(ctx, tx, in.SchoolID, invoice.StudentID, invoice.Term, invoice.Year, invoice.Balance); err != nil {
		return paymentdomain.ApplyResult{}, err
	}

	return paymentdomain.ApplyResult{
		Payment:     payment,
		Invoice:     *invoice,
		Installment: installment,
	}, nil
}

// replay returns an earlier payment recorded under the same reference. A
// reference reused for different money is a conflict.
func (s *Service) replay(ctx context.Context, tx *gorm.DB, in paymentdomain.ApplyInput, existing *paymentdomain.FeePayment) (paymentdomain.ApplyResult, error) {
	if existing.AmountPaid != in.Amount ||
		(in.StudentID != 0 && existing.StudentID != in.StudentID) ||
		(in.InvoiceID != 0 && (existing.InvoiceID == nil || *existing.InvoiceID != in.InvoiceID)) ||
		(in.InstallmentID != 0 && (existing.InstallmentID == nil || *existing.InstallmentID != in.InstallmentID)) {
		return paymentdomain.ApplyResult{}, paymentdomain.ErrReferenceConflict
	}

	result := paymentdomain.ApplyResult{Payment: *existing, Replayed: true}
	if existing.InvoiceID != nil {
		invoice, err := s.invoiceRepo.FindByID(ctx, tx, in.SchoolID, *existing.InvoiceID)
		if err != nil {
			return paymentdomain.ApplyResult{}, err
		}
		if invoice != nil {
			result.Invoice = *invoice
		}
	}
	return result, nil
}

func (s *Service) savePayment(
	ctx context.Context,
	tx *gorm.DB,
	in paymentdomain.ApplyInput,
	invoice *invoicedomain.Invoice,
	installment *paymentdomain.PlanInstallment,
	paidAt, now time.Time,
) (paymentdomain.FeePayment, error) {
	invoiceID := invoice.ID
	var installmentID *snowflake.ID
	if installment != nil {
		id := installment.ID
		installmentID = &id
	}

	if in.PaymentID == 0 {
		payment := paymentdomain.FeePayment{
			ID:            s.genID.Generate(),
			SchoolID:      in.SchoolID,
			StudentID:     invoice.StudentID,
			InvoiceID:     &invoiceID,
			InstallmentID: installmentID,
			FeeType:       in.FeeType,
			AmountPaid:    in.Amount,
			PaymentDate:   paidAt,
			PaymentMethod: in.Method,
			Status:        paymentdomain.PaymentStatusCompleted,
			Reference:     in.Reference,
			Notes:         in.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if key := strings.TrimSpace(in.Reference); key != "" {
			payment.IdempotencyKey = &key
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return paymentdomain.FeePayment{}, err
		}
		return payment, nil
	}

	existing, err := s.repo.FindPaymentForUpdate(ctx, tx, in.SchoolID, in.PaymentID)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}
	if existing == nil {
		return paymentdomain.FeePayment{}, paymentdomain.ErrPaymentNotFound
	}
	if existing.Status != paymentdomain.PaymentStatusPending {
		return paymentdomain.FeePayment{}, paymentdomain.ErrPaymentNotPending
	}
	if existing.StudentID != invoice.StudentID {
		return paymentdomain.FeePayment{}, paymentdomain.ErrInvalidTarget
	}
	if existing.AmountPaid != in.Amount {
		return paymentdomain.FeePayment{}, paymentdomain.ErrAmountMismatch
	}

	payment := *existing
	payment.InvoiceID = &invoiceID
	if installmentID != nil {
		payment.InstallmentID = installmentID
	}
	payment.PaymentDate = paidAt
	payment.PaymentMethod = in.Method
	if in.Reference != "" {
		payment.Reference = in.Reference
	}
	payment.Status = paymentdomain.PaymentStatusCompleted
	payment.UpdatedAt = now

	completed, err := s.repo.CompletePayment(ctx, tx, &payment)
	if err != nil {
		return paymentdomain.FeePayment{}, err
	}
	if !completed {
		return paymentdomain.FeePayment{}, paymentdomain.ErrPaymentNotPending
	}
	return payment, nil
}

func (s *Service) FailReserved(ctx context.Context, tx *gorm.DB, schoolID, paymentID snowflake.ID, reason string) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	return s.repo.FailPayment(ctx, tx, schoolID, paymentID, strings.TrimSpace(reason), s.clock.Now().UTC())
}

func (s *Service) recordPayment(ctx context.Context, result paymentdomain.ApplyResult) {
	s.log.Info("payment recorded",
		zap.String("school_id", result.Payment.SchoolID.String()),
		zap.String("student_id", result.Payment.StudentID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.String("method", string(result.Payment.PaymentMethod)),
		zap.Int64("amount", result.Payment.AmountPaid),
		zap.Int64("balance", result.Invoice.Balance),
		zap.String("status", string(result.Invoice.Status)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(ctx, string(result.Payment.PaymentMethod), result.Payment.AmountPaid)
	}
}

func parseOptionalID(value string) (snowflake.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, paymentdomain.ErrInvalidID
	}
	return id, nil
}

func mapValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Field() {
	case "Amount":
		return paymentdomain.ErrInvalidAmount
	case "Method":
		return paymentdomain.ErrInvalidMethod
	case "InvoiceID":
		return paymentdomain.ErrInvalidID
	case "Installments", "DueDate":
		return paymentdomain.ErrInvalidInstallments
	default:
		return err
	}
}
