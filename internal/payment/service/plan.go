package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreatePaymentPlan splits the invoice's current balance into installments.
// The installment amounts must add up to that balance exactly.
func (s *Service) CreatePaymentPlan(ctx context.Context, req paymentdomain.CreatePaymentPlanRequest) (paymentdomain.PaymentPlan, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return paymentdomain.PaymentPlan{}, paymentdomain.ErrInvalidSchool
	}
	if err := s.validate.Struct(req); err != nil {
		return paymentdomain.PaymentPlan{}, mapValidationError(err)
	}
	invoiceID, err := parseOptionalID(req.InvoiceID)
	if err != nil || invoiceID == 0 {
		return paymentdomain.PaymentPlan{}, paymentdomain.ErrInvalidID
	}

	var sum int64
	for _, item := range req.Installments {
		if item.Amount <= 0 || item.DueDate.IsZero() {
			return paymentdomain.PaymentPlan{}, paymentdomain.ErrInvalidInstallments
		}
		sum += item.Amount
	}

	var plan paymentdomain.PaymentPlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, schoolID, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		if invoice.Balance <= 0 {
			return paymentdomain.ErrInvoiceSettled
		}
		if sum != invoice.Balance {
			return paymentdomain.ErrInstallmentSumMismatch
		}
		existing, err := s.repo.FindActivePlanForInvoice(ctx, tx, schoolID, invoiceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return paymentdomain.ErrPlanExists
		}

		now := s.clock.Now().UTC()
		plan = paymentdomain.PaymentPlan{
			ID:          s.genID.Generate(),
			SchoolID:    schoolID,
			StudentID:   invoice.StudentID,
			InvoiceID:   invoice.ID,
			TotalAmount: sum,
			Status:      paymentdomain.PlanStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.InsertPlan(ctx, tx, &plan); err != nil {
			return err
		}

		installments := make([]paymentdomain.PlanInstallment, 0, len(req.Installments))
		for i, item := range req.Installments {
			installments = append(installments, paymentdomain.PlanInstallment{
				ID:        s.genID.Generate(),
				SchoolID:  schoolID,
				PlanID:    plan.ID,
				Sequence:  i + 1,
				Amount:    item.Amount,
				DueDate:   item.DueDate.UTC(),
				Status:    paymentdomain.InstallmentStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err := s.repo.InsertInstallments(ctx, tx, installments); err != nil {
			return err
		}
		plan.Installments = installments
		return nil
	})
	if err != nil {
		return paymentdomain.PaymentPlan{}, err
	}

	s.log.Info("payment plan created",
		zap.String("school_id", schoolID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.String("invoice_id", plan.InvoiceID.String()),
		zap.Int("installments", len(plan.Installments)),
	)
	return plan, nil
}

func (s *Service) GetPaymentPlan(ctx context.Context, id string) (paymentdomain.PaymentPlan, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return paymentdomain.PaymentPlan{}, paymentdomain.ErrInvalidSchool
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || planID == 0 {
		return paymentdomain.PaymentPlan{}, paymentdomain.ErrInvalidID
	}

	plan, err := s.repo.FindPlan(ctx, s.db, schoolID, planID)
	if err != nil {
		return paymentdomain.PaymentPlan{}, err
	}
	if plan == nil {
		return paymentdomain.PaymentPlan{}, paymentdomain.ErrPlanNotFound
	}
	installments, err := s.repo.ListInstallments(ctx, s.db, plan.ID)
	if err != nil {
		return paymentdomain.PaymentPlan{}, err
	}
	plan.Installments = installments
	if plan.Installments == nil {
		plan.Installments = []paymentdomain.PlanInstallment{}
	}
	return *plan, nil
}
