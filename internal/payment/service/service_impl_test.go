package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const school = snowflake.ID(9001)

type fixture struct {
	h       *testsupport.Harness
	ctx     context.Context
	student studentdomain.Student
	invoice invoicedomain.Invoice
}

func newFixture(t *testing.T, amount int64) fixture {
	t.Helper()
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "P7", "tuition", amount, 2025, nil, nil)
	inv, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		StudentID: student.ID.String(),
		Term:      1,
		Year:      2025,
	})
	require.NoError(t, err)
	return fixture{h: h, ctx: ctx, student: student, invoice: inv}
}

func (f fixture) reload(t *testing.T) invoicedomain.Invoice {
	t.Helper()
	inv, err := f.h.Invoices.GetInvoice(f.ctx, f.invoice.ID.String())
	require.NoError(t, err)
	return inv
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	f := newFixture(t, 500000)

	payment, err := f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    200000,
		Method:    "cash",
		Notes:     "first installment",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, f.student.ID, payment.StudentID)
	require.NotNil(t, payment.InvoiceID)
	assert.Equal(t, f.invoice.ID, *payment.InvoiceID)

	inv := f.reload(t)
	assert.Equal(t, int64(200000), inv.AmountPaid)
	assert.Equal(t, int64(300000), inv.Balance)
	assert.Equal(t, invoicedomain.InvoiceStatusPartial, inv.Status)
	assert.Equal(t, int64(300000), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))

	_, err = f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    300000,
		Method:    "mobile_money",
	})
	require.NoError(t, err)

	inv = f.reload(t)
	assert.Equal(t, int64(0), inv.Balance)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(0), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))
}

func TestRecordPaymentOverpaymentLeavesCredit(t *testing.T) {
	f := newFixture(t, 1000)

	_, err := f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    1500,
		Method:    "cash",
	})
	require.NoError(t, err)

	inv := f.reload(t)
	assert.Equal(t, int64(-500), inv.Balance)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(-500), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))
}

func TestRecordPaymentGeneralAccountSettlesOldestInvoice(t *testing.T) {
	f := newFixture(t, 1000)

	later, err := f.h.Invoices.CreateInvoice(f.ctx, invoicedomain.CreateInvoiceRequest{
		StudentID: f.student.ID.String(),
		Term:      2,
		Year:      2025,
		DueDate:   ptrTime(testsupport.Epoch.AddDate(0, 4, 0)),
	})
	require.NoError(t, err)

	payment, err := f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
		StudentID: f.student.ID.String(),
		FeeType:   "Tuition",
		Amount:    400,
		Method:    "cash",
	})
	require.NoError(t, err)
	require.NotNil(t, payment.InvoiceID)
	assert.Equal(t, f.invoice.ID, *payment.InvoiceID)
	assert.Equal(t, "tuition", payment.FeeType)

	assert.Equal(t, int64(600), f.reload(t).Balance)
	untouched, err := f.h.Invoices.GetInvoice(f.ctx, later.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), untouched.Balance)
}

func TestRecordPaymentGeneralAccountWithoutDebt(t *testing.T) {
	h := testsupport.New(t)
	student := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)

	_, err := h.Payments.RecordPayment(h.Ctx(school), paymentdomain.RecordPaymentRequest{
		StudentID: student.ID.String(),
		Amount:    100,
		Method:    "cash",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t, 1000)

	cases := []struct {
		name string
		req  paymentdomain.RecordPaymentRequest
		want error
	}{
		{name: "zero amount", req: paymentdomain.RecordPaymentRequest{InvoiceID: f.invoice.ID.String(), Amount: 0, Method: "cash"}, want: paymentdomain.ErrInvalidAmount},
		{name: "negative amount", req: paymentdomain.RecordPaymentRequest{InvoiceID: f.invoice.ID.String(), Amount: -1, Method: "cash"}, want: paymentdomain.ErrInvalidAmount},
		{name: "unknown method", req: paymentdomain.RecordPaymentRequest{InvoiceID: f.invoice.ID.String(), Amount: 10, Method: "barter"}, want: paymentdomain.ErrInvalidMethod},
		{name: "no target", req: paymentdomain.RecordPaymentRequest{Amount: 10, Method: "cash"}, want: paymentdomain.ErrInvalidTarget},
		{name: "bad id", req: paymentdomain.RecordPaymentRequest{InvoiceID: "abc", Amount: 10, Method: "cash"}, want: paymentdomain.ErrInvalidID},
		{name: "unknown invoice", req: paymentdomain.RecordPaymentRequest{InvoiceID: "12345", Amount: 10, Method: "cash"}, want: invoicedomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.h.Payments.RecordPayment(f.ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	inv := f.reload(t)
	assert.Equal(t, int64(0), inv.AmountPaid)
	assert.Equal(t, int64(1000), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))
}

func TestConcurrentPaymentsAreSerialized(t *testing.T) {
	f := newFixture(t, 10000)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
				InvoiceID: f.invoice.ID.String(),
				Amount:    1000,
				Method:    "cash",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	inv := f.reload(t)
	assert.Equal(t, int64(5000), inv.AmountPaid)
	assert.Equal(t, int64(5000), inv.Balance)
	assert.Equal(t, inv.Balance, f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))
}

func TestRecordPaymentRetryWithSameReference(t *testing.T) {
	f := newFixture(t, 500000)
	req := paymentdomain.RecordPaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    200000,
		Method:    "bank_transfer",
		Reference: "RCPT-001",
	}

	first, err := f.h.Payments.RecordPayment(f.ctx, req)
	require.NoError(t, err)
	second, err := f.h.Payments.RecordPayment(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	inv := f.reload(t)
	assert.Equal(t, int64(200000), inv.AmountPaid)
	assert.Equal(t, int64(300000), inv.Balance)
	assert.Equal(t, int64(300000), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))

	var count int64
	require.NoError(t, f.h.DB.Model(&paymentdomain.FeePayment{}).Where("school_id = ?", school).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordPaymentReferenceReusedForOtherAmount(t *testing.T) {
	f := newFixture(t, 500000)
	req := paymentdomain.RecordPaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    1000,
		Method:    "cash",
		Reference: "RCPT-9",
	}
	_, err := f.h.Payments.RecordPayment(f.ctx, req)
	require.NoError(t, err)

	req.Amount = 2000
	_, err = f.h.Payments.RecordPayment(f.ctx, req)
	assert.ErrorIs(t, err, paymentdomain.ErrReferenceConflict)
	assert.Equal(t, int64(1000), f.reload(t).AmountPaid)

	// payments without a reference are never deduplicated
	for i := 0; i < 2; i++ {
		_, err = f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
			InvoiceID: f.invoice.ID.String(),
			Amount:    500,
			Method:    "cash",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2000), f.reload(t).AmountPaid)
}

func TestPaymentPlanLifecycle(t *testing.T) {
	f := newFixture(t, 900)

	plan, err := f.h.Payments.CreatePaymentPlan(f.ctx, paymentdomain.CreatePaymentPlanRequest{
		InvoiceID: f.invoice.ID.String(),
		Installments: []paymentdomain.InstallmentInput{
			{Amount: 300, DueDate: testsupport.Epoch.AddDate(0, 1, 0)},
			{Amount: 600, DueDate: testsupport.Epoch.AddDate(0, 2, 0)},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Installments, 2)
	assert.Equal(t, paymentdomain.PlanStatusActive, plan.Status)

	_, err = f.h.Payments.CreatePaymentPlan(f.ctx, paymentdomain.CreatePaymentPlanRequest{
		InvoiceID:    f.invoice.ID.String(),
		Installments: []paymentdomain.InstallmentInput{{Amount: 900, DueDate: testsupport.Epoch}},
	})
	assert.ErrorIs(t, err, paymentdomain.ErrPlanExists)

	first := plan.Installments[0]
	_, err = f.h.Payments.PayInstallment(f.ctx, paymentdomain.PayInstallmentRequest{
		InstallmentID: first.ID.String(),
		Amount:        100,
		Method:        "cash",
	})
	require.NoError(t, err)

	got, err := f.h.Payments.GetPaymentPlan(f.ctx, plan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.InstallmentStatusPartial, got.Installments[0].Status)
	assert.Equal(t, int64(800), f.reload(t).Balance)

	_, err = f.h.Payments.PayInstallment(f.ctx, paymentdomain.PayInstallmentRequest{
		InstallmentID: first.ID.String(),
		Amount:        200,
		Method:        "cash",
	})
	require.NoError(t, err)
	_, err = f.h.Payments.PayInstallment(f.ctx, paymentdomain.PayInstallmentRequest{
		InstallmentID: plan.Installments[1].ID.String(),
		Amount:        600,
		Method:        "mobile_money",
	})
	require.NoError(t, err)

	got, err = f.h.Payments.GetPaymentPlan(f.ctx, plan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PlanStatusCompleted, got.Status)
	for _, inst := range got.Installments {
		assert.Equal(t, paymentdomain.InstallmentStatusPaid, inst.Status)
	}

	inv := f.reload(t)
	assert.Equal(t, int64(0), inv.Balance)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(0), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))
}

func TestCreatePaymentPlanRejectsWrongSum(t *testing.T) {
	f := newFixture(t, 900)

	_, err := f.h.Payments.CreatePaymentPlan(f.ctx, paymentdomain.CreatePaymentPlanRequest{
		InvoiceID:    f.invoice.ID.String(),
		Installments: []paymentdomain.InstallmentInput{{Amount: 500, DueDate: testsupport.Epoch}},
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInstallmentSumMismatch)

	_, err = f.h.Payments.CreatePaymentPlan(f.ctx, paymentdomain.CreatePaymentPlanRequest{
		InvoiceID: f.invoice.ID.String(),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidInstallments)
}

func TestReservedPaymentCompletesThroughApply(t *testing.T) {
	f := newFixture(t, 1000)

	reserved, err := f.h.Payments.ReservePayment(f.ctx, paymentdomain.ReservePaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    400,
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, reserved.Status)
	assert.Equal(t, paymentdomain.MethodMobileMoney, reserved.PaymentMethod)
	assert.Equal(t, int64(1000), f.reload(t).Balance)

	in := paymentdomain.ApplyInput{
		SchoolID:  school,
		InvoiceID: f.invoice.ID,
		PaymentID: reserved.ID,
		Amount:    999,
		Method:    paymentdomain.MethodMobileMoney,
	}
	err = f.h.DB.Transaction(func(tx *gorm.DB) error {
		_, err := f.h.Payments.Apply(context.Background(), tx, in)
		return err
	})
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	in.Amount = 400
	var result paymentdomain.ApplyResult
	err = f.h.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = f.h.Payments.Apply(context.Background(), tx, in)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, reserved.ID, result.Payment.ID)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, result.Payment.Status)
	assert.Equal(t, int64(600), result.Invoice.Balance)

	err = f.h.DB.Transaction(func(tx *gorm.DB) error {
		_, err := f.h.Payments.Apply(context.Background(), tx, in)
		return err
	})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotPending)
	assert.Equal(t, int64(600), f.reload(t).Balance)
}

func TestFailReservedOnlyTouchesPending(t *testing.T) {
	f := newFixture(t, 1000)

	reserved, err := f.h.Payments.ReservePayment(f.ctx, paymentdomain.ReservePaymentRequest{
		StudentID: f.student.ID.String(),
		Amount:    100,
	})
	require.NoError(t, err)

	failed, err := f.h.Payments.FailReserved(context.Background(), nil, school, reserved.ID, "declined")
	require.NoError(t, err)
	assert.True(t, failed)

	again, err := f.h.Payments.FailReserved(context.Background(), nil, school, reserved.ID, "declined")
	require.NoError(t, err)
	assert.False(t, again)

	payments, err := f.h.Payments.ListPayments(f.ctx, paymentdomain.ListPaymentsRequest{StudentID: f.student.ID.String()})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, payments[0].Status)
}

func TestListPaymentsNewestFirst(t *testing.T) {
	f := newFixture(t, 1000)
	for _, amount := range []int64{100, 200} {
		_, err := f.h.Payments.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
			InvoiceID: f.invoice.ID.String(),
			Amount:    amount,
			Method:    "cash",
		})
		require.NoError(t, err)
		f.h.Clock.Advance(time.Hour)
	}

	payments, err := f.h.Payments.ListPayments(f.ctx, paymentdomain.ListPaymentsRequest{InvoiceID: f.invoice.ID.String()})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, int64(200), payments[0].AmountPaid)
	assert.Equal(t, int64(100), payments[1].AmountPaid)
}

func ptrTime(t time.Time) *time.Time { return &t }
