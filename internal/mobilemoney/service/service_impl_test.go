package service_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/config"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters/airtel"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters/mtn"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"github.com/smallbiznis/bursar/internal/mobilemoney/service"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	school = snowflake.ID(5001)
	phone  = "256772123456"
)

type fixture struct {
	h       *testsupport.Harness
	ctx     context.Context
	student studentdomain.Student
	invoice invoicedomain.Invoice
}

func newFixture(t *testing.T, cfg config.Config) fixture {
	t.Helper()
	h := testsupport.NewWithConfig(t, cfg)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S4", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "S4", "tuition", 800000, 2025, nil, nil)
	inv, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		StudentID: student.ID.String(),
		Term:      1,
		Year:      2025,
	})
	require.NoError(t, err)
	return fixture{h: h, ctx: ctx, student: student, invoice: inv}
}

func (f fixture) initiate(t *testing.T, provider string, amount int64) domain.Transaction {
	t.Helper()
	txn, err := f.h.MobileMoney.Initiate(f.ctx, domain.InitiateRequest{
		PhoneNumber: "+" + phone,
		Amount:      amount,
		Provider:    provider,
		EntityType:  string(domain.EntityTypeInvoice),
		EntityID:    f.invoice.ID.String(),
	})
	require.NoError(t, err)
	return txn
}

func (f fixture) balance(t *testing.T) int64 {
	t.Helper()
	inv, err := f.h.Invoices.GetInvoice(f.ctx, f.invoice.ID.String())
	require.NoError(t, err)
	return inv.Balance
}

func TestInitiateCreatesPendingTransaction(t *testing.T) {
	f := newFixture(t, config.Config{})

	txn := f.initiate(t, "MTN", 300000)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.Equal(t, domain.ProviderMTN, txn.Provider)
	assert.Equal(t, phone, txn.PhoneNumber)
	assert.Contains(t, txn.ExternalReference, "MM-")
	assert.Equal(t, f.invoice.ID, txn.EntityID)

	got, err := f.h.MobileMoney.GetTransaction(f.ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, txn.ExternalReference, got.ExternalReference)

	_, err = f.h.MobileMoney.GetTransaction(f.h.Ctx(school+1), txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	assert.Equal(t, int64(800000), f.balance(t))
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t, config.Config{})
	valid := domain.InitiateRequest{
		PhoneNumber: phone,
		Amount:      1000,
		Provider:    "airtel",
		EntityType:  "invoice",
		EntityID:    f.invoice.ID.String(),
	}

	cases := []struct {
		name   string
		mutate func(*domain.InitiateRequest)
		want   error
	}{
		{name: "short phone", mutate: func(r *domain.InitiateRequest) { r.PhoneNumber = "0772" }, want: domain.ErrInvalidPhoneNumber},
		{name: "letters in phone", mutate: func(r *domain.InitiateRequest) { r.PhoneNumber = "25677abc3456" }, want: domain.ErrInvalidPhoneNumber},
		{name: "zero amount", mutate: func(r *domain.InitiateRequest) { r.Amount = 0 }, want: domain.ErrInvalidAmount},
		{name: "unknown provider", mutate: func(r *domain.InitiateRequest) { r.Provider = "mpesa" }, want: domain.ErrUnsupportedProvider},
		{name: "unknown entity type", mutate: func(r *domain.InitiateRequest) { r.EntityType = "order" }, want: domain.ErrInvalidEntityType},
		{name: "bad entity id", mutate: func(r *domain.InitiateRequest) { r.EntityID = "inv-1" }, want: domain.ErrInvalidEntityID},
		{name: "missing invoice", mutate: func(r *domain.InitiateRequest) { r.EntityID = "777" }, want: invoicedomain.ErrNotFound},
		{name: "missing installment", mutate: func(r *domain.InitiateRequest) {
			r.EntityType = "plan_installment"
			r.EntityID = "777"
		}, want: paymentdomain.ErrInstallmentNotFound},
		{name: "missing student", mutate: func(r *domain.InitiateRequest) {
			r.EntityType = "general_payment"
			r.EntityID = "777"
		}, want: studentdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := f.h.MobileMoney.Initiate(f.ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.h.MobileMoney.Initiate(context.Background(), valid)
	assert.ErrorIs(t, err, domain.ErrInvalidSchool)
}

func TestSuccessCallbackAppliesPaymentOnce(t *testing.T) {
	f := newFixture(t, config.Config{})
	txn := f.initiate(t, "mtn", 300000)

	result, err := f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{
		TransactionID:         txn.ID.String(),
		Outcome:               domain.OutcomeSuccess,
		ProviderTransactionID: "MTN-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Equal(t, domain.StatusSuccess, result.Transaction.Status)
	require.NotNil(t, result.Transaction.PaymentID)
	require.NotNil(t, result.Transaction.CallbackReceivedAt)
	assert.Equal(t, "MTN-1", result.Transaction.ProviderTransactionID)
	assert.JSONEq(t, `{"outcome":"success","provider_transaction_id":"MTN-1","reason":"","amount":0}`, string(result.Transaction.RawCallbackData))

	assert.Equal(t, int64(500000), f.balance(t))
	assert.Equal(t, int64(500000), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))

	payments, err := f.h.Payments.ListPayments(f.ctx, paymentdomain.ListPaymentsRequest{InvoiceID: f.invoice.ID.String()})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, *result.Transaction.PaymentID, payments[0].ID)
	assert.Equal(t, paymentdomain.MethodMobileMoney, payments[0].PaymentMethod)
	assert.Equal(t, txn.ExternalReference, payments[0].Reference)

	again, err := f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{
		ExternalReference: txn.ExternalReference,
		Outcome:           domain.OutcomeFailed,
	})
	require.NoError(t, err)
	assert.True(t, again.Stale)
	assert.Equal(t, domain.StatusSuccess, again.Transaction.Status)
	assert.Equal(t, int64(500000), f.balance(t))
}

func TestFailedCallbackLeavesBalances(t *testing.T) {
	f := newFixture(t, config.Config{})
	txn := f.initiate(t, "airtel", 300000)

	result, err := f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{
		TransactionID: txn.ID.String(),
		Outcome:       "FAILED",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Transaction.Status)
	assert.Equal(t, "declined by provider", result.Transaction.FailureReason)
	assert.Nil(t, result.Transaction.PaymentID)
	assert.Equal(t, int64(800000), f.balance(t))

	late, err := f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{
		TransactionID: txn.ID.String(),
		Outcome:       domain.OutcomeSuccess,
	})
	require.NoError(t, err)
	assert.True(t, late.Stale)
	assert.Equal(t, domain.StatusFailed, late.Transaction.Status)
	assert.Equal(t, int64(800000), f.balance(t))
}

func TestConcurrentCallbacksApplyOnce(t *testing.T) {
	f := newFixture(t, config.Config{})
	txn := f.initiate(t, "mtn", 250000)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		stale   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{
				ExternalReference: txn.ExternalReference,
				Outcome:           domain.OutcomeSuccess,
			})
			mu.Lock()
			defer mu.Unlock()
			if assert.NoError(t, err) {
				if result.Stale {
					stale++
				} else {
					applied++
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, workers-1, stale)
	assert.Equal(t, int64(550000), f.balance(t))
	assert.Equal(t, int64(550000), f.h.LedgerBalance(t, school, f.student.ID, 1, 2025))

	payments, err := f.h.Payments.ListPayments(f.ctx, paymentdomain.ListPaymentsRequest{InvoiceID: f.invoice.ID.String()})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCallbackErrors(t *testing.T) {
	f := newFixture(t, config.Config{})
	txn := f.initiate(t, "mtn", 1000)

	_, err := f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{TransactionID: txn.ID.String(), Outcome: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{TransactionID: "999", Outcome: domain.OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{Outcome: domain.OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrInvalidTransactionID)

	_, err = f.h.MobileMoney.HandleCallback(f.h.Ctx(school+1), domain.CallbackRequest{TransactionID: txn.ID.String(), Outcome: domain.OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{TransactionID: txn.ID.String(), Outcome: domain.OutcomeSuccess, Amount: 999})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	got, err := f.h.MobileMoney.GetTransaction(f.ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(800000), f.balance(t))
}

func TestGeneralPaymentCallbackSettlesOldestInvoice(t *testing.T) {
	f := newFixture(t, config.Config{})
	txn, err := f.h.MobileMoney.Initiate(f.ctx, domain.InitiateRequest{
		PhoneNumber: phone,
		Amount:      100000,
		Provider:    "airtel",
		EntityType:  "general_payment",
		EntityID:    f.student.ID.String(),
		FeeType:     "Tuition",
	})
	require.NoError(t, err)
	assert.Equal(t, "tuition", txn.FeeType)

	_, err = f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{TransactionID: txn.ID.String(), Outcome: domain.OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, int64(700000), f.balance(t))
}

func TestInstallmentCallbackUpdatesPlan(t *testing.T) {
	f := newFixture(t, config.Config{})
	plan, err := f.h.Payments.CreatePaymentPlan(f.ctx, paymentdomain.CreatePaymentPlanRequest{
		InvoiceID: f.invoice.ID.String(),
		Installments: []paymentdomain.InstallmentInput{
			{Amount: 400000, DueDate: testsupport.Epoch.AddDate(0, 1, 0)},
			{Amount: 400000, DueDate: testsupport.Epoch.AddDate(0, 2, 0)},
		},
	})
	require.NoError(t, err)

	txn, err := f.h.MobileMoney.Initiate(f.ctx, domain.InitiateRequest{
		PhoneNumber: phone,
		Amount:      400000,
		Provider:    "mtn",
		EntityType:  "plan_installment",
		EntityID:    plan.Installments[0].ID.String(),
	})
	require.NoError(t, err)

	_, err = f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{TransactionID: txn.ID.String(), Outcome: domain.OutcomeSuccess})
	require.NoError(t, err)

	got, err := f.h.Payments.GetPaymentPlan(f.ctx, plan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.InstallmentStatusPaid, got.Installments[0].Status)
	assert.Equal(t, paymentdomain.InstallmentStatusPending, got.Installments[1].Status)
	assert.Equal(t, int64(400000), f.balance(t))
}

func TestReservedPaymentLinkedToTransaction(t *testing.T) {
	f := newFixture(t, config.Config{})
	reserved, err := f.h.Payments.ReservePayment(f.ctx, paymentdomain.ReservePaymentRequest{
		InvoiceID: f.invoice.ID.String(),
		Amount:    5000,
	})
	require.NoError(t, err)

	_, err = f.h.MobileMoney.Initiate(f.ctx, domain.InitiateRequest{
		PhoneNumber: phone,
		Amount:      6000,
		Provider:    "mtn",
		EntityType:  "invoice",
		EntityID:    f.invoice.ID.String(),
		PaymentID:   reserved.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotReservable)

	failing, err := f.h.MobileMoney.Initiate(f.ctx, domain.InitiateRequest{
		PhoneNumber: phone,
		Amount:      5000,
		Provider:    "mtn",
		EntityType:  "invoice",
		EntityID:    f.invoice.ID.String(),
		PaymentID:   reserved.ID.String(),
	})
	require.NoError(t, err)
	require.NotNil(t, failing.PaymentID)

	_, err = f.h.MobileMoney.HandleCallback(context.Background(), domain.CallbackRequest{
		TransactionID: failing.ID.String(),
		Outcome:       domain.OutcomeFailed,
		Reason:        "wrong pin",
	})
	require.NoError(t, err)

	payments, err := f.h.Payments.ListPayments(f.ctx, paymentdomain.ListPaymentsRequest{InvoiceID: f.invoice.ID.String()})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, payments[0].Status)
	assert.Equal(t, "wrong pin", payments[0].Notes)
	assert.Equal(t, int64(800000), f.balance(t))
}

func signedMTN(t *testing.T, secret string, cb domain.ProviderCallback) ([]byte, http.Header) {
	t.Helper()
	adapter := mtn.New(secret)
	payload, err := adapter.Encode(cb)
	require.NoError(t, err)
	name, value := adapter.Sign(payload)
	headers := http.Header{}
	headers.Set(name, value)
	return payload, headers
}

// sandboxConfig has no callback secret, so webhooks are accepted unsigned.
func sandboxConfig() config.Config {
	return config.Config{MobileMoney: config.MobileMoneyConfig{Sandbox: true}}
}

func TestIngestRejectsUnsignedCallbackWithoutSecret(t *testing.T) {
	f := newFixture(t, config.Config{Environment: "production"})
	txn := f.initiate(t, "mtn", 800000)

	payload := []byte(`{"externalId":"` + txn.ExternalReference + `","financialTransactionId":"FT-1","status":"SUCCESSFUL"}`)
	_, err := f.h.MobileMoney.IngestProviderCallback(context.Background(), "mtn", payload, http.Header{})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	got, err := f.h.MobileMoney.GetTransaction(f.ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(800000), f.balance(t))
}

func TestIngestProviderCallbackVerifiesAndDedupes(t *testing.T) {
	const secret = "whsec_test"
	f := newFixture(t, config.Config{MobileMoney: config.MobileMoneyConfig{CallbackSecret: secret}})
	txn := f.initiate(t, "mtn", 200000)

	cb := domain.ProviderCallback{
		ExternalReference:     txn.ExternalReference,
		ProviderTransactionID: "FT-42",
		Outcome:               domain.OutcomeSuccess,
		Amount:                200000,
	}
	payload, headers := signedMTN(t, secret, cb)

	_, err := f.h.MobileMoney.IngestProviderCallback(context.Background(), "mtn", payload, http.Header{mtn.SignatureHeader: []string{"00ff"}})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = f.h.MobileMoney.IngestProviderCallback(context.Background(), "mpesa", payload, headers)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	result, err := f.h.MobileMoney.IngestProviderCallback(context.Background(), "mtn", payload, headers)
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Equal(t, domain.StatusSuccess, result.Transaction.Status)
	assert.Equal(t, "FT-42", result.Transaction.ProviderTransactionID)
	assert.JSONEq(t, string(payload), string(result.Transaction.RawCallbackData))

	replay, err := f.h.MobileMoney.IngestProviderCallback(context.Background(), "mtn", payload, headers)
	require.NoError(t, err)
	assert.True(t, replay.Stale)

	event, err := f.h.MobileMoneyRepo.FindEvent(context.Background(), f.h.DB, domain.ProviderMTN, "FT-42")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.NotNil(t, event.ProcessedAt)
	assert.Equal(t, 1, event.Attempts)

	assert.Equal(t, int64(600000), f.balance(t))
}

func TestIngestPendingStatusIsIgnored(t *testing.T) {
	f := newFixture(t, sandboxConfig())
	txn := f.initiate(t, "airtel", 1000)

	payload := []byte(`{"transaction":{"id":"` + txn.ExternalReference + `","status_code":"TIP","airtel_money_id":"AM-1"}}`)
	_, err := f.h.MobileMoney.IngestProviderCallback(context.Background(), "airtel", payload, http.Header{})
	assert.ErrorIs(t, err, domain.ErrCallbackIgnored)

	got, err := f.h.MobileMoney.GetTransaction(f.ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestRetryCallbacksReprocessesFailedDeliveries(t *testing.T) {
	f := newFixture(t, sandboxConfig())

	payload, err := airtel.New("").Encode(domain.ProviderCallback{
		ExternalReference:     "MM-UNKNOWN",
		ProviderTransactionID: "AM-7",
		Outcome:               domain.OutcomeSuccess,
	})
	require.NoError(t, err)

	_, err = f.h.MobileMoney.IngestProviderCallback(context.Background(), "airtel", payload, http.Header{})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	event, err := f.h.MobileMoneyRepo.FindEvent(context.Background(), f.h.DB, domain.ProviderAirtel, "AM-7")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Nil(t, event.ProcessedAt)
	assert.Equal(t, 1, event.Attempts)
	assert.Equal(t, domain.ErrTransactionNotFound.Error(), event.LastError)

	processed, err := f.h.MobileMoney.RetryCallbacks(context.Background(), event.ReceivedAt.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Zero(t, processed, "events inside the grace period are not retried")

	processed, err = f.h.MobileMoney.RetryCallbacks(context.Background(), event.ReceivedAt.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, processed)

	event, err = f.h.MobileMoneyRepo.FindEvent(context.Background(), f.h.DB, domain.ProviderAirtel, "AM-7")
	require.NoError(t, err)
	assert.Equal(t, 2, event.Attempts)
}

func TestRetryCallbacksCompletesTransaction(t *testing.T) {
	f := newFixture(t, config.Config{})
	txn := f.initiate(t, "airtel", 1000)

	payload, err := airtel.New("").Encode(domain.ProviderCallback{
		ExternalReference:     txn.ExternalReference,
		ProviderTransactionID: "AM-9",
		Outcome:               domain.OutcomeSuccess,
	})
	require.NoError(t, err)

	now := f.h.Clock.Now()
	inserted, err := f.h.MobileMoneyRepo.InsertEvent(context.Background(), f.h.DB, &domain.CallbackEvent{
		ID:                f.h.Node.Generate(),
		Provider:          domain.ProviderAirtel,
		DedupeKey:         "AM-9",
		ExternalReference: txn.ExternalReference,
		Payload:           payload,
		ReceivedAt:        now,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	processed, err := f.h.MobileMoney.RetryCallbacks(context.Background(), now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	got, err := f.h.MobileMoney.GetTransaction(f.ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Equal(t, int64(799000), f.balance(t))
}

func TestListStalePending(t *testing.T) {
	f := newFixture(t, config.Config{})
	old := f.initiate(t, "mtn", 1000)
	f.h.Clock.Advance(2 * time.Hour)
	f.initiate(t, "mtn", 1000)

	items, err := f.h.MobileMoney.ListStalePending(context.Background(), f.h.Clock.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, old.ID, items[0].ID)
}

func TestSandboxOutcome(t *testing.T) {
	txn := domain.Transaction{ID: 42, ExternalReference: "MM-1", PhoneNumber: "256772000000", Amount: 500}
	cb := service.SandboxOutcome(txn)
	assert.Equal(t, domain.OutcomeFailed, cb.Outcome)
	assert.Equal(t, "insufficient funds", cb.Reason)
	assert.Equal(t, "SBX-42", cb.ProviderTransactionID)

	txn.PhoneNumber = "256772123456"
	cb = service.SandboxOutcome(txn)
	assert.Equal(t, domain.OutcomeSuccess, cb.Outcome)
	assert.Equal(t, int64(500), cb.Amount)
}

func TestSandboxSimulatorDeliversSignedCallback(t *testing.T) {
	cfg := config.Config{MobileMoney: config.MobileMoneyConfig{
		Sandbox:             true,
		SandboxDelaySeconds: 1,
		CallbackSecret:      "sandbox-secret",
	}}
	f := newFixture(t, cfg)

	sim := service.NewSimulator(cfg, f.h.Log)
	require.NotNil(t, sim)
	t.Cleanup(sim.Stop)
	svc := service.NewService(service.Params{
		DB:          f.h.DB,
		Log:         f.h.Log,
		GenID:       f.h.Node,
		Repo:        f.h.MobileMoneyRepo,
		PaymentSvc:  f.h.Payments,
		PaymentRepo: f.h.PaymentRepo,
		InvoiceRepo: f.h.InvoiceRepo,
		StudentRepo: f.h.StudentRepo,
		Registry:    f.h.Registry,
		Simulator:   sim,
		Clock:       f.h.Clock,
	})

	txn, err := svc.Initiate(f.ctx, domain.InitiateRequest{
		PhoneNumber: phone,
		Amount:      300000,
		Provider:    "airtel",
		EntityType:  "invoice",
		EntityID:    f.invoice.ID.String(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.GetTransaction(f.ctx, txn.ID.String())
		return err == nil && got.Status == domain.StatusSuccess
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(500000), f.balance(t))
}

func TestNewSimulatorDisabledOutsideSandbox(t *testing.T) {
	assert.Nil(t, service.NewSimulator(config.Config{}, nil))

	var sim *service.Simulator
	sim.Schedule(domain.Transaction{})
	sim.Stop()
}
