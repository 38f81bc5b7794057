package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/bursar/internal/clock"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/ratelimit"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxCallbackAttempts = 5
	retryGracePeriod    = 30 * time.Second
	outcomeStale        = "stale"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	PaymentSvc  paymentdomain.Service
	PaymentRepo paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	StudentRepo studentdomain.Repository
	Registry    *adapters.Registry
	Limiter     *ratelimit.MobileMoneyLimiter `optional:"true"`
	Simulator   *Simulator                    `optional:"true"`
	Clock       clock.Clock
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	paymentSvc  paymentdomain.Service
	paymentRepo paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	studentRepo studentdomain.Repository
	registry    *adapters.Registry
	limiter     *ratelimit.MobileMoneyLimiter
	simulator   *Simulator
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	validate    *validator.Validate
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	svc := &Service{
		db:          p.DB,
		log:         p.Log.Named("mobilemoney.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		paymentSvc:  p.PaymentSvc,
		paymentRepo: p.PaymentRepo,
		invoiceRepo: p.InvoiceRepo,
		studentRepo: p.StudentRepo,
		registry:    p.Registry,
		limiter:     p.Limiter,
		simulator:   p.Simulator,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	if svc.simulator != nil {
		svc.simulator.bind(svc)
	}
	return svc
}

func (s *Service) Initiate(ctx context.Context, req domain.InitiateRequest) (domain.Transaction, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.Transaction{}, domain.ErrInvalidSchool
	}
	req.PhoneNumber = normalizePhone(req.PhoneNumber)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.EntityType = strings.ToLower(strings.TrimSpace(req.EntityType))
	if err := s.validate.Struct(req); err != nil {
		return domain.Transaction{}, mapValidationError(err)
	}
	if !s.registry.ProviderExists(req.Provider) {
		return domain.Transaction{}, domain.ErrUnsupportedProvider
	}
	entityID, err := parseID(req.EntityID)
	if err != nil {
		return domain.Transaction{}, domain.ErrInvalidEntityID
	}
	var paymentID snowflake.ID
	if strings.TrimSpace(req.PaymentID) != "" {
		paymentID, err = parseID(req.PaymentID)
		if err != nil {
			return domain.Transaction{}, domain.ErrPaymentNotReservable
		}
	}

	decision, err := s.limiter.AllowInitiate(ctx, schoolID.String(), req.PhoneNumber)
	if err != nil {
		s.log.Warn("mobile money rate limiter unavailable", zap.Error(err))
	} else if !decision.Allowed {
		s.log.Info("mobile money prompt throttled",
			zap.String("school_id", schoolID.String()),
			zap.Duration("retry_after", decision.RetryAfter),
		)
		return domain.Transaction{}, domain.ErrRateLimited
	}

	entityType := domain.EntityType(req.EntityType)
	if err := s.checkEntity(ctx, schoolID, entityType, entityID); err != nil {
		return domain.Transaction{}, err
	}
	if paymentID != 0 {
		if err := s.checkReservedPayment(ctx, schoolID, paymentID, req.Amount); err != nil {
			return domain.Transaction{}, err
		}
	}

	now := s.clock.Now().UTC()
	txn := domain.Transaction{
		ID:                s.genID.Generate(),
		SchoolID:          schoolID,
		Provider:          domain.Provider(req.Provider),
		PhoneNumber:       req.PhoneNumber,
		Amount:            req.Amount,
		Status:            domain.StatusPending,
		ExternalReference: "MM-" + ulid.Make().String(),
		EntityType:        entityType,
		EntityID:          entityID,
		FeeType:           strings.ToLower(strings.TrimSpace(req.FeeType)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if paymentID != 0 {
		txn.PaymentID = &paymentID
	}
	if err := s.repo.Insert(ctx, s.db, &txn); err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info("mobile money payment initiated",
		zap.String("school_id", schoolID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("external_reference", txn.ExternalReference),
		zap.String("provider", string(txn.Provider)),
		zap.String("entity_type", string(txn.EntityType)),
		zap.String("entity_id", txn.EntityID.String()),
		zap.Int64("amount", txn.Amount),
	)
	s.simulator.Schedule(txn)
	return txn, nil
}

func (s *Service) checkEntity(ctx context.Context, schoolID snowflake.ID, entityType domain.EntityType, entityID snowflake.ID) error {
	switch entityType {
	case domain.EntityTypeInvoice:
		invoice, err := s.invoiceRepo.FindByID(ctx, s.db, schoolID, entityID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
	case domain.EntityTypePlanInstallment:
		inst, err := s.paymentRepo.FindInstallment(ctx, s.db, schoolID, entityID)
		if err != nil {
			return err
		}
		if inst == nil {
			return paymentdomain.ErrInstallmentNotFound
		}
	case domain.EntityTypeGeneralPayment:
		student, err := s.studentRepo.FindByID(ctx, s.db, schoolID, entityID)
		if err != nil {
			return err
		}
		if student == nil {
			return studentdomain.ErrNotFound
		}
	default:
		return domain.ErrInvalidEntityType
	}
	return nil
}

func (s *Service) checkReservedPayment(ctx context.Context, schoolID, paymentID snowflake.ID, amount int64) error {
	payment, err := s.paymentRepo.FindPayment(ctx, s.db, schoolID, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return paymentdomain.ErrPaymentNotFound
	}
	if payment.Status != paymentdomain.PaymentStatusPending || payment.AmountPaid != amount {
		return domain.ErrPaymentNotReservable
	}
	return nil
}

// HandleCallback applies a provider outcome. A transaction leaves pending
// exactly once; later deliveries return Stale without touching balances.
func (s *Service) HandleCallback(ctx context.Context, req domain.CallbackRequest) (domain.CallbackResult, error) {
	outcome := domain.Outcome(strings.ToLower(strings.TrimSpace(string(req.Outcome))))
	if outcome != domain.OutcomeSuccess && outcome != domain.OutcomeFailed {
		return domain.CallbackResult{}, domain.ErrInvalidOutcome
	}
	if req.Amount < 0 {
		return domain.CallbackResult{}, domain.ErrInvalidAmount
	}

	txn, err := s.lookup(ctx, req)
	if err != nil {
		return domain.CallbackResult{}, err
	}
	if txn.Status != domain.StatusPending {
		return s.stale(ctx, txn, outcome), nil
	}

	lease, locked, err := s.limiter.LockCallback(ctx, txn.ID.String())
	if err != nil {
		s.log.Warn("mobile money callback lock unavailable", zap.Error(err))
	} else if !locked {
		return domain.CallbackResult{}, domain.ErrCallbackInProgress
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.log.Warn("release mobile money callback lock", zap.Error(err))
		}
	}()

	now := s.clock.Now().UTC()
	raw := rawCallbackData(req, outcome)
	var applied *paymentdomain.ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrTransactionNotFound
		}
		if current.Status != domain.StatusPending {
			return domain.ErrStaleTransaction
		}
		if outcome == domain.OutcomeSuccess && req.Amount > 0 && req.Amount != current.Amount {
			return domain.ErrAmountMismatch
		}

		resolution := domain.Resolution{
			Status:                domain.StatusSuccess,
			ReceivedAt:            now,
			ProviderTransactionID: strings.TrimSpace(req.ProviderTransactionID),
			RawCallbackData:       raw,
		}
		if outcome == domain.OutcomeFailed {
			resolution.Status = domain.StatusFailed
			resolution.FailureReason = failureReason(req.Reason)
		}
		resolved, err := s.repo.Resolve(ctx, tx, current.ID, resolution)
		if err != nil {
			return err
		}
		if !resolved {
			return domain.ErrStaleTransaction
		}

		if outcome == domain.OutcomeFailed {
			if current.PaymentID != nil {
				if _, err := s.paymentSvc.FailReserved(ctx, tx, current.SchoolID, *current.PaymentID, resolution.FailureReason); err != nil {
					return err
				}
			}
			return nil
		}

		result, err := s.paymentSvc.Apply(ctx, tx, applyInput(current, now))
		if err != nil {
			return err
		}
		if current.PaymentID == nil {
			if err := s.repo.LinkPayment(ctx, tx, current.ID, result.Payment.ID); err != nil {
				return err
			}
		}
		applied = &result
		return nil
	})
	if errors.Is(err, domain.ErrStaleTransaction) {
		latest, findErr := s.repo.FindByID(ctx, s.db, txn.ID)
		if findErr != nil {
			return domain.CallbackResult{}, findErr
		}
		if latest == nil {
			return domain.CallbackResult{}, domain.ErrTransactionNotFound
		}
		return s.stale(ctx, latest, outcome), nil
	}
	if err != nil {
		s.log.Error("mobile money callback failed",
			zap.String("school_id", txn.SchoolID.String()),
			zap.String("transaction_id", txn.ID.String()),
			zap.String("entity_type", string(txn.EntityType)),
			zap.String("entity_id", txn.EntityID.String()),
			zap.String("outcome", string(outcome)),
			zap.Int64("amount", txn.Amount),
			zap.Error(err),
		)
		return domain.CallbackResult{}, err
	}

	final, err := s.repo.FindByID(ctx, s.db, txn.ID)
	if err != nil {
		return domain.CallbackResult{}, err
	}
	if final == nil {
		return domain.CallbackResult{}, domain.ErrTransactionNotFound
	}

	fields := []zap.Field{
		zap.String("school_id", final.SchoolID.String()),
		zap.String("transaction_id", final.ID.String()),
		zap.String("status", string(final.Status)),
		zap.Int64("amount", final.Amount),
	}
	if applied != nil {
		fields = append(fields,
			zap.String("payment_id", applied.Payment.ID.String()),
			zap.String("invoice_id", applied.Invoice.ID.String()),
			zap.Int64("invoice_balance", applied.Invoice.Balance),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordPayment(ctx, string(paymentdomain.MethodMobileMoney), final.Amount)
		}
	}
	s.log.Info("mobile money callback applied", fields...)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordMobileMoneyCallback(ctx, string(final.Provider), string(outcome))
	}
	return domain.CallbackResult{Transaction: *final}, nil
}

func (s *Service) lookup(ctx context.Context, req domain.CallbackRequest) (*domain.Transaction, error) {
	var (
		txn *domain.Transaction
		err error
	)
	switch {
	case strings.TrimSpace(req.TransactionID) != "":
		id, parseErr := parseID(req.TransactionID)
		if parseErr != nil {
			return nil, domain.ErrInvalidTransactionID
		}
		txn, err = s.repo.FindByID(ctx, s.db, id)
	case strings.TrimSpace(req.ExternalReference) != "":
		txn, err = s.repo.FindByExternalReference(ctx, s.db, strings.TrimSpace(req.ExternalReference))
	default:
		return nil, domain.ErrInvalidTransactionID
	}
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}
	if schoolID, ok := schoolcontext.SchoolIDFromContext(ctx); ok && schoolID != txn.SchoolID {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Service) stale(ctx context.Context, txn *domain.Transaction, outcome domain.Outcome) domain.CallbackResult {
	s.log.Info("mobile money callback ignored for resolved transaction",
		zap.String("school_id", txn.SchoolID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("status", string(txn.Status)),
		zap.String("outcome", string(outcome)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordMobileMoneyCallback(ctx, string(txn.Provider), outcomeStale)
	}
	return domain.CallbackResult{Transaction: *txn, Stale: true}
}

func applyInput(txn *domain.Transaction, now time.Time) paymentdomain.ApplyInput {
	in := paymentdomain.ApplyInput{
		SchoolID:  txn.SchoolID,
		FeeType:   txn.FeeType,
		Amount:    txn.Amount,
		Method:    paymentdomain.MethodMobileMoney,
		Reference: txn.ExternalReference,
		Notes:     fmt.Sprintf("%s mobile money from %s", strings.ToUpper(string(txn.Provider)), txn.PhoneNumber),
		PaidAt:    now,
	}
	switch txn.EntityType {
	case domain.EntityTypeInvoice:
		in.InvoiceID = txn.EntityID
	case domain.EntityTypePlanInstallment:
		in.InstallmentID = txn.EntityID
	case domain.EntityTypeGeneralPayment:
		in.StudentID = txn.EntityID
	}
	if txn.PaymentID != nil {
		in.PaymentID = *txn.PaymentID
	}
	return in
}

func (s *Service) IngestProviderCallback(ctx context.Context, provider string, payload []byte, headers http.Header) (domain.CallbackResult, error) {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return domain.CallbackResult{}, err
	}
	if err := adapter.Verify(payload, headers); err != nil {
		s.log.Warn("mobile money callback rejected",
			zap.String("provider", string(adapter.Provider())),
			zap.Error(err),
		)
		return domain.CallbackResult{}, err
	}
	cb, err := adapter.Parse(payload)
	if err != nil {
		return domain.CallbackResult{}, err
	}

	now := s.clock.Now().UTC()
	event := &domain.CallbackEvent{
		ID:                s.genID.Generate(),
		Provider:          adapter.Provider(),
		DedupeKey:         cb.DedupeKey(),
		ExternalReference: cb.ExternalReference,
		Payload:           datatypes.JSON(payload),
		ReceivedAt:        now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, event)
	if err != nil {
		return domain.CallbackResult{}, err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.DedupeKey)
		if err != nil {
			return domain.CallbackResult{}, err
		}
		if existing == nil {
			return domain.CallbackResult{}, domain.ErrTransactionNotFound
		}
		if existing.ProcessedAt != nil {
			txn, err := s.repo.FindByExternalReference(ctx, s.db, cb.ExternalReference)
			if err != nil {
				return domain.CallbackResult{}, err
			}
			if txn == nil {
				return domain.CallbackResult{}, domain.ErrTransactionNotFound
			}
			return s.stale(ctx, txn, cb.Outcome), nil
		}
		event = existing
	}

	return s.process(ctx, event, cb, payload)
}

func (s *Service) process(ctx context.Context, event *domain.CallbackEvent, cb domain.ProviderCallback, payload []byte) (domain.CallbackResult, error) {
	result, err := s.HandleCallback(ctx, domain.CallbackRequest{
		ExternalReference:     cb.ExternalReference,
		Outcome:               cb.Outcome,
		ProviderTransactionID: cb.ProviderTransactionID,
		Reason:                cb.Reason,
		Amount:                cb.Amount,
		RawPayload:            payload,
	})
	if err != nil {
		if markErr := s.repo.MarkEventFailed(ctx, s.db, event.ID, err.Error()); markErr != nil {
			s.log.Warn("mark callback event failed", zap.String("event_id", event.ID.String()), zap.Error(markErr))
		}
		return domain.CallbackResult{}, err
	}
	if err := s.repo.MarkEventProcessed(ctx, s.db, event.ID, s.clock.Now().UTC()); err != nil {
		s.log.Warn("mark callback event processed", zap.String("event_id", event.ID.String()), zap.Error(err))
	}
	return result, nil
}

// RetryCallbacks reprocesses unprocessed deliveries received before now minus a grace period.
func (s *Service) RetryCallbacks(ctx context.Context, now time.Time, limit int) (int, error) {
	events, err := s.repo.ListRetryableEvents(ctx, s.db, now.Add(-retryGracePeriod), maxCallbackAttempts, limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		adapter, err := s.registry.Get(string(event.Provider))
		if err != nil {
			_ = s.repo.MarkEventFailed(ctx, s.db, event.ID, err.Error())
			continue
		}
		cb, err := adapter.Parse(event.Payload)
		if err != nil {
			_ = s.repo.MarkEventFailed(ctx, s.db, event.ID, err.Error())
			continue
		}
		if _, err := s.process(ctx, event, cb, event.Payload); err != nil {
			s.log.Warn("callback retry failed",
				zap.String("event_id", event.ID.String()),
				zap.String("external_reference", event.ExternalReference),
				zap.Int("attempts", event.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return domain.Transaction{}, domain.ErrInvalidSchool
	}
	txnID, err := parseID(id)
	if err != nil {
		return domain.Transaction{}, domain.ErrInvalidTransactionID
	}
	txn, err := s.repo.FindBySchoolAndID(ctx, s.db, schoolID, txnID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if txn == nil {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return *txn, nil
}

func (s *Service) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	items, err := s.repo.ListPendingBefore(ctx, s.db, olderThan, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func rawCallbackData(req domain.CallbackRequest, outcome domain.Outcome) datatypes.JSON {
	if len(req.RawPayload) > 0 && json.Valid(req.RawPayload) {
		return datatypes.JSON(req.RawPayload)
	}
	body, err := json.Marshal(map[string]any{
		"outcome":                 outcome,
		"provider_transaction_id": req.ProviderTransactionID,
		"reason":                  req.Reason,
		"amount":                  req.Amount,
	})
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(body)
}

func failureReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "declined by provider"
	}
	return reason
}

func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	return strings.NewReplacer(" ", "", "-", "").Replace(phone)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidTransactionID
	}
	return id, nil
}

func mapValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Field() {
	case "PhoneNumber":
		return domain.ErrInvalidPhoneNumber
	case "Amount":
		return domain.ErrInvalidAmount
	case "Provider":
		return domain.ErrUnsupportedProvider
	case "EntityType":
		return domain.ErrInvalidEntityType
	case "EntityID":
		return domain.ErrInvalidEntityID
	default:
		return err
	}
}
