package scheduler

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"go.uber.org/zap"
)

// markOverdue flips past-due unpaid and partial invoices to overdue, batch by batch.
func (s *Scheduler) markOverdue(ctx context.Context, run *jobRun) error {
	now := s.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updated, err := s.invoiceSvc.MarkOverdue(ctx, now, s.cfg.BatchSize)
		if err != nil {
			run.fail("scheduler.overdue.failed", err)
			return err
		}
		run.addProcessed(updated)
		obsmetrics.Scheduler().AddBatchProcessed(JobMarkOverdue, "invoices", updated)
		if updated < s.cfg.BatchSize {
			return nil
		}
	}
}

// ledgerConsistency reports invoices whose balance disagrees with the ledger.
// Drift is never corrected here.
func (s *Scheduler) ledgerConsistency(ctx context.Context, run *jobRun) error {
	drifts, err := s.ledgerSvc.FindDrift(ctx, s.cfg.DriftLimit)
	if err != nil {
		run.fail("scheduler.ledger_consistency.failed", err)
		return err
	}
	for _, drift := range drifts {
		run.log.Error("ledger.inconsistent_state",
			zap.String("invoice_id", drift.InvoiceID.String()),
			zap.String("school_id", drift.SchoolID.String()),
			zap.String("student_id", drift.StudentID.String()),
			zap.Int("term", drift.Term),
			zap.Int("year", drift.Year),
			zap.Int64("invoice_balance", drift.InvoiceBalance),
			zap.Int64("ledger_balance", drift.LedgerBalance),
		)
	}
	run.addProcessed(len(drifts))
	run.flag(len(drifts))
	obsmetrics.Scheduler().AddBatchProcessed(JobLedgerConsistency, "drifted_invoices", len(drifts))
	return nil
}

// staleMobileMoney reports pending transactions older than the configured
// threshold. They are left pending until a callback or manual action resolves them.
func (s *Scheduler) staleMobileMoney(ctx context.Context, run *jobRun) error {
	minutes := s.billing.Get().StalePendingMinutes
	if minutes <= 0 {
		return nil
	}
	olderThan := s.clock.Now().Add(-time.Duration(minutes) * time.Minute)
	txns, err := s.mobileMoneySvc.ListStalePending(ctx, olderThan, s.cfg.BatchSize)
	if err != nil {
		run.fail("scheduler.stale_mobile_money.failed", err)
		return err
	}
	for _, txn := range txns {
		run.log.Warn("mobile_money.pending_stale",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("school_id", txn.SchoolID.String()),
			zap.String("provider", string(txn.Provider)),
			zap.Int64("amount", txn.Amount),
			zap.Time("created_at", txn.CreatedAt),
		)
	}
	run.addProcessed(len(txns))
	obsmetrics.Scheduler().AddBatchProcessed(JobStaleMobileMoney, "transactions", len(txns))
	return nil
}

func (s *Scheduler) callbackInboxRetry(ctx context.Context, run *jobRun) error {
	processed, err := s.mobileMoneySvc.RetryCallbacks(ctx, s.clock.Now(), s.cfg.InboxBatch)
	run.addProcessed(processed)
	obsmetrics.Scheduler().AddBatchProcessed(JobCallbackInboxRetry, "callback_events", processed)
	if err != nil {
		run.fail("scheduler.callback_inbox.failed", err)
		return err
	}
	return nil
}
