package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMarkOverdue        = "mark_overdue"
	JobLedgerConsistency  = "ledger_consistency"
	JobStaleMobileMoney   = "stale_mobile_money"
	JobCallbackInboxRetry = "callback_inbox_retry"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log            *zap.Logger
	InvoiceSvc     invoicedomain.Service
	LedgerSvc      ledgerdomain.Service
	MobileMoneySvc mobilemoneydomain.Service
	Billing        *config.BillingConfigHolder
	GenID          *snowflake.Node
	Clock          clock.Clock `optional:"true"`
	Config         Config      `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	billing        *config.BillingConfigHolder
	invoiceSvc     invoicedomain.Service
	ledgerSvc      ledgerdomain.Service
	mobileMoneySvc mobilemoneydomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.InvoiceSvc == nil || p.LedgerSvc == nil || p.MobileMoneySvc == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	billing := p.Billing
	if billing == nil {
		billing = config.StaticBillingConfig(config.DefaultBillingConfig())
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          clk,
		billing:        billing,
		invoiceSvc:     p.InvoiceSvc,
		ledgerSvc:      p.LedgerSvc,
		mobileMoneySvc: p.MobileMoneySvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, batchSize)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.failures == 0 {
		run.failures++
	}
	run.finish()
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remaining rows
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		run.log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled periodic job once, in order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name  string
		Batch int
		Run   func(context.Context, *jobRun) error
	}{
		{JobMarkOverdue, s.cfg.BatchSize, s.markOverdue},
		{JobLedgerConsistency, s.cfg.DriftLimit, s.ledgerConsistency},
		{JobStaleMobileMoney, s.cfg.BatchSize, s.staleMobileMoney},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Batch, s.cfg.JobTimeout, job.Run))
	}
	return err
}

// RunInboxOnce retries failed provider callback deliveries.
func (s *Scheduler) RunInboxOnce(parent context.Context) error {
	if !s.isJobEnabled(JobCallbackInboxRetry) {
		return nil
	}
	return s.runJob(parent, JobCallbackInboxRetry, s.cfg.InboxBatch, s.cfg.JobTimeout, s.callbackInboxRetry)
}

// RunForever drives the periodic jobs and the callback inbox on their own intervals until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx, s.cfg.InboxInterval, s.RunInboxOnce)
	}()
	s.loop(ctx, s.cfg.RunInterval, s.RunOnce)
	<-done
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := time.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if runLag := time.Since(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := fn(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
