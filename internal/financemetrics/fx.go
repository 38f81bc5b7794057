package financemetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/bursar/internal/config"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("finance.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(Register),
)

type RegisterParams struct {
	fx.In

	Lifecycle       fx.Lifecycle
	Config          config.Config
	Pusher          Pusher `optional:"true"`
	Log             *zap.Logger
	DB              *gorm.DB
	InvoiceRepo     invoicedomain.Repository
	MobileMoneyRepo mobilemoneydomain.Repository
}

// Register starts the periodic push when a pusher is configured.
func Register(p RegisterParams) {
	if p.Pusher == nil {
		return
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("financemetrics")

	interval := time.Duration(p.Config.FinanceStats.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	worker := &worker{
		snapshot: NewSnapshot(p.DB, p.InvoiceRepo, p.MobileMoneyRepo),
		pusher:   p.Pusher,
		log:      log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting finance metrics worker", zap.Duration("interval", interval))
			go worker.run(ctx, interval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

type worker struct {
	snapshot *Snapshot
	pusher   Pusher
	log      *zap.Logger
}

func (w *worker) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.pushOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.pushOnce(ctx)
		case <-ctx.Done():
			w.log.Info("stopping finance metrics worker")
			return
		}
	}
}

func (w *worker) pushOnce(ctx context.Context) {
	if err := w.snapshot.Refresh(ctx); err != nil {
		w.log.Warn("finance snapshot refresh failed", zap.Error(err))
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := w.pusher.Push(pushCtx, w.snapshot.Registry()); err != nil {
		w.log.Error("finance metrics push failed", zap.Error(err))
	}
}
