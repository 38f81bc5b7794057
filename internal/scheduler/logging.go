package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	obslogger "github.com/smallbiznis/bursar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun tracks one execution of a job. Its logger carries the job name and
// run id on every line.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	log       *zap.Logger

	processed int
	failures  int
	flagged   int
}

func (s *Scheduler) newJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	runID := s.genID.Generate().String()
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx = obscontext.WithRequestID(ctx, runID)

	run := &jobRun{
		job:       job,
		runID:     runID,
		startedAt: time.Now(),
		log: obslogger.WithContext(ctx, s.log).With(
			zap.String("job", job),
			zap.String("run_id", runID),
		),
	}
	run.log.Debug("scheduler.job.start", zap.Int("batch_size", batchSize))
	return ctx, run
}

func (r *jobRun) addProcessed(n int) {
	if n > 0 {
		r.processed += n
	}
}

// flag counts records a job found wrong but left for an operator.
func (r *jobRun) flag(n int) {
	if n > 0 {
		r.flagged += n
	}
}

func (r *jobRun) fail(msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	r.failures++
	r.log.Error(msg, append([]zap.Field{
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	}, fields...)...)
}

func (r *jobRun) finish() {
	level := zapcore.DebugLevel
	switch {
	case r.failures > 0 || r.flagged > 0:
		level = zapcore.WarnLevel
	case r.processed > 0:
		level = zapcore.InfoLevel
	}
	if ce := r.log.Check(level, "scheduler.job.finish"); ce != nil {
		ce.Write(
			zap.Int64("duration_ms", time.Since(r.startedAt).Milliseconds()),
			zap.Int("processed_count", r.processed),
			zap.Int("flagged_count", r.flagged),
			zap.Int("error_count", r.failures),
		)
	}
}
