package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/cache"
	"github.com/segyhp/rental-billing/internal/config"
	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/metrics"
	"github.com/segyhp/rental-billing/internal/service"
	customError "github.com/segyhp/rental-billing/pkg/errors"
)

// Job is one named, cron-scheduled billing procedure.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context, now time.Time) (*service.JobReport, error)
}

// Runner executes jobs under a distributed lock so that only one scheduler
// instance runs a given job at a time.
type Runner struct {
	locker  cache.Locker
	metrics *metrics.Recorder
	logger  *zap.Logger
	lockTTL time.Duration
	now     func() time.Time
}

func NewRunner(locker cache.Locker, recorder *metrics.Recorder, logger *zap.Logger, lockTTL time.Duration) *Runner {
	return &Runner{
		locker:  locker,
		metrics: recorder,
		logger:  logger.Named("scheduler"),
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// Jobs lists the billing procedures with their configured schedules.
func Jobs(j *service.BillingJobs, cfg config.SchedulerConfig) []Job {
	return []Job{
		{Name: service.JobMonthlyInvoices, Spec: cfg.MonthlyInvoices, Run: j.GenerateMonthlyInvoices},
		{Name: service.JobOverdueInvoices, Spec: cfg.OverdueInvoices, Run: j.MarkOverdueInvoices},
		{Name: service.JobReminders24h, Spec: cfg.Reminders, Run: func(ctx context.Context, now time.Time) (*service.JobReport, error) {
			return j.SendAppointmentReminders(ctx, domain.Reminder24h, now)
		}},
		{Name: service.JobReminders1h, Spec: cfg.Reminders, Run: func(ctx context.Context, now time.Time) (*service.JobReport, error) {
			return j.SendAppointmentReminders(ctx, domain.Reminder1h, now)
		}},
		{Name: service.JobLeaseExpiry, Spec: cfg.LeaseExpiry, Run: j.ExpireLeases},
		{Name: service.JobStalePayments, Spec: cfg.StalePayments, Run: j.SweepStalePayments},
	}
}

// Run executes job once. It returns a nil report without error when another
// instance holds the job's lock.
func (r *Runner) Run(ctx context.Context, job Job) (*service.JobReport, error) {
	log := r.logger.With(zap.String("job", job.Name))
	ctx = logger.WithContext(ctx, log)

	unlock, acquired, err := r.locker.TryLock(ctx, job.Name, r.lockTTL)
	if err != nil {
		r.metrics.JobRun(job.Name, "lock_error", 0)
		return nil, customError.WrapCacheError(fmt.Errorf("acquire lock for %s: %w", job.Name, err))
	}
	if !acquired {
		r.metrics.JobRun(job.Name, "locked", 0)
		log.Info("job already running elsewhere, skipping")
		return nil, nil
	}
	defer func() {
		// The run context may be cancelled by shutdown; release regardless.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			log.Warn("failed to release job lock", zap.Error(err))
		}
	}()

	start := r.now()
	log.Info("job started")
	report, err := job.Run(ctx, start)
	elapsed := r.now().Sub(start)
	if err != nil {
		r.metrics.JobRun(job.Name, "error", elapsed)
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return report, err
	}
	r.metrics.JobRun(job.Name, "ok", elapsed)
	return report, nil
}

// Schedule registers every job on c. Runs use ctx, so cancelling it stops
// in-flight work at the next entity boundary.
func (r *Runner) Schedule(ctx context.Context, c *cron.Cron, jobs []Job) error {
	for _, job := range jobs {
		job := job
		if job.Spec == "" {
			r.logger.Info("job disabled", zap.String("job", job.Name))
			continue
		}
		if _, err := c.AddFunc(job.Spec, func() {
			_, _ = r.Run(ctx, job)
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
		}
		r.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	}
	return nil
}

// Find returns the job with the given name.
func Find(jobs []Job, name string) (Job, bool) {
	for _, job := range jobs {
		if job.Name == name {
			return job, true
		}
	}
	return Job{}, false
}

// CronLogger adapts zap to cron.Logger.
type CronLogger struct {
	sugar *zap.SugaredLogger
}

var _ cron.Logger = CronLogger{}

func NewCronLogger(logger *zap.Logger) CronLogger {
	return CronLogger{sugar: logger.Named("cron").Sugar()}
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
