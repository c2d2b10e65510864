package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"taskflow/internal/logging"
)

// Job is a periodic scan that is safe to re-run.
type Job interface {
	Name() string
	Tick(ctx context.Context) (TickReport, error)
}

// Locker hands out a lease so only one process runs a job's tick at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// SchedulerService wraps cron-based jobs. Ticks of the same job never overlap;
// different jobs run independently.
type SchedulerService struct {
	cron    *cron.Cron
	locker  Locker
	timeout time.Duration
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSchedulerService builds a stopped scheduler. locker may be nil when a single
// process runs the jobs.
func NewSchedulerService(loc *time.Location, locker Locker, timeout time.Duration, log *zap.SugaredLogger) *SchedulerService {
	cronLog := logging.CronLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		locker:  locker,
		timeout: timeout,
		log:     log.Named("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop cancels running ticks and waits for them to return.
func (s *SchedulerService) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// Register runs job every interval until Stop.
func (s *SchedulerService) Register(job Job, interval time.Duration) error {
	if _, err := s.ScheduleInterval(interval, func() { _, _ = s.RunOnce(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.log.Infow("job scheduled", "job", job.Name(), "interval", interval)
	return nil
}

// RunOnce runs a single tick of job under the job's lease and the tick timeout.
// When the lease is held elsewhere the tick is skipped. When the lock backend
// fails the tick runs anyway: the jobs' conditional writes keep it idempotent.
func (s *SchedulerService) RunOnce(ctx context.Context, job Job) (TickReport, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "taskflow:tick:"+job.Name(), s.leaseTTL())
		switch {
		case err != nil:
			s.log.Warnw("tick lock unavailable, running unlocked", "job", job.Name(), "error", err)
		case !ok:
			s.log.Debugw("tick running elsewhere, skipping", "job", job.Name())
			return TickReport{}, nil
		default:
			defer release()
		}
	}

	start := time.Now()
	report, err := job.Tick(ctx)
	if err != nil {
		s.log.Errorw("tick failed", "job", job.Name(), "error", err)
		return report, fmt.Errorf("%s tick: %w", job.Name(), err)
	}

	fields := []interface{}{
		"job", job.Name(),
		"scanned", report.Scanned,
		"produced", report.Produced,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed", time.Since(start),
	}
	if report.Produced > 0 || report.Failed > 0 {
		s.log.Infow("tick finished", fields...)
	} else {
		s.log.Debugw("tick finished", fields...)
	}
	return report, nil
}

func (s *SchedulerService) leaseTTL() time.Duration {
	if s.timeout > 0 {
		return s.timeout
	}
	return time.Minute
}
