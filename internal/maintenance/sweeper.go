// Package maintenance runs periodic housekeeping for the Chrome extraction
// service.
package maintenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

// DefaultInterval is used when neither an interval nor a schedule is given.
const DefaultInterval = 15 * time.Minute

// DefaultMaxAge is how old a temp copy must be before it is swept. Copies
// younger than this may still belong to a running extraction.
const DefaultMaxAge = 10 * time.Minute

// SweepFunc removes orphaned temp copies older than maxAge and reports how
// many it removed.
type SweepFunc func(maxAge time.Duration) (int, error)

// SweepRecorder receives the number of copies each run removed.
type SweepRecorder interface {
	RecordSweep(removed int)
}

// Options configures a Sweeper.
type Options struct {
	Sweep    SweepFunc
	Interval time.Duration
	// Schedule is a five-field cron expression and takes precedence over
	// Interval.
	Schedule string
	MaxAge   time.Duration
	Recorder SweepRecorder
	Logger   logrus.FieldLogger
}

// Sweeper periodically removes orphaned Chrome database copies.
type Sweeper struct {
	scheduler gocron.Scheduler
	opts      Options
	log       logrus.FieldLogger

	mu      sync.Mutex
	job     gocron.Job
	started bool
}

// ValidateSchedule checks a five-field cron expression and returns its next
// activation after now.
func ValidateSchedule(expr string, now time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return schedule.Next(now), nil
}

// NewSweeper creates a sweeper. The job is registered but does not run until
// Start.
func NewSweeper(opts Options) (*Sweeper, error) {
	if opts.Sweep == nil {
		return nil, fmt.Errorf("sweeper requires a sweep function")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}

	var definition gocron.JobDefinition
	if opts.Schedule != "" {
		if _, err := ValidateSchedule(opts.Schedule, time.Now()); err != nil {
			return nil, err
		}
		definition = gocron.CronJob(opts.Schedule, false)
	} else {
		definition = gocron.DurationJob(opts.Interval)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Sweeper{
		scheduler: scheduler,
		opts:      opts,
		log:       logging.WithComponent(opts.Logger, "sweeper"),
	}

	job, err := scheduler.NewJob(
		definition,
		gocron.NewTask(func() { s.RunOnce() }),
		gocron.WithName("chrome_temp_sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to register sweep job: %w", err)
	}
	s.job = job
	return s, nil
}

// RunOnce performs a single sweep immediately.
func (s *Sweeper) RunOnce() int {
	removed, err := s.opts.Sweep(s.opts.MaxAge)
	if err != nil {
		s.log.WithError(err).Warn("Temp copy sweep failed")
		return 0
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordSweep(removed)
	}
	s.log.WithField("removed", removed).Debug("Temp copy sweep finished")
	return removed
}

// Start sweeps once, then hands the job to the scheduler.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.RunOnce()
	s.scheduler.Start()

	entry := s.log
	if next, err := s.job.NextRun(); err == nil {
		entry = entry.WithField("next_run", next.Format(time.RFC3339))
	}
	entry.Info("Sweeper started")
}

// Stop shuts the scheduler down. A stopped sweeper cannot be restarted.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.scheduler.Shutdown()
}
