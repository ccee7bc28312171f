package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guarzo/pricepos/internal/logger"
)

const (
	JobPriceUpdate          = "price_update"
	JobAnalyticsAggregation = "analytics_aggregation"
)

var ErrUnknownJob = errors.New("unknown job")

// JobFunc is the work of a scheduled job.
type JobFunc func(ctx context.Context) error

// JobStatus describes a registered job.
type JobStatus struct {
	Name         string        `json:"name"`
	Spec         string        `json:"spec"`
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	NextRun      *time.Time    `json:"next_run,omitempty"`
	LastRun      *time.Time    `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	Runs         int           `json:"runs"`
}

type job struct {
	name    string
	spec    string
	enabled bool
	fn      JobFunc
	entry   cron.EntryID

	running      bool
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
	runs         int
}

// Scheduler runs named jobs on cron specs. Jobs can be enabled, disabled
// and rescheduled while the scheduler runs. A job never overlaps itself.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
	log    *logger.Entry
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{logger.GetLogger().WithComponent("cron")})),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		log:    logger.GetLogger().WithComponent("scheduler"),
	}
}

// Every returns the spec of a fixed interval schedule.
func Every(interval time.Duration) string {
	return "@every " + interval.String()
}

// Add registers a job. A disabled job is kept but not scheduled.
func (s *Scheduler) Add(name, spec string, enabled bool, fn JobFunc) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	j := &job{name: name, spec: spec, enabled: enabled, fn: fn}
	s.jobs[name] = j
	if enabled {
		return s.schedule(j)
	}
	return nil
}

// schedule must be called with mu held.
func (s *Scheduler) schedule(j *job) error {
	id, err := s.cron.AddFunc(j.spec, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", j.name, err)
	}
	j.entry = id
	return nil
}

// unschedule must be called with mu held.
func (s *Scheduler) unschedule(j *job) {
	if j.entry != 0 {
		s.cron.Remove(j.entry)
		j.entry = 0
	}
}

// Enable schedules a disabled job.
func (s *Scheduler) Enable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if j.enabled {
		return nil
	}
	if err := s.schedule(j); err != nil {
		return err
	}
	j.enabled = true
	s.log.WithField("job", name).Info("job enabled")
	return nil
}

// Disable removes a job from the schedule without forgetting it.
func (s *Scheduler) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.unschedule(j)
	j.enabled = false
	s.log.WithField("job", name).Info("job disabled")
	return nil
}

// Reschedule replaces the spec of a job. The job keeps its enabled state.
func (s *Scheduler) Reschedule(name, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.unschedule(j)
	j.spec = spec
	if j.enabled {
		if err := s.schedule(j); err != nil {
			return err
		}
	}
	s.log.WithFields(logger.Fields{"job": name, "spec": spec}).Info("job rescheduled")
	return nil
}

// RunNow runs a job immediately in the background, whether or not it is
// enabled. It is a no-op while the job is already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(j)
	}()
	return nil
}

func (s *Scheduler) execute(j *job) {
	s.mu.Lock()
	if j.running {
		s.mu.Unlock()
		s.log.WithField("job", j.name).Warn("previous run still in progress, skipping")
		return
	}
	j.running = true
	s.mu.Unlock()

	start := s.now()
	err := s.safeRun(j)
	duration := s.now().Sub(start)

	s.mu.Lock()
	j.running = false
	j.lastRun = start
	j.lastDuration = duration
	j.lastErr = err
	j.runs++
	s.mu.Unlock()

	entry := s.log.WithFields(logger.Fields{"job": j.name, "duration_ms": duration.Milliseconds()})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return
	}
	entry.Info("job finished")
}

func (s *Scheduler) safeRun(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(s.ctx)
}

// Jobs lists the registered jobs by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		statuses = append(statuses, s.status(j))
	}
	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Name < statuses[b].Name })
	return statuses
}

// Job returns the status of one job.
func (s *Scheduler) Job(name string) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.status(j), nil
}

func (s *Scheduler) status(j *job) JobStatus {
	st := JobStatus{
		Name:         j.name,
		Spec:         j.spec,
		Enabled:      j.enabled,
		Running:      j.running,
		LastDuration: j.lastDuration,
		Runs:         j.runs,
	}
	if !j.lastRun.IsZero() {
		last := j.lastRun
		st.LastRun = &last
	}
	if j.lastErr != nil {
		st.LastError = j.lastErr.Error()
	}
	if j.enabled {
		if sched, err := cron.ParseStandard(j.spec); err == nil {
			next := sched.Next(s.now())
			st.NextRun = &next
		}
	}
	return st
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	s.cron.Start()
	s.log.WithField("jobs", n).Info("scheduler started")
}

// Stop halts the schedule, cancels running jobs and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger routes cron's own messages into the service log.
type cronLogger struct {
	entry *logger.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) logger.Fields {
	fields := logger.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
