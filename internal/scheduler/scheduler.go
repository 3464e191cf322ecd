// Package scheduler fires reminder prompts on cron schedules and hands them
// to the dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/chat"
	"github.com/shaonote/starbot/internal/service"
)

var (
	// ErrDuplicate is returned when an identical job was already registered.
	ErrDuplicate = errors.New("job already registered")
	// ErrNoTarget is returned for jobs without a target chat id.
	ErrNoTarget = errors.New("job has no target")
)

// Dispatcher runs one prompt against a target chat.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, target chat.Target) service.DispatchResult
}

// Job is one recurring reminder.
type Job struct {
	// Schedule is a five field cron expression evaluated in the scheduler zone.
	Schedule    string
	Description string
	// Prompt is sent as is unless Build is set.
	Prompt string
	Build  func(now time.Time) (string, error)
	Target chat.Target
	// Range, when set, limits firing to a yearly month/day window.
	Range *DateRange

	sched cron.Schedule
}

func (j *Job) prompt(now time.Time) (string, error) {
	if j.Build != nil {
		return j.Build(now)
	}
	return j.Prompt, nil
}

// Outcome is what a single Fire did.
type Outcome int

const (
	Dispatched Outcome = iota
	Failed
	SkippedSchedule
	SkippedRange
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case Failed:
		return "failed"
	case SkippedSchedule:
		return "skipped_schedule"
	case SkippedRange:
		return "skipped_range"
	}
	return "unknown"
}

// Scheduler owns the cron runner, the registration registry and the zone
// every schedule and range is evaluated in.
type Scheduler struct {
	cron       *cron.Cron
	parser     cron.Parser
	loc        *time.Location
	registry   *Registry
	dispatcher Dispatcher
	log        *zap.Logger

	mu   sync.Mutex
	jobs []*Job

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler in loc. A nil loc means UTC.
func New(loc *time.Location, dispatcher Dispatcher, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		loc:        loc,
		registry:   NewRegistry(),
		dispatcher: dispatcher,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Location returns the scheduler zone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Job(nil), s.jobs...)
}

// Register validates j and adds it to the cron runner. Invalid schedules,
// missing targets, bad ranges and duplicates are logged and rejected.
func (s *Scheduler) Register(j Job) error {
	log := s.log.With(zap.String("job", j.Description), zap.String("schedule", j.Schedule))

	sched, err := s.parser.Parse(j.Schedule)
	if err != nil {
		log.Error("invalid cron expression", zap.Error(err))
		return fmt.Errorf("job %q: %w", j.Description, err)
	}
	if !j.Target.Valid() {
		log.Error("job target missing", zap.Stringer("target", j.Target))
		return fmt.Errorf("job %q: %w", j.Description, ErrNoTarget)
	}
	if j.Range != nil {
		if err := j.Range.Validate(); err != nil {
			log.Error("invalid date range", zap.Error(err))
			return fmt.Errorf("job %q: %w", j.Description, err)
		}
	}

	job := j
	job.sched = sched
	if !s.registry.Add(jobKey(&job)) {
		log.Warn("duplicate job skipped")
		return ErrDuplicate
	}

	s.cron.Schedule(sched, cron.FuncJob(func() {
		s.Fire(s.ctx, &job, time.Now())
	}))

	s.mu.Lock()
	s.jobs = append(s.jobs, &job)
	s.mu.Unlock()

	log.Info("job registered", zap.Stringer("target", job.Target))
	return nil
}

// RangeReminder is a daily reminder at a fixed time limited to a date range.
type RangeReminder struct {
	Range       DateRange
	Hour        int
	Minute      int
	Description string
	Prompt      string
	Target      chat.Target
}

// RegisterRangeReminder registers a daily "MM HH * * *" job gated by r.Range.
func (s *Scheduler) RegisterRangeReminder(r RangeReminder) error {
	rng := r.Range
	return s.Register(Job{
		Schedule:    fmt.Sprintf("%02d %02d * * *", r.Minute, r.Hour),
		Description: r.Description,
		Prompt:      r.Prompt,
		Target:      r.Target,
		Range:       &rng,
	})
}

// Matches reports whether the job's schedule fires in the minute of at.
func (s *Scheduler) Matches(j *Job, at time.Time) bool {
	if j.sched == nil {
		sched, err := s.parser.Parse(j.Schedule)
		if err != nil {
			return false
		}
		j.sched = sched
	}
	minute := at.In(s.loc).Truncate(time.Minute)
	return j.sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// Fire runs j for the instant at. It dispatches only when at falls in a
// minute selected by the schedule and, for ranged jobs, on a day inside the
// range. Failures are logged and never retried.
func (s *Scheduler) Fire(ctx context.Context, j *Job, at time.Time) Outcome {
	at = at.In(s.loc)
	log := s.log.With(
		zap.String("job", j.Description),
		zap.String("schedule", j.Schedule),
		zap.Stringer("target", j.Target),
	)

	if !s.Matches(j, at) {
		log.Warn("fire outside schedule skipped", zap.Time("at", at))
		return SkippedSchedule
	}
	if j.Range != nil && !j.Range.Contains(at) {
		log.Info("outside date range, skipped", zap.Stringer("range", j.Range))
		return SkippedRange
	}

	prompt, err := j.prompt(at)
	if err != nil {
		log.Error("build prompt", zap.Error(err))
		return Failed
	}

	log.Info("job firing")
	res := s.dispatcher.Dispatch(ctx, prompt, j.Target)
	if !res.OK {
		log.Warn("job dispatch failed", zap.Error(res.Err))
		return Failed
	}
	log.Info("job dispatched")
	return Dispatched
}

// Run starts the cron runner and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.Jobs())), zap.String("tz", s.loc.String()))
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the runner, cancels in-flight dispatches and waits for them.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.log.Info("scheduler stopped")
}
