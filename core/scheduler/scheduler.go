package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/batsim/core/logger"
)

// Tick describes the tick a task runs on.
type Tick struct {
	// Index counts fast ticks from 1.
	Index uint64
	// Time is the simulated time at the end of the tick, in seconds.
	Time float64
	// Dt is the time covered by this run of the task: Period fast ticks.
	Dt float64
}

// Task is a unit of work with a fixed period in fast ticks.
type Task interface {
	Name() string
	Period() int
	Run(t Tick) error
}

type funcTask struct {
	name   string
	period int
	fn     func(Tick) error
}

func (t funcTask) Name() string      { return t.name }
func (t funcTask) Period() int       { return t.period }
func (t funcTask) Run(tk Tick) error { return t.fn(tk) }

// NewTask wraps fn as a Task.
func NewTask(name string, period int, fn func(Tick) error) Task {
	return funcTask{name: name, period: period, fn: fn}
}

// Scheduler runs tasks deterministically on a logical clock. It never
// sleeps; pacing against wall time is the caller's business.
type Scheduler struct {
	cfg   Config
	tasks []Task
	tick  uint64
	log   logger.Logger
}

// New validates cfg and returns an empty scheduler.
func New(cfg Config, log logger.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scheduler{cfg: cfg, log: log}, nil
}

// Config returns the cadence.
func (s *Scheduler) Config() Config { return s.cfg }

// Add appends tasks. Tasks due on the same tick run in insertion order.
func (s *Scheduler) Add(tasks ...Task) error {
	for _, t := range tasks {
		if t.Period() < 1 {
			return fmt.Errorf("task %s: period must be at least 1", t.Name())
		}
	}
	s.tasks = append(s.tasks, tasks...)
	return nil
}

// Ticks returns the number of completed fast ticks.
func (s *Scheduler) Ticks() uint64 { return s.tick }

// Time returns the simulated time in seconds.
func (s *Scheduler) Time() float64 { return float64(s.tick) * s.cfg.FastTickSeconds }

// Step advances one fast tick. A failing task does not stop the others;
// the errors are joined.
func (s *Scheduler) Step() error {
	s.tick++
	var errs []error
	for _, t := range s.tasks {
		p := uint64(t.Period())
		if s.tick%p != 0 {
			continue
		}
		tk := Tick{Index: s.tick, Time: s.Time(), Dt: float64(p) * s.cfg.FastTickSeconds}
		if err := t.Run(tk); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run executes n fast ticks, or until ctx is done when n is 0. Task errors
// are logged and do not stop the run.
func (s *Scheduler) Run(ctx context.Context, n uint64) error {
	for i := uint64(0); n == 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			s.log.Warnf("tick %d: %v", s.tick, err)
		}
	}
	return nil
}
