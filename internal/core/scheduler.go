package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"ghostclick/internal/bus"
	"ghostclick/internal/platform"
	"ghostclick/internal/vision"
	"ghostclick/internal/window"
)

// ErrTaskNotFound is returned for operations on unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// WindowResolver finds the windows a selector currently matches.
type WindowResolver interface {
	Resolve(sel window.Selector) ([]platform.Window, error)
}

// TemplateSource loads named templates. A missing template must be a
// recoverable error, not a panic: workers retry next tick.
type TemplateSource interface {
	Load(name string) (*vision.Template, error)
}

// Injector synthesizes a click at a logical screen point.
type Injector interface {
	Click(ctx context.Context, p image.Point, kind platform.ClickKind) error
}

// Recorder receives one record per executed tick, for statistics.
type Recorder interface {
	Record(ctx context.Context, taskID string, clicked bool, score float64, elapsed time.Duration) error
}

// Options tune the scheduler.
type Options struct {
	// MaxConcurrent bounds simultaneous capture/match work across all
	// workers. Zero or negative picks 2*GOMAXPROCS. The bound limits
	// CPU pressure, not fairness: each task still owns its own worker,
	// so a slow tick on one task never delays another's.
	MaxConcurrent int64
	// Retry is the wait before re-resolving when a task's window is
	// missing, independent of the task interval. Zero picks 2s.
	Retry time.Duration
	// Recorder is optional; nil disables stats.
	Recorder Recorder
}

// Scheduler owns the task table and one worker goroutine per running
// task. Structural mutations (add/update/remove) take the write lock;
// workers and readers take snapshots, so no reader ever observes a
// partially updated task.
type Scheduler struct {
	resolver  WindowResolver
	driver    platform.Driver
	templates TemplateSource
	injector  Injector
	bus       *bus.Bus
	recorder  Recorder
	logger    *slog.Logger
	sem       *semaphore.Weighted
	retry     time.Duration

	mu      sync.RWMutex
	order   []string
	tasks   map[string]*Task
	states  map[string]*taskState
	started bool
}

// taskState is runtime-only; never persisted.
type taskState struct {
	status string
	clicks int
	cancel context.CancelFunc
	done   chan struct{}
}

func (st *taskState) running() bool { return st.cancel != nil }

// NewScheduler constructs a scheduler with the given collaborators.
func NewScheduler(resolver WindowResolver, driver platform.Driver, templates TemplateSource, injector Injector, statusBus *bus.Bus, logger *slog.Logger, opts Options) *Scheduler {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = int64(2 * runtime.GOMAXPROCS(0))
	}
	retry := opts.Retry
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &Scheduler{
		resolver:  resolver,
		driver:    driver,
		templates: templates,
		injector:  injector,
		bus:       statusBus,
		recorder:  opts.Recorder,
		logger:    logger,
		sem:       semaphore.NewWeighted(maxConcurrent),
		retry:     retry,
		tasks:     make(map[string]*Task),
		states:    make(map[string]*taskState),
	}
}

// Add validates and inserts a task. When the scheduler is globally
// started and the task is enabled, its worker starts immediately.
func (s *Scheduler) Add(task *Task) error {
	if task.ID == "" {
		task.ID = NewID()
	}
	task.Normalize()
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	s.order = append(s.order, task.ID)
	s.states[task.ID] = &taskState{status: "idle"}
	if s.started && task.Enabled {
		s.startWorkerLocked(task.ID)
	}
	return nil
}

// Update validates and replaces a task. A running worker is restarted so
// the new configuration takes effect immediately (hot reload).
func (s *Scheduler) Update(task *Task) error {
	task.Normalize()
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, exists := s.tasks[task.ID]; !exists {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	st := s.states[task.ID]
	wasRunning := st.running()
	var done chan struct{}
	if wasRunning {
		st.cancel()
		done = st.done
	}
	s.tasks[task.ID] = task.Clone()
	s.mu.Unlock()

	if wasRunning {
		<-done
		if task.Enabled {
			s.mu.Lock()
			// Recheck: a concurrent update or removal may have beaten
			// us to the restart.
			if _, ok := s.tasks[task.ID]; ok && !s.states[task.ID].running() {
				s.startWorkerLocked(task.ID)
			}
			s.mu.Unlock()
		}
	}
	return nil
}

// Remove cancels the task's worker, waits for it to exit, and deletes
// the task. No click can be injected after Remove returns.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	if _, exists := s.tasks[id]; !exists {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	st := s.states[id]
	var done chan struct{}
	if st.running() {
		st.cancel()
		done = st.done
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	delete(s.states, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the task.
func (s *Scheduler) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List returns copies of all tasks in insertion order.
func (s *Scheduler) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Replace swaps the whole task table (profile activation). The new set
// is validated in full before any worker is stopped, so a rejected swap
// leaves the current table untouched. The scheduler keeps its started
// flag, so enabled tasks of the new set start immediately when it was
// running.
func (s *Scheduler) Replace(tasks []*Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if task.ID == "" {
			task.ID = NewID()
		}
		task.Normalize()
		if err := task.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", task.ID, err)
		}
		if _, dup := seen[task.ID]; dup {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		seen[task.ID] = struct{}{}
	}
	s.stopAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*Task, len(tasks))
	s.states = make(map[string]*taskState, len(tasks))
	s.order = s.order[:0]
	for _, task := range tasks {
		s.tasks[task.ID] = task.Clone()
		s.order = append(s.order, task.ID)
		s.states[task.ID] = &taskState{status: "idle"}
		if s.started && task.Enabled {
			s.startWorkerLocked(task.ID)
		}
	}
	return nil
}

// Start launches workers for every enabled task.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	for _, id := range s.order {
		if s.tasks[id].Enabled && !s.states[id].running() {
			s.startWorkerLocked(id)
		}
	}
}

// Stop cancels every worker and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.stopAll()
}

// Started reports whether the scheduler is globally running.
func (s *Scheduler) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// StartTask launches the worker for one task.
func (s *Scheduler) StartTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if !task.Enabled {
		return fmt.Errorf("task %s is disabled", id)
	}
	if s.states[id].running() {
		return nil // already running
	}
	s.startWorkerLocked(id)
	return nil
}

// StopTask cancels one task's worker and waits for it.
func (s *Scheduler) StopTask(id string) error {
	s.mu.Lock()
	st, ok := s.states[id]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if !st.running() {
		s.mu.Unlock()
		return nil
	}
	st.cancel()
	done := st.done
	s.mu.Unlock()
	<-done
	return nil
}

// State returns the runtime state of one task.
func (s *Scheduler) State(id string) (TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return TaskState{}, ErrTaskNotFound
	}
	return TaskState{TaskID: id, Running: st.running(), Status: st.status, Clicks: st.clicks}, nil
}

// States returns runtime states in task order.
func (s *Scheduler) States() []TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskState, 0, len(s.order))
	for _, id := range s.order {
		st := s.states[id]
		out = append(out, TaskState{TaskID: id, Running: st.running(), Status: st.status, Clicks: st.clicks})
	}
	return out
}

// startWorkerLocked launches the worker goroutine; callers hold the
// write lock.
func (s *Scheduler) startWorkerLocked(id string) {
	task := s.tasks[id].Clone()
	ctx, cancel := context.WithCancel(context.Background())
	st := s.states[id]
	st.cancel = cancel
	st.done = make(chan struct{})
	go s.runWorker(ctx, task, st.done)
	s.logger.Info("task worker started", "task_id", id)
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	var doneChans []chan struct{}
	for _, st := range s.states {
		if st.running() {
			st.cancel()
			doneChans = append(doneChans, st.done)
		}
	}
	s.mu.Unlock()
	for _, done := range doneChans {
		<-done
	}
}

// workerExited clears the running handle; the worker calls it on the way
// out so stale cancel functions never linger.
func (s *Scheduler) workerExited(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.cancel = nil
		st.done = nil
	}
}

func (s *Scheduler) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.status = status
	}
}

func (s *Scheduler) recordClick(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.clicks++
		return st.clicks
	}
	return 0
}
