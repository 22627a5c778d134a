// Package scheduler runs periodic housekeeping tasks, such as sweeping
// overdue library loans, in background goroutines.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a job run every Interval. Run returns how many records it touched.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Config holds scheduler settings
type Config struct {
	Enabled bool
	// RunOnStart runs every task once right after Start
	RunOnStart bool
	// DefaultTimeout bounds a task run that has no Timeout of its own
	DefaultTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		RunOnStart:     true,
		DefaultTimeout: 5 * time.Minute,
	}
}

// Scheduler runs registered tasks on their own tickers
type Scheduler struct {
	logger    *zap.Logger
	config    Config
	tasks     []Task
	cancel    context.CancelFunc
	runCtx    context.Context
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// New creates a scheduler
func New(logger *zap.Logger, config Config) *Scheduler {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	return &Scheduler{logger: logger, config: config}
}

// Register adds a task. Tasks registered after Start are not scheduled.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil || task.Interval <= 0 {
		return ErrInvalidTask
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

// Start launches one goroutine per task
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Scheduler is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx
	tasks := append([]Task(nil), s.tasks...)
	s.wg.Add(len(tasks))
	s.mu.Unlock()

	for _, task := range tasks {
		go s.loop(ctx, task)
	}
	s.logger.Info("Scheduler started", zap.Int("tasks", len(tasks)))
	return nil
}

// Stop cancels every task loop and waits for running tasks until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// Trigger runs a task now, outside its schedule
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	var task *Task
	for i := range s.tasks {
		if s.tasks[i].Name == name {
			task = &s.tasks[i]
			break
		}
	}
	if task == nil {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	t := *task
	ctx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(ctx, t)
	}()
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.execute(ctx, task)
	}
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Task loop stopping", zap.String("task", task.Name))
			return
		case <-ticker.C:
			s.execute(ctx, task)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task Task) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = s.config.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	count, err := task.Run(runCtx)
	duration := time.Since(started)
	if err != nil {
		s.logger.Error("Scheduled task failed",
			zap.String("task", task.Name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Scheduled task completed",
		zap.String("task", task.Name),
		zap.Duration("duration", duration),
		zap.Int("affected", count),
	)
}
