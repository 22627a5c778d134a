package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when triggering a task on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrTaskNotFound is returned when triggering a task that was never registered
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTask is returned when registering a task without a name, run func or interval
	ErrInvalidTask = errors.New("invalid scheduler task")
)
