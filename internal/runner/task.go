package runner

import (
	"context"
	"time"
)

// Task is a unit of scheduled work, such as one run of the scenario suite.
type Task interface {
	// Name identifies the task in logs; it is unique within a registry.
	Name() string

	// Schedule is a cron spec with an optional seconds field, or a
	// descriptor such as "@every 30m".
	Schedule() string

	// Run performs one execution. ctx is cancelled once Timeout elapses or
	// the runner shuts down.
	Run(ctx context.Context) error

	// Timeout bounds a single execution.
	Timeout() time.Duration
}

// TaskRegistry keeps tasks in registration order, which is also the order
// run-on-start executions are launched in.
type TaskRegistry struct {
	order  []string
	byName map[string]Task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{byName: map[string]Task{}}
}

// Register adds task. A task with the same name is replaced in place.
func (r *TaskRegistry) Register(task Task) {
	name := task.Name()
	if _, seen := r.byName[name]; !seen {
		r.order = append(r.order, name)
	}
	r.byName[name] = task
}

func (r *TaskRegistry) Get(name string) (Task, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns the tasks in registration order.
func (r *TaskRegistry) All() []Task {
	tasks := make([]Task, len(r.order))
	for i, name := range r.order {
		tasks[i] = r.byName[name]
	}
	return tasks
}
