package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner executes registered tasks on their cron schedules. A task never
// overlaps with itself: a tick that arrives while the previous run is still
// going is skipped.
type Runner struct {
	cron       *cron.Cron
	registry   *TaskRegistry
	logger     *zap.Logger
	runOnStart bool
	wg         sync.WaitGroup

	mu      sync.Mutex
	running map[string]*sync.Mutex
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunOnStart runs every task once as soon as the runner starts.
func WithRunOnStart(enabled bool) Option {
	return func(r *Runner) {
		r.runOnStart = enabled
	}
}

// NewRunner creates a new task runner. Schedules use the standard five cron
// fields with an optional leading seconds field, or descriptors such as
// "@every 30m".
func NewRunner(registry *TaskRegistry, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		logger:   zap.NewNop(),
		running:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLog := cron.PrintfLogger(zap.NewStdLog(r.logger.Named("cron")))
	r.cron = cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLog)), cron.WithLogger(cronLog))
	return r
}

// Start schedules every task and blocks until ctx is done or the process
// receives SIGINT or SIGTERM. Either one cancels running tasks, which are
// waited for before Start returns.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("starting task runner")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, task := range r.registry.All() {
		r.logger.Info("registering task", zap.String("task", task.Name()), zap.String("schedule", task.Schedule()))

		_, err := r.cron.AddFunc(task.Schedule(), func() {
			r.wg.Add(1)
			defer r.wg.Done()
			r.executeTask(ctx, task)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name(), err)
		}
	}

	r.cron.Start()
	if r.runOnStart {
		for _, task := range r.registry.All() {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.executeTask(ctx, task)
			}()
		}
	}
	r.logger.Info("task runner started")

	return r.waitForShutdown(ctx, cancel)
}

func (r *Runner) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.running[name]
	if !ok {
		m = &sync.Mutex{}
		r.running[name] = m
	}
	return m
}

// executeTask runs a single task with timeout and error handling
func (r *Runner) executeTask(ctx context.Context, task Task) {
	log := r.logger.With(zap.String("task", task.Name()))
	lock := r.lockFor(task.Name())
	if !lock.TryLock() {
		log.Warn("previous run still in progress, skipping")
		return
	}
	defer lock.Unlock()

	if ctx.Err() != nil {
		return
	}
	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	log.Info("executing task")

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		log.Error("task failed", zap.Duration("duration", duration), zap.Error(err))
	} else {
		log.Info("task completed", zap.Duration("duration", duration))
	}
}

// Stop gracefully shuts down the runner
func (r *Runner) Stop() {
	r.logger.Info("stopping task runner")

	// Scheduled jobs register with wg from inside the job, so no job may
	// still be starting once wg.Wait begins.
	ctx := r.cron.Stop()
	<-ctx.Done()

	// Run-on-start executions are not tracked by cron.
	r.wg.Wait()

	r.logger.Info("task runner stopped")
}

// waitForShutdown waits for termination signals
func (r *Runner) waitForShutdown(ctx context.Context, cancel context.CancelFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		r.logger.Info("received signal", zap.Stringer("signal", sig))
		cancel()
		r.Stop()
		return nil
	case <-ctx.Done():
		r.logger.Info("context cancelled")
		err := ctx.Err()
		r.Stop()
		return err
	}
}
