package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/runner"
	"github.com/gotrs-io/mailflow/internal/scenario"
)

// SuiteFunc runs the scenario suite once and returns its report.
type SuiteFunc func(ctx context.Context) (*scenario.Report, error)

// SuiteTask runs the scenario suite on a schedule.
type SuiteTask struct {
	schedule string
	timeout  time.Duration
	run      SuiteFunc
	logger   *zap.Logger

	mu   sync.Mutex
	last *scenario.Report
}

// NewSuiteTask creates a task that calls run on schedule.
func NewSuiteTask(schedule string, timeout time.Duration, run SuiteFunc, logger *zap.Logger) *SuiteTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SuiteTask{
		schedule: schedule,
		timeout:  timeout,
		run:      run,
		logger:   logger,
	}
}

var _ runner.Task = (*SuiteTask)(nil)

// Name returns the task name
func (t *SuiteTask) Name() string {
	return "scenario-suite"
}

// Schedule returns the cron schedule
func (t *SuiteTask) Schedule() string {
	return t.schedule
}

// Timeout returns the maximum execution time
func (t *SuiteTask) Timeout() time.Duration {
	return t.timeout
}

// Run executes the suite. Failed scenarios make the run fail so the runner
// logs it as such.
func (t *SuiteTask) Run(ctx context.Context) error {
	report, err := t.run(ctx)
	if err != nil {
		return fmt.Errorf("suite run failed: %w", err)
	}

	t.mu.Lock()
	t.last = report
	t.mu.Unlock()

	t.logger.Info("suite run recorded",
		zap.String("run_id", report.RunID),
		zap.Int("passed", report.Count(scenario.Passed)),
		zap.Int("failed", report.Count(scenario.Failed)),
		zap.Int("skipped", report.Count(scenario.Skipped)))

	if report.Failed() {
		return fmt.Errorf("%d of %d scenarios failed", report.Count(scenario.Failed), len(report.Results))
	}
	return nil
}

// Last returns the report of the most recent completed run, or nil.
func (t *SuiteTask) Last() *scenario.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
