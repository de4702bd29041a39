package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/config"
	"github.com/gotrs-io/mailflow/internal/logging"
	"github.com/gotrs-io/mailflow/internal/metrics"
	"github.com/gotrs-io/mailflow/internal/runner"
	"github.com/gotrs-io/mailflow/internal/runner/tasks"
	"github.com/gotrs-io/mailflow/internal/scenario"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scenario suite on a schedule",
	Long: `Watch runs the suite on a cron schedule until interrupted. Schedules
accept an optional seconds field and descriptors such as "@every 30m".

Changes to the config file apply from the next run on; a changed schedule
needs a restart.`,
	RunE: runWatch,
}

var (
	watchFlags    runOptions
	scheduleFlag  string
	runOnStartSet bool
)

func init() {
	watchCmd.Flags().StringVar(&scheduleFlag, "schedule", "", "Cron schedule (default schedule.spec)")
	watchCmd.Flags().StringSliceVarP(&watchFlags.scenarios, "scenario", "s", nil, "Scenario to run (repeatable, default all)")
	watchCmd.Flags().StringVar(&watchFlags.reportPath, "report", "", "Rewrite a .json or .xlsx report after every run")
	watchCmd.Flags().StringVar(&watchFlags.metricsFile, "metrics-file", "", "Rewrite Prometheus textfile metrics after every run")
	watchCmd.Flags().BoolVar(&runOnStartSet, "run-on-start", true, "Run once immediately instead of waiting for the first tick")
}

func runWatch(cmd *cobra.Command, args []string) error {
	src, cfg, err := openConfig()
	if err != nil {
		return err
	}
	watchFlags.apply(cfg)
	if scheduleFlag != "" {
		cfg.Schedule.Spec = scheduleFlag
	}
	if cmd.Flags().Changed("run-on-start") {
		cfg.Schedule.RunOnStart = runOnStartSet
	}
	if _, err := scenario.DefaultRegistry().Select(watchFlags.scenarios...); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	var current atomic.Pointer[config.Config]
	current.Store(cfg)
	schedule := cfg.Schedule.Spec
	src.Watch(logger, func(next *config.Config) {
		applyGlobalFlags(next)
		watchFlags.apply(next)
		next.Schedule.Spec = schedule
		current.Store(next)
		logger.Info("configuration reloaded, applies from the next run")
	})

	// Metrics accumulate across runs, so the textfile reflects the whole
	// lifetime of the watcher.
	m := metrics.New(cfg.Metrics.Namespace)
	run := func(ctx context.Context) (*scenario.Report, error) {
		return runSuite(ctx, current.Load(), watchFlags.scenarios, m, logger)
	}

	reg := runner.NewTaskRegistry()
	reg.Register(tasks.NewSuiteTask(schedule, suiteTimeout(cfg), run, logger.Named("task")))

	r := runner.NewRunner(reg,
		runner.WithLogger(logger.Named("runner")),
		runner.WithRunOnStart(cfg.Schedule.RunOnStart),
	)
	logger.Info("watching", zap.String("schedule", schedule), zap.Strings("scenarios", watchFlags.scenarios))
	err = r.Start(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// suiteTimeout bounds one scheduled run: every scenario at its own bound
// plus time to launch and shut down the browser.
func suiteTimeout(cfg *config.Config) time.Duration {
	n := len(scenario.DefaultRegistry().Names())
	return time.Duration(n)*cfg.Timeouts.Scenario + 2*time.Minute
}
