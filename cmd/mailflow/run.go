package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/logging"
	"github.com/gotrs-io/mailflow/internal/metrics"
	"github.com/gotrs-io/mailflow/internal/scenario"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scenario suite once",
	Long: `Run executes the selected scenarios (all of them by default) in order,
each on a fresh browser context, and exits with status 1 when any scenario
failed.

Available scenarios: login-valid, compose-verify-sent, login-invalid,
compose-missing-recipient.`,
	RunE: runRun,
}

var runFlags runOptions

func init() {
	runCmd.Flags().StringSliceVarP(&runFlags.scenarios, "scenario", "s", nil, "Scenario to run (repeatable, default all)")
	runCmd.Flags().StringVar(&runFlags.reportPath, "report", "", "Write a .json or .xlsx report to this path")
	runCmd.Flags().StringVar(&runFlags.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	runCmd.Flags().BoolVar(&runFlags.headed, "headed", false, "Show the browser window")
}

func runRun(cmd *cobra.Command, args []string) error {
	_, cfg, err := openConfig()
	if err != nil {
		return err
	}
	runFlags.apply(cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.Metrics.Namespace)
	rep, err := runSuite(ctx, cfg, runFlags.scenarios, m, logger)
	if rep == nil {
		return err
	}
	if err != nil {
		logger.Error("failed to write run artifacts", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	for _, r := range rep.Results {
		line := fmt.Sprintf("%-8s %-28s %s", r.Status, r.Scenario, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "run %s: %s\n", rep.RunID, summary(rep))

	if rep.Count(scenario.Failed) > 0 {
		return errScenariosFailed
	}
	return err
}
