// Package metrics exposes suite results as Prometheus metrics. Each Metrics
// owns its registry so that a run can be exported as a node_exporter
// textfile without pulling in the process collectors.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gotrs-io/mailflow/internal/flow"
)

// Metrics implements flow.Recorder and records scenario results.
type Metrics struct {
	registry *prometheus.Registry

	scenarios       *prometheus.CounterVec
	scenarioSeconds *prometheus.HistogramVec
	lastRun         *prometheus.GaugeVec
	races           *prometheus.CounterVec
	raceSeconds     *prometheus.HistogramVec
	interstitials   *prometheus.CounterVec
}

// New registers the collectors under namespace; an empty namespace means
// "mailflow".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mailflow"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenario runs by name and status.",
		}, []string{"scenario", "status"}),
		scenarioSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Scenario wall time.",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		}, []string{"scenario"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scenario_last_run_timestamp_seconds",
			Help:      "Unix time the scenario last finished.",
		}, []string{"scenario", "status"}),
		races: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "race_outcomes_total",
			Help:      "Outcome races by flow, outcome kind and deciding detector.",
		}, []string{"flow", "outcome", "detector"}),
		raceSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "race_duration_seconds",
			Help:      "Time until an outcome race settled.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"flow"}),
		interstitials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interstitials_dismissed_total",
			Help:      "Optional prompts that showed up and were dismissed.",
		}, []string{"name"}),
	}
	m.registry.MustRegister(m.scenarios, m.scenarioSeconds, m.lastRun, m.races, m.raceSeconds, m.interstitials)
	return m
}

// ObserveRace implements flow.Recorder.
func (m *Metrics) ObserveRace(flowName string, res flow.Result) {
	detector := res.Detector
	if detector == "" {
		detector = "none"
	}
	m.races.WithLabelValues(flowName, res.Outcome.Kind.String(), detector).Inc()
	m.raceSeconds.WithLabelValues(flowName).Observe(res.Elapsed.Seconds())
}

// ObserveInterstitial implements flow.Recorder.
func (m *Metrics) ObserveInterstitial(name string) {
	m.interstitials.WithLabelValues(name).Inc()
}

// ObserveScenario records one finished scenario.
func (m *Metrics) ObserveScenario(name, status string, elapsed time.Duration) {
	m.scenarios.WithLabelValues(name, status).Inc()
	m.scenarioSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
	m.lastRun.DeletePartialMatch(prometheus.Labels{"scenario": name})
	m.lastRun.WithLabelValues(name, status).SetToCurrentTime()
}

// WriteTextfile writes the current values in the text exposition format,
// ready for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
