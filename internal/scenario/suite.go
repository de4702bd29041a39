package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/maildata"
	"github.com/gotrs-io/mailflow/internal/webmail"
)

const defaultTimeout = 3 * time.Minute

// Status is how a scenario ended.
type Status string

const (
	Passed  Status = "passed"
	Failed  Status = "failed"
	Skipped Status = "skipped"
)

// Result is the record of one scenario run.
type Result struct {
	Scenario string        `json:"scenario"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Outcome  string        `json:"outcome,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Notes    []Note        `json:"notes,omitempty"`
}

// Report is the record of a suite run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
}

// Count returns how many results have status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failed reports whether any scenario failed.
func (r *Report) Failed() bool {
	return r.Count(Failed) > 0
}

// Observer is told about every finished scenario.
type Observer interface {
	ObserveScenario(name, status string, elapsed time.Duration)
}

// Suite runs scenarios serially, each on its own page and session.
type Suite struct {
	opener      browser.Opener
	data        Data
	logger      *zap.Logger
	observer    Observer
	sessionOpts []webmail.SessionOption
	timeout     time.Duration
	newRunID    func() string
	now         func() time.Time
}

// SuiteOption customizes a Suite.
type SuiteOption func(*Suite)

// WithLogger sets the suite logger; scenarios get a named child.
func WithLogger(logger *zap.Logger) SuiteOption {
	return func(s *Suite) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver reports every finished scenario to o.
func WithObserver(o Observer) SuiteOption {
	return func(s *Suite) {
		s.observer = o
	}
}

// WithSessionOptions are applied to every webmail session the suite creates.
func WithSessionOptions(opts ...webmail.SessionOption) SuiteOption {
	return func(s *Suite) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithTimeout sets the bound for scenarios that do not declare their own.
func WithTimeout(d time.Duration) SuiteOption {
	return func(s *Suite) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func withRunID(fn func() string) SuiteOption {
	return func(s *Suite) {
		s.newRunID = fn
	}
}

// NewSuite returns a suite that opens pages with opener.
func NewSuite(opener browser.Opener, data Data, opts ...SuiteOption) *Suite {
	s := &Suite{
		opener:   opener,
		data:     data,
		logger:   zap.NewNop(),
		timeout:  defaultTimeout,
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes scenarios in order and returns the report. Every sent subject
// carries a tag derived from the run ID. Once ctx is done, the remaining
// scenarios are skipped.
func (s *Suite) Run(ctx context.Context, scenarios []Scenario) *Report {
	report := &Report{RunID: s.newRunID(), Started: s.now()}
	data := s.data
	data.Messages = maildata.Tagged(s.data.Messages, report.RunID)

	log := s.logger.With(zap.String("run_id", report.RunID))
	log.Info("starting suite", zap.Int("scenarios", len(scenarios)))

	for _, sc := range scenarios {
		res := s.runOne(ctx, log, sc, data, report.RunID)
		report.Results = append(report.Results, res)
		if s.observer != nil {
			s.observer.ObserveScenario(res.Scenario, string(res.Status), res.Duration)
		}
	}

	report.Finished = s.now()
	log.Info("suite finished",
		zap.Int("passed", report.Count(Passed)),
		zap.Int("failed", report.Count(Failed)),
		zap.Int("skipped", report.Count(Skipped)),
		zap.Duration("duration", report.Finished.Sub(report.Started)))
	return report
}

func (s *Suite) runOne(ctx context.Context, log *zap.Logger, sc Scenario, data Data, runID string) Result {
	res := Result{Scenario: sc.Name(), Started: s.now()}
	log = log.With(zap.String("scenario", sc.Name()))

	finish := func(err error) Result {
		res.Duration = s.now().Sub(res.Started)
		switch {
		case err == nil:
			res.Status = Passed
			log.Info("scenario passed", zap.Duration("duration", res.Duration))
		case errors.Is(err, ErrSkipped):
			res.Status = Skipped
			res.Error = err.Error()
			log.Info("scenario skipped", zap.String("reason", err.Error()))
		default:
			res.Status = Failed
			res.Error = err.Error()
			if outcome, ok := webmail.OutcomeOf(err); ok {
				res.Outcome = outcome.String()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.Error("scenario timed out", zap.Error(err), zap.Duration("duration", res.Duration))
				break
			}
			log.Error("scenario failed", zap.Error(err), zap.Duration("duration", res.Duration))
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		return finish(Skip("suite cancelled"))
	}
	if pre, ok := sc.(Precondition); ok {
		if err := pre.Check(data); err != nil {
			return finish(err)
		}
	}

	timeout := sc.Timeout()
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, closePage, err := s.opener.NewPage(ctx, sc.Name())
	if err != nil {
		return finish(fmt.Errorf("failed to open page: %w", err))
	}

	scLog := s.logger.Named(sc.Name()).With(zap.String("run_id", runID))
	env := &Env{
		Data:    data,
		Session: webmail.NewSession(page, scLog, s.sessionOpts...),
		RunID:   runID,
		Logger:  scLog,
	}
	err = safeRun(ctx, sc, env)
	res.Notes = env.Notes()
	res = finish(err)

	if cerr := closePage(res.Status == Failed); cerr != nil {
		log.Warn("failed to close page", zap.Error(cerr))
	}
	return res
}

func safeRun(ctx context.Context, sc Scenario, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scenario panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return sc.Run(ctx, env)
}
