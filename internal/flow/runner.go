// Package flow resolves what a remote UI did after a state-changing action.
//
// Race starts one visibility wait per detector and settles on the first that
// fires; Absorb clears optional prompts that may or may not show up between
// two actions. Neither mutates the page beyond the dismiss actions callers
// hand to Absorb.
package flow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPromptTimeout bounds how long Absorb waits for each prompt.
	DefaultPromptTimeout = 2 * time.Second
	defaultGrace         = 500 * time.Millisecond
)

// Probe observes a single UI state.
type Probe interface {
	WaitVisible(ctx context.Context, timeout time.Duration) error
	Visible(ctx context.Context) (bool, error)
}

// SettleFunc waits for the page to settle after a dismiss action.
type SettleFunc func(ctx context.Context) error

// Recorder receives race and interstitial observations.
type Recorder interface {
	ObserveRace(flow string, res Result)
	ObserveInterstitial(name string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRace(string, Result)  {}
func (nopRecorder) ObserveInterstitial(string) {}

// Runner runs races and interstitial absorption for one browser session.
type Runner struct {
	logger        *zap.Logger
	settle        SettleFunc
	recorder      Recorder
	promptTimeout time.Duration
	grace         time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSettle sets the function Absorb calls after dismissing a prompt.
func WithSettle(fn SettleFunc) Option {
	return func(r *Runner) {
		r.settle = fn
	}
}

// WithRecorder routes observations to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithPromptTimeout overrides the per-prompt wait used when an Interstitial
// has no timeout of its own.
func WithPromptTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.promptTimeout = d
		}
	}
}

// WithGrace overrides how long a race waits past its longest detector
// timeout for probes that do not honor their own deadline.
func WithGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// New returns a Runner. A nil logger disables logging.
func New(logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		logger:        logger.Named("flow"),
		recorder:      nopRecorder{},
		promptTimeout: DefaultPromptTimeout,
		grace:         defaultGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
