package flow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser"
)

// Detector fires when Probe becomes visible within Timeout, producing Outcome.
// Detectors passed to Race are in priority order.
type Detector struct {
	Name    string
	Outcome Outcome
	Probe   Probe
	Timeout time.Duration
}

// Result is what a race settled on.
type Result struct {
	Outcome Outcome
	// Detector is the name of the detector that decided the race, empty for Unknown.
	Detector string
	Elapsed  time.Duration
	// Err is the caller's context error when it ended the race.
	Err error
}

type signal struct {
	idx int
	err error
}

// Race waits concurrently on every detector and returns the outcome of the
// first one to fire. When several have fired by the time the race is decided,
// the earliest in the list wins. When none fires, a final priority-ordered
// visibility sweep runs before falling back to Unknown. Race is bounded by
// the longest detector timeout plus the runner's grace. A race cut short by
// ctx is Unknown with CauseCancelled and carries ctx.Err() in Result.Err.
func (r *Runner) Race(ctx context.Context, flow string, detectors ...Detector) Result {
	start := time.Now()
	log := r.logger.With(zap.String("flow", flow))

	res := r.race(ctx, log, detectors)
	res.Elapsed = time.Since(start)

	log.Debug("race settled",
		zap.Stringer("outcome", res.Outcome),
		zap.String("detector", res.Detector),
		zap.Duration("elapsed", res.Elapsed))
	r.recorder.ObserveRace(flow, res)
	return res
}

func (r *Runner) race(ctx context.Context, log *zap.Logger, detectors []Detector) Result {
	if len(detectors) == 0 {
		return Result{Outcome: Undetermined(CauseUnrecognized)}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so losing detectors never block after the race is decided.
	signals := make(chan signal, len(detectors))
	var longest time.Duration
	for i, d := range detectors {
		if d.Timeout > longest {
			longest = d.Timeout
		}
		go func(i int, d Detector) {
			dctx, dcancel := context.WithTimeout(raceCtx, d.Timeout)
			defer dcancel()
			signals <- signal{idx: i, err: d.Probe.WaitVisible(dctx, d.Timeout)}
		}(i, d)
	}

	guard := time.NewTimer(longest + r.grace)
	defer guard.Stop()

	fired := make([]bool, len(detectors))
	timedOut := 0
	pending := len(detectors)
	winner := -1
	guardTripped := false

wait:
	for pending > 0 {
		select {
		case s := <-signals:
			pending--
			if s.err == nil {
				fired[s.idx] = true
				winner = s.idx
				break wait
			}
			if browser.IsTimeout(s.err) {
				timedOut++
			} else {
				log.Debug("detector failed",
					zap.String("detector", detectors[s.idx].Name), zap.Error(s.err))
			}
		case <-guard.C:
			guardTripped = true
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	if winner >= 0 {
	drain:
		for {
			select {
			case s := <-signals:
				if s.err == nil {
					fired[s.idx] = true
				}
			default:
				break drain
			}
		}
		idx := r.prioritize(ctx, detectors, fired, winner)
		return Result{Outcome: detectors[idx].Outcome, Detector: detectors[idx].Name}
	}

	// Nothing fired in time; a state may still have appeared right at the
	// deadline, so check once more in priority order.
	if ctx.Err() == nil {
		for _, d := range detectors {
			if ok, err := d.Probe.Visible(ctx); err == nil && ok {
				return Result{Outcome: d.Outcome, Detector: d.Name}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{Outcome: Undetermined(CauseCancelled), Err: err}
	}
	if guardTripped || timedOut == len(detectors) {
		return Result{Outcome: Undetermined(CauseTimeout)}
	}
	return Result{Outcome: Undetermined(CauseUnrecognized)}
}

// prioritize picks the first detector, in list order, that has fired or is
// visible right now. Detectors after the winner are never preferred.
func (r *Runner) prioritize(ctx context.Context, detectors []Detector, fired []bool, winner int) int {
	for i := 0; i < winner; i++ {
		if fired[i] {
			return i
		}
		if ok, err := detectors[i].Probe.Visible(ctx); err == nil && ok {
			return i
		}
	}
	return winner
}
