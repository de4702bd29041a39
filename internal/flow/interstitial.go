package flow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Interstitial is an optional prompt and the action that dismisses it.
type Interstitial struct {
	Name    string
	Prompt  Probe
	Dismiss func(ctx context.Context) error
	// Timeout bounds the wait for Prompt; zero uses the runner default.
	Timeout time.Duration
}

// Absorb waits briefly for each prompt in order and dismisses the ones that
// show up. A prompt that never appears is the common case and is not an
// error; neither is a dismiss action that fails. It returns the names of the
// prompts that were dismissed.
func (r *Runner) Absorb(ctx context.Context, prompts ...Interstitial) []string {
	var dismissed []string
	for _, p := range prompts {
		if ctx.Err() != nil {
			break
		}
		log := r.logger.With(zap.String("interstitial", p.Name))

		timeout := p.Timeout
		if timeout <= 0 {
			timeout = r.promptTimeout
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Prompt.WaitVisible(pctx, timeout)
		cancel()
		if err != nil {
			log.Debug("prompt not shown", zap.Duration("waited", timeout))
			continue
		}

		if p.Dismiss != nil {
			if err := p.Dismiss(ctx); err != nil {
				log.Warn("dismiss failed", zap.Error(err))
				continue
			}
		}
		if r.settle != nil {
			if err := r.settle(ctx); err != nil {
				log.Debug("page did not settle after dismiss", zap.Error(err))
			}
		}
		log.Info("prompt dismissed")
		r.recorder.ObserveInterstitial(p.Name)
		dismissed = append(dismissed, p.Name)
	}
	return dismissed
}
