package webmail

import (
	"errors"
	"fmt"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/flow"
)

var (
	// ErrBlocked means the webmail provider rejected the automated sign-in.
	ErrBlocked = errors.New("sign-in blocked by provider")
	// ErrUnknownOutcome means no recognized UI state appeared in time.
	ErrUnknownOutcome = errors.New("outcome not recognized")
	// ErrValidation means the application rejected the input.
	ErrValidation = errors.New("rejected by application validation")
	// ErrAccepted means credentials that should be rejected signed in.
	ErrAccepted = errors.New("invalid credentials were accepted")
)

// OutcomeError reports a terminal outcome that the caller has to treat as a
// failure. It unwraps to ErrBlocked, ErrUnknownOutcome or ErrValidation, and
// Unknown outcomes caused by timeouts also unwrap to browser.ErrTimeout. A
// flow cut short by its context unwraps to the context error instead.
type OutcomeError struct {
	Flow    string
	Outcome flow.Outcome
	// Err is the context error that ended the flow, if any.
	Err error
}

func outcomeError(flowName string, res flow.Result) *OutcomeError {
	return &OutcomeError{Flow: flowName, Outcome: res.Outcome, Err: res.Err}
}

func (e *OutcomeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Flow, e.Outcome, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Flow, e.Outcome)
}

func (e *OutcomeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err}
	}
	switch e.Outcome.Kind {
	case flow.Blocked:
		return []error{ErrBlocked}
	case flow.ValidationError:
		return []error{ErrValidation}
	case flow.Unknown:
		if e.Outcome.Reason == flow.CauseTimeout {
			return []error{ErrUnknownOutcome, browser.ErrTimeout}
		}
		return []error{ErrUnknownOutcome}
	default:
		return nil
	}
}

// OutcomeOf extracts the classified outcome from err, if any.
func OutcomeOf(err error) (flow.Outcome, bool) {
	var oe *OutcomeError
	if errors.As(err, &oe) {
		return oe.Outcome, true
	}
	return flow.Outcome{}, false
}
