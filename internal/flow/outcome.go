package flow

import "fmt"

// Kind is the tag of an Outcome.
type Kind int

const (
	// Unknown means no detector produced a recognized signal.
	Unknown Kind = iota
	Success
	Blocked
	ValidationError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Blocked:
		return "blocked"
	case ValidationError:
		return "validation-error"
	default:
		return "unknown"
	}
}

// Causes carried by Unknown outcomes.
const (
	// CauseTimeout: every detector ran out of time without firing.
	CauseTimeout = "timeout"
	// CauseUnrecognized: the race ended without a recognized marker for some
	// other reason, such as failing detectors.
	CauseUnrecognized = "unrecognized"
	// CauseCancelled: the caller's context ended before anything fired.
	CauseCancelled = "cancelled"
)

// Outcome is the closed set of terminal states a race can settle on.
// Reason holds the validation reason for ValidationError and the cause for
// Unknown; it is empty otherwise.
type Outcome struct {
	Kind   Kind
	Reason string
}

// Succeeded is the Success outcome.
func Succeeded() Outcome { return Outcome{Kind: Success} }

// WasBlocked is the Blocked outcome.
func WasBlocked() Outcome { return Outcome{Kind: Blocked} }

// Invalid is a ValidationError outcome with the given reason.
func Invalid(reason string) Outcome { return Outcome{Kind: ValidationError, Reason: reason} }

// Undetermined is an Unknown outcome with the given cause.
func Undetermined(cause string) Outcome { return Outcome{Kind: Unknown, Reason: cause} }

// Is reports whether o has kind k.
func (o Outcome) Is(k Kind) bool { return o.Kind == k }

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
