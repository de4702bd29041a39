// Package scenario defines the end-to-end scenarios and the suite that runs
// them one after another, each on a fresh page.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/mailbox"
	"github.com/gotrs-io/mailflow/internal/webmail"
)

// ErrSkipped marks a scenario that could not run, for example because
// credentials are missing. A skipped scenario is not a failure.
var ErrSkipped = errors.New("scenario skipped")

// Skip returns an error wrapping ErrSkipped with reason.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Scenario is one end-to-end check.
type Scenario interface {
	// Name returns the unique name of the scenario
	Name() string

	// Run executes the scenario against env.Session
	Run(ctx context.Context, env *Env) error

	// Timeout returns the maximum time the scenario may run; zero uses the
	// suite default
	Timeout() time.Duration
}

// Precondition is implemented by scenarios that can tell before a page is
// opened that they cannot run.
type Precondition interface {
	Check(data Data) error
}

// Data is the input shared by every scenario of a run.
type Data struct {
	Credentials webmail.Credentials
	// Invalid are the credentials the rejected sign-in scenario uses.
	Invalid  webmail.Credentials
	Messages []webmail.Message
	// Verifier, when set, cross-checks sent messages over IMAP.
	Verifier mailbox.SentVerifier
}

// Note is a key/value detail a scenario recorded for the report.
type Note struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Env is what a running scenario gets: its own session plus the run data.
type Env struct {
	Data
	Session *webmail.Session
	RunID   string
	Logger  *zap.Logger

	notes []Note
}

// Note records a detail for the report.
func (e *Env) Note(key, value string) {
	e.notes = append(e.notes, Note{Key: key, Value: value})
}

// Notes returns the details recorded so far.
func (e *Env) Notes() []Note {
	return e.notes
}

// Registry holds scenarios in registration order.
type Registry struct {
	order     []string
	scenarios map[string]Scenario
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]Scenario)}
}

// Register adds s. Names must be unique.
func (r *Registry) Register(s Scenario) error {
	if _, exists := r.scenarios[s.Name()]; exists {
		return fmt.Errorf("scenario %s already registered", s.Name())
	}
	r.order = append(r.order, s.Name())
	r.scenarios[s.Name()] = s
	return nil
}

// Get returns a scenario by name.
func (r *Registry) Get(name string) (Scenario, bool) {
	s, ok := r.scenarios[name]
	return s, ok
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every scenario in registration order.
func (r *Registry) All() []Scenario {
	out := make([]Scenario, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.scenarios[name])
	}
	return out
}

// Select returns the named scenarios in registration order. No names selects
// everything.
func (r *Registry) Select(names ...string) ([]Scenario, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.scenarios[name]; !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		want[name] = true
	}
	var out []Scenario
	for _, name := range r.order {
		if want[name] {
			out = append(out, r.scenarios[name])
		}
	}
	return out, nil
}
