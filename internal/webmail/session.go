// Package webmail holds the page objects that drive the webmail UI: sign-in,
// the compose dialog and the mailbox views. Each state-changing action is
// followed by a flow race that classifies what the UI did.
package webmail

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/flow"
)

// Credentials are passed through to the sign-in form untouched.
type Credentials struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Present reports whether both username and password are set.
func (c Credentials) Present() bool {
	return c.Username != "" && c.Password != ""
}

// Message is a message to compose. Empty fields are left untouched in the
// compose dialog, so a Message without To is a valid negative-path input.
type Message struct {
	To      string `yaml:"to" json:"to"`
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}

// Timeouts bound every wait the page objects perform.
type Timeouts struct {
	Action       time.Duration
	Interstitial time.Duration
	// Identifier bounds the wait for the password prompt after the identifier.
	Identifier time.Duration
	// BlockedNotice bounds the wait for the sign-in rejected heading.
	BlockedNotice  time.Duration
	Login          time.Duration
	ComposeOpen    time.Duration
	SendSuccess    time.Duration
	SendValidation time.Duration
	Cleanup        time.Duration
	SentLookup     time.Duration
	RecipientCheck time.Duration
	SignOutMenu    time.Duration
	SignOut        time.Duration
}

// DefaultTimeouts mirrors the waits the suite has always used.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Action:         30 * time.Second,
		Interstitial:   flow.DefaultPromptTimeout,
		Identifier:     15 * time.Second,
		BlockedNotice:  20 * time.Second,
		Login:          30 * time.Second,
		ComposeOpen:    10 * time.Second,
		SendSuccess:    10 * time.Second,
		SendValidation: 8 * time.Second,
		Cleanup:        5 * time.Second,
		SentLookup:     20 * time.Second,
		RecipientCheck: time.Second,
		SignOutMenu:    5 * time.Second,
		SignOut:        30 * time.Second,
	}
}

// URLs are the entry points of the webmail application.
type URLs struct {
	Base   string
	Inbox  string
	Logout string
}

// GmailURLs returns the Gmail entry points.
func GmailURLs() URLs {
	return URLs{
		Base:   "https://mail.google.com/",
		Inbox:  "https://mail.google.com/mail/u/0/#inbox",
		Logout: "https://accounts.google.com/Logout",
	}
}

// Session binds one browser page to the page objects. It is owned by a
// single scenario and is not safe for concurrent use.
type Session struct {
	page                browser.Page
	runner              *flow.Runner
	recorder            flow.Recorder
	sel                 Selectors
	timeouts            Timeouts
	urls                URLs
	handleInterstitials bool
	logger              *zap.Logger
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithTimeouts overrides the default timeouts.
func WithTimeouts(t Timeouts) SessionOption {
	return func(s *Session) {
		s.timeouts = t
	}
}

// WithURLs overrides the webmail entry points.
func WithURLs(u URLs) SessionOption {
	return func(s *Session) {
		s.urls = u
	}
}

// WithInterstitials toggles interstitial absorption (on by default).
func WithInterstitials(enabled bool) SessionOption {
	return func(s *Session) {
		s.handleInterstitials = enabled
	}
}

// WithRecorder routes race and interstitial observations to rec.
func WithRecorder(rec flow.Recorder) SessionOption {
	return func(s *Session) {
		s.recorder = rec
	}
}

// NewSession wraps page. A nil logger disables logging.
func NewSession(page browser.Page, logger *zap.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		page:                page,
		sel:                 GmailSelectors(),
		timeouts:            DefaultTimeouts(),
		urls:                GmailURLs(),
		handleInterstitials: true,
		logger:              logger.Named("webmail"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runner = flow.New(logger,
		flow.WithSettle(page.WaitForLoad),
		flow.WithRecorder(s.recorder),
		flow.WithPromptTimeout(s.timeouts.Interstitial),
	)
	return s
}

// Page returns the underlying browser page.
func (s *Session) Page() browser.Page { return s.page }

// Login returns the sign-in page object.
func (s *Session) Login() *LoginPage { return &LoginPage{s: s} }

// Inbox returns the mailbox page object.
func (s *Session) Inbox() *InboxPage { return &InboxPage{s: s} }

// Compose returns the compose dialog page object.
func (s *Session) Compose() *ComposeDialog { return &ComposeDialog{s: s} }

func (s *Session) find(t browser.Target) browser.Element {
	return s.page.Find(t)
}

// withTimeout bounds a best-effort step.
func (s *Session) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = s.timeouts.Action
	}
	return context.WithTimeout(ctx, d)
}

// interstitials are the optional prompts that may appear around sign-in.
func (s *Session) interstitials() []flow.Interstitial {
	return []flow.Interstitial{
		{
			Name:    "passkey",
			Prompt:  s.find(s.sel.PasskeyHeading),
			Dismiss: s.dismissWith(s.sel.PasskeyNotNow),
		},
		{
			Name:    "recovery",
			Prompt:  s.find(s.sel.RecoveryHeading),
			Dismiss: s.dismissWith(s.sel.RecoveryCancel),
		},
	}
}

// dismissWith clicks button if it is visible. A prompt whose button is
// missing is left alone and not reported as dismissed.
func (s *Session) dismissWith(button browser.Target) func(context.Context) error {
	return func(ctx context.Context) error {
		el := s.find(button)
		ok, err := el.Visible(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", button.Name, browser.ErrNotFound)
		}
		cctx, cancel := s.withTimeout(ctx, s.timeouts.Action)
		defer cancel()
		return el.Click(cctx)
	}
}

// DismissInterstitials absorbs the optional sign-in prompts, if enabled,
// and returns the names of the prompts that were dismissed.
func (s *Session) DismissInterstitials(ctx context.Context) []string {
	if !s.handleInterstitials {
		return nil
	}
	return s.runner.Absorb(ctx, s.interstitials()...)
}

// urlProbe adapts a URL pattern to flow.Probe.
type urlProbe struct {
	page    browser.Page
	pattern *regexp.Regexp
}

func (p urlProbe) WaitVisible(ctx context.Context, timeout time.Duration) error {
	return p.page.WaitForURL(ctx, p.pattern, timeout)
}

func (p urlProbe) Visible(context.Context) (bool, error) {
	return p.pattern.MatchString(p.page.CurrentURL()), nil
}
