package webmail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/flow"
)

// LoginState is the sign-in state machine:
// Unauthenticated -> CredentialsEntered -> {Authenticated, Blocked}.
type LoginState int

const (
	Unauthenticated LoginState = iota
	CredentialsEntered
	Authenticated
	Blocked
)

func (s LoginState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case CredentialsEntered:
		return "credentials-entered"
	case Authenticated:
		return "authenticated"
	case Blocked:
		return "blocked"
	default:
		return "invalid"
	}
}

// LoginResult is where a sign-in attempt ended.
type LoginResult struct {
	State         LoginState
	Outcome       flow.Outcome
	Interstitials []string
}

// LoginPage drives the sign-in form.
type LoginPage struct {
	s *Session
}

// Goto opens the webmail entry point and waits for the document to load.
func (l *LoginPage) Goto(ctx context.Context) error {
	if err := l.s.page.Navigate(ctx, l.s.urls.Base); err != nil {
		return fmt.Errorf("failed to open %s: %w", l.s.urls.Base, err)
	}
	if err := l.s.page.WaitForLoad(ctx); err != nil {
		return fmt.Errorf("failed waiting for sign-in page: %w", err)
	}
	return nil
}

// SubmitIdentifier enters the account identifier and moves to the next step.
func (l *LoginPage) SubmitIdentifier(ctx context.Context, username string) error {
	ctx, cancel := l.s.withTimeout(ctx, l.s.timeouts.Action)
	defer cancel()

	if err := l.s.find(l.s.sel.EmailField).Fill(ctx, username); err != nil {
		return fmt.Errorf("failed to fill identifier: %w", err)
	}
	if err := l.s.find(l.s.sel.IdentifierNext).Click(ctx); err != nil {
		return fmt.Errorf("failed to submit identifier: %w", err)
	}
	return nil
}

// AwaitPasswordPrompt races the password prompt against the blocked notice.
func (l *LoginPage) AwaitPasswordPrompt(ctx context.Context) flow.Result {
	return l.s.runner.Race(ctx, "login.identifier",
		flow.Detector{
			Name:    "password-prompt",
			Outcome: flow.Succeeded(),
			Probe:   l.s.find(l.s.sel.PasswordField),
			Timeout: l.s.timeouts.Identifier,
		},
		flow.Detector{
			Name:    "blocked",
			Outcome: flow.WasBlocked(),
			Probe:   l.s.find(l.s.sel.BlockedHeading),
			Timeout: l.s.timeouts.BlockedNotice,
		},
	)
}

// SubmitPassword enters the password and submits the credential pair.
func (l *LoginPage) SubmitPassword(ctx context.Context, password string) error {
	ctx, cancel := l.s.withTimeout(ctx, l.s.timeouts.Action)
	defer cancel()

	if err := l.s.find(l.s.sel.PasswordField).Fill(ctx, password); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}
	if err := l.s.find(l.s.sel.PasswordNext).Click(ctx); err != nil {
		return fmt.Errorf("failed to submit password: %w", err)
	}
	return nil
}

// AwaitInbox races the authenticated mailbox against the blocked notice.
func (l *LoginPage) AwaitInbox(ctx context.Context) flow.Result {
	return l.s.runner.Race(ctx, "login",
		flow.Detector{
			Name:    "inbox",
			Outcome: flow.Succeeded(),
			Probe:   l.s.find(l.s.sel.ComposeButton),
			Timeout: l.s.timeouts.Login,
		},
		flow.Detector{
			Name:    "blocked",
			Outcome: flow.WasBlocked(),
			Probe:   l.s.find(l.s.sel.BlockedHeading),
			Timeout: l.s.timeouts.Login,
		},
	)
}

// Login runs the whole sign-in flow. It returns a nil error only when the
// mailbox was reached. Blocked and unrecognized outcomes come back as an
// *OutcomeError alongside the state the flow stopped in. Nothing is retried;
// callers that want a retry call Login again.
func (l *LoginPage) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	res := LoginResult{State: Unauthenticated}
	log := l.s.logger.With(zap.String("flow", "login"))

	if err := l.Goto(ctx); err != nil {
		return res, err
	}
	if err := l.SubmitIdentifier(ctx, creds.Username); err != nil {
		return res, err
	}
	res.Interstitials = append(res.Interstitials, l.s.DismissInterstitials(ctx)...)

	prompt := l.AwaitPasswordPrompt(ctx)
	res.Outcome = prompt.Outcome
	switch prompt.Outcome.Kind {
	case flow.Success:
	case flow.Blocked:
		res.State = Blocked
		log.Warn("sign-in blocked after identifier")
		return res, outcomeError("login", prompt)
	default:
		return res, outcomeError("login.identifier", prompt)
	}

	if err := l.SubmitPassword(ctx, creds.Password); err != nil {
		return res, err
	}
	res.State = CredentialsEntered
	res.Interstitials = append(res.Interstitials, l.s.DismissInterstitials(ctx)...)

	inbox := l.AwaitInbox(ctx)
	res.Outcome = inbox.Outcome
	switch inbox.Outcome.Kind {
	case flow.Success:
		res.State = Authenticated
		log.Info("signed in", zap.Duration("race", inbox.Elapsed))
		return res, nil
	case flow.Blocked:
		res.State = Blocked
		log.Warn("sign-in blocked after password")
		return res, outcomeError("login", inbox)
	default:
		return res, outcomeError("login", inbox)
	}
}

// AttemptInvalid runs the sign-in flow with credentials that must be
// rejected. The password step runs only when the provider asks for it. A
// nil error means the rejection notice was shown; acceptance returns
// ErrAccepted and anything else an *OutcomeError.
func (l *LoginPage) AttemptInvalid(ctx context.Context, creds Credentials) (LoginResult, error) {
	res := LoginResult{State: Unauthenticated}

	if err := l.Goto(ctx); err != nil {
		return res, err
	}
	if err := l.SubmitIdentifier(ctx, creds.Username); err != nil {
		return res, err
	}
	res.Interstitials = append(res.Interstitials, l.s.DismissInterstitials(ctx)...)

	if ok, _ := l.s.find(l.s.sel.PasswordField).Visible(ctx); ok {
		if err := l.SubmitPassword(ctx, creds.Password); err != nil {
			return res, err
		}
		res.State = CredentialsEntered
		res.Interstitials = append(res.Interstitials, l.s.DismissInterstitials(ctx)...)
	}

	race := l.s.runner.Race(ctx, "login.invalid",
		flow.Detector{
			Name:    "blocked",
			Outcome: flow.WasBlocked(),
			Probe:   l.s.find(l.s.sel.BlockedHeading),
			Timeout: l.s.timeouts.BlockedNotice,
		},
		flow.Detector{
			Name:    "inbox",
			Outcome: flow.Succeeded(),
			Probe:   l.s.find(l.s.sel.ComposeButton),
			Timeout: l.s.timeouts.BlockedNotice,
		},
	)
	res.Outcome = race.Outcome
	switch race.Outcome.Kind {
	case flow.Blocked:
		res.State = Blocked
		return res, nil
	case flow.Success:
		res.State = Authenticated
		return res, ErrAccepted
	default:
		return res, outcomeError("login.invalid", race)
	}
}
