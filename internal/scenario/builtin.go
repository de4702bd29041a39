package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/webmail"
)

// Built-in scenario names.
const (
	LoginValid              = "login-valid"
	ComposeVerifySent       = "compose-verify-sent"
	LoginInvalid            = "login-invalid"
	ComposeMissingRecipient = "compose-missing-recipient"
)

// The negative compose check always uses this message.
var missingRecipientMessage = webmail.Message{
	Subject: "Missing recipient",
	Body:    "This should not send",
}

type definition struct {
	name             string
	timeout          time.Duration
	needsCredentials bool
	run              func(ctx context.Context, env *Env) error
}

func (d *definition) Name() string           { return d.name }
func (d *definition) Timeout() time.Duration { return d.timeout }

func (d *definition) Run(ctx context.Context, env *Env) error {
	return d.run(ctx, env)
}

func (d *definition) Check(data Data) error {
	if d.needsCredentials && !data.Credentials.Present() {
		return Skip("credentials not configured")
	}
	return nil
}

// Builtins returns the standard scenarios in their canonical order.
func Builtins() []Scenario {
	return []Scenario{
		&definition{name: LoginValid, needsCredentials: true, run: runLoginValid},
		&definition{name: ComposeVerifySent, needsCredentials: true, run: runComposeVerifySent},
		&definition{name: LoginInvalid, run: runLoginInvalid},
		&definition{name: ComposeMissingRecipient, needsCredentials: true, run: runComposeMissingRecipient},
	}
}

// DefaultRegistry returns a registry holding the built-in scenarios.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range Builtins() {
		// Names are distinct constants.
		_ = r.Register(s)
	}
	return r
}

func signIn(ctx context.Context, env *Env) error {
	res, err := env.Session.Login().Login(ctx, env.Credentials)
	env.Note("login.outcome", res.Outcome.String())
	if len(res.Interstitials) > 0 {
		env.Note("login.interstitials", strings.Join(res.Interstitials, ","))
	}
	if err != nil {
		return fmt.Errorf("login ended in state %s: %w", res.State, err)
	}
	return nil
}

// runLoginValid signs in and opens the newest conversation. An empty or
// unusual inbox only leaves a note; the sign-in outcome decides the result.
func runLoginValid(ctx context.Context, env *Env) error {
	if err := signIn(ctx, env); err != nil {
		return err
	}
	if err := env.Session.Inbox().OpenFirstMessageAndBack(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env.Logger.Warn("inbox smoke check failed", zap.Error(err))
		env.Note("inbox.smoke", err.Error())
		return nil
	}
	env.Note("inbox.smoke", "ok")
	return nil
}

func runComposeVerifySent(ctx context.Context, env *Env) error {
	if len(env.Messages) == 0 {
		return Skip("no messages to send")
	}
	if err := signIn(ctx, env); err != nil {
		return err
	}

	inbox := env.Session.Inbox()
	for i, msg := range env.Messages {
		n := strconv.Itoa(i + 1)
		log := env.Logger.With(zap.String("subject", msg.Subject))

		res, err := env.Session.Send(ctx, msg)
		env.Note("message."+n+".send", res.State.String())
		if err != nil {
			return fmt.Errorf("message %s: send: %w", n, err)
		}
		if res.State != webmail.Sent {
			return fmt.Errorf("message %s: send ended in %s (%s)", n, res.State, res.Outcome)
		}

		check, err := inbox.VerifyInSent(ctx, msg.Subject, msg.To, 0)
		if err != nil {
			return fmt.Errorf("message %s: %w", n, err)
		}
		env.Note("message."+n+".sent-folder", check.Detector)
		if !check.RecipientMatched {
			log.Debug("recipient not confirmed in sent folder")
		}

		if env.Verifier != nil {
			found, err := env.Verifier.VerifySent(ctx, msg)
			if err != nil {
				return fmt.Errorf("message %s: imap: %w", n, err)
			}
			env.Note("message."+n+".imap-uid", strconv.FormatUint(uint64(found.UID), 10))
			log.Info("message confirmed over imap", zap.Uint32("uid", found.UID), zap.Int("attempts", found.Attempts))
		}

		if err := inbox.GoToInbox(ctx); err != nil {
			return fmt.Errorf("message %s: %w", n, err)
		}
	}
	return inbox.Logout(ctx)
}

func runLoginInvalid(ctx context.Context, env *Env) error {
	res, err := env.Session.Login().AttemptInvalid(ctx, env.Invalid)
	env.Note("login.outcome", res.Outcome.String())
	if errors.Is(err, webmail.ErrAccepted) {
		return fmt.Errorf("invalid credentials for %s: %w", env.Invalid.Username, err)
	}
	if err != nil {
		return err
	}
	if res.State != webmail.Blocked {
		return fmt.Errorf("sign-in ended in %s, want %s", res.State, webmail.Blocked)
	}
	return nil
}

// runComposeMissingRecipient expects the send to be rejected. An unknown
// outcome is a failure like anywhere else.
func runComposeMissingRecipient(ctx context.Context, env *Env) error {
	if err := signIn(ctx, env); err != nil {
		return err
	}

	res, err := env.Session.Send(ctx, missingRecipientMessage)
	env.Note("send.outcome", res.Outcome.String())
	if err != nil {
		return fmt.Errorf("send without recipient: %w", err)
	}
	if res.State != webmail.ValidationFailed || res.Outcome.Reason != webmail.MissingRecipient {
		return fmt.Errorf("send without recipient ended in %s (%s), want %s", res.State, res.Outcome, webmail.ValidationFailed)
	}

	// The rejected draft must not linger: a new compose window has to open
	// and close again.
	compose := env.Session.Compose()
	if err := compose.Open(ctx); err != nil {
		return fmt.Errorf("compose did not reopen after rejection: %w", err)
	}
	compose.Discard(ctx)

	return env.Session.Inbox().Logout(ctx)
}
