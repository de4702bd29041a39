package webmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/flow"
)

// SentCheck is what VerifyInSent found.
type SentCheck struct {
	Subject string
	// Detector names which locator found the message: "row" or "subject".
	Detector string
	// RecipientMatched is best effort; a false value is not a failure.
	RecipientMatched bool
}

// InboxPage drives the mailbox views of an authenticated session.
type InboxPage struct {
	s *Session
}

// GoToInbox opens the Inbox folder and waits for the mailbox to render.
func (i *InboxPage) GoToInbox(ctx context.Context) error {
	actx, cancel := i.s.withTimeout(ctx, i.s.timeouts.Action)
	defer cancel()
	if err := i.s.find(i.s.sel.InboxLink).Click(actx); err != nil {
		return fmt.Errorf("failed to open inbox: %w", err)
	}
	if err := i.s.find(i.s.sel.ComposeButton).WaitVisible(ctx, i.s.timeouts.Action); err != nil {
		return fmt.Errorf("inbox did not render: %w", err)
	}
	return nil
}

// GoToSent opens the Sent folder.
func (i *InboxPage) GoToSent(ctx context.Context) error {
	actx, cancel := i.s.withTimeout(ctx, i.s.timeouts.Action)
	defer cancel()
	if err := i.s.find(i.s.sel.SentLink).Click(actx); err != nil {
		return fmt.Errorf("failed to open sent: %w", err)
	}
	return nil
}

// VerifyInSent opens the Sent folder and waits up to timeout for a message
// with subject; a zero timeout uses the session's sent lookup timeout. The
// row locator and a plain subject text match are raced and either one
// proves the message is there. When to is set, the first recipient is
// looked for inside the row, without failing the check if it is missing.
func (i *InboxPage) VerifyInSent(ctx context.Context, subject, to string, timeout time.Duration) (SentCheck, error) {
	check := SentCheck{Subject: subject}
	if timeout <= 0 {
		timeout = i.s.timeouts.SentLookup
	}
	if err := i.GoToSent(ctx); err != nil {
		return check, err
	}

	res := i.s.runner.Race(ctx, "verify-sent",
		flow.Detector{
			Name:    "row",
			Outcome: flow.Succeeded(),
			Probe:   i.s.find(SentRow(subject)),
			Timeout: timeout,
		},
		flow.Detector{
			Name:    "subject",
			Outcome: flow.Succeeded(),
			Probe:   i.s.find(SentSubject(subject)),
			Timeout: timeout,
		},
	)
	if !res.Outcome.Is(flow.Success) {
		return check, fmt.Errorf("message %q not found in sent: %w", subject,
			outcomeError("verify-sent", res))
	}
	check.Detector = res.Detector

	if first := firstRecipient(to); first != "" {
		err := i.s.find(RowRecipient(subject, first)).WaitVisible(ctx, i.s.timeouts.RecipientCheck)
		check.RecipientMatched = err == nil
		if !check.RecipientMatched {
			i.s.logger.Debug("recipient not shown in sent row",
				zap.String("subject", subject), zap.String("recipient", first))
		}
	}
	return check, nil
}

func firstRecipient(to string) string {
	first, _, _ := strings.Cut(to, ",")
	return strings.TrimSpace(first)
}

// OpenFirstMessageAndBack opens the newest conversation, waits for the
// thread view and returns to the inbox.
func (i *InboxPage) OpenFirstMessageAndBack(ctx context.Context) error {
	t := i.s.timeouts
	if err := i.s.find(i.s.sel.ComposeButton).WaitVisible(ctx, t.Action); err != nil {
		return fmt.Errorf("inbox did not render: %w", err)
	}
	row := i.s.find(i.s.sel.FirstConversation)
	if err := row.WaitVisible(ctx, t.Action); err != nil {
		return fmt.Errorf("inbox has no conversations: %w", err)
	}

	actx, cancel := i.s.withTimeout(ctx, t.Action)
	defer cancel()
	if err := row.Click(actx); err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}
	if err := i.s.find(i.s.sel.ThreadToolbar).WaitVisible(ctx, t.Action); err != nil {
		return fmt.Errorf("conversation did not open: %w", err)
	}

	back := i.s.find(i.s.sel.BackToInbox)
	if ok, _ := back.Visible(ctx); ok {
		if err := back.Click(actx); err != nil {
			return fmt.Errorf("failed to return to inbox: %w", err)
		}
	} else if err := i.s.page.Navigate(ctx, i.s.urls.Inbox); err != nil {
		return fmt.Errorf("failed to return to inbox: %w", err)
	}

	if err := i.s.find(i.s.sel.ComposeButton).WaitVisible(ctx, t.Action); err != nil {
		return fmt.Errorf("inbox did not render: %w", err)
	}
	return nil
}

// Logout signs out through the account menu, falling back to the logout URL
// when the menu cannot be used, and waits until the sign-in page is back.
func (i *InboxPage) Logout(ctx context.Context) error {
	t := i.s.timeouts
	if err := i.signOutViaMenu(ctx); err != nil {
		i.s.logger.Info("account menu sign-out failed, using logout URL", zap.Error(err))
		if err := i.s.page.Navigate(ctx, i.s.urls.Logout); err != nil {
			return fmt.Errorf("failed to open logout URL: %w", err)
		}
	}

	res := i.s.runner.Race(ctx, "logout",
		flow.Detector{
			Name:    "signin-url",
			Outcome: flow.Succeeded(),
			Probe:   urlProbe{page: i.s.page, pattern: signedOutURLRx},
			Timeout: t.SignOut,
		},
		flow.Detector{
			Name:    "signin-form",
			Outcome: flow.Succeeded(),
			Probe:   i.s.find(i.s.sel.EmailField),
			Timeout: t.SignOut,
		},
	)
	if !res.Outcome.Is(flow.Success) {
		return outcomeError("logout", res)
	}
	return nil
}

func (i *InboxPage) signOutViaMenu(ctx context.Context) error {
	ctx, cancel := i.s.withTimeout(ctx, i.s.timeouts.Action)
	defer cancel()

	if err := i.s.find(i.s.sel.AccountButton).Click(ctx); err != nil {
		return err
	}
	signOut := i.s.find(i.s.sel.SignOut)
	if err := signOut.WaitVisible(ctx, i.s.timeouts.SignOutMenu); err != nil {
		return err
	}
	if err := signOut.ScrollIntoView(ctx); err != nil {
		return err
	}
	return signOut.Click(ctx)
}
