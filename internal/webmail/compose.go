package webmail

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/flow"
)

// MissingRecipient is the validation reason reported when a message is sent
// without a recipient.
const MissingRecipient = "missing-recipient"

// SendState is the compose state machine:
// Draft -> Submitted -> {Sent, ValidationFailed, Unknown}.
type SendState int

const (
	Draft SendState = iota
	Submitted
	Sent
	ValidationFailed
	Unknown
)

func (s SendState) String() string {
	switch s {
	case Draft:
		return "draft"
	case Submitted:
		return "submitted"
	case Sent:
		return "sent"
	case ValidationFailed:
		return "validation-failed"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// SendResult is where a send attempt ended.
type SendResult struct {
	State   SendState
	Outcome flow.Outcome
}

// ComposeDialog drives the compose window.
type ComposeDialog struct {
	s *Session
}

// Open clicks Compose and waits for the dialog.
func (c *ComposeDialog) Open(ctx context.Context) error {
	actx, cancel := c.s.withTimeout(ctx, c.s.timeouts.Action)
	defer cancel()
	if err := c.s.find(c.s.sel.ComposeButton).Click(actx); err != nil {
		return fmt.Errorf("failed to click compose: %w", err)
	}
	if err := c.s.find(c.s.sel.ComposeDialog).WaitVisible(ctx, c.s.timeouts.ComposeOpen); err != nil {
		return fmt.Errorf("compose dialog did not open: %w", err)
	}
	return nil
}

// FillTo enters a recipient and commits it as a chip. The recipients combobox
// is preferred; older skins expose a plain To field instead.
func (c *ComposeDialog) FillTo(ctx context.Context, to string) error {
	ctx, cancel := c.s.withTimeout(ctx, c.s.timeouts.Action)
	defer cancel()

	combo := c.s.find(c.s.sel.ToRecipients)
	if combo.WaitVisible(ctx, c.s.timeouts.Interstitial) == nil {
		if err := combo.Click(ctx); err != nil {
			return fmt.Errorf("failed to focus recipients: %w", err)
		}
		if err := combo.Fill(ctx, to); err != nil {
			if err := c.s.page.TypeText(ctx, to); err != nil {
				return fmt.Errorf("failed to type recipient: %w", err)
			}
		}
		return c.s.page.PressKey(ctx, "Enter")
	}

	c.s.logger.Debug("recipients combobox not found, using To field")
	field := c.s.find(c.s.sel.ToFallback)
	if err := field.Click(ctx); err != nil {
		return fmt.Errorf("failed to focus To field: %w", err)
	}
	if err := field.Type(ctx, to); err != nil {
		return fmt.Errorf("failed to type recipient: %w", err)
	}
	return c.s.page.PressKey(ctx, "Enter")
}

// FillSubject types the subject line.
func (c *ComposeDialog) FillSubject(ctx context.Context, subject string) error {
	return c.typeInto(ctx, "subject", c.s.find(c.s.sel.Subject), subject)
}

// FillBody types the message body.
func (c *ComposeDialog) FillBody(ctx context.Context, body string) error {
	return c.typeInto(ctx, "body", c.s.find(c.s.sel.Body), body)
}

func (c *ComposeDialog) typeInto(ctx context.Context, field string, el browser.Element, text string) error {
	ctx, cancel := c.s.withTimeout(ctx, c.s.timeouts.Action)
	defer cancel()
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("failed to focus %s: %w", field, err)
	}
	if err := el.Type(ctx, text); err != nil {
		return fmt.Errorf("failed to type %s: %w", field, err)
	}
	return nil
}

// Compose writes every non-empty field of msg into the open dialog.
func (c *ComposeDialog) Compose(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) != "" {
		if err := c.FillTo(ctx, msg.To); err != nil {
			return err
		}
	}
	if msg.Subject != "" {
		if err := c.FillSubject(ctx, msg.Subject); err != nil {
			return err
		}
	}
	if msg.Body != "" {
		if err := c.FillBody(ctx, msg.Body); err != nil {
			return err
		}
	}
	return nil
}

// Send clicks Send and classifies the result. A validation failure is an
// expected outcome and returns a nil error after the dialog is cleaned up;
// an unrecognized outcome returns an *OutcomeError.
func (c *ComposeDialog) Send(ctx context.Context) (SendResult, error) {
	res := SendResult{State: Draft}

	actx, cancel := c.s.withTimeout(ctx, c.s.timeouts.Action)
	err := c.s.find(c.s.sel.SendButton).Click(actx)
	cancel()
	if err != nil {
		return res, fmt.Errorf("failed to click send: %w", err)
	}
	res.State = Submitted

	race := c.s.runner.Race(ctx, "send",
		flow.Detector{
			Name:    "sent-toast",
			Outcome: flow.Succeeded(),
			Probe:   c.s.find(c.s.sel.SentToast),
			Timeout: c.s.timeouts.SendSuccess,
		},
		flow.Detector{
			Name:    MissingRecipient,
			Outcome: flow.Invalid(MissingRecipient),
			Probe:   c.s.find(c.s.sel.MissingRecipient),
			Timeout: c.s.timeouts.SendValidation,
		},
	)
	res.Outcome = race.Outcome

	switch race.Outcome.Kind {
	case flow.Success:
		res.State = Sent
		return res, nil
	case flow.ValidationError:
		res.State = ValidationFailed
		c.s.logger.Info("send rejected", zap.String("reason", race.Outcome.Reason))
		c.Discard(ctx)
		return res, nil
	default:
		res.State = Unknown
		return res, outcomeError("send", race)
	}
}

// Send opens the dialog, fills msg and sends it.
func (s *Session) Send(ctx context.Context, msg Message) (SendResult, error) {
	c := s.Compose()
	if err := c.Open(ctx); err != nil {
		return SendResult{State: Draft}, err
	}
	if err := c.Compose(ctx, msg); err != nil {
		return SendResult{State: Draft}, err
	}
	return c.Send(ctx)
}

// Discard acknowledges any error dialog and closes the draft: Discard draft
// if offered, otherwise Save & close, otherwise Escape. Every step is best
// effort and bounded by the cleanup timeout.
func (c *ComposeDialog) Discard(ctx context.Context) {
	ctx, cancel := c.s.withTimeout(ctx, c.s.timeouts.Cleanup)
	defer cancel()

	if ok, _ := c.s.find(c.s.sel.ErrorOK).Visible(ctx); ok {
		if err := c.s.find(c.s.sel.ErrorOK).Click(ctx); err != nil {
			c.s.logger.Debug("failed to acknowledge error dialog", zap.Error(err))
		}
	}

	discard := c.s.find(c.s.sel.DiscardDraft)
	if ok, _ := discard.Visible(ctx); ok {
		if err := discard.Click(ctx); err == nil {
			return
		}
	}
	saveClose := c.s.find(c.s.sel.SaveAndClose)
	if ok, _ := saveClose.Visible(ctx); ok {
		if err := saveClose.Click(ctx); err == nil {
			return
		}
	}
	if err := c.s.page.PressKey(ctx, "Escape"); err != nil {
		c.s.logger.Debug("failed to close compose dialog", zap.Error(err))
	}
}
