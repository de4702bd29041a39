package webmail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/browser/browsertest"
	"github.com/gotrs-io/mailflow/internal/flow"
)

var creds = Credentials{Username: "qa@example.com", Password: "s3cret"}

// signInPage scripts the identifier step; the caller decides what the
// identifier and password submissions lead to.
func signInPage() *browsertest.Page {
	return browsertest.New().
		Show("login.email").
		Show("login.identifier-next")
}

func showPassword(p *browsertest.Page) {
	p.Show("login.password").Show("login.password-next")
}

func TestLoginSucceeds(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", showPassword).
		OnClick("login.password-next", func(p *browsertest.Page) { p.Show("inbox.compose") })
	rec := &raceLog{}
	s := newTestSession(t, page, WithRecorder(rec))

	res, err := s.Login().Login(context.Background(), creds)

	require.NoError(t, err)
	assert.Equal(t, Authenticated, res.State)
	assert.True(t, res.Outcome.Is(flow.Success))
	assert.Empty(t, res.Interstitials)
	assert.Equal(t, creds.Username, page.Value("login.email"))
	assert.Equal(t, creds.Password, page.Value("login.password"))
	assert.Equal(t, flow.Succeeded(), rec.races["login.identifier"])
	assert.Equal(t, flow.Succeeded(), rec.races["login"])

	actions := page.Actions()
	require.NotEmpty(t, actions)
	assert.Equal(t, browsertest.Action{Kind: browsertest.ActionNavigate, Value: GmailURLs().Base}, actions[0])
}

func TestLoginBlockedAfterIdentifier(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", func(p *browsertest.Page) { p.Show("login.blocked") })
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, Blocked, res.State)
	assert.Equal(t, flow.WasBlocked(), res.Outcome)
	assert.Zero(t, page.Count(browsertest.ActionFill, "login.password"), "password must not be entered once blocked")
}

func TestLoginBlockedAfterPassword(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", showPassword).
		OnClick("login.password-next", func(p *browsertest.Page) { p.Show("login.blocked") })
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, Blocked, res.State)
}

func TestLoginPrefersInboxWhenBothShow(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", showPassword).
		OnClick("login.password-next", func(p *browsertest.Page) {
			p.Show("login.blocked").Show("inbox.compose")
		})
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	// The inbox detector is listed first, so a simultaneous match is success.
	require.NoError(t, err)
	assert.Equal(t, Authenticated, res.State)
}

func TestLoginUnknownWhenNothingHappens(t *testing.T) {
	page := signInPage()
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOutcome)
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Equal(t, Unauthenticated, res.State)
	assert.Equal(t, flow.Undetermined(flow.CauseTimeout), res.Outcome)
}

func TestLoginCutShortByDeadline(t *testing.T) {
	s := newTestSession(t, signInPage())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := s.Login().Login(ctx, creds)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnknownOutcome)
	assert.Equal(t, flow.Undetermined(flow.CauseCancelled), res.Outcome)
}

func TestLoginUnknownAfterPassword(t *testing.T) {
	page := signInPage().OnClick("login.identifier-next", showPassword)
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	assert.ErrorIs(t, err, ErrUnknownOutcome)
	assert.Equal(t, CredentialsEntered, res.State)
}

func TestLoginDismissesInterstitials(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", func(p *browsertest.Page) {
			p.Show("interstitial.passkey").Show("interstitial.passkey.not-now")
		}).
		OnClick("interstitial.passkey.not-now", func(p *browsertest.Page) {
			p.Hide("interstitial.passkey").Hide("interstitial.passkey.not-now")
			showPassword(p)
		}).
		OnClick("login.password-next", func(p *browsertest.Page) {
			p.Show("interstitial.recovery").Show("interstitial.recovery.cancel")
		}).
		OnClick("interstitial.recovery.cancel", func(p *browsertest.Page) {
			p.Hide("interstitial.recovery").Show("inbox.compose")
		})
	rec := &raceLog{}
	s := newTestSession(t, page, WithRecorder(rec))

	res, err := s.Login().Login(context.Background(), creds)

	require.NoError(t, err)
	assert.Equal(t, Authenticated, res.State)
	assert.Equal(t, []string{"passkey", "recovery"}, res.Interstitials)
	assert.Equal(t, []string{"passkey", "recovery"}, rec.interstitials)
}

func TestLoginIgnoresPromptWithoutDismissButton(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", func(p *browsertest.Page) {
			p.Show("interstitial.passkey")
			showPassword(p)
		}).
		OnClick("login.password-next", func(p *browsertest.Page) { p.Show("inbox.compose") })
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	require.NoError(t, err)
	assert.Empty(t, res.Interstitials)
}

func TestLoginWithInterstitialsDisabled(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", func(p *browsertest.Page) {
			p.Show("interstitial.passkey").Show("interstitial.passkey.not-now")
			showPassword(p)
		}).
		OnClick("login.password-next", func(p *browsertest.Page) { p.Show("inbox.compose") })
	s := newTestSession(t, page, WithInterstitials(false))

	res, err := s.Login().Login(context.Background(), creds)

	require.NoError(t, err)
	assert.Empty(t, res.Interstitials)
	assert.Zero(t, page.Count(browsertest.ActionClick, "interstitial.passkey.not-now"))
}

func TestLoginSurfacesNavigationFailure(t *testing.T) {
	page := signInPage().FailNavigate(browser.ErrTimeout)
	s := newTestSession(t, page)

	res, err := s.Login().Login(context.Background(), creds)

	assert.ErrorIs(t, err, browser.ErrTimeout)
	_, classified := OutcomeOf(err)
	assert.False(t, classified)
	assert.Equal(t, Unauthenticated, res.State)
}

func TestLoginFailsWhenIdentifierFieldMissing(t *testing.T) {
	page := browsertest.New()
	s := newTestSession(t, page)

	_, err := s.Login().Login(context.Background(), creds)

	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func TestAttemptInvalidRejectedAtIdentifier(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", func(p *browsertest.Page) { p.Show("login.blocked") })
	s := newTestSession(t, page)

	res, err := s.Login().AttemptInvalid(context.Background(), Credentials{Username: "nobody@example.com", Password: "x"})

	require.NoError(t, err)
	assert.Equal(t, Blocked, res.State)
	assert.Zero(t, page.Count(browsertest.ActionFill, "login.password"))
}

func TestAttemptInvalidRejectedAfterPassword(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", showPassword).
		OnClick("login.password-next", func(p *browsertest.Page) { p.ShowAfter("login.blocked", 10*time.Millisecond) })
	s := newTestSession(t, page)

	res, err := s.Login().AttemptInvalid(context.Background(), Credentials{Username: "qa@example.com", Password: "wrong"})

	require.NoError(t, err)
	assert.Equal(t, Blocked, res.State)
	assert.Equal(t, "wrong", page.Value("login.password"))
}

func TestAttemptInvalidAccepted(t *testing.T) {
	page := signInPage().
		OnClick("login.identifier-next", showPassword).
		OnClick("login.password-next", func(p *browsertest.Page) { p.Show("inbox.compose") })
	s := newTestSession(t, page)

	res, err := s.Login().AttemptInvalid(context.Background(), creds)

	assert.ErrorIs(t, err, ErrAccepted)
	assert.Equal(t, Authenticated, res.State)
}

func TestAttemptInvalidWithoutRejectionNotice(t *testing.T) {
	s := newTestSession(t, signInPage())

	_, err := s.Login().AttemptInvalid(context.Background(), creds)

	assert.ErrorIs(t, err, ErrUnknownOutcome)
}
