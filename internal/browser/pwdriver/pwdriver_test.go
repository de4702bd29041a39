package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/config"
	"github.com/gotrs-io/mailflow/internal/webmail"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Browser.Engine = "firefox"
	cfg.Browser.Headless = true
	cfg.Browser.SlowMo = 250 * time.Millisecond
	cfg.Browser.Viewport.Width = 1280
	cfg.Browser.Viewport.Height = 800
	cfg.Browser.ArtifactsDir = "out"
	cfg.Browser.Screenshots = true
	cfg.Timeouts.Action = 20 * time.Second

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "firefox", opts.Engine)
	assert.True(t, opts.Headless)
	assert.Equal(t, 250*time.Millisecond, opts.SlowMo)
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, 800, opts.ViewportHeight)
	assert.Equal(t, "out", opts.ArtifactsDir)
	assert.True(t, opts.Screenshots)
	assert.False(t, opts.Videos)
	assert.Equal(t, 20*time.Second, opts.ActionTimeout)
}

func TestBrowserTypeRejectsUnknownEngine(t *testing.T) {
	_, err := browserType(&playwright.Playwright{}, "netscape")
	assert.ErrorContains(t, err, `unknown browser engine "netscape"`)
}

func TestArtifactPath(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 30, 5, 0, time.UTC)

	tests := []struct {
		name string
		want string
	}{
		{"login-valid", "login-valid_20261015-093005.png"},
		{"compose verify/sent", "compose-verify-sent_20261015-093005.png"},
		{"///", "page_20261015-093005.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := artifactPath("artifacts", "screenshots", tt.name, at, ".png")
			assert.Equal(t, filepath.Join("artifacts", "screenshots", tt.want), got)
		})
	}
}

func TestMsFloat(t *testing.T) {
	assert.Equal(t, 1500.0, *msFloat(1500*time.Millisecond))
	assert.Equal(t, 1.0, *msFloat(0), "zero would disable the playwright timeout")
	assert.Equal(t, 1.0, *msFloat(-time.Second))
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr("click", nil))

	err := mapErr("compose", fmt.Errorf("locator: %w", playwright.ErrTimeout))
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.True(t, browser.IsTimeout(err))

	other := errors.New("target closed")
	err = mapErr("compose", other)
	assert.ErrorIs(t, err, other)
	assert.False(t, browser.IsTimeout(err))
}

const livePage = `<!doctype html>
<html><body>
<h1>Inbox</h1>
<div role="dialog" aria-label="New Message">
  <label>To recipients <input id="to"></label>
  <div role="button" aria-label="Send ‪(Ctrl-Enter)‬">Send</div>
</div>
<table><tr class="zA"><td><span class="bog">Some older message</span></td><td>bob@example.com</td></tr></table>
<div role="alert" style="display:none">Please specify at least one recipient.</div>
</body></html>`

// TestLivePage drives a real browser. It runs only with MAILFLOW_LIVE=1 and
// playwright browsers installed.
func TestLivePage(t *testing.T) {
	if os.Getenv("MAILFLOW_LIVE") != "1" {
		t.Skip("set MAILFLOW_LIVE=1 to run against a real browser")
	}

	l, err := Launch(Options{
		Headless:     true,
		ArtifactsDir: t.TempDir(),
		Screenshots:  true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, closePage, err := l.NewPage(ctx, "live")
	require.NoError(t, err)

	require.NoError(t, page.Navigate(ctx, "data:text/html,"+url.PathEscape(livePage)))
	require.NoError(t, page.WaitForLoad(ctx))

	heading := browser.Target{Name: "heading", Strategies: []browser.By{
		{Strategy: browser.StrategyRole, Role: "heading", Name: "Inbox", Level: 1},
	}}
	assert.NoError(t, page.Find(heading).WaitVisible(ctx, time.Second))

	dialog := browser.Target{Name: "compose", Strategies: []browser.By{
		browser.RoleMatching("dialog", regexp.MustCompile(`(?i)new message`)),
	}}
	to := browser.Target{Name: "to", Within: &dialog, Strategies: []browser.By{
		browser.CSS("#missing"),
		browser.Label("To recipients"),
	}}
	require.NoError(t, page.Find(to).Fill(ctx, "someone@example.com"))

	send := browser.Target{Name: "send", Within: &dialog, Strategies: []browser.By{
		browser.RoleMatching("button", regexp.MustCompile(`^Send`)),
	}}
	visible, err := page.Find(send).Visible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	alert := browser.Target{Name: "alert", Strategies: []browser.By{
		browser.Text(regexp.MustCompile(`specify at least one recipient`)),
	}}
	err = page.Find(alert).WaitVisible(ctx, 200*time.Millisecond)
	assert.True(t, browser.IsTimeout(err), "hidden alert should time out, got %v", err)

	assert.NoError(t, page.Find(webmail.SentRow("Some older message")).WaitVisible(ctx, time.Second))
	err = page.Find(webmail.SentRow("Playwright Test A [deadbeef]")).WaitVisible(ctx, 200*time.Millisecond)
	assert.True(t, browser.IsTimeout(err), "a row with another subject must not match, got %v", err)
	assert.NoError(t, page.Find(webmail.RowRecipient("Some older message", "bob@example.com")).WaitVisible(ctx, time.Second))

	err = page.Find(browser.Target{Name: "nothing", Strategies: []browser.By{browser.CSS("#nothing")}}).
		Click(withTimeout(t, ctx, 200*time.Millisecond))
	assert.ErrorIs(t, err, browser.ErrNotFound)

	require.NoError(t, closePage(true))
	shots, err := filepath.Glob(filepath.Join(l.opts.ArtifactsDir, "screenshots", "live_*.png"))
	require.NoError(t, err)
	assert.Len(t, shots, 1)
}

func withTimeout(t *testing.T, parent context.Context, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(parent, d)
	t.Cleanup(cancel)
	return ctx
}
