// Package pwdriver implements browser.Page on top of playwright-go.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/gotrs-io/mailflow/internal/browser"
)

// Page adapts a playwright page. Action timeouts come from the context
// deadline, falling back to the launcher's action timeout.
type Page struct {
	page          playwright.Page
	context       playwright.BrowserContext
	name          string
	actionTimeout time.Duration
}

var _ browser.Page = (*Page)(nil)

func (p *Page) timeout(ctx context.Context) *float64 {
	d := p.actionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
	}
	return msFloat(d)
}

func msFloat(d time.Duration) *float64 {
	// Playwright treats 0 as "no timeout".
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// mapErr turns playwright timeouts into browser.ErrTimeout.
func mapErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w", what, browser.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   p.timeout(ctx),
	})
	return mapErr("navigate "+url, err)
}

// WaitForLoad implements browser.Page.
func (p *Page) WaitForLoad(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr("load", p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: p.timeout(ctx),
	}))
}

// Find implements browser.Page.
func (p *Page) Find(target browser.Target) browser.Element {
	return &Element{page: p, target: target}
}

// PressKey implements browser.Page.
func (p *Page) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr("press "+key, p.page.Keyboard().Press(key))
}

// TypeText implements browser.Page.
func (p *Page) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr("type", p.page.Keyboard().Type(text))
}

// CurrentURL implements browser.Page.
func (p *Page) CurrentURL() string {
	return p.page.URL()
}

// WaitForURL implements browser.Page.
func (p *Page) WaitForURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	return mapErr(fmt.Sprintf("url %s", pattern), p.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: msFloat(timeout),
	}))
}

// SaveStorageState writes the cookies and local storage of the page's
// context to path, so later runs can start signed in.
func (p *Page) SaveStorageState(path string) error {
	if _, err := p.context.StorageState(path); err != nil {
		return fmt.Errorf("failed to save storage state: %w", err)
	}
	return nil
}
