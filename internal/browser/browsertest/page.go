// Package browsertest provides a scripted in-memory browser.Page for tests.
//
// Elements are addressed by Target.Name. A test decides when an element
// becomes visible and what happens when it is clicked, filled or when a key
// is pressed, which is enough to play back the login and compose flows
// without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/gotrs-io/mailflow/internal/browser"
)

const pollInterval = 2 * time.Millisecond

// ActionKind names a recorded interaction.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionLoad     ActionKind = "load"
	ActionClick    ActionKind = "click"
	ActionFill     ActionKind = "fill"
	ActionType     ActionKind = "type"
	ActionPress    ActionKind = "press"
	ActionKeyboard ActionKind = "keyboard"
	ActionScroll   ActionKind = "scroll"
)

// Action is one recorded interaction with the page.
type Action struct {
	Kind   ActionKind
	Target string
	Value  string
}

type element struct {
	visibleAt time.Time
	hiddenAt  time.Time
	value     string
	clickErr  error
	fillErr   error
	onClick   []func(*Page)
	onFill    []func(*Page, string)
}

func (e *element) visible(now time.Time) bool {
	if e.visibleAt.IsZero() || now.Before(e.visibleAt) {
		return false
	}
	return e.hiddenAt.IsZero() || now.Before(e.hiddenAt) || e.hiddenAt.Before(e.visibleAt)
}

// Page is a fake browser.Page. The zero value is not usable; call New.
type Page struct {
	mu sync.Mutex

	url        string
	elements   map[string]*element
	actions    []Action
	keys       map[string][]func(*Page)
	onNavigate []func(*Page, string)

	navigateErr error
	loadErr     error

	// ActionTimeout bounds how long Click/Fill/Type wait for an element to
	// become visible before failing with browser.ErrNotFound.
	ActionTimeout time.Duration
}

// New returns an empty page at about:blank.
func New() *Page {
	return &Page{
		url:           "about:blank",
		elements:      make(map[string]*element),
		keys:          make(map[string][]func(*Page)),
		ActionTimeout: 50 * time.Millisecond,
	}
}

func (p *Page) el(name string) *element {
	e, ok := p.elements[name]
	if !ok {
		e = &element{}
		p.elements[name] = e
	}
	return e
}

// Show makes the named element visible now.
func (p *Page) Show(name string) *Page {
	return p.ShowAfter(name, 0)
}

// ShowAfter makes the named element visible after d.
func (p *Page) ShowAfter(name string, d time.Duration) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.el(name)
	e.visibleAt = time.Now().Add(d)
	e.hiddenAt = time.Time{}
	return p
}

// Hide makes the named element invisible now.
func (p *Page) Hide(name string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.el(name)
	e.visibleAt = time.Time{}
	e.hiddenAt = time.Now()
	return p
}

// HideAfter makes an already scheduled element disappear after d.
func (p *Page) HideAfter(name string, d time.Duration) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.el(name).hiddenAt = time.Now().Add(d)
	return p
}

// OnClick registers a reaction to clicks on the named element.
func (p *Page) OnClick(name string, fn func(*Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.el(name)
	e.onClick = append(e.onClick, fn)
	return p
}

// OnFill registers a reaction to Fill or Type on the named element.
func (p *Page) OnFill(name string, fn func(*Page, string)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.el(name)
	e.onFill = append(e.onFill, fn)
	return p
}

// OnKey registers a reaction to a key press.
func (p *Page) OnKey(key string, fn func(*Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[key] = append(p.keys[key], fn)
	return p
}

// OnNavigate registers a reaction to navigation.
func (p *Page) OnNavigate(fn func(*Page, string)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = append(p.onNavigate, fn)
	return p
}

// FailClick makes clicks on the named element fail with err.
func (p *Page) FailClick(name string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.el(name).clickErr = err
	return p
}

// FailFill makes Fill on the named element fail with err. Type still works.
func (p *Page) FailFill(name string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.el(name).fillErr = err
	return p
}

// FailNavigate makes Navigate fail with err.
func (p *Page) FailNavigate(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigateErr = err
	return p
}

// FailLoad makes WaitForLoad fail with err.
func (p *Page) FailLoad(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadErr = err
	return p
}

// SetURL moves the page to url without recording a navigation.
func (p *Page) SetURL(url string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

// IsVisible reports whether the named element is visible now.
func (p *Page) IsVisible(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[name]
	return ok && e.visible(time.Now())
}

// Value returns the text last filled or typed into the named element.
func (p *Page) Value(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.elements[name]; ok {
		return e.value
	}
	return ""
}

// Clear empties the values of the named elements, like a form reset.
func (p *Page) Clear(names ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range names {
		if e, ok := p.elements[name]; ok {
			e.value = ""
		}
	}
	return p
}

// Actions returns a copy of every recorded interaction in order.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// Count returns how many actions of kind were recorded against target.
func (p *Page) Count(kind ActionKind, target string) int {
	n := 0
	for _, a := range p.Actions() {
		if a.Kind == kind && a.Target == target {
			n++
		}
	}
	return n
}

// Reset forgets recorded actions but keeps element state and reactions.
func (p *Page) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = nil
}

func (p *Page) record(a Action) {
	p.actions = append(p.actions, a)
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record(Action{Kind: ActionNavigate, Value: url})
	if p.navigateErr != nil {
		err := p.navigateErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	hooks := append([]func(*Page, string){}, p.onNavigate...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p, url)
	}
	return nil
}

// WaitForLoad implements browser.Page.
func (p *Page) WaitForLoad(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Action{Kind: ActionLoad})
	return p.loadErr
}

// Find implements browser.Page.
func (p *Page) Find(target browser.Target) browser.Element {
	return &Element{page: p, name: target.Name}
}

// PressKey implements browser.Page.
func (p *Page) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record(Action{Kind: ActionPress, Value: key})
	hooks := append([]func(*Page){}, p.keys[key]...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p)
	}
	return nil
}

// TypeText implements browser.Page.
func (p *Page) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Action{Kind: ActionKeyboard, Value: text})
	return nil
}

// CurrentURL implements browser.Page.
func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// WaitForURL implements browser.Page.
func (p *Page) WaitForURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	return poll(ctx, timeout, func() bool {
		return pattern.MatchString(p.CurrentURL())
	}, fmt.Sprintf("url %s", pattern))
}

func poll(ctx context.Context, timeout time.Duration, cond func() bool, what string) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if cond() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("waiting for %s: %w", what, browser.ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Element is the fake browser.Element returned by Page.Find.
type Element struct {
	page *Page
	name string
}

func (e *Element) visible() bool {
	return e.page.IsVisible(e.name)
}

// WaitVisible implements browser.Element.
func (e *Element) WaitVisible(ctx context.Context, timeout time.Duration) error {
	return poll(ctx, timeout, e.visible, e.name)
}

// Visible implements browser.Element.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.visible(), nil
}

func (e *Element) ready(ctx context.Context) error {
	if err := poll(ctx, e.page.ActionTimeout, e.visible, e.name); err != nil {
		if browser.IsTimeout(err) {
			return fmt.Errorf("%s: %w", e.name, browser.ErrNotFound)
		}
		return err
	}
	return nil
}

// Click implements browser.Element.
func (e *Element) Click(ctx context.Context) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	el := p.el(e.name)
	if el.clickErr != nil {
		err := el.clickErr
		p.mu.Unlock()
		return err
	}
	p.record(Action{Kind: ActionClick, Target: e.name})
	hooks := append([]func(*Page){}, el.onClick...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p)
	}
	return nil
}

// Fill implements browser.Element.
func (e *Element) Fill(ctx context.Context, value string) error {
	return e.input(ctx, ActionFill, value)
}

// Type implements browser.Element.
func (e *Element) Type(ctx context.Context, text string) error {
	return e.input(ctx, ActionType, text)
}

func (e *Element) input(ctx context.Context, kind ActionKind, value string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	el := p.el(e.name)
	if kind == ActionFill && el.fillErr != nil {
		err := el.fillErr
		p.mu.Unlock()
		return err
	}
	p.record(Action{Kind: kind, Target: e.name, Value: value})
	if kind == ActionFill {
		el.value = value
	} else {
		el.value += value
	}
	hooks := append([]func(*Page, string){}, el.onFill...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p, value)
	}
	return nil
}

// ScrollIntoView implements browser.Element.
func (e *Element) ScrollIntoView(ctx context.Context) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.page.record(Action{Kind: ActionScroll, Target: e.name})
	return nil
}

var (
	_ browser.Page    = (*Page)(nil)
	_ browser.Element = (*Element)(nil)
)
