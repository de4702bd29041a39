package pwdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/gotrs-io/mailflow/internal/browser"
)

// Element resolves its target on every call. Waits use the union of all
// strategies; actions use the first strategy that currently has a visible
// match and fall back to the union, letting playwright auto-wait.
type Element struct {
	page   *Page
	target browser.Target
}

var _ browser.Element = (*Element)(nil)

// scope returns the locator searches for t start from.
func (e *Element) scope(t browser.Target) playwright.Locator {
	if t.Within == nil {
		return e.page.page.Locator(":root")
	}
	return e.union(e.scope(*t.Within), t.Within.Strategies).First()
}

func (e *Element) union(scope playwright.Locator, strategies []browser.By) playwright.Locator {
	var loc playwright.Locator
	for _, by := range strategies {
		l := e.locate(scope, by)
		if loc == nil {
			loc = l
		} else {
			loc = loc.Or(l)
		}
	}
	return loc
}

func (e *Element) locate(scope playwright.Locator, by browser.By) playwright.Locator {
	return locate(locatorFinder{scope}, pageFinder{e.page.page}, by)
}

// finder is the lookup surface shared by playwright.Page and
// playwright.Locator, whose option types differ.
type finder interface {
	byRole(role string, name interface{}, exact bool, level int) playwright.Locator
	byLabel(text interface{}, exact bool) playwright.Locator
	byText(text interface{}) playwright.Locator
	bySelector(selector string) playwright.Locator
}

// locate translates by into a locator under scope. Has children are built
// from root with the same rules: playwright queries them relative to each
// outer match, so they must not be anchored to :root.
func locate(scope, root finder, by browser.By) playwright.Locator {
	var loc playwright.Locator
	exact := by.Pattern == nil && by.Name != ""
	switch by.Strategy {
	case browser.StrategyRole:
		loc = scope.byRole(by.Role, nameOf(by), exact, by.Level)
	case browser.StrategyLabel:
		loc = scope.byLabel(nameOf(by), by.Pattern == nil)
	case browser.StrategyText:
		loc = scope.byText(nameOf(by))
	default:
		loc = scope.bySelector(by.Selector)
	}

	if by.HasText != nil || by.Has != nil {
		filter := playwright.LocatorFilterOptions{}
		if by.HasText != nil {
			filter.HasText = by.HasText
		}
		if by.Has != nil {
			filter.Has = locate(root, root, *by.Has)
		}
		loc = loc.Filter(filter)
	}
	return loc
}

// nameOf returns the pattern, the exact name, or nil when by has neither.
func nameOf(by browser.By) interface{} {
	if by.Pattern != nil {
		return by.Pattern
	}
	if by.Name != "" {
		return by.Name
	}
	return nil
}

type locatorFinder struct{ loc playwright.Locator }

func (f locatorFinder) byRole(role string, name interface{}, exact bool, level int) playwright.Locator {
	opts := playwright.LocatorGetByRoleOptions{Name: name}
	if exact {
		opts.Exact = playwright.Bool(true)
	}
	if level > 0 {
		opts.Level = playwright.Int(level)
	}
	return f.loc.GetByRole(playwright.AriaRole(role), opts)
}

func (f locatorFinder) byLabel(text interface{}, exact bool) playwright.Locator {
	opts := playwright.LocatorGetByLabelOptions{}
	if exact {
		opts.Exact = playwright.Bool(true)
	}
	return f.loc.GetByLabel(text, opts)
}

func (f locatorFinder) byText(text interface{}) playwright.Locator {
	return f.loc.GetByText(text)
}

func (f locatorFinder) bySelector(selector string) playwright.Locator {
	return f.loc.Locator(selector)
}

type pageFinder struct{ page playwright.Page }

func (f pageFinder) byRole(role string, name interface{}, exact bool, level int) playwright.Locator {
	opts := playwright.PageGetByRoleOptions{Name: name}
	if exact {
		opts.Exact = playwright.Bool(true)
	}
	if level > 0 {
		opts.Level = playwright.Int(level)
	}
	return f.page.GetByRole(playwright.AriaRole(role), opts)
}

func (f pageFinder) byLabel(text interface{}, exact bool) playwright.Locator {
	opts := playwright.PageGetByLabelOptions{}
	if exact {
		opts.Exact = playwright.Bool(true)
	}
	return f.page.GetByLabel(text, opts)
}

func (f pageFinder) byText(text interface{}) playwright.Locator {
	return f.page.GetByText(text)
}

func (f pageFinder) bySelector(selector string) playwright.Locator {
	return f.page.Locator(selector)
}

func (e *Element) any() playwright.Locator {
	return e.union(e.scope(e.target), e.target.Strategies).First()
}

// pick returns the first strategy with a visible match, or the union.
func (e *Element) pick() playwright.Locator {
	scope := e.scope(e.target)
	if len(e.target.Strategies) > 1 {
		for _, by := range e.target.Strategies {
			loc := e.locate(scope, by).First()
			if ok, err := loc.IsVisible(); err == nil && ok {
				return loc
			}
		}
	}
	return e.union(scope, e.target.Strategies).First()
}

// WaitVisible implements browser.Element.
func (e *Element) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	err := e.any().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: msFloat(timeout),
	})
	return mapErr(e.target.Name, err)
}

// Visible implements browser.Element.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := e.any().IsVisible()
	return ok, mapErr(e.target.Name, err)
}

// act maps a timed out action to browser.ErrNotFound as well, since an
// action only times out when nothing matched.
func (e *Element) act(ctx context.Context, verb string, fn func(playwright.Locator, *float64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := fn(e.pick(), e.page.timeout(ctx))
	if err == nil {
		return nil
	}
	err = mapErr(fmt.Sprintf("%s %s", verb, e.target.Name), err)
	if browser.IsTimeout(err) {
		return fmt.Errorf("%w: %w", browser.ErrNotFound, err)
	}
	return err
}

// Click implements browser.Element.
func (e *Element) Click(ctx context.Context) error {
	return e.act(ctx, "click", func(l playwright.Locator, timeout *float64) error {
		return l.Click(playwright.LocatorClickOptions{Timeout: timeout})
	})
}

// Fill implements browser.Element.
func (e *Element) Fill(ctx context.Context, value string) error {
	return e.act(ctx, "fill", func(l playwright.Locator, timeout *float64) error {
		return l.Fill(value, playwright.LocatorFillOptions{Timeout: timeout})
	})
}

// Type implements browser.Element.
func (e *Element) Type(ctx context.Context, text string) error {
	return e.act(ctx, "type", func(l playwright.Locator, timeout *float64) error {
		return l.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: timeout})
	})
}

// ScrollIntoView implements browser.Element.
func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.act(ctx, "scroll", func(l playwright.Locator, timeout *float64) error {
		return l.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: timeout})
	})
}
