package browsertest

import (
	"context"
	"sync"

	"github.com/gotrs-io/mailflow/internal/browser"
)

// Opener implements browser.Opener with fake pages. Setup builds the page
// for each scenario name; a nil Setup hands out empty pages.
type Opener struct {
	Setup func(name string) *Page
	// Err, when set, is returned by every NewPage call.
	Err error

	mu     sync.Mutex
	opened []string
	closed map[string]bool
	pages  map[string]*Page
}

// NewPage implements browser.Opener.
func (o *Opener) NewPage(ctx context.Context, name string) (browser.Page, func(bool) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if o.Err != nil {
		return nil, nil, o.Err
	}
	page := New()
	if o.Setup != nil {
		page = o.Setup(name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pages == nil {
		o.pages = make(map[string]*Page)
		o.closed = make(map[string]bool)
	}
	o.opened = append(o.opened, name)
	o.pages[name] = page
	return page, func(failed bool) error {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.closed[name] = failed
		return nil
	}, nil
}

// Opened returns the names pages were opened for, in order.
func (o *Opener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// Closed reports whether the page for name was closed and whether it was
// closed as failed.
func (o *Opener) Closed(name string) (closed, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	failed, closed = o.closed[name]
	return closed, failed
}

// Page returns the page opened for name, or nil.
func (o *Opener) Page(name string) *Page {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pages[name]
}
