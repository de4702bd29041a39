package browser

import (
	"context"
	"errors"
	"regexp"
	"time"
)

var (
	// ErrTimeout is returned when an element did not reach the requested state in time.
	ErrTimeout = errors.New("browser: timed out")
	// ErrNotFound is returned when no strategy of a target matched an element.
	ErrNotFound = errors.New("browser: element not found")
)

// Page is the capability surface the flows need from a browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitForLoad blocks until the DOM content of the current document is loaded.
	WaitForLoad(ctx context.Context) error
	Find(target Target) Element
	PressKey(ctx context.Context, key string) error
	// TypeText types into whatever currently has keyboard focus.
	TypeText(ctx context.Context, text string) error
	CurrentURL() string
	WaitForURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error
}

// Element is a lazily resolved handle on a Target. Every call resolves the
// target again, so handles stay valid across re-renders.
type Element interface {
	// WaitVisible returns nil once any strategy of the target is visible,
	// or an error wrapping ErrTimeout after timeout.
	WaitVisible(ctx context.Context, timeout time.Duration) error
	// Visible reports whether the target is visible right now without waiting.
	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	// Type sends key presses one by one, for fields that ignore Fill.
	Type(ctx context.Context, text string) error
	ScrollIntoView(ctx context.Context) error
}

// IsTimeout reports whether err is (or wraps) a browser timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Opener creates isolated pages, one per scenario. The returned close func
// releases the page; failed asks the implementation to keep failure
// artifacts such as a screenshot.
type Opener interface {
	NewPage(ctx context.Context, name string) (page Page, close func(failed bool) error, err error)
}
