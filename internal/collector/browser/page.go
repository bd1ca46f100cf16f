package browser

import (
	"context"
	"time"
)

// Detail is the HTML of an opened place panel and the URL the browser is on.
type Detail struct {
	HTML string
	URL  string
}

// Page is the small set of browser operations the collector needs. Every
// call that waits on the DOM takes its own timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Search types query into the input matched by selector and submits it.
	Search(ctx context.Context, selector, query string) error
	// Cards returns the outer HTML of every element matching selector.
	Cards(ctx context.Context, selector string) ([]string, error)
	// OpenCard clicks the index-th element matching selector and returns the
	// detail panel once it is visible.
	OpenCard(ctx context.Context, selector string, index int, panel string, timeout time.Duration) (Detail, error)
	ScrollFeed(ctx context.Context, feed string) error
	// KeyboardScroll focuses the feed and pages it down with the keyboard.
	KeyboardScroll(ctx context.Context, feed string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher starts a fresh browser session.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}
