// Package browser drives a live Chrome page through chromedp.
package browser

import (
	"context"
	"time"
)

// Driver is the narrow capability set the engine needs from a browser. The
// rest of the codebase depends on this interface, never on chromedp types,
// so tests substitute an in-memory fake.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Hover(ctx context.Context, selector string) error
	ScrollIntoView(ctx context.Context, selector string) error

	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitForURLSubstring(ctx context.Context, substr string, timeout time.Duration) error
	WaitReady(ctx context.Context, timeout time.Duration) error

	HTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	Evaluate(ctx context.Context, script string, out any) error

	Close() error
}
