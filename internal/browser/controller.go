package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultOpTimeout = 15 * time.Second

// Options controls how the Chrome instance is launched.
type Options struct {
	Headless  bool
	UserAgent string
	Width     int
	Height    int
}

// Controller owns a single Chrome instance and a single page. All calls are
// serialized through a mutex; chromedp contexts are derived per call so one
// slow operation cannot wedge the browser.
type Controller struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	log         *zap.Logger
	mu          sync.Mutex
}

var _ Driver = (*Controller)(nil)

func NewController(opts Options, log *zap.Logger) (*Controller, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 720
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.Width, opts.Height),
		chromedp.UserAgent(opts.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Run an empty task to start the browser process eagerly so a broken
	// Chrome install fails here instead of on the first navigation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &Controller{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}, nil
}

// newContext derives a timeout context from the long-lived browser context.
// chromedp requires its contexts to chain from the browser's, so the caller's
// context only contributes cancellation checks before each operation.
func (c *Controller) newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, timeout)
}

// run serializes a chromedp task against the shared page.
func (c *Controller) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.newContext(timeout)
	defer cancel()

	return chromedp.Run(opCtx, actions...)
}

func (c *Controller) Navigate(ctx context.Context, url string) error {
	err := c.run(ctx, 30*time.Second,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	c.log.Debug("navigated", zap.String("url", url))
	return nil
}

func (c *Controller) Reload(ctx context.Context) error {
	err := c.run(ctx, 30*time.Second,
		chromedp.Reload(),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (c *Controller) WaitReady(ctx context.Context, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("page did not become ready: %w", err)
	}
	return nil
}

func (c *Controller) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	err := c.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("wait for selector '%s' failed: %w", selector, err)
	}
	return nil
}

// WaitForURLSubstring polls the page location until it contains substr.
func (c *Controller) WaitForURLSubstring(ctx context.Context, substr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		url, err := c.CurrentURL(ctx)
		if err == nil && containsFold(url, substr) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for URL containing '%s' timed out at %s: %w",
				substr, url, context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *Controller) HTML(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, defaultOpTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("capturing page HTML: %w", err)
	}
	return html, nil
}

func (c *Controller) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, 5*time.Second, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading current URL: %w", err)
	}
	return url, nil
}

func (c *Controller) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, 5*time.Second, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("reading page title: %w", err)
	}
	return title, nil
}

func (c *Controller) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, defaultOpTimeout,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}
