package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Click clicks the first element matching the selector, waiting for it to be
// visible first.
func (c *Controller) Click(ctx context.Context, selector string) error {
	err := c.run(ctx, defaultOpTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click failed on selector '%s': %w", selector, err)
	}
	return nil
}

// Fill clears the field and types the value into it.
func (c *Controller) Fill(ctx context.Context, selector, value string) error {
	err := c.run(ctx, defaultOpTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill failed on selector '%s': %w", selector, err)
	}
	return nil
}

// Hover dispatches mouseover on the element. Some menus only render their
// contents after a hover, so this runs before link extraction on nav bars.
func (c *Controller) Hover(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
		el.dispatchEvent(new MouseEvent('mouseenter', {bubbles: true}));
		return true;
	})()`, strconv.Quote(selector))

	var ok bool
	err := c.run(ctx, defaultOpTimeout,
		chromedp.Evaluate(script, &ok),
		chromedp.Sleep(300*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("hover failed on selector '%s': %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("hover target '%s' not found", selector)
	}
	return nil
}

// ScrollIntoView scrolls the element into the viewport.
func (c *Controller) ScrollIntoView(ctx context.Context, selector string) error {
	err := c.run(ctx, defaultOpTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Sleep(200*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("scroll to '%s' failed: %w", selector, err)
	}
	return nil
}

// Text returns the visible text of the first matching element.
func (c *Controller) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := c.run(ctx, defaultOpTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("text read failed for selector '%s': %w", selector, err)
	}
	return text, nil
}

// Count returns how many elements match the selector right now.
func (c *Controller) Count(ctx context.Context, selector string) (int, error) {
	script := fmt.Sprintf("document.querySelectorAll(%s).length", strconv.Quote(selector))
	var n int
	if err := c.run(ctx, 5*time.Second, chromedp.Evaluate(script, &n)); err != nil {
		return 0, fmt.Errorf("count failed for selector '%s': %w", selector, err)
	}
	return n, nil
}

// IsVisible reports whether the first matching element exists and occupies
// layout space. It never waits; a missing element is simply not visible.
func (c *Controller) IsVisible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		return rect.width > 0 && rect.height > 0 &&
			style.display !== 'none' && style.visibility !== 'hidden';
	})()`, strconv.Quote(selector))

	var visible bool
	if err := c.run(ctx, 5*time.Second, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("visibility check failed for selector '%s': %w", selector, err)
	}
	return visible, nil
}

// Evaluate runs the script on the page, decoding the result into out when
// out is non-nil.
func (c *Controller) Evaluate(ctx context.Context, script string, out any) error {
	if err := c.run(ctx, defaultOpTimeout, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
