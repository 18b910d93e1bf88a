package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"selector-agent/internal/action"
)

type fakeDriver struct {
	elements map[string]bool

	reloads  int
	scrolls  []string
	clicks   []string
	evals    int
	waits    int
	clickErr error
}

func newFakeDriver(selectors ...string) *fakeDriver {
	d := &fakeDriver{elements: make(map[string]bool)}
	for _, s := range selectors {
		d.elements[s] = true
	}
	return d
}

func (d *fakeDriver) Navigate(context.Context, string) error { return nil }

func (d *fakeDriver) Reload(context.Context) error {
	d.reloads++
	return nil
}

func (d *fakeDriver) Fill(context.Context, string, string) error { return nil }

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	if d.clickErr != nil {
		return d.clickErr
	}
	d.clicks = append(d.clicks, selector)
	return nil
}

func (d *fakeDriver) Hover(context.Context, string) error { return nil }

func (d *fakeDriver) ScrollIntoView(_ context.Context, selector string) error {
	d.scrolls = append(d.scrolls, selector)
	return nil
}

func (d *fakeDriver) WaitForSelector(context.Context, string, time.Duration) error { return nil }

func (d *fakeDriver) WaitForURLSubstring(context.Context, string, time.Duration) error { return nil }

func (d *fakeDriver) WaitReady(context.Context, time.Duration) error {
	d.waits++
	return nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) { return "", nil }

func (d *fakeDriver) CurrentURL(context.Context) (string, error) { return "", nil }

func (d *fakeDriver) Title(context.Context) (string, error) { return "", nil }

func (d *fakeDriver) Text(context.Context, string) (string, error) { return "", nil }

func (d *fakeDriver) Count(_ context.Context, selector string) (int, error) {
	if d.elements[selector] {
		return 1, nil
	}
	return 0, nil
}

func (d *fakeDriver) IsVisible(_ context.Context, selector string) (bool, error) {
	return d.elements[selector], nil
}

func (d *fakeDriver) Evaluate(_ context.Context, _ string, out any) error {
	d.evals++
	if n, ok := out.(*int); ok {
		*n = 1
	}
	return nil
}

func (d *fakeDriver) Close() error { return nil }

// countingChatter records calls and replays one canned response.
type countingChatter struct {
	response string
	err      error
	calls    int
}

func (c *countingChatter) Chat(context.Context, string, string) (string, error) {
	c.calls++
	return c.response, c.err
}

func (c *countingChatter) Model() string { return "recovery-test" }

func errCtx(kind action.Kind, selector string, retries, maxRetries int) *action.ErrorContext {
	return &action.ErrorContext{
		Kind:       kind,
		Message:    "boom",
		Selector:   selector,
		Action:     action.TypeClick,
		RetryCount: retries,
		MaxRetries: maxRetries,
		Timestamp:  time.Now(),
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, Backoff(0))
	assert.Equal(t, 10*time.Second, Backoff(1))
	assert.Equal(t, 20*time.Second, Backoff(2))
	assert.Equal(t, 40*time.Second, Backoff(3))
	assert.Equal(t, 60*time.Second, Backoff(4))
	assert.Equal(t, 60*time.Second, Backoff(10))
}

func TestRateLimitedFallbackWaitGrowsWithRetries(t *testing.T) {
	want := []float64{5, 10, 20, 40, 60, 60}
	for retry, secs := range want {
		strategies := fallbackFor(action.KindRateLimited, retry)
		require.NotEmpty(t, strategies)
		require.Equal(t, "backoff_wait", strategies[0].Name)
		assert.Equal(t, secs, strategies[0].Steps[0].Seconds, "retry %d", retry)
	}

	// The shared table itself must stay untouched.
	assert.Equal(t, 5.0, fallbackFor(action.KindRateLimited, 0)[0].Steps[0].Seconds)
}

func TestRecoverCeilingCheckedBeforeModelCall(t *testing.T) {
	chatter := &countingChatter{response: "[]"}
	c := NewController(newFakeDriver(), chatter, zap.NewNop())

	outcome := c.Recover(context.Background(), errCtx(action.KindTimeout, "#x", 3, 3))

	assert.False(t, outcome.Success)
	assert.Equal(t, 3, outcome.RetryCount)
	assert.Zero(t, chatter.calls, "exhausted failures must not reach the model")

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 1, stats.Failures)
}

func TestRecoverModelStrategy(t *testing.T) {
	chatter := &countingChatter{response: `[
		{"name": "quick_retry", "steps": [{"action": "retry_original"}], "success_probability": 0.9, "estimated_time_sec": 1}
	]`}
	c := NewController(newFakeDriver(), chatter, zap.NewNop())

	outcome := c.Recover(context.Background(), errCtx(action.KindTimeout, "#x", 0, 3))

	require.True(t, outcome.Success)
	assert.Equal(t, "model:quick_retry", outcome.Method)
	assert.True(t, outcome.RetryOriginal)
	assert.Equal(t, 1, outcome.RetryCount)
}

func TestRecoverHigherProbabilityStrategyTriedFirst(t *testing.T) {
	chatter := &countingChatter{response: `[
		{"name": "low", "steps": [{"action": "reload"}, {"action": "retry_original"}], "success_probability": 0.2},
		{"name": "high", "steps": [{"action": "retry_original"}], "success_probability": 0.9}
	]`}
	drv := newFakeDriver()
	c := NewController(drv, chatter, zap.NewNop())

	outcome := c.Recover(context.Background(), errCtx(action.KindTimeout, "#x", 0, 3))

	require.True(t, outcome.Success)
	assert.Equal(t, "model:high", outcome.Method)
	assert.Zero(t, drv.reloads, "the lower-probability strategy must not have run")
}

func TestRecoverFallsBackToStaticTable(t *testing.T) {
	chatter := &countingChatter{err: errors.New("model down")}
	drv := newFakeDriver("#stuck-button")
	c := NewController(drv, chatter, zap.NewNop())

	outcome := c.Recover(context.Background(),
		errCtx(action.KindElementNotClickable, "#stuck-button", 0, 3))

	require.True(t, outcome.Success)
	assert.Equal(t, "static:clear_obstructions", outcome.Method)
	assert.True(t, outcome.RetryOriginal)
	assert.Equal(t, []string{"#stuck-button"}, drv.scrolls)
	assert.Equal(t, 1, drv.evals, "overlay removal must have run")
}

func TestRecoverMalformedModelOutputFallsBack(t *testing.T) {
	chatter := &countingChatter{response: "no json here"}
	c := NewController(newFakeDriver(), chatter, zap.NewNop())

	outcome := c.Recover(context.Background(),
		errCtx(action.KindElementNotClickable, "#btn", 0, 3))

	require.True(t, outcome.Success)
	assert.Contains(t, outcome.Method, "static:")
}

func TestRecoverInvalidStepActionsRejected(t *testing.T) {
	chatter := &countingChatter{response: `[
		{"name": "bogus", "steps": [{"action": "summon_human"}], "success_probability": 0.99}
	]`}
	c := NewController(newFakeDriver(), chatter, zap.NewNop())

	outcome := c.Recover(context.Background(),
		errCtx(action.KindElementNotClickable, "#btn", 0, 3))

	require.True(t, outcome.Success)
	assert.Contains(t, outcome.Method, "static:", "invalid model steps must fall back to the table")
}

func TestRecoverAlternativeSelector(t *testing.T) {
	chatter := &countingChatter{response: `[
		{"name": "find_alt", "steps": [{"action": "find_alternative_selector"}], "success_probability": 0.9}
	]`}
	drv := newFakeDriver("button[type='submit']")
	c := NewController(drv, chatter, zap.NewNop())

	outcome := c.Recover(context.Background(),
		errCtx(action.KindSelectorNotFound, "#signin-button", 0, 3))

	require.True(t, outcome.Success)
	assert.True(t, outcome.RetryOriginal)
	assert.Equal(t, "button[type='submit']", outcome.AlternativeSelector)
}

func TestRecoverAllStrategiesFail(t *testing.T) {
	chatter := &countingChatter{response: `[
		{"name": "doomed", "steps": [{"action": "click", "selector": "#nope"}], "success_probability": 0.9}
	]`}
	drv := newFakeDriver()
	drv.clickErr = fmt.Errorf("click failed on selector '#nope': could not find node")
	c := NewController(drv, chatter, zap.NewNop())

	outcome := c.Recover(context.Background(),
		errCtx(action.KindUnknown, "#orig", 0, 3))

	assert.False(t, outcome.Success)
	assert.Empty(t, drv.clicks)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Failures)
}

func TestStatsSnapshotIsIsolated(t *testing.T) {
	c := NewController(newFakeDriver(), nil, zap.NewNop())
	c.Recover(context.Background(), errCtx(action.KindTimeout, "#x", 3, 3))

	stats := c.Stats()
	stats.ByKind["timeout"] = 99

	assert.Equal(t, 1, c.Stats().ByKind["timeout"])
}
