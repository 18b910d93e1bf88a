package recovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"selector-agent/internal/action"
	"selector-agent/internal/browser"
	"selector-agent/internal/llm"
)

// maxStrategiesPerFailure caps how many strategies are tried for one failure.
const maxStrategiesPerFailure = 3

const recoverySystemPrompt = `You are a web automation recovery expert. ` +
	`Given a failure on a live page, propose recovery strategies as a JSON array. ` +
	`Each strategy has "name", "steps", "success_probability" (0 to 1) and ` +
	`"estimated_time_sec". Each step has "action" (one of: wait, reload, ` +
	`scroll_into_view, remove_overlays, click, find_alternative_selector, ` +
	`retry_original, wait_for_load), optional "seconds" and optional "selector". ` +
	`Respond with ONLY the JSON array, no explanations.`

const removeOverlaysScript = `(() => {
	let removed = 0;
	document.querySelectorAll('div, section, aside').forEach(el => {
		const style = window.getComputedStyle(el);
		if ((style.position === 'fixed' || style.position === 'sticky') &&
			parseInt(style.zIndex, 10) > 100 &&
			el.getBoundingClientRect().height > 50) {
			el.remove();
			removed++;
		}
	});
	return removed;
})()`

// Outcome reports what a recovery attempt concluded.
type Outcome struct {
	Success             bool   `json:"success"`
	Method              string `json:"method,omitempty"`
	RetryOriginal       bool   `json:"retry_original"`
	AlternativeSelector string `json:"alternative_selector,omitempty"`
	RetryCount          int    `json:"retry_count"`
}

// Statistics is a point-in-time snapshot of recovery activity.
type Statistics struct {
	TotalAttempts int            `json:"total_attempts"`
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	ByKind        map[string]int `json:"by_error_type"`
	ByStrategy    map[string]int `json:"by_strategy"`
}

// Controller executes recovery strategies against the live page. The model
// client is optional; without one only the static table is used.
type Controller struct {
	drv    browser.Driver
	client llm.Chatter
	log    *zap.Logger

	// BackoffFn computes the pause before a repeat recovery. Defaults to
	// Backoff; tests shrink it to keep runs fast.
	BackoffFn func(retryCount int) time.Duration

	mu         sync.Mutex
	attempts   int
	successes  int
	failures   int
	byKind     map[string]int
	byStrategy map[string]int
}

func NewController(drv browser.Driver, client llm.Chatter, log *zap.Logger) *Controller {
	return &Controller{
		drv:        drv,
		client:     client,
		log:        log,
		BackoffFn:  Backoff,
		byKind:     make(map[string]int),
		byStrategy: make(map[string]int),
	}
}

// Recover attempts to clear the failure described by ec. The retry ceiling
// is checked before any model call so an exhausted action never burns
// tokens. On success the outcome says whether the original action should be
// replayed, possibly with an alternative selector.
func (c *Controller) Recover(ctx context.Context, ec *action.ErrorContext) Outcome {
	c.recordAttempt(ec.Kind)

	if ec.RetryCount >= ec.MaxRetries {
		c.log.Warn("retry ceiling reached, giving up",
			zap.String("kind", string(ec.Kind)),
			zap.String("selector", ec.Selector),
			zap.Int("retries", ec.RetryCount))
		c.recordResult("", false)
		return Outcome{RetryCount: ec.RetryCount}
	}

	// The first recovery runs immediately; repeat failures back off.
	if ec.RetryCount > 0 {
		if err := sleep(ctx, c.BackoffFn(ec.RetryCount-1)); err != nil {
			c.recordResult("", false)
			return Outcome{RetryCount: ec.RetryCount}
		}
	}

	method := "model"
	strategies := c.modelStrategies(ctx, ec)
	if len(strategies) == 0 {
		method = "static"
		strategies = fallbackFor(ec.Kind, ec.RetryCount)
	}

	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].SuccessProbability > strategies[j].SuccessProbability
	})
	if len(strategies) > maxStrategiesPerFailure {
		strategies = strategies[:maxStrategiesPerFailure]
	}

	for _, strat := range strategies {
		c.log.Info("trying recovery strategy",
			zap.String("strategy", strat.Name),
			zap.String("kind", string(ec.Kind)),
			zap.Float64("probability", strat.SuccessProbability))

		retryOriginal, altSelector, err := c.execute(ctx, strat, ec)
		if err != nil {
			c.log.Warn("recovery strategy failed",
				zap.String("strategy", strat.Name), zap.Error(err))
			continue
		}

		c.recordResult(strat.Name, true)
		return Outcome{
			Success:             true,
			Method:              method + ":" + strat.Name,
			RetryOriginal:       retryOriginal,
			AlternativeSelector: altSelector,
			RetryCount:          ec.RetryCount + 1,
		}
	}

	c.recordResult("", false)
	return Outcome{RetryCount: ec.RetryCount}
}

// execute runs every step of one strategy. A retry_original step (or a found
// alternative selector) marks the original action for replay.
func (c *Controller) execute(ctx context.Context, strat Strategy, ec *action.ErrorContext) (bool, string, error) {
	retryOriginal := false
	altSelector := ""

	for _, step := range strat.Steps {
		if err := ctx.Err(); err != nil {
			return false, "", err
		}

		switch step.Action {
		case StepWait:
			secs := step.Seconds
			if secs <= 0 {
				secs = 1
			}
			if err := sleep(ctx, time.Duration(secs*float64(time.Second))); err != nil {
				return false, "", err
			}
		case StepReload:
			if err := c.drv.Reload(ctx); err != nil {
				return false, "", fmt.Errorf("reload step: %w", err)
			}
		case StepScrollIntoView:
			sel := step.Selector
			if sel == "" {
				sel = ec.Selector
			}
			if err := c.drv.ScrollIntoView(ctx, sel); err != nil {
				return false, "", fmt.Errorf("scroll step: %w", err)
			}
		case StepRemoveOverlays:
			var removed int
			if err := c.drv.Evaluate(ctx, removeOverlaysScript, &removed); err != nil {
				return false, "", fmt.Errorf("overlay removal step: %w", err)
			}
			if removed > 0 {
				c.log.Debug("removed overlays", zap.Int("count", removed))
			}
		case StepClick:
			if step.Selector == "" {
				return false, "", fmt.Errorf("click step without selector in strategy %q", strat.Name)
			}
			if err := c.drv.Click(ctx, step.Selector); err != nil {
				return false, "", fmt.Errorf("click step: %w", err)
			}
		case StepFindAlternative:
			alt, ok := findAlternative(ctx, c.drv, ec.Selector)
			if !ok {
				return false, "", fmt.Errorf("no working alternative for '%s'", ec.Selector)
			}
			altSelector = alt
			retryOriginal = true
		case StepRetryOriginal:
			retryOriginal = true
		case StepWaitForLoad:
			if err := c.drv.WaitReady(ctx, 10*time.Second); err != nil {
				return false, "", fmt.Errorf("wait for load step: %w", err)
			}
		default:
			return false, "", fmt.Errorf("unknown step action %q in strategy %q", step.Action, strat.Name)
		}
	}

	return retryOriginal, altSelector, nil
}

// modelStrategies asks the model for strategies. Any parse or validation
// problem yields nil so the caller falls back to the static table.
func (c *Controller) modelStrategies(ctx context.Context, ec *action.ErrorContext) []Strategy {
	if c.client == nil {
		return nil
	}

	prompt := fmt.Sprintf(
		"A browser automation action failed.\n\nError type: %s\nMessage: %s\nURL: %s\nSelector: %s\nAction: %s\nRetry count: %d of %d\n\nPropose up to 3 recovery strategies.",
		ec.Kind, ec.Message, ec.CurrentURL, ec.Selector, ec.Action, ec.RetryCount, ec.MaxRetries)

	raw, err := c.client.Chat(ctx, recoverySystemPrompt, prompt)
	if err != nil {
		c.log.Warn("recovery model call failed", zap.Error(err))
		return nil
	}

	parsed := llm.Parse(raw)
	if !parsed.OK {
		c.log.Warn("recovery model returned malformed JSON",
			zap.String("raw", snippet(raw)))
		return nil
	}

	var strategies []Strategy
	if err := parsed.Decode(&strategies); err != nil {
		c.log.Warn("recovery model returned unexpected shape", zap.Error(err))
		return nil
	}

	valid := strategies[:0]
	for _, s := range strategies {
		if len(s.Steps) == 0 {
			continue
		}
		ok := true
		for _, step := range s.Steps {
			if !validStepAction(step.Action) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if s.SuccessProbability < 0 {
			s.SuccessProbability = 0
		}
		if s.SuccessProbability > 1 {
			s.SuccessProbability = 1
		}
		valid = append(valid, s)
	}
	return valid
}

// Stats returns a snapshot of recovery counters. These are observability
// only and never feed back into strategy choice.
func (c *Controller) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{
		TotalAttempts: c.attempts,
		Successes:     c.successes,
		Failures:      c.failures,
		ByKind:        make(map[string]int, len(c.byKind)),
		ByStrategy:    make(map[string]int, len(c.byStrategy)),
	}
	for k, v := range c.byKind {
		stats.ByKind[k] = v
	}
	for k, v := range c.byStrategy {
		stats.ByStrategy[k] = v
	}
	return stats
}

func (c *Controller) recordAttempt(kind action.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	c.byKind[string(kind)]++
}

func (c *Controller) recordResult(strategy string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.successes++
		c.byStrategy[strategy]++
	} else {
		c.failures++
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
