package action

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"selector-agent/internal/browser"
)

const defaultWaitTimeout = 10 * time.Second

// Executor applies actions through a Driver and verifies their
// post-conditions.
type Executor struct {
	drv    browser.Driver
	log    *zap.Logger
	strict bool
}

// NewExecutor builds an Executor. When strict is false a failed
// post-condition wait is logged and treated as partial success, because on
// slow pages the navigation often lands well after the wait gives up.
func NewExecutor(drv browser.Driver, log *zap.Logger, strict bool) *Executor {
	return &Executor{drv: drv, log: log, strict: strict}
}

// Apply performs the action and then checks the wait condition. It returns
// nil on success, or an ErrorContext describing the failure.
func (e *Executor) Apply(ctx context.Context, act Action, wait WaitCondition) *ErrorContext {
	if err := e.perform(ctx, act); err != nil {
		return e.errorContext(ctx, act, err)
	}

	if wait.Kind == WaitNone {
		return nil
	}
	if err := e.awaitCondition(ctx, wait); err != nil {
		if !e.strict {
			e.log.Warn("post-condition wait failed, continuing",
				zap.String("action", string(act.Type)),
				zap.String("selector", act.Selector),
				zap.Error(err))
			return nil
		}
		return e.errorContext(ctx, act, err)
	}
	return nil
}

func (e *Executor) perform(ctx context.Context, act Action) error {
	switch act.Type {
	case TypeFill:
		return e.drv.Fill(ctx, act.Selector, act.Value)
	case TypeClick:
		return e.drv.Click(ctx, act.Selector)
	case TypeHover:
		return e.drv.Hover(ctx, act.Selector)
	default:
		return fmt.Errorf("unsupported action type %q", act.Type)
	}
}

func (e *Executor) awaitCondition(ctx context.Context, wait WaitCondition) error {
	timeout := wait.Timeout
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	switch wait.Kind {
	case WaitURL:
		return e.drv.WaitForURLSubstring(ctx, wait.URLPattern, timeout)
	case WaitSelector:
		return e.drv.WaitForSelector(ctx, wait.Selector, timeout)
	case WaitLoad:
		return e.drv.WaitReady(ctx, timeout)
	default:
		return fmt.Errorf("unsupported wait kind %q", wait.Kind)
	}
}

func (e *Executor) errorContext(ctx context.Context, act Action, err error) *ErrorContext {
	url, urlErr := e.drv.CurrentURL(ctx)
	if urlErr != nil {
		url = ""
	}

	ec := &ErrorContext{
		Kind:       Classify(err),
		Message:    err.Error(),
		CurrentURL: url,
		Selector:   act.Selector,
		Action:     act.Type,
		Timestamp:  time.Now(),
	}
	e.log.Warn("action failed",
		zap.String("action", string(act.Type)),
		zap.String("selector", act.Selector),
		zap.String("kind", string(ec.Kind)),
		zap.Error(err))
	return ec
}
