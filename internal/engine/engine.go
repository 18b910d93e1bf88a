// Package engine ties the pipeline together: it builds category pools for a
// page, resolves intents against them, applies the resulting actions and
// routes failures through recovery.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"selector-agent/internal/action"
	"selector-agent/internal/browser"
	"selector-agent/internal/recovery"
	"selector-agent/internal/selector"
)

// State is the engine's current phase, exposed for the control surface.
type State string

const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateApplying   State = "applying"
	StateRecovering State = "recovering"
)

// Deps are the collaborators an Engine needs. Everything is injected so
// tests can swap fakes for the browser and the model-backed pieces.
type Deps struct {
	Driver     browser.Driver
	Classifier *selector.Classifier
	Resolver   *selector.Resolver
	Store      *selector.Store
	Executor   *action.Executor
	Recovery   *recovery.Controller
	Log        *zap.Logger
	MaxRetries int
}

type Engine struct {
	drv        browser.Driver
	classifier *selector.Classifier
	resolver   *selector.Resolver
	store      *selector.Store
	exec       *action.Executor
	recov      *recovery.Controller
	log        *zap.Logger
	maxRetries int

	mu    sync.Mutex
	state State
	subs  []chan State
}

func New(deps Deps) *Engine {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 3
	}
	return &Engine{
		drv:        deps.Driver,
		classifier: deps.Classifier,
		resolver:   deps.Resolver,
		store:      deps.Store,
		exec:       deps.Executor,
		recov:      deps.Recovery,
		log:        deps.Log,
		maxRetries: deps.MaxRetries,
		state:      StateIdle,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	for _, ch := range e.subs {
		select {
		case ch <- s:
		default: // slow consumers drop transitions instead of blocking
		}
	}
	e.mu.Unlock()
}

// Subscribe registers a listener for state transitions. The returned cancel
// removes the listener; the channel itself is never closed.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 16)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		for i, sub := range e.subs {
			if sub == ch {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// RecoveryStats exposes the recovery counters for the control surface.
func (e *Engine) RecoveryStats() recovery.Statistics {
	return e.recov.Stats()
}

// PoolForPage returns the grouped selector pool for the named page stage,
// reusing whatever cached artifacts exist. The most complete artifact wins:
// a grouped pool is used verbatim, cached candidates plus assignments skip
// both extraction and classification, cached candidates alone skip
// extraction. Only with no artifacts at all does the engine read the live
// page.
func (e *Engine) PoolForPage(ctx context.Context, stage string) (map[selector.Category][]selector.Enriched, error) {
	if pool, ok := e.store.LoadPool(stage); ok {
		e.log.Info("using cached selector pool", zap.String("stage", stage))
		return pool, nil
	}

	candidates, haveCandidates := e.store.LoadCandidates(stage)
	assignments, haveAssignments := e.store.LoadAssignments(stage)

	if !haveCandidates {
		e.log.Info("extracting selectors from live page", zap.String("stage", stage))
		html, err := e.drv.HTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading page for stage %s: %w", stage, err)
		}
		baseURL, err := e.drv.CurrentURL(ctx)
		if err != nil {
			baseURL = ""
		}
		candidates, err = selector.Extract(html, baseURL)
		if err != nil {
			return nil, fmt.Errorf("extracting selectors for stage %s: %w", stage, err)
		}
		if err := e.store.SaveCandidates(stage, candidates); err != nil {
			e.log.Warn("saving candidates failed", zap.String("stage", stage), zap.Error(err))
		}
		haveAssignments = false
	}

	if !haveAssignments {
		var err error
		assignments, err = e.classifier.Classify(ctx, candidates)
		if err != nil {
			return nil, fmt.Errorf("classifying selectors for stage %s: %w", stage, err)
		}
		if err := e.store.SaveAssignments(stage, assignments); err != nil {
			e.log.Warn("saving assignments failed", zap.String("stage", stage), zap.Error(err))
		}
	}

	pool := selector.Group(candidates, assignments, e.log)
	if err := e.store.SavePool(stage, pool); err != nil {
		e.log.Warn("saving grouped pool failed", zap.String("stage", stage), zap.Error(err))
	}
	return pool, nil
}

// ResolveIntent finds the best selector for an intent within one category's
// pool. A nil resolution with nil error means the pool had no fit.
func (e *Engine) ResolveIntent(ctx context.Context, pool []selector.Enriched, intent selector.Intent) (*selector.Resolution, error) {
	e.setState(StateResolving)
	defer e.setState(StateIdle)
	return e.resolver.Resolve(ctx, pool, intent)
}

// RunIntent resolves an intent and applies the action, driving the
// recovery loop until the action succeeds, recovery gives up, or the retry
// ceiling is hit.
func (e *Engine) RunIntent(ctx context.Context, pool []selector.Enriched, intent selector.Intent, actType action.Type, value string, wait action.WaitCondition) error {
	res, err := e.ResolveIntent(ctx, pool, intent)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", intent, err)
	}
	if res == nil {
		return fmt.Errorf("no selector resolved for intent %s", intent)
	}

	e.log.Info("resolved intent",
		zap.String("intent", string(intent)),
		zap.String("selector", res.Selector),
		zap.String("model", res.Model))

	act := action.Action{Type: actType, Selector: res.Selector, Value: value}
	return e.Apply(ctx, act, wait)
}

// Apply runs one action through the executor and, on failure, through
// recovery. Recovery clears obstacles, it never stands in for the action:
// every successful recovery loops back to replay the action, switching to
// the alternative selector when recovery found one.
func (e *Engine) Apply(ctx context.Context, act action.Action, wait action.WaitCondition) error {
	retries := 0
	for {
		e.setState(StateApplying)
		ec := e.exec.Apply(ctx, act, wait)
		if ec == nil {
			e.setState(StateIdle)
			return nil
		}

		ec.RetryCount = retries
		ec.MaxRetries = e.maxRetries

		e.setState(StateRecovering)
		outcome := e.recov.Recover(ctx, ec)
		if !outcome.Success {
			e.setState(StateIdle)
			return fmt.Errorf("action %s on '%s' failed after %d retries: %s",
				act.Type, act.Selector, retries, ec.Message)
		}

		retries = outcome.RetryCount
		if outcome.AlternativeSelector != "" {
			e.log.Info("switching to alternative selector",
				zap.String("from", act.Selector),
				zap.String("to", outcome.AlternativeSelector))
			act.Selector = outcome.AlternativeSelector
		}
	}
}
