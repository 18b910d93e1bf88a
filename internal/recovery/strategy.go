// Package recovery turns classified action failures into executable recovery
// strategies, generated by a model when one is available and drawn from a
// static table otherwise.
package recovery

import (
	"time"

	"selector-agent/internal/action"
)

// StepAction is one primitive a recovery strategy can run.
type StepAction string

const (
	StepWait            StepAction = "wait"
	StepReload          StepAction = "reload"
	StepScrollIntoView  StepAction = "scroll_into_view"
	StepRemoveOverlays  StepAction = "remove_overlays"
	StepClick           StepAction = "click"
	StepFindAlternative StepAction = "find_alternative_selector"
	StepRetryOriginal   StepAction = "retry_original"
	StepWaitForLoad     StepAction = "wait_for_load"
)

func validStepAction(a StepAction) bool {
	switch a {
	case StepWait, StepReload, StepScrollIntoView, StepRemoveOverlays,
		StepClick, StepFindAlternative, StepRetryOriginal, StepWaitForLoad:
		return true
	}
	return false
}

// Step is a single unit of a strategy. Seconds applies to wait steps,
// Selector to click and scroll steps.
type Step struct {
	Action   StepAction `json:"action"`
	Seconds  float64    `json:"seconds,omitempty"`
	Selector string     `json:"selector,omitempty"`
}

// Strategy is an ordered list of steps with the model's (or the table's)
// estimate of how likely it is to clear the failure.
type Strategy struct {
	Name               string  `json:"name"`
	Steps              []Step  `json:"steps"`
	SuccessProbability float64 `json:"success_probability"`
	EstimatedTimeSec   int     `json:"estimated_time_sec"`
}

// Backoff returns how long to pause before the nth retry, doubling from five
// seconds and capped at a minute.
func Backoff(retryCount int) time.Duration {
	secs := 5 * (1 << retryCount)
	if secs > 60 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// staticStrategies is the fallback table used when the model produces
// nothing usable for a failure kind.
var staticStrategies = map[action.Kind][]Strategy{
	action.KindTimeout: {
		{Name: "extended_wait", SuccessProbability: 0.7, EstimatedTimeSec: 15, Steps: []Step{
			{Action: StepWait, Seconds: 10},
			{Action: StepWaitForLoad},
			{Action: StepRetryOriginal},
		}},
		{Name: "reload_and_retry", SuccessProbability: 0.6, EstimatedTimeSec: 12, Steps: []Step{
			{Action: StepReload},
			{Action: StepWait, Seconds: 5},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindSelectorNotFound: {
		{Name: "alternative_selector", SuccessProbability: 0.65, EstimatedTimeSec: 5, Steps: []Step{
			{Action: StepWait, Seconds: 2},
			{Action: StepFindAlternative},
		}},
		{Name: "reload_and_retry", SuccessProbability: 0.5, EstimatedTimeSec: 10, Steps: []Step{
			{Action: StepReload},
			{Action: StepWait, Seconds: 3},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindElementNotClickable: {
		{Name: "clear_obstructions", SuccessProbability: 0.75, EstimatedTimeSec: 4, Steps: []Step{
			{Action: StepScrollIntoView},
			{Action: StepRemoveOverlays},
			{Action: StepRetryOriginal},
		}},
		{Name: "wait_and_retry", SuccessProbability: 0.5, EstimatedTimeSec: 4, Steps: []Step{
			{Action: StepWait, Seconds: 3},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindNavigationFailed: {
		{Name: "reload_and_retry", SuccessProbability: 0.6, EstimatedTimeSec: 12, Steps: []Step{
			{Action: StepReload},
			{Action: StepWaitForLoad},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindFormSubmissionFailed: {
		{Name: "wait_and_retry", SuccessProbability: 0.5, EstimatedTimeSec: 4, Steps: []Step{
			{Action: StepWait, Seconds: 2},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindCaptchaRequired: {
		{Name: "wait_for_manual_solve", SuccessProbability: 0.3, EstimatedTimeSec: 35, Steps: []Step{
			{Action: StepWait, Seconds: 30},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindRateLimited: {
		// The wait is a placeholder; fallbackFor rewrites it from Backoff.
		{Name: "backoff_wait", SuccessProbability: 0.8, EstimatedTimeSec: 7, Steps: []Step{
			{Action: StepWait, Seconds: 5},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindAuthenticationFailed: {
		{Name: "reload_and_retry", SuccessProbability: 0.4, EstimatedTimeSec: 10, Steps: []Step{
			{Action: StepReload},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindNetworkError: {
		{Name: "wait_and_reload", SuccessProbability: 0.6, EstimatedTimeSec: 14, Steps: []Step{
			{Action: StepWait, Seconds: 5},
			{Action: StepReload},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindPageLoadError: {
		{Name: "reload_and_wait", SuccessProbability: 0.65, EstimatedTimeSec: 14, Steps: []Step{
			{Action: StepReload},
			{Action: StepWaitForLoad},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindAccessDenied: {
		{Name: "cooldown_reload", SuccessProbability: 0.35, EstimatedTimeSec: 25, Steps: []Step{
			{Action: StepWait, Seconds: 15},
			{Action: StepReload},
			{Action: StepRetryOriginal},
		}},
	},
	action.KindUnknown: {
		{Name: "generic_retry", SuccessProbability: 0.4, EstimatedTimeSec: 12, Steps: []Step{
			{Action: StepWait, Seconds: 3},
			{Action: StepReload},
			{Action: StepRetryOriginal},
		}},
	},
}

// fallbackFor returns a copy of the static strategies for the kind, with the
// unknown bucket as the last resort. The rate-limited wait grows with the
// retry count so repeated throttling backs off instead of hammering.
func fallbackFor(kind action.Kind, retryCount int) []Strategy {
	src, ok := staticStrategies[kind]
	if !ok {
		src = staticStrategies[action.KindUnknown]
	}
	out := make([]Strategy, len(src))
	copy(out, src)

	if kind == action.KindRateLimited {
		wait := Backoff(retryCount)
		for i, strat := range out {
			if strat.Name != "backoff_wait" {
				continue
			}
			steps := make([]Step, len(strat.Steps))
			copy(steps, strat.Steps)
			for j := range steps {
				if steps[j].Action == StepWait {
					steps[j].Seconds = wait.Seconds()
				}
			}
			out[i].Steps = steps
			out[i].EstimatedTimeSec = int(wait.Seconds()) + 2
		}
	}
	return out
}
