package action

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind buckets a failure into one of the categories the recovery layer knows
// strategies for.
type Kind string

const (
	KindTimeout              Kind = "timeout"
	KindSelectorNotFound     Kind = "selector_not_found"
	KindElementNotClickable  Kind = "element_not_clickable"
	KindNavigationFailed     Kind = "navigation_failed"
	KindFormSubmissionFailed Kind = "form_submission_failed"
	KindCaptchaRequired      Kind = "captcha_required"
	KindRateLimited          Kind = "rate_limited"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindNetworkError         Kind = "network_error"
	KindPageLoadError        Kind = "page_load_error"
	KindAccessDenied         Kind = "access_denied"
	KindUnknown              Kind = "unknown"
)

// ErrorContext carries everything the recovery layer needs to pick a
// strategy: the failure class plus the page and action state at the time.
type ErrorContext struct {
	Kind       Kind      `json:"error_type"`
	Message    string    `json:"message"`
	CurrentURL string    `json:"current_url,omitempty"`
	Selector   string    `json:"selector,omitempty"`
	Action     Type      `json:"action,omitempty"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	Timestamp  time.Time `json:"timestamp"`
}

// Classify maps an error to a failure Kind. Structured errors are checked
// first; message heuristics are the fallback because browser errors mostly
// surface as flat strings.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "captcha") || strings.Contains(msg, "robot check"):
		return KindCaptchaRequired
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return KindRateLimited
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "403"):
		return KindAccessDenied
	case strings.Contains(msg, "sign in") && strings.Contains(msg, "failed"),
		strings.Contains(msg, "authentication"):
		return KindAuthenticationFailed
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no such element") ||
		strings.Contains(msg, "could not find node") || strings.Contains(msg, "no nodes"):
		return KindSelectorNotFound
	case strings.Contains(msg, "not clickable") || strings.Contains(msg, "not visible") ||
		strings.Contains(msg, "intercept") || strings.Contains(msg, "obscured"):
		return KindElementNotClickable
	case strings.Contains(msg, "navigation") || strings.Contains(msg, "navigate"):
		return KindNavigationFailed
	case strings.Contains(msg, "net::") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "dns") || strings.Contains(msg, "network"):
		return KindNetworkError
	case strings.Contains(msg, "page load") || strings.Contains(msg, "load failed"):
		return KindPageLoadError
	case strings.Contains(msg, "form"):
		return KindFormSubmissionFailed
	default:
		return KindUnknown
	}
}
