package recovery

import (
	"context"
	"strings"

	"selector-agent/internal/browser"
)

// deriveAlternatives produces syntactic variants of a failed selector worth
// probing: the same token as the other attribute kind, plus common guesses
// when the selector looks like a submit or login control.
func deriveAlternatives(selector string) []string {
	var alts []string
	seen := map[string]bool{selector: true}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			alts = append(alts, s)
		}
	}

	switch {
	case strings.HasPrefix(selector, "#"):
		token := selector[1:]
		add("." + token)
		add("[id*='" + token + "']")
		add("[name='" + token + "']")
	case strings.HasPrefix(selector, ".") && !strings.ContainsAny(selector[1:], " .#["):
		token := selector[1:]
		add("#" + token)
		add("[class*='" + token + "']")
	}

	lower := strings.ToLower(selector)
	if strings.Contains(lower, "submit") || strings.Contains(lower, "login") ||
		strings.Contains(lower, "sign") {
		add("button[type='submit']")
		add("input[type='submit']")
		add("#signInSubmit")
		add(".a-button-input")
	}
	if strings.Contains(lower, "search") {
		add("input[type='search']")
		add("#twotabsearchtextbox")
	}

	return alts
}

// findAlternative probes each variant on the live page and returns the first
// one that exists and is visible.
func findAlternative(ctx context.Context, drv browser.Driver, selector string) (string, bool) {
	for _, alt := range deriveAlternatives(selector) {
		n, err := drv.Count(ctx, alt)
		if err != nil || n == 0 {
			continue
		}
		visible, err := drv.IsVisible(ctx, alt)
		if err == nil && visible {
			return alt, true
		}
	}
	return "", false
}
