// Package action applies resolved selectors to the live page and classifies
// what went wrong when they do not work.
package action

import "time"

// Type is the kind of page interaction to perform.
type Type string

const (
	TypeFill  Type = "fill"
	TypeClick Type = "click"
	TypeHover Type = "hover"
)

// Action is one interaction against a resolved selector.
type Action struct {
	Type     Type   `json:"type"`
	Selector string `json:"selector"`
	Value    string `json:"value,omitempty"`
}

// WaitKind names the post-condition to check after an action.
type WaitKind string

const (
	WaitNone     WaitKind = ""
	WaitURL      WaitKind = "url"
	WaitSelector WaitKind = "selector"
	WaitLoad     WaitKind = "load"
)

// WaitCondition describes what must hold after the action for it to count
// as fully succeeded.
type WaitCondition struct {
	Kind       WaitKind      `json:"kind"`
	URLPattern string        `json:"url_pattern,omitempty"`
	Selector   string        `json:"selector,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}
