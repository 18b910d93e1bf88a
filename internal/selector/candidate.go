// Package selector implements the selector discovery pipeline: extracting
// candidate selectors from HTML, classifying them into semantic categories,
// grouping them into per-category pools, and resolving a named intent to a
// single best selector.
package selector

// Kind identifies how a candidate selector was derived from its element.
type Kind string

const (
	KindID        Kind = "id"
	KindClass     Kind = "class"
	KindName      Kind = "name"
	KindType      Kind = "type"
	KindAttribute Kind = "attribute"
	KindInput     Kind = "input"
	KindButton    Kind = "button"
	KindLink      Kind = "link"
	KindForm      Kind = "form"
)

// maxTextLen bounds the visible text captured per candidate so a page full of
// prose never inflates the candidate set.
const maxTextLen = 200

// maxButtonTextLen bounds captured button labels.
const maxButtonTextLen = 50

// InputDetail carries the extra fields captured for input elements, including
// every selector variant that addresses the element.
type InputDetail struct {
	InputType   string   `json:"input_type"`
	Name        string   `json:"name,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Selectors   []string `json:"selectors"`
}

// ButtonDetail carries the extra fields captured for button-like elements.
type ButtonDetail struct {
	ButtonType string   `json:"button_type"`
	Text       string   `json:"text,omitempty"`
	Selectors  []string `json:"selectors"`
}

// LinkDetail carries the href and label of an anchor element.
type LinkDetail struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// AttributeDetail records which allow-listed attribute produced the candidate.
type AttributeDetail struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// FormDetail carries form metadata and selector variants.
type FormDetail struct {
	Action    string   `json:"action,omitempty"`
	Method    string   `json:"method"`
	Selectors []string `json:"selectors"`
}

// Candidate is one DOM-derived selector record. Candidates are created in
// bulk by Extract for a single page snapshot and are immutable afterwards;
// identifiers are never reused across extraction runs.
type Candidate struct {
	ID          string `json:"id"`
	Selector    string `json:"selector"`
	Tag         string `json:"tag"`
	Kind        Kind   `json:"kind"`
	TextContent string `json:"text_content,omitempty"`

	// At most one of these is set, matching Kind.
	Input     *InputDetail     `json:"input,omitempty"`
	Button    *ButtonDetail    `json:"button,omitempty"`
	Link      *LinkDetail      `json:"link,omitempty"`
	Attribute *AttributeDetail `json:"attribute,omitempty"`
	Form      *FormDetail      `json:"form,omitempty"`
}

// Assignment is the classifier's verdict for one candidate. Unmatched
// candidate identifiers are dropped during merge, never invented.
type Assignment struct {
	CandidateID string   `json:"uuid"`
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"`
}

// Enriched joins a candidate with its classification. Pools of enriched
// candidates are built once per page and read-only thereafter.
type Enriched struct {
	Candidate
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
