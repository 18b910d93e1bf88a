package selector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// allowedAttributes is the fixed allow-list of attributes that produce
// attribute-candidates on their own.
var allowedAttributes = []string{
	"data-testid",
	"data-hook",
	"data-component-type",
	"role",
	"aria-label",
	"placeholder",
}

// buttonTypes are the input types treated as buttons.
var buttonTypes = map[string]bool{"button": true, "submit": true, "reset": true}

// extraction tracks per-run de-duplication state. Candidates are de-duplicated
// by exact value within each kind; the first occurrence wins.
type extraction struct {
	base *url.URL
	out  []Candidate
	seen map[Kind]map[string]bool
}

// Extract parses HTML and returns the flat, de-duplicated candidate set for
// one page snapshot. Parsing is lenient: malformed fragments are handled
// best-effort and only empty input is an error. Every candidate receives a
// fresh identifier; identifiers are never reused across runs.
func Extract(html string, baseURL string) ([]Candidate, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("extract: empty html input")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	ex := &extraction{seen: make(map[Kind]map[string]bool)}
	if baseURL != "" {
		// An unparsable base just disables href absolutization.
		ex.base, _ = url.Parse(baseURL)
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		ex.visit(s)
	})

	return ex.out, nil
}

func (ex *extraction) visit(s *goquery.Selection) {
	tag := goquery.NodeName(s)
	text := truncate(collapseSpace(s.Text()), maxTextLen)

	if id, ok := s.Attr("id"); ok && id != "" {
		ex.emit(Candidate{
			Selector:    "#" + id,
			Tag:         tag,
			Kind:        KindID,
			TextContent: text,
		}, id)
	}

	if classAttr, ok := s.Attr("class"); ok {
		for _, class := range strings.Fields(classAttr) {
			ex.emit(Candidate{
				Selector:    "." + class,
				Tag:         tag,
				Kind:        KindClass,
				TextContent: text,
			}, class)
		}
	}

	if name, ok := s.Attr("name"); ok && name != "" {
		ex.emit(Candidate{
			Selector:    fmt.Sprintf("[name='%s']", name),
			Tag:         tag,
			Kind:        KindName,
			TextContent: text,
		}, name)
	}

	if typ, ok := s.Attr("type"); ok && typ != "" && isFormControl(tag) {
		ex.emit(Candidate{
			Selector:    fmt.Sprintf("%s[type='%s']", tag, typ),
			Tag:         tag,
			Kind:        KindType,
			TextContent: text,
		}, tag+"/"+typ)
	}

	for _, attr := range allowedAttributes {
		if val, ok := s.Attr(attr); ok && val != "" {
			sel := fmt.Sprintf("[%s='%s']", attr, val)
			ex.emit(Candidate{
				Selector:    sel,
				Tag:         tag,
				Kind:        KindAttribute,
				TextContent: text,
				Attribute:   &AttributeDetail{Attribute: attr, Value: val},
			}, sel)
		}
	}

	switch tag {
	case "input":
		ex.visitInput(s, text)
	case "a":
		ex.visitLink(s, text)
	case "form":
		ex.visitForm(s)
	}

	if isButton(tag, s) {
		ex.visitButton(s, tag)
	}
}

func (ex *extraction) visitInput(s *goquery.Selection, text string) {
	typ := attrOr(s, "type", "text")
	if buttonTypes[typ] {
		return // handled as a button candidate
	}

	detail := &InputDetail{
		InputType:   typ,
		Name:        attrOr(s, "name", ""),
		Placeholder: attrOr(s, "placeholder", ""),
	}
	if id := attrOr(s, "id", ""); id != "" {
		detail.Selectors = append(detail.Selectors, "#"+id)
	}
	if detail.Name != "" {
		detail.Selectors = append(detail.Selectors, fmt.Sprintf("input[name='%s']", detail.Name))
	}
	detail.Selectors = append(detail.Selectors, fmt.Sprintf("input[type='%s']", typ))
	if detail.Placeholder != "" {
		detail.Selectors = append(detail.Selectors, fmt.Sprintf("input[placeholder='%s']", detail.Placeholder))
	}

	ex.emit(Candidate{
		Selector:    detail.Selectors[0],
		Tag:         "input",
		Kind:        KindInput,
		TextContent: text,
		Input:       detail,
	}, strings.Join(detail.Selectors, "|"))
}

func (ex *extraction) visitButton(s *goquery.Selection, tag string) {
	typ := attrOr(s, "type", "button")
	label := collapseSpace(s.Text())
	if label == "" {
		label = attrOr(s, "value", "")
	}

	detail := &ButtonDetail{
		ButtonType: typ,
		Text:       truncate(label, maxButtonTextLen),
	}
	if id := attrOr(s, "id", ""); id != "" {
		detail.Selectors = append(detail.Selectors, "#"+id)
	}
	if name := attrOr(s, "name", ""); name != "" {
		detail.Selectors = append(detail.Selectors, fmt.Sprintf("%s[name='%s']", tag, name))
	}
	detail.Selectors = append(detail.Selectors, fmt.Sprintf("%s[type='%s']", tag, typ))

	ex.emit(Candidate{
		Selector:    detail.Selectors[0],
		Tag:         tag,
		Kind:        KindButton,
		TextContent: detail.Text,
		Button:      detail,
	}, strings.Join(detail.Selectors, "|"))
}

func (ex *extraction) visitLink(s *goquery.Selection, text string) {
	href, ok := s.Attr("href")
	if !ok || href == "" {
		return
	}

	abs := ex.absolutize(href)
	sel := fmt.Sprintf("a[href='%s']", href)
	if len(href) >= 100 {
		sel = "a"
	}

	ex.emit(Candidate{
		Selector:    sel,
		Tag:         "a",
		Kind:        KindLink,
		TextContent: truncate(text, 100),
		Link:        &LinkDetail{Href: abs, Text: truncate(text, 100)},
	}, href)
}

func (ex *extraction) visitForm(s *goquery.Selection) {
	detail := &FormDetail{
		Action: attrOr(s, "action", ""),
		Method: strings.ToLower(attrOr(s, "method", "get")),
	}
	if id := attrOr(s, "id", ""); id != "" {
		detail.Selectors = append(detail.Selectors, "#"+id)
	}
	if name := attrOr(s, "name", ""); name != "" {
		detail.Selectors = append(detail.Selectors, fmt.Sprintf("form[name='%s']", name))
	}
	if detail.Action != "" {
		detail.Selectors = append(detail.Selectors, fmt.Sprintf("form[action='%s']", detail.Action))
	}
	if len(detail.Selectors) == 0 {
		// Anonymous forms carry nothing addressable; skip silently.
		return
	}

	ex.emit(Candidate{
		Selector: detail.Selectors[0],
		Tag:      "form",
		Kind:     KindForm,
		Form:     detail,
	}, strings.Join(detail.Selectors, "|"))
}

// emit appends a candidate unless its de-duplication key was already seen
// within its kind, assigning a fresh identifier.
func (ex *extraction) emit(c Candidate, key string) {
	kinds := ex.seen[c.Kind]
	if kinds == nil {
		kinds = make(map[string]bool)
		ex.seen[c.Kind] = kinds
	}
	if kinds[key] {
		return
	}
	kinds[key] = true

	c.ID = uuid.NewString()
	ex.out = append(ex.out, c)
}

func (ex *extraction) absolutize(href string) string {
	if ex.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return ex.base.ResolveReference(ref).String()
}

func isFormControl(tag string) bool {
	switch tag {
	case "input", "button", "select", "textarea":
		return true
	}
	return false
}

func isButton(tag string, s *goquery.Selection) bool {
	if tag == "button" {
		return true
	}
	return tag == "input" && buttonTypes[attrOr(s, "type", "")]
}

func attrOr(s *goquery.Selection, name, fallback string) string {
	if v, ok := s.Attr(name); ok {
		return v
	}
	return fallback
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
