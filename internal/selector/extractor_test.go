package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bySelector(t *testing.T, candidates []Candidate, sel string) Candidate {
	t.Helper()
	for _, c := range candidates {
		if c.Selector == sel {
			return c
		}
	}
	t.Fatalf("no candidate with selector %q", sel)
	return Candidate{}
}

func hasSelector(candidates []Candidate, sel string) bool {
	for _, c := range candidates {
		if c.Selector == sel {
			return true
		}
	}
	return false
}

func TestExtractEmptyInput(t *testing.T) {
	_, err := Extract("", "")
	require.Error(t, err)

	_, err = Extract("   \n\t", "")
	require.Error(t, err)
}

func TestExtractIDAndClasses(t *testing.T) {
	html := `<div id="nav-main" class="header sticky"><span class="header">Shop</span></div>`

	candidates, err := Extract(html, "")
	require.NoError(t, err)

	nav := bySelector(t, candidates, "#nav-main")
	assert.Equal(t, KindID, nav.Kind)
	assert.Equal(t, "div", nav.Tag)

	assert.True(t, hasSelector(candidates, ".header"))
	assert.True(t, hasSelector(candidates, ".sticky"))

	// Same class on a second element must not produce a second candidate.
	count := 0
	for _, c := range candidates {
		if c.Selector == ".header" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractInputVariants(t *testing.T) {
	html := `<input id="email-field" name="email" type="email" placeholder="Your email">`

	candidates, err := Extract(html, "")
	require.NoError(t, err)

	var input Candidate
	for _, c := range candidates {
		if c.Kind == KindInput {
			input = c
		}
	}
	require.NotNil(t, input.Input)

	assert.Equal(t, "#email-field", input.Selector)
	assert.Equal(t, "email", input.Input.InputType)
	assert.Equal(t, "email", input.Input.Name)
	assert.Equal(t, []string{
		"#email-field",
		"input[name='email']",
		"input[type='email']",
		"input[placeholder='Your email']",
	}, input.Input.Selectors)

	// The allow-listed placeholder attribute yields its own candidate.
	attr := bySelector(t, candidates, "[placeholder='Your email']")
	assert.Equal(t, KindAttribute, attr.Kind)
}

func TestExtractButtonInputIsNotAnInputCandidate(t *testing.T) {
	html := `<input type="submit" value="Place order">`

	candidates, err := Extract(html, "")
	require.NoError(t, err)

	for _, c := range candidates {
		assert.NotEqual(t, KindInput, c.Kind)
	}

	var button Candidate
	for _, c := range candidates {
		if c.Kind == KindButton {
			button = c
		}
	}
	require.NotNil(t, button.Button)
	assert.Equal(t, "Place order", button.Button.Text)
	assert.Equal(t, "submit", button.Button.ButtonType)
}

func TestExtractButtonTextTruncated(t *testing.T) {
	long := strings.Repeat("buy now ", 20)
	html := `<button id="cta">` + long + `</button>`

	candidates, err := Extract(html, "")
	require.NoError(t, err)

	var button Candidate
	for _, c := range candidates {
		if c.Kind == KindButton {
			button = c
		}
	}
	require.NotNil(t, button.Button)
	assert.LessOrEqual(t, len(button.Button.Text), 50)
}

func TestExtractLinkAbsolutizesHref(t *testing.T) {
	html := `<a href="/deals/today">Today's Deals</a>`

	candidates, err := Extract(html, "https://shop.example.com/home")
	require.NoError(t, err)

	link := bySelector(t, candidates, "a[href='/deals/today']")
	require.NotNil(t, link.Link)
	assert.Equal(t, "https://shop.example.com/deals/today", link.Link.Href)
	assert.Equal(t, "Today's Deals", link.Link.Text)
}

func TestExtractLongHrefFallsBackToBareAnchor(t *testing.T) {
	href := "/gp/ref=" + strings.Repeat("x", 120)
	html := `<a href="` + href + `">Link</a>`

	candidates, err := Extract(html, "")
	require.NoError(t, err)

	assert.True(t, hasSelector(candidates, "a"))
	assert.False(t, hasSelector(candidates, "a[href='"+href+"']"))
}

func TestExtractAnonymousFormSkipped(t *testing.T) {
	html := `<form><input type="text" name="q"></form>`

	candidates, err := Extract(html, "")
	require.NoError(t, err)

	for _, c := range candidates {
		assert.NotEqual(t, KindForm, c.Kind)
	}
}

func TestExtractAssignsFreshUniqueIDs(t *testing.T) {
	html := `<div id="a" class="x"><a href="/p">p</a></div>`

	first, err := Extract(html, "")
	require.NoError(t, err)
	second, err := Extract(html, "")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range first {
		require.NotEmpty(t, c.ID)
		require.False(t, seen[c.ID], "duplicate id within one run")
		seen[c.ID] = true
	}
	for _, c := range second {
		assert.False(t, seen[c.ID], "id reused across runs")
	}

	// Identifiers aside, the same markup must always yield the same
	// candidates in the same order.
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind)
		assert.Equal(t, first[i].Selector, second[i].Selector)
		assert.Equal(t, first[i].Tag, second[i].Tag)
	}
}
