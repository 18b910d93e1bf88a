package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"selector-agent/internal/llm"
)

var uuidPattern = regexp.MustCompile(`"uuid":"([^"]+)"`)

// echoChatter answers every classification batch by assigning a fixed
// category to every uuid it finds in the prompt. failOn makes batches whose
// prompt mentions that marker fail, so batch isolation can be exercised.
type echoChatter struct {
	category   Category
	confidence float64
	failOn     string

	mu    sync.Mutex
	calls int
}

func (e *echoChatter) Chat(_ context.Context, _ string, user string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.failOn != "" && strings.Contains(user, e.failOn) {
		return "", errors.New("model endpoint 500: overloaded")
	}

	var out []Assignment
	for _, m := range uuidPattern.FindAllStringSubmatch(user, -1) {
		out = append(out, Assignment{
			CandidateID: m[1],
			Category:    e.category,
			Confidence:  e.confidence,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *echoChatter) Model() string { return "echo-test" }

// staticChatter returns the same canned response for every call.
type staticChatter struct {
	response string
	err      error
}

func (s *staticChatter) Chat(context.Context, string, string) (string, error) {
	return s.response, s.err
}

func (s *staticChatter) Model() string { return "static-test" }

func makeCandidates(selectors ...string) []Candidate {
	out := make([]Candidate, 0, len(selectors))
	for i, sel := range selectors {
		out = append(out, Candidate{
			ID:       fmt.Sprintf("cand-%d", i+1),
			Selector: sel,
			Tag:      "div",
			Kind:     KindID,
		})
	}
	return out
}

func TestClassifyMergesAllBatches(t *testing.T) {
	chatter := &echoChatter{category: CategoryNavigation, confidence: 0.9}
	c := NewClassifier([]llm.Chatter{chatter}, zap.NewNop(), 2, 1, 0)

	candidates := makeCandidates("#a", "#b", "#c", "#d", "#e")
	assignments, err := c.Classify(context.Background(), candidates)
	require.NoError(t, err)

	require.Len(t, assignments, 5)
	got := make(map[string]bool)
	for _, a := range assignments {
		assert.Equal(t, CategoryNavigation, a.Category)
		got[a.CandidateID] = true
	}
	for _, cand := range candidates {
		assert.True(t, got[cand.ID], "missing assignment for %s", cand.ID)
	}
	assert.Equal(t, 3, chatter.calls)
}

func TestClassifyFailedBatchIsSkipped(t *testing.T) {
	// Batch size 2: the batch containing #poison fails, the other survives.
	chatter := &echoChatter{category: CategorySearch, confidence: 0.8, failOn: "#poison"}
	c := NewClassifier([]llm.Chatter{chatter}, zap.NewNop(), 2, 1, 0)

	candidates := makeCandidates("#a", "#b", "#poison", "#d")
	assignments, err := c.Classify(context.Background(), candidates)
	require.NoError(t, err)

	require.Len(t, assignments, 2)
	assert.Equal(t, "cand-1", assignments[0].CandidateID)
	assert.Equal(t, "cand-2", assignments[1].CandidateID)
}

func TestClassifyAllBatchesFailedUsesKeywordFallback(t *testing.T) {
	chatter := &staticChatter{err: errors.New("connection refused")}
	c := NewClassifier([]llm.Chatter{chatter}, zap.NewNop(), 2, 1, 0)

	candidates := makeCandidates("#nav-menu", "#login-form", "#mystery-widget")
	assignments, err := c.Classify(context.Background(), candidates)
	require.NoError(t, err)
	require.Len(t, assignments, 3)

	byID := make(map[string]Assignment)
	for _, a := range assignments {
		byID[a.CandidateID] = a
	}
	assert.Equal(t, CategoryNavigation, byID["cand-1"].Category)
	assert.InDelta(t, 0.7, byID["cand-1"].Confidence, 0.001)
	assert.Equal(t, CategoryAuthentication, byID["cand-2"].Category)
	assert.InDelta(t, 0.8, byID["cand-2"].Confidence, 0.001)
	assert.Equal(t, CategorySupport, byID["cand-3"].Category)
	assert.InDelta(t, 0.5, byID["cand-3"].Confidence, 0.001)
}

func TestClassifyDropsUnknownAndRepairsInvalid(t *testing.T) {
	response := `[
		{"uuid": "cand-1", "category": "search_filters", "confidence": 0.9},
		{"uuid": "ghost-uuid", "category": "search_filters", "confidence": 0.9},
		{"uuid": "cand-2", "category": "made_up_category", "confidence": 1.7}
	]`
	c := NewClassifier([]llm.Chatter{&staticChatter{response: response}}, zap.NewNop(), 10, 1, 0)

	assignments, err := c.Classify(context.Background(), makeCandidates("#a", "#b"))
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	assert.Equal(t, CategorySearch, assignments[0].Category)
	assert.Equal(t, CategoryUncategorized, assignments[1].Category)
	assert.Equal(t, 1.0, assignments[1].Confidence)
}

func TestClassifyEmptyInput(t *testing.T) {
	c := NewClassifier([]llm.Chatter{&staticChatter{response: "[]"}}, zap.NewNop(), 10, 1, 0)

	assignments, err := c.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestClassifyNoClients(t *testing.T) {
	c := NewClassifier(nil, zap.NewNop(), 10, 1, 0)

	_, err := c.Classify(context.Background(), makeCandidates("#a"))
	require.Error(t, err)
}
