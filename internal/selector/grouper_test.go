package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGroupJoinsByCandidateID(t *testing.T) {
	candidates := []Candidate{
		{ID: "c1", Selector: "#search", Tag: "input", Kind: KindID},
		{ID: "c2", Selector: "#login", Tag: "a", Kind: KindID},
		{ID: "c3", Selector: ".footer", Tag: "div", Kind: KindClass},
	}
	assignments := []Assignment{
		{CandidateID: "c1", Category: CategorySearch, Confidence: 0.9},
		{CandidateID: "c2", Category: CategoryAuthentication, Confidence: 0.8},
	}

	pool := Group(candidates, assignments, zap.NewNop())

	require.Len(t, pool[CategorySearch], 1)
	got := pool[CategorySearch][0]
	assert.Equal(t, "#search", got.Selector)
	assert.Equal(t, CategorySearch, got.Category)
	assert.InDelta(t, 0.9, got.Confidence, 0.001)

	require.Len(t, pool[CategoryAuthentication], 1)

	// c3 has no assignment and must not appear anywhere.
	total := 0
	for _, items := range pool {
		total += len(items)
	}
	assert.Equal(t, 2, total)
}

func TestGroupDropsUnknownAssignments(t *testing.T) {
	candidates := []Candidate{{ID: "c1", Selector: "#a", Kind: KindID}}
	assignments := []Assignment{
		{CandidateID: "c1", Category: CategoryNavigation, Confidence: 0.7},
		{CandidateID: "does-not-exist", Category: CategoryNavigation, Confidence: 0.7},
	}

	pool := Group(candidates, assignments, zap.NewNop())
	assert.Len(t, pool[CategoryNavigation], 1)
}

func TestGroupInvalidCategoryLandsInUncategorized(t *testing.T) {
	candidates := []Candidate{{ID: "c1", Selector: "#a", Kind: KindID}}
	assignments := []Assignment{
		{CandidateID: "c1", Category: Category("bogus"), Confidence: 0.5},
	}

	pool := Group(candidates, assignments, zap.NewNop())
	require.Len(t, pool[CategoryUncategorized], 1)
	assert.Equal(t, CategoryUncategorized, pool[CategoryUncategorized][0].Category)
}

func TestGroupEmptyInputs(t *testing.T) {
	pool := Group(nil, nil, zap.NewNop())
	assert.Empty(t, pool)
}
