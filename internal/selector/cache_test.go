package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	candidates := []Candidate{
		{ID: "c1", Selector: "#search", Tag: "input", Kind: KindID},
	}
	require.NoError(t, store.SaveCandidates("login", candidates))

	loaded, ok := store.LoadCandidates("login")
	require.True(t, ok)
	assert.Equal(t, candidates, loaded)

	assignments := []Assignment{
		{CandidateID: "c1", Category: CategorySearch, Confidence: 0.9},
	}
	require.NoError(t, store.SaveAssignments("login", assignments))

	loadedAssignments, ok := store.LoadAssignments("login")
	require.True(t, ok)
	assert.Equal(t, assignments, loadedAssignments)

	pool := map[Category][]Enriched{
		CategorySearch: {{
			Candidate:  candidates[0],
			Category:   CategorySearch,
			Confidence: 0.9,
		}},
	}
	require.NoError(t, store.SavePool("login", pool))

	loadedPool, ok := store.LoadPool("login")
	require.True(t, ok)
	assert.Equal(t, pool, loadedPool)
}

func TestStoreMissingArtifacts(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	_, ok := store.LoadCandidates("never_saved")
	assert.False(t, ok)
	_, ok = store.LoadAssignments("never_saved")
	assert.False(t, ok)
	_, ok = store.LoadPool("never_saved")
	assert.False(t, ok)
}

func TestStoreCorruptArtifactTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zap.NewNop())

	path := filepath.Join(dir, "home_candidates.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok := store.LoadCandidates("home")
	assert.False(t, ok)
}

func TestStoreStageNameSanitized(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zap.NewNop())

	require.NoError(t, store.SaveCandidates("Login Page/2", []Candidate{{ID: "c1"}}))

	_, err := os.Stat(filepath.Join(dir, "login_page_2_candidates.json"))
	require.NoError(t, err)

	_, ok := store.LoadCandidates("Login Page/2")
	assert.True(t, ok)
}
