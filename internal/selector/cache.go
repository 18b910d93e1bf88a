package selector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store persists pipeline artifacts as JSON files keyed by page stage name
// (for example "login", "search_results"). Artifacts are optional: a missing
// file is not an error, it just means the stage gets recomputed.
type Store struct {
	dir string
	log *zap.Logger
}

func NewStore(dir string, log *zap.Logger) *Store {
	return &Store{dir: dir, log: log}
}

func (s *Store) candidatesPath(stage string) string {
	return filepath.Join(s.dir, sanitizeStage(stage)+"_candidates.json")
}

func (s *Store) assignmentsPath(stage string) string {
	return filepath.Join(s.dir, sanitizeStage(stage)+"_assignments.json")
}

func (s *Store) poolPath(stage string) string {
	return filepath.Join(s.dir, sanitizeStage(stage)+"_grouped.json")
}

// SaveCandidates writes the extracted candidate set for a stage.
func (s *Store) SaveCandidates(stage string, candidates []Candidate) error {
	return s.write(s.candidatesPath(stage), candidates)
}

// LoadCandidates reads a previously saved candidate set. The second return
// value reports whether the artifact existed and decoded cleanly.
func (s *Store) LoadCandidates(stage string) ([]Candidate, bool) {
	var out []Candidate
	return out, s.read(s.candidatesPath(stage), &out)
}

// SaveAssignments writes the classification results for a stage.
func (s *Store) SaveAssignments(stage string, assignments []Assignment) error {
	return s.write(s.assignmentsPath(stage), assignments)
}

// LoadAssignments reads previously saved classification results.
func (s *Store) LoadAssignments(stage string) ([]Assignment, bool) {
	var out []Assignment
	return out, s.read(s.assignmentsPath(stage), &out)
}

// SavePool writes the grouped per-category pool for a stage.
func (s *Store) SavePool(stage string, pool map[Category][]Enriched) error {
	return s.write(s.poolPath(stage), pool)
}

// LoadPool reads a previously saved grouped pool. When present it is used
// verbatim, skipping extraction and classification entirely.
func (s *Store) LoadPool(stage string) (map[Category][]Enriched, bool) {
	var out map[Category][]Enriched
	return out, s.read(s.poolPath(stage), &out)
}

func (s *Store) write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", path, err)
	}
	s.log.Debug("cache artifact written", zap.String("path", path))
	return nil
}

func (s *Store) read(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A corrupt artifact is treated as absent and rebuilt.
		s.log.Warn("discarding unreadable cache artifact",
			zap.String("path", path), zap.Error(err))
		return false
	}
	s.log.Info("cache artifact loaded", zap.String("path", path))
	return true
}

func sanitizeStage(stage string) string {
	stage = strings.TrimSpace(strings.ToLower(stage))
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", ".", "_")
	return replacer.Replace(stage)
}
