package selector

import "go.uber.org/zap"

// Group joins candidates with their assignments by candidate identifier and
// buckets the result per category. The join is strict: an assignment whose
// identifier is missing from candidates is logged and dropped, never turned
// into a fabricated record. Pure aside from logging.
func Group(candidates []Candidate, assignments []Assignment, log *zap.Logger) map[Category][]Enriched {
	byID := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	pool := make(map[Category][]Enriched)
	matched, unmatched := 0, 0
	for _, a := range assignments {
		cand, ok := byID[a.CandidateID]
		if !ok {
			unmatched++
			log.Warn("assignment references unknown candidate", zap.String("uuid", a.CandidateID))
			continue
		}
		category := a.Category
		if !category.Valid() {
			category = CategoryUncategorized
		}
		pool[category] = append(pool[category], Enriched{
			Candidate:  cand,
			Category:   category,
			Confidence: a.Confidence,
		})
		matched++
	}

	log.Info("grouped selectors by category",
		zap.Int("matched", matched),
		zap.Int("unmatched", unmatched),
		zap.Int("categories", len(pool)))
	return pool
}
