package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"selector-agent/internal/llm"
)

// classifySystemPrompt pins the closed category set and the strict output
// contract. Prose or markdown around the array is tolerated by the parser,
// but the prompt forbids it to keep small models honest.
const classifySystemPrompt = `You are an expert web scraper and UI analyst. ` +
	`You classify CSS selectors extracted from an e-commerce website into exactly one category each. ` +
	`Respond only with a valid JSON array, no prose.`

// Classifier assigns a semantic category to each candidate by batching them
// to one or more model endpoints. Batches are independent: a failed batch is
// skipped, and only total failure falls back to keyword rules.
type Classifier struct {
	clients    []llm.Chatter
	log        *zap.Logger
	batchSize  int
	concurrent int
	delay      time.Duration
}

// NewClassifier builds a classifier over the given model clients. Batches are
// spread round-robin across clients, each bounded by its own concurrency
// limit; a fixed delay between calls on the same worker throttles bursts.
func NewClassifier(clients []llm.Chatter, log *zap.Logger, batchSize, concurrentPerModel int, delay time.Duration) *Classifier {
	if batchSize <= 0 {
		batchSize = 20
	}
	if concurrentPerModel <= 0 {
		concurrentPerModel = 1
	}
	return &Classifier{
		clients:    clients,
		log:        log,
		batchSize:  batchSize,
		concurrent: concurrentPerModel,
		delay:      delay,
	}
}

// classifyItem is the compact per-candidate payload sent to the model.
type classifyItem struct {
	UUID      string `json:"uuid"`
	Selector  string `json:"selector"`
	Tag       string `json:"tag"`
	Text      string `json:"text,omitempty"`
	InputType string `json:"input_type,omitempty"`
	Name      string `json:"name,omitempty"`
	ButtonTxt string `json:"button_text,omitempty"`
	Href      string `json:"href,omitempty"`
}

// Classify returns one assignment per successfully categorized candidate.
// Results are merged by candidate identifier, so batch completion order does
// not matter. Candidate identifiers absent from a response are logged and
// dropped; identifiers invented by the model are discarded. If every batch
// fails, the deterministic keyword fallback classifies the whole set.
func (c *Classifier) Classify(ctx context.Context, candidates []Candidate) ([]Assignment, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(c.clients) == 0 {
		return nil, fmt.Errorf("classify: no model clients configured")
	}

	batches := splitBatches(candidates, c.batchSize)
	results := make([][]Assignment, len(batches))

	// Each batch writes only its own slot, so the merge below needs no lock.
	var wg sync.WaitGroup
	sems := make([]chan struct{}, len(c.clients))
	for i := range sems {
		sems[i] = make(chan struct{}, c.concurrent)
	}

	for i, batch := range batches {
		clientIdx := i % len(c.clients)
		wg.Add(1)
		go func(slot int, batch []Candidate, clientIdx int) {
			defer wg.Done()
			sem := sems[clientIdx]
			sem <- struct{}{}
			defer func() { <-sem }()

			if c.delay > 0 && slot >= len(c.clients)*c.concurrent {
				// Crude burst throttle; call volume is bounded by page
				// size, so a token bucket is not worth its weight here.
				time.Sleep(c.delay)
			}

			assignments, err := c.classifyBatch(ctx, c.clients[clientIdx], batch)
			if err != nil {
				c.log.Warn("classification batch failed",
					zap.Int("batch", slot+1),
					zap.String("model", c.clients[clientIdx].Model()),
					zap.Error(err))
				return
			}
			results[slot] = assignments
		}(i, batch, clientIdx)
	}
	wg.Wait()

	known := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		known[cand.ID] = true
	}

	var merged []Assignment
	assigned := make(map[string]bool)
	succeeded := 0
	for slot, batch := range results {
		if batch == nil {
			continue
		}
		succeeded++
		for _, a := range batch {
			switch {
			case !known[a.CandidateID]:
				c.log.Warn("dropping assignment for unknown candidate",
					zap.Int("batch", slot+1), zap.String("uuid", a.CandidateID))
			case assigned[a.CandidateID]:
				c.log.Warn("dropping duplicate assignment",
					zap.Int("batch", slot+1), zap.String("uuid", a.CandidateID))
			default:
				assigned[a.CandidateID] = true
				merged = append(merged, a)
			}
		}
	}

	if succeeded == 0 {
		c.log.Warn("all classification batches failed, using keyword fallback",
			zap.Int("batches", len(batches)))
		return c.fallbackClassify(candidates), nil
	}

	for _, cand := range candidates {
		if !assigned[cand.ID] {
			c.log.Debug("candidate left unclassified", zap.String("selector", cand.Selector))
		}
	}

	return merged, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, client llm.Chatter, batch []Candidate) ([]Assignment, error) {
	items := make([]classifyItem, 0, len(batch))
	for _, cand := range batch {
		item := classifyItem{
			UUID:     cand.ID,
			Selector: cand.Selector,
			Tag:      cand.Tag,
			Text:     truncate(cand.TextContent, 100),
		}
		if cand.Input != nil {
			item.InputType = cand.Input.InputType
			item.Name = cand.Input.Name
		}
		if cand.Button != nil {
			item.ButtonTxt = cand.Button.Text
		}
		if cand.Link != nil {
			item.Href = truncate(cand.Link.Href, 100)
		}
		items = append(items, item)
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	response, err := client.Chat(ctx, classifySystemPrompt, classifyPrompt(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}

	parsed := llm.Parse(response)
	if !parsed.OK {
		return nil, fmt.Errorf("malformed response: %s", truncate(parsed.Raw, 200))
	}

	var assignments []Assignment
	if err := parsed.Decode(&assignments); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}

	for i := range assignments {
		if !assignments[i].Category.Valid() {
			assignments[i].Category = CategoryUncategorized
		}
		if assignments[i].Confidence < 0 {
			assignments[i].Confidence = 0
		}
		if assignments[i].Confidence > 1 {
			assignments[i].Confidence = 1
		}
	}
	return assignments, nil
}

func classifyPrompt(payload string) string {
	var b strings.Builder
	b.WriteString("Categorize each selector below into exactly ONE category.\n\n")
	b.WriteString("CATEGORIES (use these exact keys):\n")
	b.WriteString(`1. "navigation_layout" - navigation menus, headers, footers, breadcrumbs, page structure` + "\n")
	b.WriteString(`2. "authentication_account" - login forms, registration, user profile, sign-in/sign-up elements` + "\n")
	b.WriteString(`3. "search_filters" - search bars, filter controls, sorting options, query inputs` + "\n")
	b.WriteString(`4. "category_listing" - product lists, category pages, pagination, product cards` + "\n")
	b.WriteString(`5. "product_details" - product pages, specifications, reviews, ratings, add to cart` + "\n")
	b.WriteString(`6. "support_misc" - help, contact, customer service, notifications, everything else` + "\n")
	b.WriteString(`7. "uncategorized" - only when no category plausibly applies` + "\n\n")
	b.WriteString("SELECTORS:\n")
	b.WriteString(payload)
	b.WriteString("\n\nClassify by the PRIMARY function of each element. Confidence to two decimals.\n")
	b.WriteString(`Return a JSON array only: [{"uuid": "...", "category": "...", "confidence": 0.85}]`)
	return b.String()
}

// fallbackClassify applies the keyword rule table when no model endpoint
// produced a usable batch.
func (c *Classifier) fallbackClassify(candidates []Candidate) []Assignment {
	out := make([]Assignment, 0, len(candidates))
	for _, cand := range candidates {
		category, confidence := classifyByKeyword(cand.Selector)
		out = append(out, Assignment{
			CandidateID: cand.ID,
			Category:    category,
			Confidence:  confidence,
		})
	}
	return out
}

func splitBatches(candidates []Candidate, size int) [][]Candidate {
	var batches [][]Candidate
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		batches = append(batches, candidates[start:end])
	}
	return batches
}
