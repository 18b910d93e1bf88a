package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"selector-agent/internal/llm"
)

const resolveSystemPrompt = `You are a helpful assistant that analyzes web selectors and returns JSON responses.`

// Resolution is the resolver's answer for one intent: the chosen selector
// plus which batch and model produced it. Ephemeral; consumed immediately by
// the caller.
type Resolution struct {
	Intent   Intent `json:"intent"`
	Selector string `json:"selector"`
	Batch    int    `json:"batch"`
	Model    string `json:"model"`
}

// Resolver picks the single best selector for an intent from a
// category-filtered candidate pool.
type Resolver struct {
	client    llm.Chatter
	log       *zap.Logger
	batchSize int
}

func NewResolver(client llm.Chatter, log *zap.Logger, batchSize int) *Resolver {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Resolver{client: client, log: log, batchSize: batchSize}
}

// resolveItem is the per-candidate payload embedded in resolution prompts.
type resolveItem struct {
	Selector   string  `json:"selector"`
	Tag        string  `json:"tag"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence"`
	InputType  string  `json:"input_type,omitempty"`
	Name       string  `json:"name,omitempty"`
	ButtonText string  `json:"button_text,omitempty"`
	Href       string  `json:"href,omitempty"`
}

// Resolve walks the pool in fixed-size batches and returns the first valid
// answer. The answer must be a JSON object with exactly one key whose key and
// value are not "none"/"null" in any casing; anything else moves on to the
// next batch. Returns nil when every batch is exhausted without a valid
// answer — the caller decides what resolution failure means, the resolver
// never retries on its own. First-match-wins is deliberate: a valid early
// answer short-circuits remaining batches even if a later batch might hold a
// higher-confidence match.
func (r *Resolver) Resolve(ctx context.Context, pool []Enriched, intent Intent) (*Resolution, error) {
	if len(pool) == 0 {
		return nil, nil
	}

	spec := promptFor(intent)
	total := len(pool)
	batchNum := 0

	for start := 0; start < total; start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchNum++
		end := start + r.batchSize
		if end > total {
			end = total
		}

		items := buildResolveItems(pool[start:end])
		if len(items) == 0 {
			continue
		}
		payload, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("resolve: marshal batch: %w", err)
		}

		response, err := r.client.Chat(ctx, resolveSystemPrompt, resolvePrompt(spec, string(payload)))
		if err != nil {
			r.log.Warn("resolution batch failed",
				zap.String("intent", string(intent)),
				zap.Int("batch", batchNum),
				zap.Error(err))
			continue
		}

		sel, ok := extractAnswer(response)
		if !ok {
			r.log.Debug("no valid answer in batch",
				zap.String("intent", string(intent)),
				zap.Int("batch", batchNum))
			continue
		}

		r.log.Info("intent resolved",
			zap.String("intent", string(intent)),
			zap.String("selector", sel),
			zap.Int("batch", batchNum))
		return &Resolution{
			Intent:   intent,
			Selector: sel,
			Batch:    batchNum,
			Model:    r.client.Model(),
		}, nil
	}

	r.log.Warn("no valid selector found",
		zap.String("intent", string(intent)),
		zap.Int("candidates", total),
		zap.Int("batches", batchNum))
	return nil, nil
}

func buildResolveItems(batch []Enriched) []resolveItem {
	items := make([]resolveItem, 0, len(batch))
	for _, e := range batch {
		if e.Selector == "" {
			continue
		}
		item := resolveItem{
			Selector:   e.Selector,
			Tag:        e.Tag,
			Text:       truncate(e.TextContent, maxTextLen),
			Confidence: e.Confidence,
		}
		if e.Input != nil {
			item.InputType = e.Input.InputType
			item.Name = e.Input.Name
		}
		if e.Button != nil {
			item.ButtonText = truncate(e.Button.Text, maxButtonTextLen)
		}
		if e.Link != nil {
			item.Href = truncate(e.Link.Href, 50)
		}
		items = append(items, item)
	}
	return items
}

func resolvePrompt(spec promptSpec, payload string) string {
	return fmt.Sprintf(`Find the BEST selector for %s.

SELECTORS:
%s

CRITERIA: %s

Return JSON: {"%s": "exact_selector_string"}`, spec.need, payload, spec.criteria, spec.key)
}

// extractAnswer validates one batch response: must parse as JSON, must hold
// exactly one key, and neither key nor value may spell "none" or "null".
// This guards against the model declining in syntactically valid JSON. The
// key name itself is not enforced; models occasionally rename it and the
// single key/value shape is the real contract.
func extractAnswer(response string) (string, bool) {
	parsed := llm.Parse(response)
	if !parsed.OK {
		return "", false
	}

	var obj map[string]string
	if err := parsed.Decode(&obj); err != nil {
		return "", false
	}
	if len(obj) != 1 {
		return "", false
	}

	for key, value := range obj {
		if isNullish(key) || isNullish(value) {
			return "", false
		}
		return value, true
	}
	return "", false
}

func isNullish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return true
	}
	return false
}
