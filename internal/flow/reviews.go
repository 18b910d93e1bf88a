package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"selector-agent/internal/action"
	"selector-agent/internal/selector"
)

// Review is one harvested product review.
type Review struct {
	Text     string  `json:"text"`
	Reviewer string  `json:"reviewer,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Date     string  `json:"date,omitempty"`
	Verified bool    `json:"verified"`
	Page     int     `json:"page"`
}

// reviewSelectors are the per-field selectors used inside each review
// container. Defaults cover the common data-hook layout; resolution
// overrides them per site.
type reviewSelectors struct {
	container string
	text      string
	rating    string
	reviewer  string
	date      string
	nextPage  string
}

func (f *Flow) harvestReviews(ctx context.Context) ([]Review, error) {
	grouped, err := f.eng.PoolForPage(ctx, StageReviews)
	if err != nil {
		return nil, err
	}
	pool := merge(grouped,
		selector.CategoryProductDetails,
		selector.CategorySupport,
		selector.CategoryUncategorized)

	sels := reviewSelectors{
		container: f.selectorOrDefault(ctx, pool, selector.IntentReviewContainer, "[data-hook='review']"),
		text:      f.selectorOrDefault(ctx, pool, selector.IntentReviewText, "[data-hook='review-body']"),
		rating:    f.selectorOrDefault(ctx, pool, selector.IntentReviewRating, "[data-hook='review-star-rating']"),
		reviewer:  f.selectorOrDefault(ctx, pool, selector.IntentReviewerName, ".a-profile-name"),
		date:      f.selectorOrDefault(ctx, pool, selector.IntentReviewDate, "[data-hook='review-date']"),
		nextPage:  f.selectorOrDefault(ctx, pool, selector.IntentNextPage, "li.a-last a"),
	}

	var reviews []Review
	for page := 1; page <= f.opts.MaxReviewPages; page++ {
		html, err := f.drv.HTML(ctx)
		if err != nil {
			return reviews, fmt.Errorf("reading reviews page %d: %w", page, err)
		}

		pageReviews, err := parseReviews(html, sels, page)
		if err != nil {
			return reviews, err
		}
		reviews = append(reviews, pageReviews...)
		f.log.Info("harvested review page",
			zap.Int("page", page),
			zap.Int("reviews", len(pageReviews)),
			zap.Int("total", len(reviews)))

		if page == f.opts.MaxReviewPages {
			break
		}
		more, err := f.nextReviewPage(ctx, sels.nextPage)
		if err != nil {
			return reviews, err
		}
		if !more {
			f.log.Info("no further review pages", zap.Int("last_page", page))
			break
		}
	}
	return reviews, nil
}

// nextReviewPage advances pagination. It reports false when the next link is
// missing or disabled, which is how the last page presents itself.
func (f *Flow) nextReviewPage(ctx context.Context, nextSel string) (bool, error) {
	n, err := f.drv.Count(ctx, nextSel)
	if err != nil || n == 0 {
		return false, nil
	}
	if disabled, err := f.drv.Count(ctx, "li.a-last.a-disabled"); err == nil && disabled > 0 {
		return false, nil
	}

	err = f.eng.Apply(ctx,
		action.Action{Type: action.TypeClick, Selector: nextSel},
		action.WaitCondition{Kind: action.WaitLoad, Timeout: 15 * time.Second})
	if err != nil {
		return false, fmt.Errorf("clicking next page: %w", err)
	}

	// Review lists re-render in place; give the new batch a moment.
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(2 * time.Second):
	}
	return true, nil
}

func parseReviews(html string, sels reviewSelectors, page int) ([]Review, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing reviews page: %w", err)
	}

	var reviews []Review
	doc.Find(sels.container).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Find(sels.text).First().Text())
		if text == "" {
			return
		}
		reviews = append(reviews, Review{
			Text:     text,
			Reviewer: cleanText(s.Find(sels.reviewer).First().Text()),
			Rating:   parseRating(s.Find(sels.rating).First().Text()),
			Date:     cleanText(s.Find(sels.date).First().Text()),
			Verified: containsFold(s.Text(), "verified purchase"),
			Page:     page,
		})
	})
	return reviews, nil
}

// parseRating pulls the leading number out of strings like
// "4.0 out of 5 stars".
func parseRating(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	fields := strings.Fields(s)
	rating, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return rating
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type resultsFile struct {
	Query       string    `json:"query"`
	HarvestedAt time.Time `json:"harvested_at"`
	Count       int       `json:"count"`
	Reviews     []Review  `json:"reviews"`
}

func (f *Flow) saveResults(reviews []Review) error {
	dir := f.opts.ResultsDir
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	out := resultsFile{
		Query:       f.opts.Query,
		HarvestedAt: time.Now(),
		Count:       len(reviews),
		Reviews:     reviews,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, fmt.Sprintf("reviews_%s.json", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	f.log.Info("wrote results", zap.String("path", path), zap.Int("reviews", len(reviews)))
	return nil
}
