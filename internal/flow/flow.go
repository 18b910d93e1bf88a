// Package flow runs the end-to-end shopping-site walk: sign in, search for a
// product, open it and harvest its reviews, resolving every selector it
// touches at runtime instead of hardcoding them.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"selector-agent/internal/action"
	"selector-agent/internal/browser"
	"selector-agent/internal/engine"
	"selector-agent/internal/selector"
)

// Stage names identify the cached artifact set for each distinct page shape.
const (
	StageHome          = "home"
	StageLoginEmail    = "login_email"
	StageLoginPassword = "login_password"
	StageSearchResults = "search_results"
	StageProduct       = "product"
	StageReviews       = "reviews"
)

// Credentials holds the account used for the sign-in leg.
type Credentials struct {
	Username string
	Password string
}

// Options configures one flow run.
type Options struct {
	SiteURL        string
	Query          string
	Credentials    Credentials
	MaxReviewPages int
	ResultsDir     string
}

type Flow struct {
	eng  *engine.Engine
	drv  browser.Driver
	log  *zap.Logger
	opts Options
}

func New(eng *engine.Engine, drv browser.Driver, log *zap.Logger, opts Options) *Flow {
	if opts.MaxReviewPages <= 0 {
		opts.MaxReviewPages = 5
	}
	return &Flow{eng: eng, drv: drv, log: log, opts: opts}
}

// Run walks the whole flow and returns the harvested reviews. Reviews are
// also written to the results directory as JSON.
func (f *Flow) Run(ctx context.Context) ([]Review, error) {
	f.log.Info("starting flow",
		zap.String("site", f.opts.SiteURL),
		zap.String("query", f.opts.Query))

	if err := f.drv.Navigate(ctx, f.opts.SiteURL); err != nil {
		return nil, fmt.Errorf("opening site: %w", err)
	}

	if f.opts.Credentials.Username != "" {
		if err := f.login(ctx); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}

	if err := f.search(ctx); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if err := f.openProduct(ctx); err != nil {
		return nil, fmt.Errorf("opening product: %w", err)
	}
	if err := f.openReviews(ctx); err != nil {
		return nil, fmt.Errorf("opening reviews: %w", err)
	}

	reviews, err := f.harvestReviews(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvesting reviews: %w", err)
	}

	if err := f.saveResults(reviews); err != nil {
		f.log.Warn("saving results failed", zap.Error(err))
	}
	return reviews, nil
}

// login clicks through the two-page sign-in: the email page first, then the
// password page. Each page gets its own selector pool since the DOM differs.
func (f *Flow) login(ctx context.Context) error {
	home, err := f.eng.PoolForPage(ctx, StageHome)
	if err != nil {
		return err
	}

	signInPool := merge(home,
		selector.CategoryNavigation,
		selector.CategoryAuthentication,
		selector.CategoryUncategorized)

	err = f.eng.RunIntent(ctx, signInPool, selector.IntentSignIn, action.TypeClick, "",
		action.WaitCondition{Kind: action.WaitURL, URLPattern: "signin", Timeout: 10 * time.Second})
	if err != nil {
		return err
	}

	email, err := f.eng.PoolForPage(ctx, StageLoginEmail)
	if err != nil {
		return err
	}
	authPool := merge(email, selector.CategoryAuthentication, selector.CategoryUncategorized)

	err = f.eng.RunIntent(ctx, authPool, selector.IntentUsername, action.TypeFill,
		f.opts.Credentials.Username, action.WaitCondition{})
	if err != nil {
		return err
	}
	err = f.eng.RunIntent(ctx, authPool, selector.IntentSubmitButton, action.TypeClick, "",
		action.WaitCondition{Kind: action.WaitSelector, Selector: "input[type='password']", Timeout: 10 * time.Second})
	if err != nil {
		return err
	}

	pw, err := f.eng.PoolForPage(ctx, StageLoginPassword)
	if err != nil {
		return err
	}
	pwPool := merge(pw, selector.CategoryAuthentication, selector.CategoryUncategorized)

	err = f.eng.RunIntent(ctx, pwPool, selector.IntentPassword, action.TypeFill,
		f.opts.Credentials.Password, action.WaitCondition{})
	if err != nil {
		return err
	}
	err = f.eng.RunIntent(ctx, pwPool, selector.IntentSubmitButton, action.TypeClick, "",
		action.WaitCondition{Kind: action.WaitLoad, Timeout: 15 * time.Second})
	if err != nil {
		return err
	}

	f.log.Info("signed in")
	return nil
}

func (f *Flow) search(ctx context.Context) error {
	home, err := f.eng.PoolForPage(ctx, StageHome)
	if err != nil {
		return err
	}
	searchPool := merge(home, selector.CategorySearch, selector.CategoryUncategorized)

	err = f.eng.RunIntent(ctx, searchPool, selector.IntentSearchBar, action.TypeFill,
		f.opts.Query, action.WaitCondition{})
	if err != nil {
		return err
	}
	return f.eng.RunIntent(ctx, searchPool, selector.IntentSearchButton, action.TypeClick, "",
		action.WaitCondition{Kind: action.WaitURL, URLPattern: "s?k=", Timeout: 15 * time.Second})
}

func (f *Flow) openProduct(ctx context.Context) error {
	results, err := f.eng.PoolForPage(ctx, StageSearchResults)
	if err != nil {
		return err
	}
	listingPool := merge(results,
		selector.CategoryListing,
		selector.CategoryProductDetails,
		selector.CategoryUncategorized)

	return f.eng.RunIntent(ctx, listingPool, selector.IntentProductLink, action.TypeClick, "",
		action.WaitCondition{Kind: action.WaitLoad, Timeout: 15 * time.Second})
}

func (f *Flow) openReviews(ctx context.Context) error {
	product, err := f.eng.PoolForPage(ctx, StageProduct)
	if err != nil {
		return err
	}
	detailPool := merge(product,
		selector.CategoryProductDetails,
		selector.CategorySupport,
		selector.CategoryUncategorized)

	return f.eng.RunIntent(ctx, detailPool, selector.IntentReviewLink, action.TypeClick, "",
		action.WaitCondition{Kind: action.WaitURL, URLPattern: "review", Timeout: 15 * time.Second})
}

// merge concatenates the named category slices from a grouped pool,
// preserving category order.
func merge(pool map[selector.Category][]selector.Enriched, cats ...selector.Category) []selector.Enriched {
	var out []selector.Enriched
	for _, cat := range cats {
		out = append(out, pool[cat]...)
	}
	return out
}

// selectorOrDefault resolves an intent and falls back to a known-good
// default when the pool has nothing. Harvesting tolerates missing field
// selectors; the container selector never falls back silently.
func (f *Flow) selectorOrDefault(ctx context.Context, pool []selector.Enriched, intent selector.Intent, def string) string {
	res, err := f.eng.ResolveIntent(ctx, pool, intent)
	if err != nil || res == nil {
		if def != "" {
			f.log.Warn("intent unresolved, using default selector",
				zap.String("intent", string(intent)),
				zap.String("default", def))
		}
		return def
	}
	return res.Selector
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
