package selector

import "strings"

// Category is one of the coarse semantic buckets a candidate can land in.
type Category string

const (
	CategoryNavigation     Category = "navigation_layout"
	CategoryAuthentication Category = "authentication_account"
	CategorySearch         Category = "search_filters"
	CategoryListing        Category = "category_listing"
	CategoryProductDetails Category = "product_details"
	CategorySupport        Category = "support_misc"
	CategoryUncategorized  Category = "uncategorized"
)

// AllCategories returns the closed set of categories the classifier may emit.
func AllCategories() []Category {
	return []Category{
		CategoryNavigation,
		CategoryAuthentication,
		CategorySearch,
		CategoryListing,
		CategoryProductDetails,
		CategorySupport,
		CategoryUncategorized,
	}
}

// Valid reports whether c is a known category value.
func (c Category) Valid() bool {
	switch c {
	case CategoryNavigation, CategoryAuthentication, CategorySearch,
		CategoryListing, CategoryProductDetails, CategorySupport,
		CategoryUncategorized:
		return true
	}
	return false
}

// keywordRule maps selector-substring vocabulary to a category with a fixed,
// deliberately lower confidence. Used only when every classification batch
// fails, so the pipeline never stalls on a dead model endpoint.
type keywordRule struct {
	keywords   []string
	category   Category
	confidence float64
}

var keywordRules = []keywordRule{
	{
		keywords:   []string{"nav", "menu", "header", "footer", "breadcrumb", "sidebar", "banner"},
		category:   CategoryNavigation,
		confidence: 0.7,
	},
	{
		keywords:   []string{"login", "signin", "signup", "register", "auth", "account", "profile", "password"},
		category:   CategoryAuthentication,
		confidence: 0.8,
	},
	{
		keywords:   []string{"search", "filter", "sort", "query", "keyword"},
		category:   CategorySearch,
		confidence: 0.8,
	},
	{
		keywords:   []string{"pagination", "listing", "result", "grid", "card"},
		category:   CategoryListing,
		confidence: 0.6,
	},
	{
		keywords:   []string{"product", "item", "detail", "review", "rating", "cart", "buy", "price"},
		category:   CategoryProductDetails,
		confidence: 0.7,
	},
}

// classifyByKeyword applies the rule table to a selector string. Selectors
// matching no rule land in support_misc with the lowest confidence.
func classifyByKeyword(sel string) (Category, float64) {
	lower := strings.ToLower(sel)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category, rule.confidence
			}
		}
	}
	return CategorySupport, 0.5
}
