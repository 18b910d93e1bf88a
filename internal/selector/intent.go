package selector

// Intent names an information need the resolver satisfies with one selector.
type Intent string

const (
	IntentSignIn          Intent = "sign_in"
	IntentUsername        Intent = "username"
	IntentPassword        Intent = "password"
	IntentSubmitButton    Intent = "submit_button"
	IntentSearchBar       Intent = "search_bar"
	IntentSearchButton    Intent = "search_button"
	IntentProductLink     Intent = "product_link"
	IntentReviewLink      Intent = "review_link"
	IntentReviewContainer Intent = "review_container"
	IntentReviewText      Intent = "review_text"
	IntentReviewRating    Intent = "review_rating"
	IntentReviewerName    Intent = "reviewer_name"
	IntentReviewDate      Intent = "review_date"
	IntentNextPage        Intent = "next_page"
)

// promptSpec is one entry in the intent prompt registry. Adding an intent is
// a data change here, not a code change in the resolver.
type promptSpec struct {
	// need is the phrase completing "Find the BEST selector for ...".
	need string
	// criteria guides the model toward the right candidate fields.
	criteria string
	// key is the single JSON key the model must answer with.
	key string
}

var intentPrompts = map[Intent]promptSpec{
	IntentSignIn: {
		need:     `clicking "Sign In" or "Login"`,
		criteria: `Look for text containing "login", "signin", "sign-in", "account".`,
		key:      "sign_in_selector",
	},
	IntentUsername: {
		need:     "the username/email input field",
		criteria: `Look for input_type "email"/"text", name containing "email"/"username", or relevant text. Prefer high confidence scores.`,
		key:      "username_selector",
	},
	IntentPassword: {
		need:     "the password input field",
		criteria: `Look for input_type "password", name containing "password"/"pwd", or relevant text. Prefer high confidence scores.`,
		key:      "password_selector",
	},
	IntentSubmitButton: {
		need:     "the submit/continue button",
		criteria: `Look for button_text containing "Continue"/"Submit"/"Next"/"Login", or input_type "submit". Prefer high confidence scores.`,
		key:      "submit_button_selector",
	},
	IntentSearchBar: {
		need:     "the main search input field",
		criteria: `Look for input_type "search"/"text", id/name containing "search", "query", or "keyword". It is a primary navigation element. Prefer distinctive IDs.`,
		key:      "search_bar_selector",
	},
	IntentSearchButton: {
		need:     "the search submit button",
		criteria: `Look for input_type "submit", ids/classes containing "search" or "nav-search", or buttons adjacent to the search field.`,
		key:      "search_button_selector",
	},
	IntentProductLink: {
		need:     "links to individual product pages",
		criteria: `Prefer anchors whose href contains "/dp/" or "/product", or listing-result containers. Avoid sponsored placements.`,
		key:      "product_link_selector",
	},
	IntentReviewLink: {
		need:     "the link leading to the dedicated reviews page",
		criteria: `Look for anchors whose href contains "product-reviews" or "customer-reviews", or text like "See all reviews".`,
		key:      "review_link_selector",
	},
	IntentReviewContainer: {
		need:     "containers holding individual customer reviews",
		criteria: `Look for attribute hooks like data-hook="review" or classes containing "review", "comment", "testimonial".`,
		key:      "review_container_selector",
	},
	IntentReviewText: {
		need:     "the review body text inside a review",
		criteria: `Look for data-hook="review-body" or classes like "review-text", "comment-body".`,
		key:      "review_text_selector",
	},
	IntentReviewRating: {
		need:     "the star rating inside a review",
		criteria: `Look for data-hook="review-star-rating" or classes containing "star", "rating", "a-icon-star".`,
		key:      "review_rating_selector",
	},
	IntentReviewerName: {
		need:     "the reviewer's display name inside a review",
		criteria: `Look for classes containing "author" or data-hook values containing "review-author" or "profile".`,
		key:      "reviewer_name_selector",
	},
	IntentReviewDate: {
		need:     "the review date inside a review",
		criteria: `Look for data-hook="review-date" or classes containing "date".`,
		key:      "review_date_selector",
	},
	IntentNextPage: {
		need:     "the next-page control of the review list",
		criteria: `Look for pagination anchors or buttons labeled "Next" or classes containing "pagination-next", "a-last".`,
		key:      "next_page_selector",
	},
}

// PromptFor reports whether the intent is registered. Unregistered intents
// fall back to a generic prompt built from the intent name itself.
func promptFor(intent Intent) promptSpec {
	if spec, ok := intentPrompts[intent]; ok {
		return spec
	}
	return promptSpec{
		need:     string(intent),
		criteria: "Choose the single selector that best matches the request.",
		key:      string(intent) + "_selector",
	}
}
