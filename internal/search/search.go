// Package search indexes published content in Meilisearch with a PostgreSQL
// full-text fallback for deployments without it.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ContentType string `json:"contentType"`
	Visibility  string `json:"visibility,omitempty"`
}

// Query describes a search request. Only published content is ever indexed,
// so the query does not carry a status filter.
type Query struct {
	Text        string
	ContentType string
	// PublicOnly restricts hits to public visibility; set for anonymous
	// callers.
	PublicOnly bool
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ContentRecord is the data we index for a published content item.
type ContentRecord struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Body        string   `json:"body"`
	ContentType string   `json:"contentType"`
	Visibility  string   `json:"visibility"`
	Tags        []string `json:"tags"`
}
