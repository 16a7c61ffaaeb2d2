package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a search query.
type Params struct {
	Query string // User's search text

	// Filters
	Storage      string  // "local" or "remote" (empty = both)
	NarratedOnly bool    // Only books with narration timing
	MinDuration  float64 // Seconds
	MaxDuration  float64 // Seconds (0 = unbounded)

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "relevance", "title", "recent", "duration"
	SortOrder string // "asc", "desc"

	// Options
	IncludeFacets bool // Include storage facet counts
	Highlight     bool // Include match highlighting
}

// DefaultParams returns sensible defaults.
func DefaultParams() Params {
	return Params{
		Limit:         20,
		Offset:        0,
		SortBy:        "relevance",
		SortOrder:     "desc",
		IncludeFacets: true,
		Highlight:     true,
	}
}

// Result represents the search results.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
	Facets Facets `json:"facets,omitempty"`
}

// Hit represents a single search result.
type Hit struct {
	ID           string            `json:"id"`
	Score        float64           `json:"score"`
	Title        string            `json:"title"`
	Authors      []string          `json:"authors,omitempty"`
	Narrator     string            `json:"narrator,omitempty"`
	Storage      string            `json:"storage"`
	HasNarration bool              `json:"has_narration"`
	Duration     float64           `json:"duration,omitempty"`
	Highlights   map[string]string `json:"highlights,omitempty"`
}

// Facets contains facet counts.
type Facets struct {
	Storage []FacetCount `json:"storage,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	searchQuery := buildSearchQuery(params)

	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)

	addSorting(searchRequest, params)

	if params.IncludeFacets {
		searchRequest.AddFacet("storage", bleve.NewFacetRequest("storage", 4))
	}

	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("title")
		searchRequest.Highlight.AddField("authors")
		searchRequest.Highlight.AddField("narrator")
	}

	// Request stored fields
	searchRequest.Fields = []string{
		"id", "title", "authors", "narrator", "storage", "has_narration", "duration",
	}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := Hit{
			ID:    hit.ID,
			Score: hit.Score,
		}

		if t, ok := hit.Fields["title"].(string); ok {
			searchHit.Title = t
		}
		// Bleve hands back a lone stored value as a scalar, several as a slice
		switch v := hit.Fields["authors"].(type) {
		case string:
			searchHit.Authors = []string{v}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					searchHit.Authors = append(searchHit.Authors, s)
				}
			}
		}
		if n, ok := hit.Fields["narrator"].(string); ok {
			searchHit.Narrator = n
		}
		if st, ok := hit.Fields["storage"].(string); ok {
			searchHit.Storage = st
		}
		if hn, ok := hit.Fields["has_narration"].(bool); ok {
			searchHit.HasNarration = hn
		}
		if d, ok := hit.Fields["duration"].(float64); ok {
			searchHit.Duration = d
		}

		// Extract highlights
		if len(hit.Fragments) > 0 {
			searchHit.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					searchHit.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, searchHit)
	}

	if params.IncludeFacets {
		result.Facets = extractFacets(searchResult)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params Params) query.Query {
	var queries []query.Query

	// Main text query: title carries the highest boost, then authors,
	// then narrator. Fuzzy and prefix variants on the title give typo
	// tolerance and as-you-type matching.
	if params.Query != "" {
		textQueries := []query.Query{}

		titleMatch := bleve.NewMatchQuery(params.Query)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		authorMatch := bleve.NewMatchQuery(params.Query)
		authorMatch.SetField("authors")
		authorMatch.SetBoost(2.0)
		textQueries = append(textQueries, authorMatch)

		narratorMatch := bleve.NewMatchQuery(params.Query)
		narratorMatch.SetField("narrator")
		narratorMatch.SetBoost(1.5)
		textQueries = append(textQueries, narratorMatch)

		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("title")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		// Prefix query for autocomplete (minimum 2 chars)
		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("title")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		// Combine with OR (match any field)
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Storage filter (exact match)
	if params.Storage != "" {
		storageQuery := bleve.NewTermQuery(params.Storage)
		storageQuery.SetField("storage")
		queries = append(queries, storageQuery)
	}

	// Narration filter
	if params.NarratedOnly {
		narratedQuery := bleve.NewBoolFieldQuery(true)
		narratedQuery.SetField("has_narration")
		queries = append(queries, narratedQuery)
	}

	// Duration range filter
	if params.MinDuration > 0 || params.MaxDuration > 0 {
		min := params.MinDuration
		max := params.MaxDuration
		if params.MaxDuration == 0 {
			max = math.MaxFloat64
		}
		rangeQuery := bleve.NewNumericRangeQuery(&min, &max)
		rangeQuery.SetField("duration")
		queries = append(queries, rangeQuery)
	}

	// Combine all queries with AND
	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, params Params) {
	switch params.SortBy {
	case "title":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-sort_title", "-title"})
		} else {
			req.SortBy([]string{"sort_title", "title"})
		}
	case "recent":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"updated_at"})
		} else {
			req.SortBy([]string{"-updated_at"})
		}
	case "duration":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"duration"})
		} else {
			req.SortBy([]string{"-duration"})
		}
	default:
		// Relevance (score) is default - Bleve handles this
		req.SortBy([]string{"-_score"})
	}
}

// extractFacets converts Bleve facets to our format.
func extractFacets(result *bleve.SearchResult) Facets {
	facets := Facets{}

	if storageFacet, ok := result.Facets["storage"]; ok {
		for _, term := range storageFacet.Terms.Terms() {
			facets.Storage = append(facets.Storage, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	return facets
}
