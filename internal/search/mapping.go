package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for book documents.
//
// The mapping is designed with these priorities:
//  1. Fast full-text search on titles with English stemming
//  2. Boosted relevance for author/narrator matches
//  3. Exact keyword matching for the storage facet
//  4. Numeric range queries on duration
//  5. Term vectors enabled on key fields for highlighting
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	// Use English analyzer as default for text fields
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	// Title - primary search target
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	// Authors - searchable, important for book search
	authorsFieldMapping := bleve.NewTextFieldMapping()
	authorsFieldMapping.Analyzer = en.AnalyzerName
	authorsFieldMapping.Store = true
	authorsFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("authors", authorsFieldMapping)

	// Narrator - searchable
	narratorFieldMapping := bleve.NewTextFieldMapping()
	narratorFieldMapping.Analyzer = en.AnalyzerName
	narratorFieldMapping.Store = true
	narratorFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("narrator", narratorFieldMapping)

	// Description - searchable but not stored (too large)
	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = en.AnalyzerName
	descFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	// --- Keyword fields (exact match, facetable) ---

	// ID - stored but not analyzed
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	// Storage - local/remote facet
	storageFieldMapping := bleve.NewTextFieldMapping()
	storageFieldMapping.Analyzer = keyword.Name
	storageFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("storage", storageFieldMapping)

	// Sort title stays a single untokenized term so ordering on it works
	sortTitleFieldMapping := bleve.NewTextFieldMapping()
	sortTitleFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("sort_title", sortTitleFieldMapping)

	// --- Boolean and numeric fields (filters, range queries, sorting) ---

	narrationFieldMapping := bleve.NewBooleanFieldMapping()
	narrationFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("has_narration", narrationFieldMapping)

	// Duration - for range filtering
	durationFieldMapping := bleve.NewNumericFieldMapping()
	durationFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("duration", durationFieldMapping)

	// Timestamps - for sorting by recency
	createdAtFieldMapping := bleve.NewNumericFieldMapping()
	createdAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdAtFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	// Register the document mapping
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
