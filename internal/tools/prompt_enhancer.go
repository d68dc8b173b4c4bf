package tools

import (
	"encoding/json"
	"strings"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
)

// intentCategory is the classification prompt_enhancer assigns to a
// free-text query before routing it to one of the other three tools.
type intentCategory string

const (
	intentMetadataDiscovery  intentCategory = "metadata_discovery"
	intentVariableDefinition intentCategory = "variable_definition"
	intentStatisticalQuery   intentCategory = "statistical_query"
	intentComparisonAnalysis intentCategory = "comparison_analysis"
	intentDistributionAnalysis intentCategory = "distribution_analysis"
	intentGeneralAnalysis    intentCategory = "general_analysis"
)

// routingDecision names which downstream tool prompt_enhancer hands a
// confirmed query to.
type routingDecision string

const (
	routeSearchDataDictionary routingDecision = "T3"
	routeSearchCleanedDataset routingDecision = "T4"
	routeCombinedSearch       routingDecision = "T2"
)

type understoodIntent struct {
	Category intentCategory `json:"category"`
	Concepts []string       `json:"concepts"`
	Routing  routingDecision `json:"routing"`
}

type promptEnhancerResult struct {
	NeedsConfirmation bool             `json:"needs_confirmation"`
	OriginalQuery     string           `json:"original_query,omitempty"`
	Interpretation    string           `json:"interpretation"`
	UnderstoodIntent  understoodIntent `json:"understood_intent,omitempty"`
	ToolUsed          string           `json:"tool_used,omitempty"`
	Result            any              `json:"result,omitempty"`
}

// metadataKeywords and friends drive classifyQuery's ordered, first-match
// keyword scan. Order matters: a query matching more than one category
// (e.g. "what fields can I compare for diabetes") takes the first
// category checked.
var metadataKeywords = []string{"what fields", "what variables", "list variables", "available fields", "data dictionary", "what columns"}
var definitionKeywords = []string{"what does", "definition of", "define ", "meaning of", "what is the meaning"}
var comparisonKeywords = []string{"compare", "versus", " vs ", "vs.", "difference between"}
var distributionKeywords = []string{"distribution", "histogram", "breakdown", "spread of", "range of"}
var statisticalKeywords = []string{"average", "mean ", "median", "how many", "count of", "percentage", "statistics", "stats on", "std dev", "standard deviation"}

// PromptEnhancer classifies a free-text clinical-data query, extracts the
// clinical concepts it touches, and either returns an interpretation for
// the caller to confirm or — once confirmed — routes the query to the
// appropriate downstream tool and returns its result inline.
func PromptEnhancer(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
	var in PromptEnhancerInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(in.UserQuery)
	category := classifyQuery(queryLower)
	concepts := extractClinicalConcepts(queryLower)
	routing := routeFor(category)
	interpretation := buildInterpretation(in.UserQuery, category, concepts, routing)

	intent := understoodIntent{Category: category, Concepts: concepts, Routing: routing}

	if !in.UserConfirmation {
		return promptEnhancerResult{
			NeedsConfirmation: true,
			Interpretation:    interpretation,
			UnderstoodIntent:  intent,
		}, nil
	}

	toolName, result, err := dispatchRouted(snap, routing, in, concepts)
	if err != nil {
		return nil, err
	}

	return promptEnhancerResult{
		NeedsConfirmation: false,
		OriginalQuery:     in.UserQuery,
		Interpretation:    interpretation,
		UnderstoodIntent:  intent,
		ToolUsed:          toolName,
		Result:            result,
	}, nil
}

// classifyQuery runs the ordered keyword scan spec.md's six-category
// taxonomy implies: metadata discovery and variable definition route to
// dictionary lookups before anything touches the cleaned dataset, since
// those categories never need an aggregate.
func classifyQuery(queryLower string) intentCategory {
	switch {
	case containsAny(queryLower, metadataKeywords):
		return intentMetadataDiscovery
	case containsAny(queryLower, definitionKeywords):
		return intentVariableDefinition
	case containsAny(queryLower, comparisonKeywords):
		return intentComparisonAnalysis
	case containsAny(queryLower, distributionKeywords):
		return intentDistributionAnalysis
	case containsAny(queryLower, statisticalKeywords):
		return intentStatisticalQuery
	default:
		return intentGeneralAnalysis
	}
}

func routeFor(category intentCategory) routingDecision {
	switch category {
	case intentMetadataDiscovery, intentVariableDefinition:
		return routeSearchDataDictionary
	case intentStatisticalQuery:
		return routeSearchCleanedDataset
	default:
		return routeCombinedSearch
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// extractClinicalConcepts tags the query with every clinicalConceptKeywords
// entry it matches, in clinicalConceptOrder's fixed order so results are
// deterministic.
func extractClinicalConcepts(queryLower string) []string {
	var concepts []string
	for _, key := range clinicalConceptOrder {
		for _, kw := range clinicalConceptKeywords[key] {
			if strings.Contains(queryLower, kw) {
				concepts = append(concepts, key)
				break
			}
		}
	}
	return concepts
}

func buildInterpretation(query string, category intentCategory, concepts []string, routing routingDecision) string {
	var b strings.Builder
	b.WriteString("I understood this as a ")
	b.WriteString(string(category))
	b.WriteString(" request")
	if len(concepts) > 0 {
		b.WriteString(" about ")
		b.WriteString(strings.Join(concepts, ", "))
	}
	b.WriteString(". ")
	switch routing {
	case routeSearchDataDictionary:
		b.WriteString("I will look up field metadata, not compute statistics.")
	case routeSearchCleanedDataset:
		b.WriteString("I will compute an aggregate directly from the cleaned dataset.")
	default:
		b.WriteString("I will search the data dictionary and compute aggregate statistics for any matching fields.")
	}
	return b.String()
}

// dispatchRouted invokes the tool routing chose, translating
// prompt_enhancer's input shape into each target tool's own input shape.
func dispatchRouted(snap *dataset.Snapshot, routing routingDecision, in PromptEnhancerInput, concepts []string) (string, any, error) {
	concept := conceptOrQuery(in.UserQuery, concepts)

	switch routing {
	case routeSearchDataDictionary:
		args, _ := json.Marshal(SearchDataDictionaryInput{Query: concept})
		result, err := SearchDataDictionary(snap, args)
		return "search_data_dictionary", result, err
	case routeSearchCleanedDataset:
		args, _ := json.Marshal(SearchCleanedDatasetInput{Variable: concept})
		result, err := SearchCleanedDataset(snap, args)
		return "search_cleaned_dataset", result, err
	default:
		args, _ := json.Marshal(CombinedSearchInput{Concept: concept})
		result, err := CombinedSearch(snap, args)
		return "combined_search", result, err
	}
}

// conceptOrQuery prefers the first extracted clinical concept as the
// narrower search term; an unrecognized query falls back to the raw text
// so the downstream tool still has something to search with.
func conceptOrQuery(query string, concepts []string) string {
	if len(concepts) > 0 {
		return concepts[0]
	}
	return query
}
