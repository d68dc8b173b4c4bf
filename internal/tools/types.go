// Package tools implements the four MCP tools exposed by this server:
// prompt_enhancer, combined_search, search_data_dictionary, and
// search_cleaned_dataset. Every tool returns aggregate-only data; none
// ever touches an individual record on the wire.
package tools

import (
	"encoding/json"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
)

// Handler executes one tool against a dataset snapshot and a decoded
// arguments object, returning a JSON-marshalable result.
type Handler func(snap *dataset.Snapshot, args json.RawMessage) (any, error)

// Tool pairs a Handler with the metadata the registry advertises over
// tools/list and validates tools/call input against.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// PromptEnhancerInput mirrors PromptEnhancerInput in the Python tool
// models: a free-text query, optional multi-turn context, and an explicit
// confirmation flag that gates whether a downstream tool actually runs.
type PromptEnhancerInput struct {
	UserQuery        string         `json:"user_query"`
	Context          map[string]any `json:"context,omitempty"`
	UserConfirmation bool           `json:"user_confirmation"`
}

type CombinedSearchInput struct {
	Concept           string `json:"concept"`
	IncludeStatistics *bool  `json:"include_statistics,omitempty"`
}

func (i CombinedSearchInput) includeStatistics() bool {
	if i.IncludeStatistics == nil {
		return true
	}
	return *i.IncludeStatistics
}

type SearchDataDictionaryInput struct {
	Query            string `json:"query"`
	IncludeCodeLists *bool  `json:"include_codelists,omitempty"`
}

func (i SearchDataDictionaryInput) includeCodeLists() bool {
	if i.IncludeCodeLists == nil {
		return true
	}
	return *i.IncludeCodeLists
}

type SearchCleanedDatasetInput struct {
	Variable    string  `json:"variable"`
	TableFilter *string `json:"table_filter,omitempty"`
}
