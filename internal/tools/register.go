package tools

import (
	"fmt"

	"github.com/solomonsjoseph/reportalin-mcp/schemas"
)

// Definitions returns the four MCP tools this server advertises, each
// paired with its embedded JSON Schema input shape, in the order
// tools/list reports them (spec.md §4.3, §8 scenario 2). It panics if a
// schema file is missing, since that is a packaging error, not a
// request-time condition.
func Definitions() []Tool {
	return []Tool{
		mustDefine("prompt_enhancer", "Classify a free-text clinical-data question, extract concepts, and route it to the right tool. Call this first; pass user_confirmation=true once the interpretation looks right.", PromptEnhancer),
		mustDefine("combined_search", "Expand a clinical concept into synonyms, search the data dictionary and code lists, and optionally compute aggregate statistics for every matched variable.", CombinedSearch),
		mustDefine("search_data_dictionary", "Search variable metadata and code lists by substring match. Never computes statistics.", SearchDataDictionary),
		mustDefine("search_cleaned_dataset", "Look up a variable directly across cleaned-dataset tables and compute an aggregate for every match.", SearchCleanedDataset),
	}
}

func mustDefine(name, description string, handler Handler) Tool {
	schema, err := schemas.Load(name)
	if err != nil {
		panic(fmt.Sprintf("tools: missing embedded schema for %q: %v", name, err))
	}
	return Tool{Name: name, Description: description, InputSchema: schema, Handler: handler}
}
