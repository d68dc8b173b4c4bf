package registry

import (
	"fmt"
	"sort"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

// staticResources builds the descriptive resource catalog spec.md §4.8
// calls for: a study overview plus a table index and code-list catalog
// derived from whatever dataset snapshot is currently loaded. Resource
// bodies describe shape only, never individual records.
func staticResources(snap *dataset.Snapshot) []mcp.Resource {
	resources := []mcp.Resource{
		{
			URI:         "reportalin://overview",
			Name:        "Study overview",
			Description: "Summary of the loaded dataset: table counts by category.",
			MimeType:    "application/json",
		},
		{
			URI:         "reportalin://tables",
			Name:        "Table index",
			Description: "Names of every dictionary, code-list, cleaned, and original table.",
			MimeType:    "application/json",
		},
		{
			URI:         "reportalin://codelists",
			Name:        "Code-list catalog",
			Description: "Names of every controlled-vocabulary code-list table.",
			MimeType:    "application/json",
		},
	}
	return resources
}

func readResource(snap *dataset.Snapshot, uri string) (*mcp.ResourceContent, error) {
	switch uri {
	case "reportalin://overview":
		text := fmt.Sprintf(
			`{"dictionary_tables":%d,"codelist_tables":%d,"cleaned_tables":%d,"original_tables":%d}`,
			len(snap.Dictionary), len(snap.CodeLists), len(snap.Cleaned), len(snap.Original),
		)
		return &mcp.ResourceContent{URI: uri, MimeType: "application/json", Text: text}, nil
	case "reportalin://tables":
		return &mcp.ResourceContent{URI: uri, MimeType: "application/json", Text: tableIndexJSON(snap)}, nil
	case "reportalin://codelists":
		return &mcp.ResourceContent{URI: uri, MimeType: "application/json", Text: namesJSON(snap.CodeLists)}, nil
	default:
		return nil, fmt.Errorf("unknown resource %q", uri)
	}
}

func tableIndexJSON(snap *dataset.Snapshot) string {
	return fmt.Sprintf(
		`{"dictionary":%s,"codelists":%s,"cleaned":%s,"original":%s}`,
		namesJSON(snap.Dictionary), namesJSON(snap.CodeLists), namesJSON(snap.Cleaned), namesJSON(snap.Original),
	)
}

func namesJSON(tables map[string]dataset.Table) string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	out := "["
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", n)
	}
	out += "]"
	return out
}
