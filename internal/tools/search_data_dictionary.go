package tools

import (
	"encoding/json"
	"strings"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
)

const (
	maxDictionaryVariables = 50
	maxDictionaryCodeLists = 10
)

type dictionaryVariableMatch struct {
	Table       any `json:"table"`
	FieldName   any `json:"field_name"`
	Description any `json:"description"`
	Type        any `json:"type"`
	CodeListRef any `json:"codelist_ref"`
	Module      any `json:"module"`
	Form        any `json:"form"`
	Notes       any `json:"notes"`
}

type dictionaryCodeListMatch struct {
	CodeListName string          `json:"codelist_name"`
	Values       []codeListValue `json:"values"`
}

type searchDataDictionaryResult struct {
	Query          string                    `json:"query"`
	VariablesFound int                       `json:"variables_found"`
	Variables      []dictionaryVariableMatch `json:"variables"`
	CodeListsFound int                       `json:"codelists_found"`
	CodeLists      []dictionaryCodeListMatch `json:"codelists"`
	Hint           string                    `json:"hint"`
}

// SearchDataDictionary returns variable and code-list metadata only — it
// never computes a statistic. It is the tool to reach for when a caller
// wants field names, descriptions, or valid code values without analysis.
func SearchDataDictionary(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
	var in SearchDataDictionaryInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(in.Query)

	variables := []dictionaryVariableMatch{}
	for _, tableName := range sortedKeys(snap.Dictionary) {
		for _, rec := range snap.Dictionary[tableName] {
			searchable := dictionarySearchableText(rec)
			if strings.Contains(searchable, queryLower) {
				table := rec["__table__"]
				if table == nil {
					table = tableName
				}
				variables = append(variables, dictionaryVariableMatch{
					Table:       table,
					FieldName:   rec["Question Short Name (Databank Fieldname)"],
					Description: rec["Question"],
					Type:        rec["Type"],
					CodeListRef: rec["Code List or format"],
					Module:      rec["Module"],
					Form:        rec["Form"],
					Notes:       rec["Notes"],
				})
			}
		}
	}

	var codeLists []dictionaryCodeListMatch
	if in.includeCodeLists() {
		seen := map[string]bool{}
		for _, name := range sortedKeys(snap.CodeLists) {
			values := snap.CodeLists[name]
			matched := strings.Contains(strings.ToLower(name), queryLower)
			if !matched {
				for _, v := range values {
					if strings.Contains(strings.ToLower(toStr(v["Descriptors"])), queryLower) {
						matched = true
						break
					}
				}
			}
			if matched && !seen[name] {
				seen[name] = true
				vals := make([]codeListValue, len(values))
				for i, v := range values {
					vals[i] = codeListValue{Code: v["Codes"], Description: v["Descriptors"]}
				}
				codeLists = append(codeLists, dictionaryCodeListMatch{CodeListName: name, Values: vals})
			}
		}
	}

	result := searchDataDictionaryResult{
		Query:          in.Query,
		VariablesFound: len(variables),
		CodeListsFound: len(codeLists),
		Hint: "Use exact field_name values when querying datasets. " +
			"For statistics, use combined_search instead.",
	}
	if len(variables) > maxDictionaryVariables {
		variables = variables[:maxDictionaryVariables]
	}
	if len(codeLists) > maxDictionaryCodeLists {
		codeLists = codeLists[:maxDictionaryCodeLists]
	}
	result.Variables = variables
	result.CodeLists = codeLists
	return result, nil
}
