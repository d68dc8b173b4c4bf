package tools

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/solomonsjoseph/reportalin-mcp/internal/aggregate"
	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
)

const (
	maxSearchTerms         = 15
	maxVariablesFound      = 30
	maxCodeListsFound      = 10
	maxCodeListValuesShown = 15
	maxStatisticsComputed  = 8
)

type foundVariable struct {
	FieldName    string `json:"field_name"`
	Description  any    `json:"description"`
	Type         any    `json:"type"`
	Table        any    `json:"table"`
	Module       any    `json:"module"`
	CodeListRef  any    `json:"codelist_ref"`
	MatchedTerm  string `json:"matched_term"`
}

type codeListValue struct {
	Code        any `json:"code"`
	Description any `json:"description"`
}

type foundCodeList struct {
	Name        string          `json:"name"`
	Values      []codeListValue `json:"values"`
	TotalValues int             `json:"total_values"`
}

type computedStatistic struct {
	aggregate.Result
	SourceTable     string `json:"source_table"`
	SourceDataset   string `json:"source_dataset"`
	DictionaryField string `json:"dictionary_field"`
	ActualField     string `json:"actual_field,omitempty"`
	MatchType       string `json:"match_type"`
}

type combinedSearchResult struct {
	Concept          string              `json:"concept"`
	SearchTermsUsed  []string            `json:"search_terms_used"`
	VariablesFound   []foundVariable     `json:"variables_found"`
	CodeListsFound   []foundCodeList     `json:"codelists_found"`
	Statistics       []computedStatistic `json:"statistics"`
	DataSource       string              `json:"data_source,omitempty"`
	Summary          searchSummary       `json:"summary"`
	Guidance         string              `json:"guidance,omitempty"`
}

type searchSummary struct {
	Query               string `json:"query"`
	VariablesFound      int    `json:"variables_found"`
	CodeListsFound      int    `json:"codelists_found"`
	StatisticsComputed  int    `json:"statistics_computed"`
	DataSource          string `json:"data_source,omitempty"`
}

// CombinedSearch is the default analytical tool: it expands a clinical
// concept into search terms, scans the dictionary and code lists, and
// (optionally) computes aggregate statistics from the cleaned dataset,
// falling back to the original dataset only where cleaned has no match.
func CombinedSearch(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
	var in CombinedSearchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}

	terms := buildSearchTerms(in.Concept)

	result := combinedSearchResult{
		Concept:         in.Concept,
		SearchTermsUsed: terms,
	}

	result.VariablesFound = searchDictionaryVariables(snap.Dictionary, terms, maxVariablesFound)
	result.CodeListsFound = searchCodeLists(snap.CodeLists, terms, maxCodeListsFound)

	if in.includeStatistics() {
		stats, dataSource := computeStatisticsForVariables(snap, result.VariablesFound)
		result.Statistics = stats
		result.DataSource = dataSource
	}

	result.Summary = searchSummary{
		Query:              in.Concept,
		VariablesFound:     len(result.VariablesFound),
		CodeListsFound:     len(result.CodeListsFound),
		StatisticsComputed: len(result.Statistics),
		DataSource:         result.DataSource,
	}

	if len(result.VariablesFound) == 0 {
		result.Guidance = "No variables found for '" + in.Concept + "'. Try:\n" +
			"- Different keywords (e.g., 'smoking' instead of 'tobacco use')\n" +
			"- Medical abbreviations (e.g., 'DM' for diabetes, 'HIV' for human immunodeficiency virus)\n" +
			"- Specific variable names if you know them\n" +
			"- Use search_data_dictionary to browse all available variables"
	}

	return result, nil
}

// buildSearchTerms expands a concept into up to maxSearchTerms substrings:
// the lowercased concept itself, its individual words (longer than two
// characters), and the synonym set of any concept key it matches.
func buildSearchTerms(concept string) []string {
	conceptLower := strings.ToLower(concept)
	seen := map[string]bool{conceptLower: true}
	terms := []string{conceptLower}

	addTerm := func(t string) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}

	for _, word := range strings.Fields(conceptLower) {
		if len(word) > 2 {
			addTerm(word)
		}
	}

	for _, key := range conceptOrder {
		synonyms := conceptSynonyms[key]
		matches := strings.Contains(conceptLower, key)
		if !matches {
			for _, syn := range synonyms {
				if strings.Contains(conceptLower, syn) {
					matches = true
					break
				}
			}
		}
		if matches {
			for _, syn := range synonyms {
				addTerm(syn)
			}
		}
	}

	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	return terms
}

func dictionarySearchableText(rec dataset.Record) string {
	parts := []string{
		toStr(rec["Question Short Name (Databank Fieldname)"]),
		toStr(rec["Question"]),
		toStr(rec["Module"]),
		toStr(rec["Code List or format"]),
		toStr(rec["Notes"]),
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func searchDictionaryVariables(dict map[string]dataset.Table, terms []string, limit int) []foundVariable {
	found := map[string]foundVariable{}
	var order []string

	tableNames := sortedKeys(dict)
	for _, tableName := range tableNames {
		for _, rec := range dict[tableName] {
			fieldName := toStr(rec["Question Short Name (Databank Fieldname)"])
			searchable := dictionarySearchableText(rec)
			for _, term := range terms {
				if strings.Contains(searchable, term) {
					if fieldName != "" {
						if _, exists := found[fieldName]; !exists {
							table := rec["__table__"]
							if table == nil {
								table = tableName
							}
							found[fieldName] = foundVariable{
								FieldName:   fieldName,
								Description: rec["Question"],
								Type:        rec["Type"],
								Table:       table,
								Module:      rec["Module"],
								CodeListRef: rec["Code List or format"],
								MatchedTerm: term,
							}
							order = append(order, fieldName)
						}
					}
					break
				}
			}
		}
	}

	if len(order) > limit {
		order = order[:limit]
	}
	result := make([]foundVariable, len(order))
	for i, name := range order {
		result[i] = found[name]
	}
	return result
}

func searchCodeLists(codeLists map[string]dataset.Table, terms []string, limit int) []foundCodeList {
	found := map[string]foundCodeList{}
	var order []string

	for _, name := range sortedKeys(codeLists) {
		values := codeLists[name]
		nameLower := strings.ToLower(name)
		matched := false
		for _, term := range terms {
			if strings.Contains(nameLower, term) {
				matched = true
				break
			}
		}
		if !matched {
			for _, v := range values {
				desc := strings.ToLower(toStr(v["Descriptors"]))
				for _, term := range terms {
					if strings.Contains(desc, term) {
						matched = true
						break
					}
				}
				if matched {
					break
				}
			}
		}
		if matched {
			found[name] = buildCodeList(name, values)
			order = append(order, name)
		}
	}

	if len(order) > limit {
		order = order[:limit]
	}
	result := make([]foundCodeList, len(order))
	for i, name := range order {
		result[i] = found[name]
	}
	return result
}

func buildCodeList(name string, values dataset.Table) foundCodeList {
	shown := values
	if len(shown) > maxCodeListValuesShown {
		shown = shown[:maxCodeListValuesShown]
	}
	vals := make([]codeListValue, len(shown))
	for i, v := range shown {
		vals[i] = codeListValue{Code: v["Codes"], Description: v["Descriptors"]}
	}
	return foundCodeList{Name: name, Values: vals, TotalValues: len(values)}
}

// computeStatisticsForVariables resolves each found dictionary field
// against the cleaned dataset first, falling back to the original dataset
// only when cleaned has zero matches, tagging match type and source.
func computeStatisticsForVariables(snap *dataset.Snapshot, vars []foundVariable) ([]computedStatistic, string) {
	computed := map[string]computedStatistic{}
	var order []string
	dataSource := "cleaned"

	candidates := vars
	if len(candidates) > 15 {
		candidates = candidates[:15]
	}

	for _, v := range candidates {
		if len(computed) >= maxStatisticsComputed {
			break
		}
		fieldName := v.FieldName
		if fieldName == "" {
			continue
		}
		fieldLower := strings.ToLower(fieldName)

		stat, actualField, table, foundInCleaned := resolveField(snap.Cleaned, fieldName, fieldLower)
		if foundInCleaned {
			key := actualField
			if key == "" {
				key = fieldName
			}
			if _, exists := computed[key]; !exists {
				cs := computedStatistic{
					Result:          stat,
					SourceTable:     table,
					SourceDataset:   "cleaned",
					DictionaryField: fieldName,
					MatchType:       matchType(actualField),
				}
				if actualField != "" {
					cs.ActualField = actualField
				}
				computed[key] = cs
				order = append(order, key)
			}
			continue
		}

		if len(snap.Original) == 0 {
			continue
		}
		stat, actualField, table, foundInOriginal := resolveField(snap.Original, fieldName, fieldLower)
		if foundInOriginal {
			key := actualField
			if key == "" {
				key = fieldName
			}
			if _, exists := computed[key]; !exists {
				cs := computedStatistic{
					Result:          stat,
					SourceTable:     table,
					SourceDataset:   "original",
					DictionaryField: fieldName,
					MatchType:       matchType(actualField),
				}
				if actualField != "" {
					cs.ActualField = actualField
				}
				computed[key] = cs
				order = append(order, key)
				dataSource = "original (not in cleaned)"
			}
		}
	}

	if len(computed) == 0 {
		return nil, "no data found"
	}
	result := make([]computedStatistic, len(order))
	for i, k := range order {
		result[i] = computed[k]
	}
	return result, dataSource
}

func matchType(actualField string) string {
	if actualField != "" {
		return "partial"
	}
	return "exact"
}

// resolveField finds fieldName in the given table set, trying an exact
// key match first and a substring/suffix match second, returning the
// computed aggregate, the matched field name (empty for an exact match),
// and the table it was found in.
func resolveField(tables map[string]dataset.Table, fieldName, fieldLower string) (stat aggregate.Result, actualField, table string, found bool) {
	for _, tableName := range sortedKeys(tables) {
		records := tables[tableName]
		if len(records) == 0 {
			continue
		}
		sample := records[0]

		if _, ok := sample[fieldName]; ok {
			return aggregate.Compute(records, fieldName, aggregate.MinKAnonymity), "", tableName, true
		}

		for key := range sample {
			actualLower := strings.ToLower(key)
			if strings.Contains(actualLower, fieldLower) ||
				strings.HasSuffix(actualLower, fieldLower) ||
				strings.HasSuffix(fieldLower, actualLower) {
				return aggregate.Compute(records, key, aggregate.MinKAnonymity), key, tableName, true
			}
		}
	}
	return aggregate.Result{}, "", "", false
}

func toStr(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
