package tools

import (
	"encoding/json"
	"strings"

	"github.com/solomonsjoseph/reportalin-mcp/internal/aggregate"
	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
)

const maxCleanedDatasetMatches = 20

type cleanedDatasetMatch struct {
	aggregate.Result
	SourceTable string `json:"source_table"`
	FieldName   string `json:"field_name"`
}

type searchCleanedDatasetResult struct {
	Variable    string                `json:"variable"`
	TableFilter string                `json:"table_filter,omitempty"`
	Status      string                `json:"status"`
	Matches     []cleanedDatasetMatch `json:"matches,omitempty"`
	Guidance    string                `json:"guidance,omitempty"`
}

// SearchCleanedDataset is the direct lookup tool: it skips dictionary and
// code-list search entirely and computes an aggregate for every
// field in every cleaned-dataset table whose name contains variable as a
// case-insensitive substring, optionally restricted to tables whose own
// name contains table_filter.
func SearchCleanedDataset(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
	var in SearchCleanedDatasetInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}

	variableLower := strings.ToLower(in.Variable)
	tableFilterLower := ""
	if in.TableFilter != nil {
		tableFilterLower = strings.ToLower(*in.TableFilter)
	}

	var matches []cleanedDatasetMatch
	for _, tableName := range sortedKeys(snap.Cleaned) {
		if tableFilterLower != "" && !strings.Contains(strings.ToLower(tableName), tableFilterLower) {
			continue
		}
		records := snap.Cleaned[tableName]
		if len(records) == 0 {
			continue
		}
		sample := records[0]
		for _, fieldName := range sortedKeys(fieldsOf(sample)) {
			if !strings.Contains(strings.ToLower(fieldName), variableLower) {
				continue
			}
			stat := aggregate.Compute(records, fieldName, aggregate.MinKAnonymity)
			matches = append(matches, cleanedDatasetMatch{
				Result:      stat,
				SourceTable: tableName,
				FieldName:   fieldName,
			})
			if len(matches) >= maxCleanedDatasetMatches {
				break
			}
		}
		if len(matches) >= maxCleanedDatasetMatches {
			break
		}
	}

	result := searchCleanedDatasetResult{
		Variable:    in.Variable,
		TableFilter: tableFilterLower,
	}
	if len(matches) == 0 {
		result.Status = "not_found"
		result.Guidance = "No field matching '" + in.Variable + "' was found in the cleaned dataset. " +
			"Try search_data_dictionary to confirm the exact field name, or combined_search for a broader concept search."
		return result, nil
	}

	result.Status = "ok"
	result.Matches = matches
	return result, nil
}

// fieldsOf returns every key seen in rec as a map so sortedKeys can
// impose deterministic iteration order over field names.
func fieldsOf(rec dataset.Record) map[string]struct{} {
	fields := make(map[string]struct{}, len(rec))
	for k := range rec {
		fields[k] = struct{}{}
	}
	return fields
}
