// Command mockdataset writes a small, deterministic JSONL fixture tree
// shaped exactly like internal/dataset.Store expects to find on disk:
// a data dictionary under results/data_dictionary_mappings/, and cleaned
// plus original record tables under
// results/deidentified/<dataset-name>/{cleaned,original}/. It exists so
// integration tests and local dev runs of cmd/server never need a real
// de-identified export.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
)

func main() {
	out := flag.String("out", ".", "data root to write the results/ tree under")
	datasetName := flag.String("dataset-name", "mock", "dataset name, matches cmd/server's --dataset-name")
	records := flag.Int("records", 200, "number of synthetic participant records to generate")
	seed := flag.Uint64("seed", 1, "PRNG seed, for reproducible fixtures across runs")
	flag.Parse()

	if *records <= 0 {
		fmt.Fprintln(os.Stderr, "mockdataset: --records must be positive")
		os.Exit(2)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	if err := writeDictionary(*out); err != nil {
		fmt.Fprintf(os.Stderr, "mockdataset: %v\n", err)
		os.Exit(1)
	}
	if err := writeParticipants(*out, *datasetName, *records, rng); err != nil {
		fmt.Fprintf(os.Stderr, "mockdataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("mockdataset: wrote %d records to %s\n", *records, filepath.Join(*out, "results", "deidentified", *datasetName))
}

var sites = []string{"pune", "chennai", "vellore"}
var diagnoses = []string{"pulmonary_tb", "extrapulmonary_tb", "latent_tb_infection", "no_tb"}
var arms = []string{"standard_of_care", "shortened_regimen"}
var outcomes = []string{"cured", "completed", "failed", "lost_to_follow_up", "died"}

// writeDictionary writes one field-definition table and one code-list
// table under results/data_dictionary_mappings/<sheet>/, matching the
// loadDictionaryTree convention of splitting on the "codelist" name
// substring.
func writeDictionary(root string) error {
	sheetDir := filepath.Join(root, "results", "data_dictionary_mappings", "clinical")
	if err := os.MkdirAll(sheetDir, 0o755); err != nil {
		return err
	}

	fields := []map[string]any{
		{"variable": "age_years", "label": "Age at enrollment (years)", "type": "numeric"},
		{"variable": "sex", "label": "Sex", "type": "categorical"},
		{"variable": "site", "label": "Enrollment site", "type": "categorical"},
		{"variable": "diagnosis", "label": "TB diagnosis category", "type": "categorical"},
		{"variable": "treatment_arm", "label": "Treatment arm", "type": "categorical"},
		{"variable": "outcome", "label": "Treatment outcome", "type": "categorical"},
	}
	if err := writeJSONLFile(filepath.Join(sheetDir, "field_definitions.jsonl"), fields); err != nil {
		return err
	}

	var codes []map[string]any
	for _, d := range diagnoses {
		codes = append(codes, map[string]any{"variable": "diagnosis", "code": d, "label": d})
	}
	return writeJSONLFile(filepath.Join(sheetDir, "diagnosis_codelist.jsonl"), codes)
}

// writeParticipants writes the same synthetic table to both the cleaned/
// and original/ trees: this generator has no de-identification step of
// its own, so both are identical mock data.
func writeParticipants(root, datasetName string, n int, rng *rand.Rand) error {
	records := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		records[i] = map[string]any{
			"participant_id": fmt.Sprintf("MOCK-%05d", i+1),
			"age_years":      18 + rng.IntN(62),
			"sex":            pick(rng, []string{"female", "male"}),
			"site":           pick(rng, sites),
			"diagnosis":      pick(rng, diagnoses),
			"treatment_arm":  pick(rng, arms),
			"outcome":        pick(rng, outcomes),
		}
	}

	for _, variant := range []string{"cleaned", "original"} {
		dir := filepath.Join(root, "results", "deidentified", datasetName, variant)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := writeJSONLFile(filepath.Join(dir, "participants.jsonl"), records); err != nil {
			return err
		}
	}
	return nil
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.IntN(len(options))]
}

func writeJSONLFile(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
