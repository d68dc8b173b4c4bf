// Package aggregate computes k-anonymous, aggregate-only summary
// statistics over a column of dataset records. No individual record ever
// leaves this package; every exported Result is already a rollup.
package aggregate

import (
	"math"
	"sort"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
)

// Kind discriminates the tagged-variant shape of a Result. Only the
// fields valid for that Kind are populated — this is the Go idiom for
// what a class hierarchy would model in other languages.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindSuppressed  Kind = "suppressed"
	KindNoData      Kind = "no_data"
)

// MinKAnonymity is the minimum non-null observation count required before
// a Result is released; below this, the result is suppressed rather than
// potentially re-identifying a handful of individuals. It is a package
// variable rather than a constant because spec.md §6 allows overriding it
// via MIN_K_ANONYMITY at server startup — never per request.
var MinKAnonymity = 5

type Result struct {
	Kind           Kind    `json:"type"`
	Variable       string  `json:"variable"`
	TotalRecords   int     `json:"total_records"`
	NonNullCount   int     `json:"non_null_count"`
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`

	// Populated only when Kind == KindNumeric.
	Statistics *NumericStatistics `json:"statistics,omitempty"`
	Histogram  []HistogramBin     `json:"distribution,omitempty"`

	// Populated only when Kind == KindCategorical.
	ValueCounts  []ValueCount `json:"value_counts,omitempty"`
	UniqueValues int          `json:"unique_values,omitempty"`

	// Populated only when Kind == KindSuppressed or KindNoData.
	Reason string `json:"reason,omitempty"`
}

type NumericStatistics struct {
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
	Mean   float64  `json:"mean"`
	Median float64  `json:"median"`
	StdDev *float64 `json:"std_dev,omitempty"`
}

type HistogramBin struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type ValueCount struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Compute builds the aggregate Result for one field across records,
// classifying as numeric when a strict majority of non-null values are
// numbers (mirrors compute_variable_stats's "numeric_values >
// categorical_values" rule), else categorical. Results representing
// fewer than k non-null observations are suppressed rather than released.
func Compute(records []dataset.Record, field string, k int) Result {
	if k <= 0 {
		k = MinKAnonymity
	}

	var numeric []float64
	var categorical []string
	nonNull := 0
	for _, r := range records {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		nonNull++
		if f, isNum := asNumeric(v); isNum {
			numeric = append(numeric, f)
		} else {
			categorical = append(categorical, asString(v))
		}
	}

	total := len(records)
	if nonNull == 0 {
		return Result{
			Kind:         KindNoData,
			Variable:     field,
			TotalRecords: total,
			Reason:       "no non-null values found for this variable",
		}
	}

	if nonNull < k {
		return Result{
			Kind:           KindSuppressed,
			Variable:       field,
			TotalRecords:   total,
			NonNullCount:   nonNull,
			NullCount:      total - nonNull,
			NullPercentage: round1(pct(total-nonNull, total)),
			Reason:         "fewer than the minimum number of individuals required to release an aggregate",
		}
	}

	base := Result{
		Variable:       field,
		TotalRecords:   total,
		NonNullCount:   nonNull,
		NullCount:      total - nonNull,
		NullPercentage: round1(pct(total-nonNull, total)),
	}

	if len(numeric) > len(categorical) {
		base.Kind = KindNumeric
		base.Statistics = numericStatistics(numeric)
		base.Histogram = Histogram(numeric, 10)
		return base
	}

	base.Kind = KindCategorical
	counts, unique := valueCounts(categorical, nonNull)
	base.ValueCounts = counts
	base.UniqueValues = unique
	return base
}

func numericStatistics(values []float64) *NumericStatistics {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	stats := &NumericStatistics{
		Min:    round2(sorted[0]),
		Max:    round2(sorted[len(sorted)-1]),
		Mean:   round2(mean(values)),
		Median: round2(median(sorted)),
	}
	if len(values) > 1 {
		sd := round2(stddev(values, mean(values)))
		stats.StdDev = &sd
	}
	return stats
}

// Histogram buckets values into `bins` equal-width ranges. The final bin
// is inclusive on both ends so the max value is always counted, matching
// compute_histogram's edge handling.
func Histogram(values []float64, bins int) []HistogramBin {
	if len(values) == 0 {
		return nil
	}
	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if minV == maxV {
		return []HistogramBin{{Range: formatFloat(minV), Count: len(values)}}
	}

	width := (maxV - minV) / float64(bins)
	result := make([]HistogramBin, bins)
	for i := 0; i < bins; i++ {
		start := minV + float64(i)*width
		end := start + width
		count := 0
		for _, v := range values {
			if i == bins-1 {
				if v >= start && v <= end {
					count++
				}
			} else if v >= start && v < end {
				count++
			}
		}
		result[i] = HistogramBin{
			Range: formatFloat(round1(start)) + "-" + formatFloat(round1(end)),
			Count: count,
		}
	}
	return result
}

// valueCounts tallies categorical values, returning the top 20 by count
// (ties broken by first appearance, matching Counter.most_common).
// Percentages are out of nonNull, the full non-null observation count for
// the field, not len(values): a field classified categorical can still
// hold a minority of numeric-looking values, and those belong in the
// denominator too.
func valueCounts(values []string, nonNull int) ([]ValueCount, int) {
	counts := map[string]int{}
	order := make([]string, 0, len(values))
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	limit := 20
	if len(order) < limit {
		limit = len(order)
	}
	result := make([]ValueCount, limit)
	for i := 0; i < limit; i++ {
		v := order[i]
		result[i] = ValueCount{
			Value:      v,
			Count:      counts[v],
			Percentage: round1(pct(counts[v], nonNull)),
		}
	}
	return result, len(counts)
}

func asNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case bool:
		return 0, false
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return jsonScalarString(v)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stddev(values []float64, m float64) float64 {
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
