package aggregate

import "strconv"

// formatFloat renders a float the way the histogram range labels want:
// trailing zeros trimmed, but never in scientific notation.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// jsonScalarString stringifies a non-string JSON scalar (number, bool) the
// way a categorical value bucket key is built from it.
func jsonScalarString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return ""
	}
}
