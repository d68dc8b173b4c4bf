package transport

import (
	"fmt"
	"io"
)

// writeSSEFrame writes one `event: <name>\ndata: <payload>\n\n` frame.
// data is written verbatim, split on newlines into one data: line per
// line, so multi-line payloads never break the SSE framing rule.
func writeSSEFrame(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range splitLines(data) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	lines = append(lines, data[start:])
	return lines
}
