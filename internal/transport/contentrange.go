package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// parseContentRange parses a "bytes start-end/total" header value.
// total is -1 when the server sent "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	value, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("malformed Content-Range %q", header)
	}
	rng, size, ok := strings.Cut(value, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("malformed Content-Range %q", header)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("malformed Content-Range %q", header)
	}

	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed Content-Range %q: %w", header, err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed Content-Range %q: %w", header, err)
	}
	if end < start {
		return 0, 0, 0, fmt.Errorf("malformed Content-Range %q: end before start", header)
	}

	total = -1
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil {
			return 0, 0, 0, fmt.Errorf("malformed Content-Range %q: %w", header, err)
		}
	}
	return start, end, total, nil
}

// validateContentRange checks that a partial response starts where we asked.
// An absent header is accepted.
func validateContentRange(header string, expectedOffset int64) (total int64, err error) {
	if header == "" {
		return -1, nil
	}
	start, _, total, err := parseContentRange(header)
	if err != nil {
		return 0, err
	}
	if start != expectedOffset {
		return 0, fmt.Errorf("content-range start offset mismatch: got %d, want %d", start, expectedOffset)
	}
	return total, nil
}
