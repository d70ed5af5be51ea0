package handler

import (
	"fmt"
	"strconv"
)

// parsePositiveInt parses a query parameter as a positive integer, clamping
// to max when max > 0.
func parsePositiveInt(raw string, max int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("not a positive integer: %q", raw)
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
