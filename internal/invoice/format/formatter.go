// Package format renders invoice numbers for display.
package format

import (
	"fmt"
	"strconv"
	"strings"
)

const DefaultPrefix = "INV-"

// DisplayNumber renders an invoice sequence number with its configured
// prefix, e.g. "INV-1000". The function is pure.
func DisplayNumber(prefix string, number int64) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + strconv.FormatInt(number, 10)
}

// ParseDisplayNumber extracts the sequence number from a display number
// produced with the given prefix.
func ParseDisplayNumber(prefix, display string) (int64, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	raw, ok := strings.CutPrefix(display, prefix)
	if !ok {
		return 0, fmt.Errorf("invoice number %q does not carry prefix %q", display, prefix)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid invoice number %q: %w", display, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid invoice sequence: %d", n)
	}
	return n, nil
}
