package core

import (
	"github.com/dustin/go-humanize"
)

// FormatBytes converts a byte count to a human-readable string using binary units.
// Examples:
//   - FormatBytes(0) returns "0 B"
//   - FormatBytes(1536) returns "1.5 KiB"
//   - FormatBytes(104857600) returns "100 MiB"
//
// Negative values are treated as 0.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseBytes parses a human-readable size such as "10MB" or "1.5 GiB".
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
