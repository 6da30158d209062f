package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var binarySuffix = map[byte]int64{
	'B': 1,
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a size such as "100", "64K", "1.5G", "10MiB" or "2 GB".
// A bare single-letter suffix is binary (K = 1024); longer unit names follow
// their usual SI or IEC meaning.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	numStr, multiplier := s, int64(1)
	if m, ok := binarySuffix[strings.ToUpper(s[len(s)-1:])[0]]; ok {
		numStr, multiplier = s[:len(s)-1], m
	}
	if numStr != "" {
		if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return n * multiplier, nil
		}
		if f, err := strconv.ParseFloat(numStr, 64); err == nil {
			return int64(f * float64(multiplier)), nil
		}
	}

	n, err := humanize.ParseBytes(s)
	if err != nil || n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(n), nil
}
