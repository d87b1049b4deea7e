package types

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPaper is used when a PDF request names no paper size
const DefaultPaper = "letter"

// paperSizes holds width x height in inches
var paperSizes = map[string][2]float64{
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
	"ledger":  {17, 11},
	"a0":      {33.1, 46.8},
	"a1":      {23.4, 33.1},
	"a2":      {16.5, 23.4},
	"a3":      {11.7, 16.5},
	"a4":      {8.27, 11.7},
	"a5":      {5.83, 8.27},
	"a6":      {4.13, 5.83},
}

// PaperSize returns the dimensions in inches of a named paper size
func PaperSize(name string) (width, height float64, ok bool) {
	size, ok := paperSizes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, 0, false
	}
	return size[0], size[1], true
}

// ParseDimension converts "10cm", "210mm", "8.5in", "816px" or a bare
// number (inches) to inches. Pixels assume 96 DPI.
func ParseDimension(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	divisor := 1.0
	switch {
	case strings.HasSuffix(s, "cm"):
		s, divisor = strings.TrimSuffix(s, "cm"), 2.54
	case strings.HasSuffix(s, "mm"):
		s, divisor = strings.TrimSuffix(s, "mm"), 25.4
	case strings.HasSuffix(s, "in"):
		s = strings.TrimSuffix(s, "in")
	case strings.HasSuffix(s, "px"):
		s, divisor = strings.TrimSuffix(s, "px"), 96
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dimension %q", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("dimension must be positive, got %q", s)
	}
	return v / divisor, nil
}
