package util

import (
	"math"
	"strconv"
	"strings"
)

// ParseFloat parses an optional finite float. Empty or non-finite input reports false.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// UpperSymbol normalizes a ticker symbol.
func UpperSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
