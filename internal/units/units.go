// Package units provides shared constants and parsing for the physical
// length units used in target definitions
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit constants
const (
	MM   = "mm"
	CM   = "cm"
	Inch = "in"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MM, CM, Inch}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ToMillimetres converts a length in the given unit to millimetres.
// Target definitions and the engine always work in millimetres.
func ToMillimetres(value float64, unit string) float64 {
	switch unit {
	case CM:
		return value * 10
	case Inch:
		return value * 25.4
	case MM:
		return value
	default:
		return value // default to mm if unknown unit
	}
}

// ParseLength parses a length string with an optional unit suffix, e.g.
// "5.6mm", "4.5 mm", "0.22in" or a bare number taken as millimetres.
func ParseLength(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	unit := MM
	for _, u := range []string{MM, CM, Inch} {
		if strings.HasSuffix(s, u) {
			unit = u
			s = strings.TrimSpace(strings.TrimSuffix(s, u))
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("length must be positive, got %v", v)
	}
	return ToMillimetres(v, unit), nil
}
