package geonames

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// similarity scores two lower-cased names 0-100, where 100 is identical.
func similarity(a, b string) int {
	if a == b {
		return 100
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}
