// Package diff measures how much page text changed between two observations.
package diff

import (
	"math"
	"unicode/utf8"

	"github.com/sells-group/change-monitor/internal/model"
)

// FirstObservation is the magnitude reported when no previous content exists.
const FirstObservation = 100.0

// Magnitude returns the percentage of FullText that changed, in [0, 100],
// rounded to two decimals. A nil previous means first observation.
func Magnitude(previous *model.ExtractedContent, current model.ExtractedContent) float64 {
	if previous == nil {
		return FirstObservation
	}
	return Percent(previous.FullText, current.FullText)
}

// Percent returns round(distance/maxLength*100, 2) over code points.
func Percent(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 0
	}
	d := Distance(a, b)
	pct := float64(d) / float64(maxLen) * 100
	return min(math.Round(pct*100)/100, 100)
}

// Distance returns the Levenshtein edit distance between a and b over Unicode
// code points with unit costs. Memory is O(min(len(a), len(b))).
func Distance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)

	// Common prefix and suffix never contribute edits.
	for len(ra) > 0 && len(rb) > 0 && ra[0] == rb[0] {
		ra, rb = ra[1:], rb[1:]
	}
	for len(ra) > 0 && len(rb) > 0 && ra[len(ra)-1] == rb[len(rb)-1] {
		ra, rb = ra[:len(ra)-1], rb[:len(rb)-1]
	}

	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
