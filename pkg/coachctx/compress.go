package coachctx

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker joins the head and tail of a compressed block.
const TruncationMarker = "...[Context truncated for length]..."

var markerLen = utf8.RuneCountInString(TruncationMarker)

// Compress fits text into maxLength runes by keeping the first 70% and the
// last 30% of the budget, joined by TruncationMarker. The result is at most
// maxLength plus the marker length. A non-positive budget disables
// compression.
func Compress(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}

	n := utf8.RuneCountInString(text)
	if n <= maxLength {
		return text
	}

	// Already compressed for this budget.
	if n <= maxLength+markerLen && strings.Contains(text, TruncationMarker) {
		return text
	}

	runes := []rune(text)
	head := maxLength * 7 / 10
	tail := maxLength * 3 / 10

	var b strings.Builder
	b.Grow(len(text))
	b.WriteString(string(runes[:head]))
	b.WriteString(TruncationMarker)
	b.WriteString(string(runes[n-tail:]))
	return b.String()
}
