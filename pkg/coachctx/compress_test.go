package coachctx

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCompress(t *testing.T) {
	t.Run("short text is unchanged", func(t *testing.T) {
		assert.Equal(t, "squats 3x10", Compress("squats 3x10", 50))
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, "", Compress("", 10))
	})

	t.Run("non-positive budget disables compression", func(t *testing.T) {
		assert.Equal(t, "abcdef", Compress("abcdef", 0))
		assert.Equal(t, "abcdef", Compress("abcdef", -3))
	})

	t.Run("keeps head and tail", func(t *testing.T) {
		text := strings.Repeat("a", 70) + strings.Repeat("b", 60) + strings.Repeat("c", 30)
		out := Compress(text, 100)

		assert.Equal(t, strings.Repeat("a", 70)+TruncationMarker+strings.Repeat("c", 30), out)
	})

	t.Run("floors odd budgets", func(t *testing.T) {
		out := Compress("0123456789ABCDEFGHIJ", 9)
		// head = 6, tail = 2
		assert.Equal(t, "012345"+TruncationMarker+"IJ", out)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("é", 30)
		out := Compress(text, 10)

		assert.True(t, utf8.ValidString(out))
		assert.Equal(t, strings.Repeat("é", 7)+TruncationMarker+strings.Repeat("é", 3), out)
	})

	t.Run("idempotent on its own output", func(t *testing.T) {
		text := strings.Repeat("workout log line\n", 200)
		once := Compress(text, 120)
		assert.Equal(t, once, Compress(once, 120))
	})
}

func TestCompressProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("output never exceeds budget plus marker", prop.ForAll(
		func(text string, n int) bool {
			return utf8.RuneCountInString(Compress(text, n)) <= n+markerLen
		},
		gen.AnyString(),
		gen.IntRange(1, 400),
	))

	properties.Property("text within budget is returned unchanged", prop.ForAll(
		func(text string, extra int) bool {
			n := utf8.RuneCountInString(text) + extra
			if n <= 0 {
				return true
			}
			return Compress(text, n) == text
		},
		gen.AnyString(),
		gen.IntRange(0, 50),
	))

	properties.Property("compression is idempotent", prop.ForAll(
		func(text string, n int) bool {
			once := Compress(text, n)
			return Compress(once, n) == once
		},
		gen.AnyString(),
		gen.IntRange(1, 400),
	))

	properties.TestingRun(t)
}
