package utils

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// DefaultSemaphoreLimit bounds concurrent LLM and embedding calls unless
// SEMAPHORE_LIMIT overrides it.
const DefaultSemaphoreLimit = 20

// mentionSeparators matches a run of newline, carriage-return or dash
// characters together with any whitespace around it.
var mentionSeparators = regexp.MustCompile(`\s*[\n\r-]+\s*`)

// NormalizeMention canonicalizes an extracted entity or relationship string:
// surrounding whitespace is trimmed and every run of newlines, carriage
// returns or dashes collapses to a single space, so that textual variants
// such as "Apple \n Inc" and "Apple Inc" compare equal.
func NormalizeMention(raw string) string {
	s := strings.TrimSpace(raw)
	s = mentionSeparators.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// GetSemaphoreLimit returns the positive integer in SEMAPHORE_LIMIT, or
// DefaultSemaphoreLimit when it is unset or invalid.
func GetSemaphoreLimit() int {
	if limit, err := strconv.Atoi(os.Getenv("SEMAPHORE_LIMIT")); err == nil && limit > 0 {
		return limit
	}
	return DefaultSemaphoreLimit
}

// NormalizeL2Float32 scales a vector to unit length. Zero and empty vectors
// are returned unchanged.
func NormalizeL2Float32(embedding []float32) []float32 {
	norm := floats.Norm(Float64s(embedding), 2)
	if norm == 0 {
		return embedding
	}
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Float64s widens a float32 vector.
func Float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
