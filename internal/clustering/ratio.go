package clustering

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Normalize trims and lower-cases a prompt. Only the primary prompt text is ever compared.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Ratio is the Ratcliff-Obershelp similarity of two already-normalized strings, compared
// rune by rune: 2*M/T where M is the number of matching runes and T the total length.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// lengthsCompatible rejects pairs whose rune lengths differ by more than tol of the
// longer one. tol <= 0 disables the check.
func lengthsCompatible(la, lb int, tol float64) bool {
	if tol <= 0 {
		return true
	}
	longer := la
	if lb > longer {
		longer = lb
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= tol*float64(longer)
}
