package ledger

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/checkpoint/internal/database"
)

// removeDiacritics strips combining marks ("Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// normalize folds case and diacritics and collapses runs of whitespace and dashes.
func normalize(s string) string {
	s = strings.ToLower(removeDiacritics(s))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Search keeps visits whose subject name or student id contains q. Order is preserved.
func Search(visits []database.Visit, q string) []database.Visit {
	needle := normalize(q)
	if needle == "" {
		return visits
	}
	var out []database.Visit
	for _, v := range visits {
		if strings.Contains(normalize(v.SubjectName), needle) ||
			strings.Contains(strings.ToLower(v.StudentID), needle) {
			out = append(out, v)
		}
	}
	return out
}
