// Package indicators selects catalog indicators by keyword.
package indicators

import (
	"regexp"
	"slices"
	"strings"

	"github.com/giygas/gho-indicators/entities"
)

// Matcher reports whether an indicator name contains any of a keyword set,
// ignoring case. Keywords are literal substrings, not patterns.
type Matcher struct {
	re *regexp.Regexp
}

// Compile builds a matcher from keywords. Blank keywords are ignored; a set with
// no usable keyword yields a matcher that matches nothing.
func Compile(keywords []string) *Matcher {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(k))
	}
	if len(parts) == 0 {
		return &Matcher{}
	}

	// Escaped literals always compile
	return &Matcher{re: regexp.MustCompile(`(?i)(?:` + strings.Join(parts, "|") + `)`)}
}

// Match reports whether name contains at least one keyword
func (m *Matcher) Match(name string) bool {
	if m == nil || m.re == nil {
		return false
	}
	return m.re.MatchString(name)
}

// Filter returns the catalog entries whose name matches any keyword, deduplicated
// by (code, name) and sorted by code ascending, then name.
func Filter(catalog []entities.IndicatorRecord, keywords []string) []entities.IndicatorRecord {
	m := Compile(keywords)

	seen := make(map[entities.IndicatorRecord]struct{})
	selected := make([]entities.IndicatorRecord, 0)
	for _, ind := range catalog {
		if ind.Code == "" || !m.Match(ind.Name) {
			continue
		}
		if _, dup := seen[ind]; dup {
			continue
		}
		seen[ind] = struct{}{}
		selected = append(selected, ind)
	}

	slices.SortFunc(selected, func(a, b entities.IndicatorRecord) int {
		if c := strings.Compare(a.Code, b.Code); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	return selected
}

// Codes returns the indicator codes of a filtered set, in order, without repeats.
// The same code can appear twice in a filtered set when the catalog lists it under
// two names; its observations must only be fetched once.
func Codes(selected []entities.IndicatorRecord) []string {
	codes := make([]string, 0, len(selected))
	for _, ind := range selected {
		if len(codes) > 0 && codes[len(codes)-1] == ind.Code {
			continue
		}
		codes = append(codes, ind.Code)
	}
	return codes
}
