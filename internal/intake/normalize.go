package intake

import "strings"

// Corporate suffixes stripped from company names before keying, so that
// "Acme, Inc." and "Acme" collapse to the same identity.
var corpSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"ltd":          true,
	"limited":      true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"gmbh":         true,
	"plc":          true,
}

// normalize lowercases, drops punctuation-only noise, strips trailing
// corporate suffixes, and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ';':
			return ' '
		}
		return r
	}, s)

	fields := strings.Fields(s)
	for len(fields) > 1 {
		last := strings.TrimRight(fields[len(fields)-1], ".")
		if !corpSuffixes[last] {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// IdentityKey derives the stable dedup key for a posting from its
// normalized company, normalized title, and source. Re-ingesting the
// same posting always produces the same key.
func IdentityKey(company, title, source string) string {
	return normalize(company) + "|" + normalize(title) + "|" + source
}
