package importer

import (
	"strings"

	"github.com/intermernet/clubportal/internal/database"
)

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// NormalizeName lowercases, transliterates German umlauts and drops every
// character outside [a-z0-9].
func NormalizeName(s string) string {
	s = umlauts.Replace(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// roster indexes members by normalized (family, given) name.
type roster map[string]*database.Member

func nameKey(family, given string) string {
	return NormalizeName(family) + "|" + NormalizeName(given)
}

func newRoster(members []*database.Member) roster {
	r := make(roster, len(members))
	for _, m := range members {
		if m.Hidden {
			continue
		}
		key := nameKey(m.LastName, m.FirstName)
		if _, dup := r[key]; !dup {
			r[key] = m
		}
	}
	return r
}

// match looks up (family, given) and then the swapped pair, so files with
// reversed name columns still resolve.
func (r roster) match(given, family string) (*database.Member, bool) {
	if m, ok := r[nameKey(family, given)]; ok {
		return m, true
	}
	m, ok := r[nameKey(given, family)]
	return m, ok
}
