package importer

import (
	"strings"

	"github.com/intermernet/clubportal/internal/database"
)

// Token vocabularies, tested in this order; the first hit wins. Absent
// tokens must match exactly, the others match as substrings.
var (
	absentTokens  = []string{"-", "nein", "abwesend", "x-", "x -", "na"}
	activeTokens  = []string{"mt", "spieler", "active", "anwesend", "ja", "x", "tw", "torwart"}
	passiveTokens = []string{"ot", "zuschauer", "passive", "passiv", "krank", "verletzt"}
	helperTokens  = []string{"helfer", "helper", "dienst"}
	excusedTokens = []string{"e", "entschuldigt", "urlaub"}
)

// isPlaceholder reports cells that carry no information.
func isPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "."
}

// ParseStatus maps a spreadsheet cell to an attendance status.
func ParseStatus(raw string) (database.AttendanceStatus, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || v == "." {
		return "", false
	}

	for _, tok := range absentTokens {
		if v == tok {
			return database.AttendanceAbsent, true
		}
	}
	switch {
	case containsAny(v, activeTokens):
		return database.AttendanceActive, true
	case containsAny(v, passiveTokens):
		return database.AttendancePassive, true
	case containsAny(v, helperTokens):
		return database.AttendanceHelper, true
	case containsAny(v, excusedTokens):
		return database.AttendanceExcused, true
	}
	return "", false
}
