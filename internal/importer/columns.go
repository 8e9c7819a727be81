package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/intermernet/clubportal/internal/database"
)

var (
	dayFirstDate = regexp.MustCompile(`^(\d{1,2})([./-])(\d{1,2})([./-])(\d{2}|\d{4})$`)
	isoDate      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

// ParseDate accepts DD.MM.YYYY, DD-MM-YYYY, DD/MM/YYYY and YYYY-MM-DD.
// Two-digit years are read as 20YY. The result is midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)

	var year, month, day string
	if m := isoDate.FindStringSubmatch(s); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else if m := dayFirstDate.FindStringSubmatch(s); m != nil {
		if m[2] != m[4] {
			return time.Time{}, false
		}
		day, month, year = m[1], m[3], m[5]
		if len(year) == 2 {
			year = "20" + year
		}
	} else {
		return time.Time{}, false
	}

	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	// time.Date normalizes 31.02 into March; reject that.
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// dateColumn is one header column that parsed as a calendar date.
type dateColumn struct {
	index    int
	header   string
	date     time.Time
	category database.Category
	title    string
}

// identityColumns is the number of leading name columns.
const identityColumns = 2

func findDateColumns(header []string, loc *time.Location) []*dateColumn {
	var cols []*dateColumn
	for i := identityColumns; i < len(header); i++ {
		if d, ok := ParseDate(header[i], loc); ok {
			cols = append(cols, &dateColumn{index: i, header: strings.TrimSpace(header[i]), date: d})
		}
	}
	return cols
}

var (
	rosterMarkers     = []string{"mt", "spieler", "tw", "torwart"}
	helperMarkers     = []string{"helfer", "helper", "dienst"}
	tournamentMarkers = []string{"turnier", "tournament"}
)

// inferKind classifies a date column from all of its cell values.
// Priority: tournament, match, social event, training.
func inferKind(rows [][]string, col int, date time.Time) (database.Category, string) {
	var roster, helper, tournament bool
	for _, row := range rows {
		v := strings.ToLower(cell(row, col))
		if v == "" {
			continue
		}
		roster = roster || containsAny(v, rosterMarkers)
		helper = helper || containsAny(v, helperMarkers)
		tournament = tournament || containsAny(v, tournamentMarkers)
	}

	switch {
	case tournament || (roster && helper):
		return database.CategoryMatch, "Turnier"
	case roster:
		return database.CategoryMatch, "Spiel"
	case helper:
		return database.CategoryParty, "Veranstaltung"
	default:
		return database.CategoryTraining, "Training " + date.Format("02.01.")
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
