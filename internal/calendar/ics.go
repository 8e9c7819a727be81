package calendar

import (
	"time"

	ical "github.com/arran4/golang-ical"
)

// defaultDuration is used for DTEND since events only store a start.
const defaultDuration = 2 * time.Hour

// RenderICS serializes occurrences as a PUBLISH calendar. Each occurrence
// becomes its own VEVENT so clients need no recurrence support.
func RenderICS(occurrences []Occurrence, clubName, uidDomain string) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//" + clubName + "//Club Portal//DE")
	cal.SetName(clubName)
	cal.SetXWRCalName(clubName)

	stamp := time.Now()
	for _, occ := range occurrences {
		ev := cal.AddEvent(occ.Key + "@" + uidDomain)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(occ.Start)
		ev.SetEndAt(occ.Start.Add(defaultDuration))
		ev.SetSummary(occ.Title)
		if occ.Location != "" {
			ev.SetLocation(occ.Location)
		}
		ev.AddCategory(string(occ.Category))
	}

	return cal.Serialize()
}
