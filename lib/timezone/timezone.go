package timezone

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"
)

// Location is the timezone the forum renders its timestamps in.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
}

// Now is the current time on the forum's wall clock.
func Now() time.Time {
	return time.Now().In(Location)
}

var layouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04:05 PM",
	"January 2, 2006 3:04 PM",
	"Mon Jan 2, 2006 3:04 PM",
	"Monday, January 2, 2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
}

var clockLayouts = []string{
	"3:04:05 PM",
	"3:04 PM",
	"15:04:05",
	"15:04",
}

var spaces = regexp.MustCompile(`\s+`)
var relativeDay = regexp.MustCompile(`(?i)^(today|yesterday)\b[\s,@at]*`)
var postedPrefix = regexp.MustCompile(`(?i)^(posted|last post|on)[:\s]+`)

// Parse reads one of the timestamp formats the forum uses, interpreting it
// on the forum's wall clock. "Today" and "Yesterday" are resolved against
// now. The second return value is false when nothing matched.
func Parse(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	text = postedPrefix.ReplaceAllString(text, "")
	if text == "" {
		return time.Time{}, false
	}
	now = now.In(Location)

	if m := relativeDay.FindStringSubmatch(text); m != nil {
		day := now
		if strings.EqualFold(m[1], "yesterday") {
			day = now.AddDate(0, 0, -1)
		}
		rest := strings.TrimSpace(text[len(m[0]):])
		if rest == "" {
			return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, Location), true
		}
		for _, layout := range clockLayouts {
			clock, err := time.Parse(layout, strings.ToUpper(rest))
			if err == nil {
				return time.Date(
					day.Year(), day.Month(), day.Day(),
					clock.Hour(), clock.Minute(), clock.Second(), 0,
					Location,
				), true
			}
		}
		return time.Time{}, false
	}

	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, text, Location)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
