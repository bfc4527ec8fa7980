package schema

import "time"

// DateLabel renders a calendar date relative to now: "Today", "Yesterday" or a short
// month-day label such as "Jan 2". Unparseable dates are returned unchanged.
func DateLabel(date string, now time.Time) string {
	d, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return date
	}
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, now.Location())
	switch {
	case d.Equal(today):
		return "Today"
	case d.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	}
	return d.Format("Jan 2")
}

// TimeLabel renders "HH:MM" on a 12-hour clock, e.g. "9:05 PM".
func TimeLabel(clock string) string {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return clock
	}
	return t.Format("3:04 PM")
}
