package classify

import "strings"

// splitTimestamp returns the date and time tokens of "<date> <time>".
// A timestamp without an interior space is malformed.
func splitTimestamp(ts string) (date, clock string, ok bool) {
	i := strings.IndexByte(ts, ' ')
	if i <= 0 {
		return "", "", false
	}
	return ts[:i], ts[i+1:], true
}

// HourOfDay returns the hour encoded in the two digits after the space.
// ok is false for malformed timestamps; callers drop those events from
// hourly views.
func HourOfDay(ts string) (hour int, ok bool) {
	_, clock, ok := splitTimestamp(ts)
	if !ok || len(clock) < 2 {
		return 0, false
	}
	d0, d1 := clock[0], clock[1]
	if !isDigit(d0) || !isDigit(d1) {
		return 0, false
	}
	h := int(d0-'0')*10 + int(d1-'0')
	if h > 23 {
		return 0, false
	}
	return h, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// CalendarDate returns the date token of the timestamp.
func CalendarDate(ts string) (string, bool) {
	date, _, ok := splitTimestamp(ts)
	return date, ok
}
