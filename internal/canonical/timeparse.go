package canonical

import (
	"strconv"
	"strings"
	"time"
)

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
}

var dateLayouts = []string{
	time.DateOnly,
	"02/01/2006",
	"2006/01/02",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"15h04",
	"15h",
}

// stamp is a parsed source timestamp. When hasClock is false only the
// calendar date of At is meaningful.
type stamp struct {
	At       time.Time
	hasClock bool
}

// parseStamp reads the date and time formats seen across the feeds. Dates
// without a zone are interpreted in loc. A zoned value at exactly midnight
// UTC is a "no time given" sentinel and comes back without a clock, dated
// by its UTC calendar day.
func parseStamp(s string, loc *time.Location) (stamp, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return stamp{}, false
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if isUTCMidnight(t) {
				u := t.UTC()
				return stamp{At: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)}, true
			}
			return stamp{At: t.In(loc), hasClock: true}, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return stamp{At: t, hasClock: true}, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return stamp{At: t}, true
		}
	}
	if sec, ok := epochSeconds(s); ok {
		t := time.Unix(sec, 0)
		if isUTCMidnight(t) {
			u := t.UTC()
			return stamp{At: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)}, true
		}
		return stamp{At: t.In(loc), hasClock: true}, true
	}
	return stamp{}, false
}

// withClock combines a date stamp with a separate time-of-day field.
func withClock(date stamp, clock string, loc *time.Location) stamp {
	clock = strings.TrimSpace(clock)
	if clock == "" || date.hasClock {
		return date
	}
	// strip a trailing zone designator such as "09:00:00Z" or "09:00:00+02:00"
	if i := strings.IndexAny(clock, "Z+"); i > 0 {
		clock = clock[:i]
	}
	for _, layout := range clockLayouts {
		if c, err := time.Parse(layout, clock); err == nil {
			d := date.At
			return stamp{
				At:       time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc),
				hasClock: true,
			}
		}
	}
	return date
}

func isUTCMidnight(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

func epochSeconds(s string) (int64, bool) {
	if len(s) < 10 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return sec, true
}

// startOf repairs a start stamp: without a clock it lands on defaultHour
// local time of its calendar day.
func startOf(s stamp, defaultHour int, loc *time.Location) time.Time {
	if s.hasClock {
		return s.At
	}
	d := s.At.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), defaultHour, 0, 0, 0, loc)
}

// endOfDay is 23:59:59.999 local on t's calendar day.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}

// span resolves a start and optional end stamp into a repaired interval.
func span(start stamp, end *stamp, defaultHour int, loc *time.Location) (time.Time, time.Time) {
	startAt := startOf(start, defaultHour, loc)
	var endAt time.Time
	switch {
	case end == nil:
		endAt = endOfDay(startAt, loc)
	case end.hasClock:
		endAt = end.At
	default:
		endAt = endOfDay(end.At, loc)
	}
	if endAt.Before(startAt) {
		endAt = endOfDay(startAt, loc)
	}
	return startAt, endAt
}
