package strategy

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"
)

var (
	isoDateRe      = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
	kanjiDateRe    = regexp.MustCompile(`^(?:(\d{4})年)?(\d{1,2})月(\d{1,2})日$`)
	monthDayRe     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	daysAgoRe      = regexp.MustCompile(`^(\d+)\s*(?:日前|days? ago)$`)
	lastWeekdayRe  = regexp.MustCompile(`^last (monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)
	relativeOffset = map[string]int{
		"today": 0, "tonight": 0, "this morning": 0, "this afternoon": 0,
		"今日": 0, "本日": 0, "きょう": 0,
		"yesterday": -1, "昨日": -1, "きのう": -1,
		"day before yesterday": -2, "the day before yesterday": -2, "一昨日": -2, "おととい": -2,
	}
	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
		"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	}
)

// ResolveWorkDate turns a written date into a calendar day in now's
// location. Relative expressions count back from now. A date written
// without a year takes now's year, or the previous year when that would
// be in the future. Empty text resolves to today.
func ResolveWorkDate(text string, now time.Time) (time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	s := strings.ToLower(strings.TrimSpace(width.Fold.String(text)))
	if s == "" {
		return today, nil
	}

	if off, ok := relativeOffset[s]; ok {
		return today.AddDate(0, 0, off), nil
	}
	if m := daysAgoRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, -n), nil
	}
	if m := lastWeekdayRe.FindStringSubmatch(s); m != nil {
		back := (int(today.Weekday()) - int(weekdays[m[1]]) + 7) % 7
		if back == 0 {
			back = 7
		}
		return today.AddDate(0, 0, -back), nil
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return calendarDay(m[1], m[2], m[3], today)
	}
	if m := kanjiDateRe.FindStringSubmatch(s); m != nil {
		return calendarDay(m[1], m[2], m[3], today)
	}
	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		return calendarDay("", m[1], m[2], today)
	}
	return time.Time{}, eris.Errorf("strategy: unrecognized work date %q", text)
}

func calendarDay(year, month, day string, today time.Time) (time.Time, error) {
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	y := today.Year()
	if year != "" {
		y, _ = strconv.Atoi(year)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, eris.Errorf("strategy: invalid date %s-%s-%s", year, month, day)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, today.Location())
	if t.Day() != d {
		return time.Time{}, eris.Errorf("strategy: invalid date %d-%02d-%02d", y, m, d)
	}
	if year == "" && t.After(today) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, nil
}
