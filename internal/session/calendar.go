package session

import (
	"fmt"
	"time"
)

// DayInfo describes one exchange trading day.
type DayInfo struct {
	Open    bool          // false on holidays and weekends
	Close   time.Duration // regular session close, as wall-clock offset from midnight
	Holiday string        // holiday name when !Open on a weekday
}

// Calendar answers trading-day questions for dates in exchange local time.
type Calendar interface {
	Day(date time.Time) (DayInfo, error)
}

const (
	regularClose = 16 * time.Hour
	earlyClose   = 13 * time.Hour
)

// NYSECalendar computes the NYSE holiday and early-close schedule from rules.
type NYSECalendar struct {
	// MinYear and MaxYear bound the years the rules are trusted for.
	MinYear, MaxYear int
}

// NewNYSECalendar returns a calendar covering 2000 through 2099.
func NewNYSECalendar() NYSECalendar {
	return NYSECalendar{MinYear: 2000, MaxYear: 2099}
}

// Day returns the schedule for the calendar date of t (year, month, day of t's location).
func (c NYSECalendar) Day(t time.Time) (DayInfo, error) {
	y, m, d := t.Date()
	if y < c.MinYear || y > c.MaxYear {
		return DayInfo{}, fmt.Errorf("nyse calendar: year %d outside %d-%d", y, c.MinYear, c.MaxYear)
	}

	date := civil(y, m, d)
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return DayInfo{Open: false}, nil
	}

	if name, ok := holidays(y)[date]; ok {
		return DayInfo{Open: false, Holiday: name}, nil
	}

	if isEarlyClose(date) {
		return DayInfo{Open: true, Close: earlyClose}, nil
	}
	return DayInfo{Open: true, Close: regularClose}, nil
}

// civil returns midnight UTC of a calendar date, used as a map key.
func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func holidays(y int) map[time.Time]string {
	h := make(map[time.Time]string, 10)

	// New Year's Day: Sunday moves to Monday, Saturday is not observed.
	ny := civil(y, time.January, 1)
	switch ny.Weekday() {
	case time.Sunday:
		h[ny.AddDate(0, 0, 1)] = "New Year's Day"
	case time.Saturday:
	default:
		h[ny] = "New Year's Day"
	}

	h[nthWeekday(y, time.January, time.Monday, 3)] = "Martin Luther King Jr. Day"
	h[nthWeekday(y, time.February, time.Monday, 3)] = "Washington's Birthday"
	h[easter(y).AddDate(0, 0, -2)] = "Good Friday"
	h[lastWeekday(y, time.May, time.Monday)] = "Memorial Day"
	if y >= 2022 {
		h[observed(civil(y, time.June, 19))] = "Juneteenth"
	}
	h[observed(civil(y, time.July, 4))] = "Independence Day"
	h[nthWeekday(y, time.September, time.Monday, 1)] = "Labor Day"
	h[thanksgiving(y)] = "Thanksgiving Day"
	h[observed(civil(y, time.December, 25))] = "Christmas Day"

	return h
}

func isEarlyClose(date time.Time) bool {
	y := date.Year()
	switch {
	case date.Equal(civil(y, time.July, 3)):
		return true
	case date.Equal(thanksgiving(y).AddDate(0, 0, 1)):
		return true
	case date.Equal(civil(y, time.December, 24)):
		return true
	}
	return false
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	first := civil(y, m, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) time.Time {
	last := civil(y, m+1, 1).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

func thanksgiving(y int) time.Time {
	return nthWeekday(y, time.November, time.Thursday, 4)
}

// easter returns Easter Sunday (anonymous Gregorian algorithm).
func easter(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return civil(y, time.Month(month), day)
}
