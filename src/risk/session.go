// Package risk sizes trades by the New York trading session. The session
// multiplier is the default mood signal of the admission pipeline.
package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Session string

const (
	SessionWeekendHoliday Session = "weekend_holiday"
	SessionDeadZone       Session = "dead_zone"
	SessionAsia           Session = "asia_session"
	SessionLondon         Session = "london_session"
	SessionUS             Session = "us_session"
	SessionDefault        Session = "default"
	SessionNoTrade        Session = "no_trade"
)

const daysPerWeek = 7

var newYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionSizer implements the mood signal consumed by admission.
type SessionSizer struct {
	config Config
	now    func() time.Time
}

func NewSessionSizer(config Config) *SessionSizer {
	return &SessionSizer{config: config, now: time.Now}
}

// WithClock replaces the time source.
func (s *SessionSizer) WithClock(now func() time.Time) *SessionSizer {
	s.now = now
	return s
}

// Multiplier returns the size multiplier for the current session. It is zero
// inside the no-trade window; callers clamp it to their own bounds.
func (s *SessionSizer) Multiplier(ctx context.Context, symbol string) (decimal.Decimal, error) {
	mult, _ := SessionMultiplier(s.now(), s.config)
	return mult, nil
}

// SessionMultiplier detects the New York session at now and maps it to its
// configured multiplier.
func SessionMultiplier(now time.Time, config Config) (decimal.Decimal, Session) {
	et := now.In(newYork)

	if config.NoTradeWindow && inNoTradeWindow(et) {
		return decimal.Zero, SessionNoTrade
	}

	session := detectSession(et)
	switch session {
	case SessionWeekendHoliday:
		return config.WeekendHoliday, session
	case SessionDeadZone:
		return config.DeadZone, session
	case SessionAsia:
		return config.Asia, session
	case SessionLondon:
		return config.London, session
	case SessionUS:
		return config.US, session
	default:
		return config.Default, session
	}
}

// ScaleBySession multiplies size by the session multiplier.
func ScaleBySession(size decimal.Decimal, now time.Time, config Config) (decimal.Decimal, Session) {
	if !size.IsPositive() {
		return decimal.Zero, SessionDefault
	}
	mult, session := SessionMultiplier(now, config)
	return size.Mul(mult), session
}

// inNoTradeWindow covers Friday 09:00 until Sunday 03:00 New York time, plus
// US market holidays.
func inNoTradeWindow(t time.Time) bool {
	if t.Weekday() == time.Sunday && london(t) {
		return false
	}
	if isHoliday(t) {
		return true
	}

	switch t.Weekday() {
	case time.Friday:
		return t.Hour() >= 9
	case time.Saturday:
		return true
	case time.Sunday:
		return t.Hour() < 3
	default:
		return false
	}
}

func detectSession(t time.Time) Session {
	if t.Weekday() == time.Sunday && london(t) {
		return SessionLondon
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday || isHoliday(t) {
		return SessionWeekendHoliday
	}

	h := t.Hour()
	switch {
	case h >= 17 && h < 20:
		return SessionDeadZone
	case h >= 20 || h < 3:
		return SessionAsia
	case london(t):
		return SessionLondon
	case h >= 9 && h < 17:
		return SessionUS
	default:
		return SessionDefault
	}
}

func london(t time.Time) bool {
	return t.Hour() >= 3 && t.Hour() < 9
}

func isHoliday(t time.Time) bool {
	day := t.Format(time.DateOnly)
	for _, h := range holidays(t.Year()) {
		if h.Format(time.DateOnly) == day {
			return true
		}
	}
	return false
}

// holidays lists the US market holidays of year that the sizer observes.
func holidays(year int) []time.Time {
	observed := func(d time.Time) time.Time {
		if d.Weekday() == time.Sunday {
			return d.AddDate(0, 0, 1)
		}
		return d
	}

	memorial := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorial.Weekday() != time.Monday {
		memorial = memorial.AddDate(0, 0, -1)
	}

	return []time.Time{
		observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		memorial,
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
}

// nthWeekday returns the n-th (1-based) weekday of month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(weekday-first.Weekday()+daysPerWeek) % daysPerWeek
	return first.AddDate(0, 0, offset+(n-1)*daysPerWeek)
}
