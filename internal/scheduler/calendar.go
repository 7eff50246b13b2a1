package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingCalendar answers whether US equity markets trade on a given day.
// Holidays are year-specific and need refreshing each year.
type TradingCalendar struct {
	location *time.Location
	holidays map[string]string
	log      zerolog.Logger
}

// NewTradingCalendar creates a calendar for NYSE/NASDAQ trading days.
func NewTradingCalendar(log zerolog.Logger) *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}

	return &TradingCalendar{
		location: loc,
		holidays: map[string]string{
			"2026-01-01": "New Year's Day",
			"2026-01-19": "MLK Day",
			"2026-02-16": "Presidents Day",
			"2026-04-03": "Good Friday",
			"2026-05-25": "Memorial Day",
			"2026-06-19": "Juneteenth",
			"2026-07-03": "Independence Day (observed)",
			"2026-09-07": "Labor Day",
			"2026-11-26": "Thanksgiving",
			"2026-12-25": "Christmas",
		},
		log: log.With().Str("component", "trading_calendar").Logger(),
	}
}

// IsTradingDay reports whether markets are open on the day containing t.
func (c *TradingCalendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	if name, ok := c.holidays[local.Format("2006-01-02")]; ok {
		c.log.Debug().Str("holiday", name).Msg("Market closed for holiday")
		return false
	}
	return true
}

// NextTradingDay returns the first trading day strictly after t.
func (c *TradingCalendar) NextTradingDay(t time.Time) time.Time {
	day := t.In(c.location)
	for {
		day = day.AddDate(0, 0, 1)
		if c.IsTradingDay(day) {
			return day
		}
	}
}
