package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func nyDate(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, newYork)
}

func distinctConfig(noTrade bool) Config {
	return Config{
		WeekendHoliday: decimal.RequireFromString("10"),
		DeadZone:       decimal.RequireFromString("20"),
		Asia:           decimal.RequireFromString("30"),
		London:         decimal.RequireFromString("40"),
		US:             decimal.RequireFromString("50"),
		Default:        decimal.RequireFromString("60"),
		NoTradeWindow:  noTrade,
	}
}

func TestSessionMultiplierWithNoTradeWindow(t *testing.T) {
	config := distinctConfig(true)

	tests := []struct {
		name        string
		at          time.Time
		wantSession Session
		want        string
	}{
		{"asia tuesday 21:00", nyDate(2025, time.March, 4, 21), SessionAsia, "30"},
		{"london tuesday 04:00", nyDate(2025, time.March, 4, 4), SessionLondon, "40"},
		{"us tuesday 10:00", nyDate(2025, time.March, 4, 10), SessionUS, "50"},
		{"dead zone tuesday 18:00", nyDate(2025, time.March, 4, 18), SessionDeadZone, "20"},
		{"friday before window", nyDate(2025, time.March, 7, 8), SessionLondon, "40"},
		{"friday inside window", nyDate(2025, time.March, 7, 10), SessionNoTrade, "0"},
		{"saturday", nyDate(2025, time.March, 8, 12), SessionNoTrade, "0"},
		{"sunday early", nyDate(2025, time.March, 9, 1), SessionNoTrade, "0"},
		{"sunday london open", nyDate(2025, time.March, 9, 3), SessionLondon, "40"},
		{"independence day", nyDate(2025, time.July, 4, 12), SessionNoTrade, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, session := SessionMultiplier(tt.at, config)
			require.Equal(t, tt.wantSession, session)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestSessionMultiplierWithoutNoTradeWindow(t *testing.T) {
	config := distinctConfig(false)

	got, session := SessionMultiplier(nyDate(2025, time.March, 8, 12), config)
	require.Equal(t, SessionWeekendHoliday, session)
	require.True(t, got.Equal(decimal.NewFromInt(10)))

	got, session = SessionMultiplier(nyDate(2025, time.July, 4, 12), config)
	require.Equal(t, SessionWeekendHoliday, session)
	require.True(t, got.Equal(decimal.NewFromInt(10)))
}

func TestScaleBySession(t *testing.T) {
	config := distinctConfig(false)
	config.US = decimal.RequireFromString("1.25")

	got, session := ScaleBySession(decimal.RequireFromString("0.001"), nyDate(2025, time.December, 16, 12), config)
	require.Equal(t, SessionUS, session)
	require.True(t, got.Equal(decimal.RequireFromString("0.00125")))

	got, session = ScaleBySession(decimal.Zero, nyDate(2025, time.December, 16, 12), config)
	require.True(t, got.IsZero())
	require.Equal(t, SessionDefault, session)
}

func TestHolidays(t *testing.T) {
	require.True(t, isHoliday(nyDate(2025, time.November, 27, 12)), "thanksgiving")
	require.True(t, isHoliday(nyDate(2025, time.January, 20, 12)), "mlk day")
	require.True(t, isHoliday(nyDate(2025, time.May, 26, 12)), "memorial day")
	require.True(t, isHoliday(nyDate(2025, time.September, 1, 12)), "labor day")
	require.False(t, isHoliday(nyDate(2025, time.March, 4, 12)))
}

func TestSessionSizerUsesClock(t *testing.T) {
	sizer := NewSessionSizer(distinctConfig(false)).WithClock(func() time.Time {
		return nyDate(2025, time.March, 4, 10)
	})
	got, err := sizer.Multiplier(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(50)))
}
