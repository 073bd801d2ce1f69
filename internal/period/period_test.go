package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name  string
		p     Period
		start string
		end   string
		days  int
		label string
	}{
		{"may", Month(time.May), "2026-05-01", "2026-05-31", 31, "05"},
		{"february", Month(time.February), "2026-02-01", "2026-02-28", 28, "02"},
		{"q2", Quarter(2), "2026-04-01", "2026-06-30", 91, "Q2"},
		{"q4", Quarter(4), "2026-10-01", "2026-12-31", 92, "Q4"},
		{"s1", Half(1), "2026-01-01", "2026-06-30", 181, "S1"},
		{"s2", Half(2), "2026-07-01", "2026-12-31", 184, "S2"},
		{"year", Year(), "2026-01-01", "2026-12-31", 365, "2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.p.Window(2026)
			assert.Equal(t, tt.start, start.Format("2006-01-02"))
			assert.Equal(t, tt.end, end.Format("2006-01-02"))
			assert.Equal(t, tt.days, tt.p.Days(2026))
			assert.Equal(t, tt.label, tt.p.Label(2026))
		})
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Quarter(2).Contains(time.May))
	assert.False(t, Quarter(3).Contains(time.May))
	assert.True(t, Half(1).Contains(time.May))
	assert.False(t, Half(2).Contains(time.May))
	assert.True(t, Year().Contains(time.May))
	assert.False(t, Month(time.April).Contains(time.May))
}

func TestParse(t *testing.T) {
	p, err := Parse("quarterly", "3")
	require.NoError(t, err)
	assert.Equal(t, Quarter(3), p)

	p, err = Parse("yearly", "")
	require.NoError(t, err)
	assert.Equal(t, Year(), p)

	_, err = Parse("monthly", "13")
	assert.Error(t, err)

	_, err = Parse("semester", "x")
	assert.Error(t, err)

	_, err = Parse("weekly", "1")
	assert.Error(t, err)
}
