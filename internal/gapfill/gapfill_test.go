package gapfill

import (
	"math"
	"testing"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/period"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int, energy float64) types.DailyAggregate {
	return types.DailyAggregate{
		Date:                   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		EnergyKWh:              energy,
		AvgInternalTemperature: 21,
		AvgExternalTemperature: 10,
		AvgInternalHumidity:    40,
		AvgExternalHumidity:    70,
		Readings:               96,
	}
}

func TestTouchesGap(t *testing.T) {
	tests := []struct {
		p    period.Period
		want bool
	}{
		{period.Month(time.May), true},
		{period.Month(time.June), false},
		{period.Quarter(2), true},
		{period.Quarter(1), false},
		{period.Half(1), true},
		{period.Half(2), false},
		{period.Year(), true},
	}

	for _, tt := range tests {
		t.Run(tt.p.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPolicy.TouchesGap(tt.p))
		})
	}
}

func TestComputeYearlyAverage(t *testing.T) {
	days := []types.DailyAggregate{day(2024, 1, 1, 2), day(2024, 1, 2, 4)}
	days[1].AvgExternalTemperature = math.NaN()

	avg, ok := ComputeYearlyAverage(days)
	require.True(t, ok)
	assert.InDelta(t, 3.0, avg.EnergyKWh, 1e-9)
	assert.InDelta(t, 10.0, avg.ExternalTemperature, 1e-9)
	assert.Equal(t, 2, avg.Days)

	_, ok = ComputeYearlyAverage(nil)
	assert.False(t, ok)
}

func TestFillProducesEveryGapDay(t *testing.T) {
	real := []types.DailyAggregate{
		day(2025, time.May, 3, 9),
		day(2025, time.May, 20, 11),
		day(2025, time.April, 30, 7),
	}
	avg := &types.YearlyAverage{
		EnergyKWh:           5,
		InternalTemperature: 20,
		ExternalTemperature: 12,
		InternalHumidity:    45,
		ExternalHumidity:    60,
	}

	out := DefaultPolicy.Fill(real, avg)

	var may []types.DailyAggregate
	for _, d := range out {
		if d.Date.Month() == time.May && d.Date.Year() == 2025 {
			may = append(may, d)
		}
	}
	require.Len(t, may, 31)
	for i, d := range may {
		assert.Equal(t, i+1, d.Date.Day())
		assert.True(t, d.Complete())
		switch d.Date.Day() {
		case 3:
			assert.Equal(t, 9.0, d.EnergyKWh)
			assert.False(t, d.Filled)
		case 20:
			assert.Equal(t, 11.0, d.EnergyKWh)
		default:
			assert.Equal(t, 5.0, d.EnergyKWh)
			assert.Equal(t, 12.0, d.AvgExternalTemperature)
			assert.True(t, d.Filled)
		}
	}

	assert.Equal(t, 32, len(out))
	assert.Equal(t, time.April, out[0].Date.Month())
}

func TestFillCompletesPartialGapDays(t *testing.T) {
	partial := day(2025, time.May, 10, 4)
	partial.AvgInternalHumidity = math.NaN()
	avg := &types.YearlyAverage{EnergyKWh: 5, InternalTemperature: 20, ExternalTemperature: 12, InternalHumidity: 45, ExternalHumidity: 60}

	out := DefaultPolicy.Fill([]types.DailyAggregate{partial}, avg)
	for _, d := range out {
		if d.Date.Day() == 10 {
			assert.Equal(t, 4.0, d.EnergyKWh)
			assert.Equal(t, 45.0, d.AvgInternalHumidity)
			assert.True(t, d.Filled)
		}
	}
}

func TestFillWithoutAverageDropsIncomplete(t *testing.T) {
	bad := day(2025, time.May, 2, 3)
	bad.AvgInternalTemperature = math.NaN()
	days := []types.DailyAggregate{day(2025, time.May, 1, 3), bad}

	out := DefaultPolicy.Fill(days, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Date.Day())
}

func TestDropIncompleteOutsideGap(t *testing.T) {
	bad := day(2025, time.March, 2, 3)
	bad.AvgExternalHumidity = math.NaN()
	avg := &types.YearlyAverage{EnergyKWh: 5, InternalTemperature: 20, ExternalTemperature: 12, InternalHumidity: 45, ExternalHumidity: 60}

	out := DefaultPolicy.Fill([]types.DailyAggregate{bad}, avg)
	for _, d := range out {
		assert.NotEqual(t, time.March, d.Date.Month())
	}
	assert.Len(t, out, 31)
}
