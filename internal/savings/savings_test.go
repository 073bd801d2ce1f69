package savings

import (
	"testing"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/aggregate"
	"github.com/dfvmonitor/energyforecast/internal/cost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(day int) time.Time {
	return time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
}

func series(values map[int]float64) []aggregate.DailyValue {
	var out []aggregate.DailyValue
	for day := 1; day <= 31; day++ {
		if v, ok := values[day]; ok {
			out = append(out, aggregate.DailyValue{Date: d(day), Value: v})
		}
	}
	return out
}

func price(p float64) *float64 { return &p }

func TestSavingsAntisymmetric(t *testing.T) {
	pairs := [][2]float64{{1, 2}, {5.5, 0.25}, {0, 3}, {-1, 4}}
	for _, p := range pairs {
		assert.Equal(t, Savings(p[0], p[1]), -Savings(p[1], p[0]))
	}
}

func TestPercentGuardsZeroBaseline(t *testing.T) {
	pct, ok := Percent(1, 4)
	assert.True(t, ok)
	assert.InDelta(t, 25.0, pct, 1e-12)

	_, ok = Percent(1, 0)
	assert.False(t, ok)
}

func TestScale(t *testing.T) {
	p := Scale(2)
	assert.Equal(t, Periods{Daily: 2, Monthly: 60, Yearly: 730}, p)
}

func TestJoinIsInner(t *testing.T) {
	dyn := series(map[int]float64{1: 1.0, 2: 1.2, 3: 0.8})
	th := series(map[int]float64{2: 1.5, 3: 1.4, 4: 1.6})

	records, err := Join(dyn, th, Baseline{HeaterWatts: 60, Price: price(50), Intensity: cost.DefaultCarbonIntensity})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, d(2), records[0].Date)
	assert.Equal(t, d(3), records[1].Date)

	r := records[0]
	assert.InDelta(t, 1.44, r.Energy.Heater, 1e-12)
	assert.InDelta(t, 1.2, r.Energy.Dynamic, 1e-12)
	assert.InDelta(t, 1.5, r.Energy.Thermostat, 1e-12)
	require.NotNil(t, r.Cost)
	assert.InDelta(t, 72.0, r.Cost.Heater, 1e-9)
	assert.InDelta(t, 1.44*cost.DefaultCarbonIntensity, r.CO2.Heater, 1e-9)
}

func TestJoinErrors(t *testing.T) {
	dyn := series(map[int]float64{1: 1})
	th := series(map[int]float64{2: 1})

	_, err := Join(dyn, th, Baseline{HeaterWatts: 60, Intensity: cost.DefaultCarbonIntensity})
	assert.ErrorIs(t, err, ErrNoOverlap)

}

func TestJoinKeepsEnergyWithoutHeaterOrIntensity(t *testing.T) {
	dyn := series(map[int]float64{1: 0.5, 2: 0.7})
	th := series(map[int]float64{1: 1.0, 2: 1.1})
	b := Baseline{HeaterWatts: 0, Price: price(10), Intensity: cost.CarbonIntensity(-1)}

	unavailable := b.Unavailable()
	require.Len(t, unavailable, 2)
	assert.ErrorIs(t, unavailable[0], ErrHeaterPowerMissing)
	assert.ErrorIs(t, unavailable[1], cost.ErrCarbonIntensityUnavailable)
	assert.Equal(t, []Pair{DynamicVsThermostat}, b.Pairs())

	records, err := Join(dyn, th, b)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].CO2)
	assert.Zero(t, records[0].Energy.Heater)
	require.NotNil(t, records[0].Cost)

	all, err := SummarizeAll(records, b.Pairs()...)
	require.NoError(t, err)
	require.Len(t, all, 1)
	s := all[0]
	assert.Equal(t, "dynamic_vs_thermostat", s.Pair)
	assert.InDelta(t, 0.9, s.Energy.TotalSavings, 1e-9)
	require.NotNil(t, s.Cost)
	assert.InDelta(t, 9.0, s.Cost.TotalSavings, 1e-9)
	assert.Nil(t, s.CO2)
	assert.Equal(t, []string{cost.ErrCarbonIntensityUnavailable.Error()}, s.Unavailable)

	assert.Len(t, Baseline{HeaterWatts: 60, Intensity: 100}.Pairs(), 3)
	assert.Empty(t, Baseline{HeaterWatts: 60, Intensity: 100}.Unavailable())
}

func TestSummarize(t *testing.T) {
	dyn := series(map[int]float64{1: 0.44, 2: 0.94})
	th := series(map[int]float64{1: 1.0, 2: 1.0})

	records, err := Join(dyn, th, Baseline{HeaterWatts: 60, Price: price(10), Intensity: 100})
	require.NoError(t, err)

	s, err := Summarize(records, DynamicVsHeater)
	require.NoError(t, err)
	assert.Equal(t, "dynamic_vs_heater", s.Pair)
	assert.Equal(t, 2, s.Days)

	// heater 1.44/day; dynamic saves 1.0 then 0.5
	assert.InDelta(t, 2.88, s.Energy.BaselineTotal, 1e-9)
	assert.InDelta(t, 1.38, s.Energy.CompetitorTotal, 1e-9)
	assert.InDelta(t, 1.5, s.Energy.TotalSavings, 1e-9)
	assert.InDelta(t, 0.75, s.Energy.AverageDailySavings, 1e-9)
	assert.InDelta(t, 0.75*30, s.Energy.Projected.Monthly, 1e-9)
	assert.InDelta(t, 0.75*365, s.Energy.Projected.Yearly, 1e-9)
	require.NotNil(t, s.Energy.Percent)
	assert.InDelta(t, 1.5/2.88*100, *s.Energy.Percent, 1e-9)
	require.NotNil(t, s.Energy.MeanDailyPercent)
	assert.InDelta(t, (1.0/1.44+0.5/1.44)/2*100, *s.Energy.MeanDailyPercent, 1e-9)

	require.NotNil(t, s.Cost)
	assert.InDelta(t, 15.0, s.Cost.TotalSavings, 1e-9)
	require.NotNil(t, s.CO2)
	assert.InDelta(t, 150.0, s.CO2.TotalSavings, 1e-9)
	assert.Empty(t, s.Unavailable)
}

func TestSummarizePairSymmetry(t *testing.T) {
	dyn := series(map[int]float64{1: 0.7, 2: 0.9, 3: 1.1})
	th := series(map[int]float64{1: 1.0, 2: 1.3, 3: 0.9})

	records, err := Join(dyn, th, Baseline{HeaterWatts: 45, Intensity: cost.DefaultCarbonIntensity})
	require.NoError(t, err)

	forward, err := Summarize(records, DynamicVsThermostat)
	require.NoError(t, err)
	reverse, err := Summarize(records, Pair{Baseline: Dynamic, Competitor: Thermostat})
	require.NoError(t, err)

	assert.InDelta(t, forward.Energy.TotalSavings, -reverse.Energy.TotalSavings, 1e-12)
	assert.InDelta(t, forward.CO2.TotalSavings, -reverse.CO2.TotalSavings, 1e-9)
}

func TestSummarizeWithoutPrice(t *testing.T) {
	dyn := series(map[int]float64{1: 1})
	records, err := Join(dyn, dyn, Baseline{HeaterWatts: 60, Intensity: cost.DefaultCarbonIntensity})
	require.NoError(t, err)

	all, err := SummarizeAll(records)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, s := range all {
		assert.Nil(t, s.Cost)
		assert.NotEmpty(t, s.Unavailable)
	}
}

func TestSummarizeMetricZeroBaseline(t *testing.T) {
	s := SummarizeMetric([]DailyPair{{Date: d(1), Baseline: 0, Competitor: 1}})
	assert.Nil(t, s.Percent)
	assert.Nil(t, s.MeanDailyPercent)
	assert.Equal(t, -1.0, s.TotalSavings)
}

func TestHeaterCO2Comparison(t *testing.T) {
	ctrl := series(map[int]float64{1: 0.5, 2: 1.0})

	days, summary, err := HeaterCO2Comparison(ctrl, 60, 100)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.InDelta(t, 144.0, days[0].Baseline, 1e-9)
	assert.InDelta(t, 50.0, days[0].Competitor, 1e-9)
	assert.InDelta(t, 94.0+44.0, summary.TotalSavings, 1e-9)

	_, _, err = HeaterCO2Comparison(ctrl, -5, 100)
	assert.ErrorIs(t, err, ErrHeaterPowerMissing)
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("thermostat_vs_heater")
	require.NoError(t, err)
	assert.Equal(t, ThermostatVsHeater, p)

	_, err = ParsePair("heater_vs_moon")
	assert.Error(t, err)
}
