package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/cost"
	"github.com/dfvmonitor/energyforecast/internal/period"
	"github.com/dfvmonitor/energyforecast/internal/savings"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore answers the reading, power and last-date queries from generated
// data. Each day has four readings at 00:00, 06:00, 12:00 and 18:00, so the
// daily energy (sum x 0.25) equals the power value.
type fakeStore struct {
	power   map[string]func(day time.Time) float64
	skip    func(table string, day time.Time) bool
	first   time.Time
	last    time.Time
	queries int
	fail    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		power: map[string]func(time.Time) float64{
			"dfv_smart_db":      func(time.Time) float64 { return 0.5 },
			"dfv_termosztat_db": func(time.Time) float64 { return 1.0 },
		},
		first: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		last:  time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) ExecuteQuery(_ context.Context, query string, args ...any) ([][]any, error) {
	f.queries++
	if f.fail != nil {
		return nil, f.fail
	}

	table := "dfv_termosztat_db"
	if strings.Contains(query, "dfv_smart_db") {
		table = "dfv_smart_db"
	}

	if strings.Contains(query, "MAX(date)") {
		return [][]any{{f.last}}, nil
	}

	include := func(day time.Time) bool { return true }
	switch a := args[0].(type) {
	case int:
		from, to := time.Month(a), time.Month(args[1].(int))
		include = func(day time.Time) bool { return day.Month() >= from && day.Month() <= to }
	case string:
		start, _ := time.Parse("2006-01-02", a)
		end, _ := time.Parse("2006-01-02", args[1].(string))
		include = func(day time.Time) bool { return !day.Before(start) && !day.After(end) }
	}

	powerOnly := strings.Contains(query, "power_w")
	var rows [][]any
	for day := f.first; !day.After(f.last); day = day.AddDate(0, 0, 1) {
		if !include(day) || (f.skip != nil && f.skip(table, day)) {
			continue
		}
		p := f.power[table](day)
		n := float64(day.YearDay())
		for _, clock := range []string{"00:00:00", "06:00:00", "12:00:00", "18:00:00"} {
			if powerOnly {
				rows = append(rows, []any{day, clock, p})
				continue
			}
			rows = append(rows, []any{
				day, clock, p, 2.1,
				21 + 0.5*math.Sin(n/5),
				6 + 8*math.Sin(n/30),
				45 + 2*math.Cos(n/7),
				75 + 5*math.Cos(n/11),
			})
		}
	}
	return rows, nil
}

func testService(store *fakeStore, mutate func(o *Options)) *Service {
	opts := DefaultOptions()
	opts.FitTimeout = time.Minute
	if mutate != nil {
		mutate(&opts)
	}
	return NewService(store, opts, zap.NewNop().Sugar())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func variablePower(d time.Time) float64 {
	return 0.8 + 0.2*math.Sin(float64(d.YearDay())/4)
}

func TestForecastMonthly(t *testing.T) {
	store := newFakeStore()
	store.power["dfv_smart_db"] = variablePower
	svc := testService(store, func(o *Options) {
		o.Tariffs = cost.TariffTable{"2025": "70,00 Ft/kWh"}
	})

	report, err := svc.ForecastEnergy(context.Background(), types.ControllerDynamic, period.Month(time.March))
	require.NoError(t, err)

	assert.Equal(t, "03", report.Label)
	assert.Equal(t, "month 03", report.History)
	assert.Equal(t, 62, report.HistoryDays)
	assert.Zero(t, report.FilledDays)
	require.Len(t, report.Points, 31)
	assert.Equal(t, day(2026, time.March, 1), report.Points[0].Date)

	for _, p := range report.Points {
		assert.LessOrEqual(t, p.LowerBound, p.Forecast)
		assert.LessOrEqual(t, p.Forecast, p.UpperBound)
		assert.GreaterOrEqual(t, p.LowerBound, 0.0)
	}

	// priced at the 2025 tariff because 2026 has none
	assert.True(t, report.Cost.Complete())
	assert.Empty(t, report.Unavailable)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[len(report.Warnings)-1], "2025 tariff")
	assert.InDelta(t, report.Cost.TotalEnergyKWh*70, report.Cost.TotalCost, 1e-6)
	assert.NotEmpty(t, report.RunID)
}

func TestForecastWithoutTariff(t *testing.T) {
	svc := testService(newFakeStore(), nil)

	report, err := svc.ForecastEnergy(context.Background(), types.ControllerThermostat, period.Month(time.February))
	require.NoError(t, err)
	assert.False(t, report.Cost.Complete())
	require.Len(t, report.Unavailable, 1)
	assert.Contains(t, report.Unavailable[0], "2026")
	assert.Zero(t, report.Cost.TotalCost)
}

func TestForecastFillsGapMonth(t *testing.T) {
	store := newFakeStore()
	store.skip = func(_ string, d time.Time) bool {
		return d.Year() == 2025 && d.Month() == time.May && d.Day() >= 10
	}

	tests := []struct {
		name    string
		p       period.Period
		history string
	}{
		{"gap month", period.Month(time.May), "2025-05-01..2025-05-31"},
		{"quarter", period.Quarter(2), "months 04-06"},
		{"half year", period.Half(1), "months 01-06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testService(store, nil)
			report, err := svc.ForecastEnergy(context.Background(), types.ControllerDynamic, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.history, report.History)
			assert.Equal(t, 22, report.FilledDays)
		})
	}
}

func TestForecastNotTouchingGapDoesNotFill(t *testing.T) {
	store := newFakeStore()
	store.skip = func(_ string, d time.Time) bool {
		return d.Year() == 2025 && d.Month() == time.May
	}
	svc := testService(store, nil)

	report, err := svc.ForecastEnergy(context.Background(), types.ControllerDynamic, period.Quarter(3))
	require.NoError(t, err)
	assert.Zero(t, report.FilledDays)
	require.Len(t, report.Points, 92)
}

func TestForecastUsesCache(t *testing.T) {
	store := newFakeStore()
	svc := testService(store, nil)
	ctx := context.Background()

	_, err := svc.ForecastEnergy(ctx, types.ControllerDynamic, period.Month(time.January))
	require.NoError(t, err)
	queries := store.queries

	_, err = svc.ForecastEnergy(ctx, types.ControllerDynamic, period.Month(time.January))
	require.NoError(t, err)
	assert.Equal(t, queries, store.queries)

	assert.Equal(t, 1, svc.InvalidateController(types.ControllerDynamic))
	_, err = svc.ForecastEnergy(ctx, types.ControllerDynamic, period.Month(time.January))
	require.NoError(t, err)
	assert.Equal(t, queries+1, store.queries)
}

func TestForecastErrors(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore()
	store.skip = func(string, time.Time) bool { return true }
	_, err := testService(store, nil).ForecastEnergy(ctx, types.ControllerDynamic, period.Month(time.March))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = testService(newFakeStore(), nil).ForecastEnergy(ctx, types.ControllerDynamic, period.Month(13))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = testService(newFakeStore(), nil).ForecastEnergy(ctx, types.Controller(7), period.Year())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	failing := newFakeStore()
	failing.fail = errors.New("connection refused")
	_, err = testService(failing, nil).ForecastEnergy(ctx, types.ControllerDynamic, period.Month(time.March))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCompareSavings(t *testing.T) {
	store := newFakeStore()
	store.skip = func(table string, d time.Time) bool {
		return table == "dfv_termosztat_db" && d.Equal(day(2025, time.January, 5))
	}
	svc := testService(store, func(o *Options) {
		o.Tariffs = cost.TariffTable{"2025": "10,00 Ft/kWh"}
		o.Intensity = 100
	})

	report, err := svc.CompareSavings(context.Background(), day(2025, time.January, 1), day(2025, time.January, 10))
	require.NoError(t, err)

	require.Len(t, report.Records, 9)
	require.NotNil(t, report.Price)
	assert.Equal(t, 10.0, *report.Price)
	require.Len(t, report.Usage, 2)
	assert.InDelta(t, 0.5, report.Usage[0].MeanDailyKWh, 1e-9)
	assert.InDelta(t, 0.5, report.Usage[0].MeanPower, 1e-9)
	assert.InDelta(t, 1.0, report.Usage[1].MeanDailyKWh, 1e-9)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "excluded")

	require.Len(t, report.Summaries, 3)
	dynVsHeater := report.Summaries[0]
	assert.Equal(t, "dynamic_vs_heater", dynVsHeater.Pair)
	assert.InDelta(t, 0.94, dynVsHeater.Energy.AverageDailySavings, 1e-9)
	assert.InDelta(t, 0.94*365, dynVsHeater.Energy.Projected.Yearly, 1e-9)
	require.NotNil(t, dynVsHeater.Cost)
	assert.InDelta(t, 9.4, dynVsHeater.Cost.AverageDailySavings, 1e-9)
	require.NotNil(t, dynVsHeater.CO2)
	assert.InDelta(t, 94.0, dynVsHeater.CO2.AverageDailySavings, 1e-9)

	dynVsThermo := report.Summaries[2]
	assert.InDelta(t, 0.5, dynVsThermo.Energy.AverageDailySavings, 1e-9)
}

func TestCompareSavingsWithoutTariff(t *testing.T) {
	svc := testService(newFakeStore(), nil)

	report, err := svc.CompareSavings(context.Background(), day(2025, time.March, 1), day(2025, time.March, 3))
	require.NoError(t, err)
	assert.Nil(t, report.Price)
	require.NotEmpty(t, report.Unavailable)
	for _, s := range report.Summaries {
		assert.Nil(t, s.Cost)
	}

	_, err = svc.CompareSavings(context.Background(), day(2025, time.March, 3), day(2025, time.March, 1))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCompareSavingsSkipsDependentMetrics(t *testing.T) {
	svc := testService(newFakeStore(), func(o *Options) {
		o.Tariffs = cost.TariffTable{"2025": "10,00 Ft/kWh"}
		o.HeaterWatts = 0
		o.Intensity = cost.CarbonIntensity(math.NaN())
	})
	ctx := context.Background()

	report, err := svc.CompareSavings(ctx, day(2025, time.March, 1), day(2025, time.March, 3))
	require.NoError(t, err)
	require.NotEmpty(t, report.Records)
	assert.Nil(t, report.Records[0].CO2)
	require.Len(t, report.Unavailable, 2)
	assert.Contains(t, report.Unavailable[0], savings.ErrHeaterPowerMissing.Error())
	assert.Contains(t, report.Unavailable[1], cost.ErrCarbonIntensityUnavailable.Error())

	require.Len(t, report.Summaries, 1)
	s := report.Summaries[0]
	assert.Equal(t, "dynamic_vs_thermostat", s.Pair)
	assert.InDelta(t, 0.5, s.Energy.AverageDailySavings, 1e-9)
	require.NotNil(t, s.Cost)
	assert.Nil(t, s.CO2)

	_, err = svc.Payback(ctx, PaybackQuery{Start: day(2025, time.March, 1), End: day(2025, time.March, 3)})
	assert.ErrorIs(t, err, savings.ErrHeaterPowerMissing)
}

func TestSetHeaterWattsInvalidatesComparisons(t *testing.T) {
	store := newFakeStore()
	svc := testService(store, nil)
	ctx := context.Background()
	start, end := day(2025, time.April, 1), day(2025, time.April, 7)

	before, err := svc.CompareSavings(ctx, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 1.44, before.Records[0].Energy.Heater, 1e-9)

	n, err := svc.SetHeaterWatts(120)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, err := svc.CompareSavings(ctx, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 2.88, after.Records[0].Energy.Heater, 1e-9)
	assert.Equal(t, 120.0, svc.Options().HeaterWatts)

	_, err = svc.SetHeaterWatts(10)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPayback(t *testing.T) {
	svc := testService(newFakeStore(), func(o *Options) {
		o.Tariffs = cost.TariffTable{"2025": "10,00 Ft/kWh"}
		o.Investment = 940
	})
	ctx := context.Background()
	q := PaybackQuery{Start: day(2025, time.February, 1), End: day(2025, time.February, 28)}

	report, err := svc.Payback(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "dynamic_vs_heater", report.Pair)
	assert.Equal(t, 28, report.Days)
	assert.False(t, report.Result.NoPayback)
	assert.InDelta(t, 100.0, report.Result.Days, 1e-6)
	require.Len(t, report.Sensitivity, 12)

	// the thermostat costs more to run than the dynamic controller
	investment := 500.0
	pair := savings.Pair{Baseline: savings.Dynamic, Competitor: savings.Thermostat}
	q.Investment, q.Pair = &investment, &pair
	report, err = svc.Payback(ctx, q)
	require.NoError(t, err)
	assert.True(t, report.Result.NoPayback)
	assert.Equal(t, 500.0, report.Investment)
	assert.NotEmpty(t, report.Warnings)
	for _, c := range report.Sensitivity {
		assert.True(t, c.Capped)
	}
}

func TestPaybackNeedsTariff(t *testing.T) {
	svc := testService(newFakeStore(), nil)
	_, err := svc.Payback(context.Background(), PaybackQuery{Start: day(2025, time.February, 1), End: day(2025, time.February, 2)})
	assert.ErrorIs(t, err, cost.ErrTariffUnavailable)
}

func TestCO2History(t *testing.T) {
	svc := testService(newFakeStore(), func(o *Options) { o.Intensity = 100 })

	report, err := svc.CO2History(context.Background(), types.ControllerDynamic, day(2025, time.June, 1), day(2025, time.June, 3))
	require.NoError(t, err)
	require.Len(t, report.Days, 3)

	// 0.5 kW over the 18 hours between the first and last reading
	assert.InDelta(t, 18.0, report.Days[0].OperatingHours, 1e-9)
	assert.InDelta(t, 9.0, report.Days[0].EnergyKWh, 1e-9)
	require.Len(t, report.Emissions, 3)
	assert.InDelta(t, 900.0, report.Emissions[0].CO2Grams, 1e-9)

	require.NotNil(t, report.Summary)
	assert.InDelta(t, 144.0, report.Heater[0].Baseline, 1e-9)
	assert.InDelta(t, 3*(144.0-900.0), report.Summary.TotalSavings, 1e-9)
}

func TestCO2HistoryInvalidIntensity(t *testing.T) {
	svc := testService(newFakeStore(), func(o *Options) { o.Intensity = cost.CarbonIntensity(math.NaN()) })

	report, err := svc.CO2History(context.Background(), types.ControllerThermostat, day(2025, time.June, 1), day(2025, time.June, 2))
	require.NoError(t, err)
	assert.Len(t, report.Days, 2)
	assert.Empty(t, report.Emissions)
	assert.NotEmpty(t, report.Unavailable)
}

func TestStatus(t *testing.T) {
	store := newFakeStore()
	svc := testService(store, nil)

	st := svc.Status(context.Background())
	require.Len(t, st.Controllers, 2)
	for _, c := range st.Controllers {
		require.NotNil(t, c.LastDate)
		assert.Equal(t, day(2025, time.December, 31), *c.LastDate)
		assert.Empty(t, c.Error)
	}
	assert.Equal(t, 60.0, st.HeaterWatts)

	store.fail = errors.New("down")
	st = svc.Status(context.Background())
	assert.Equal(t, "down", st.Controllers[0].Error)
}

func TestInvalidateAll(t *testing.T) {
	svc := testService(newFakeStore(), nil)
	_, err := svc.CompareSavings(context.Background(), day(2025, time.March, 1), day(2025, time.March, 2))
	require.NoError(t, err)

	// two power selections and one comparison
	assert.Equal(t, 3, svc.InvalidateAll())
	assert.Zero(t, svc.Status(context.Background()).Cache.Entries)
}
