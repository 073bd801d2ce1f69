// Package gapfill repairs a known outage in the reading history: every day of
// the gap month is reconstructed, and days the store never recorded are
// substituted with reference-window averages.
package gapfill

import (
	"math"
	"sort"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/period"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"gonum.org/v1/gonum/stat"
)

// Policy identifies the month that contains the known data gap.
type Policy struct {
	Year  int
	Month time.Month
}

// DefaultPolicy is the May 2025 outage.
var DefaultPolicy = Policy{Year: 2025, Month: time.May}

// TouchesGap reports whether a forecast over p draws on history that includes
// the gap month and so needs filling.
func (g Policy) TouchesGap(p period.Period) bool {
	return p.Contains(g.Month)
}

// Start and End bound the gap month.
func (g Policy) Start() time.Time {
	return time.Date(g.Year, g.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (g Policy) End() time.Time {
	return time.Date(g.Year, g.Month, types.DaysIn(g.Year, g.Month), 0, 0, 0, 0, time.UTC)
}

// ComputeYearlyAverage averages a reference-window daily series field by field.
// Energy is the mean of daily energy; environmental fields are the mean of the
// daily means, skipping undefined days. ok is false when days is empty.
func ComputeYearlyAverage(days []types.DailyAggregate) (*types.YearlyAverage, bool) {
	if len(days) == 0 {
		return nil, false
	}

	var fields [5][]float64
	for _, d := range days {
		for i, v := range []float64{
			d.EnergyKWh,
			d.AvgInternalTemperature,
			d.AvgExternalTemperature,
			d.AvgInternalHumidity,
			d.AvgExternalHumidity,
		} {
			if !math.IsNaN(v) {
				fields[i] = append(fields[i], v)
			}
		}
	}

	avg := func(i int) float64 {
		if len(fields[i]) == 0 {
			return math.NaN()
		}
		return stat.Mean(fields[i], nil)
	}

	return &types.YearlyAverage{
		EnergyKWh:           avg(0),
		InternalTemperature: avg(1),
		ExternalTemperature: avg(2),
		InternalHumidity:    avg(3),
		ExternalHumidity:    avg(4),
		Days:                len(days),
	}, true
}

// Fill guarantees that every day of the gap month is present. Days with data
// keep their values, except that undefined fields are completed from avg;
// days absent from the input are synthesised entirely from avg and marked
// Filled. When avg is nil the gap cannot be repaired and Fill falls back to
// DropIncomplete. The result is sorted by date.
func (g Policy) Fill(days []types.DailyAggregate, avg *types.YearlyAverage) []types.DailyAggregate {
	if avg == nil {
		return DropIncomplete(days)
	}

	byDate := make(map[time.Time]types.DailyAggregate, len(days))
	for _, d := range days {
		byDate[types.DateOf(d.Date)] = d
	}

	start, end := g.Start(), g.End()
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day, ok := byDate[d]
		if !ok {
			byDate[d] = types.DailyAggregate{
				Date:                   d,
				EnergyKWh:              avg.EnergyKWh,
				AvgInternalTemperature: avg.InternalTemperature,
				AvgExternalTemperature: avg.ExternalTemperature,
				AvgInternalHumidity:    avg.InternalHumidity,
				AvgExternalHumidity:    avg.ExternalHumidity,
				Filled:                 true,
			}
			continue
		}
		byDate[d] = completeFrom(day, avg)
	}

	out := make([]types.DailyAggregate, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	// Days outside the gap month are held to the usual completeness rule.
	return DropIncomplete(out)
}

func completeFrom(d types.DailyAggregate, avg *types.YearlyAverage) types.DailyAggregate {
	fill := func(v *float64, with float64) {
		if math.IsNaN(*v) {
			*v = with
			d.Filled = true
		}
	}
	fill(&d.EnergyKWh, avg.EnergyKWh)
	fill(&d.AvgInternalTemperature, avg.InternalTemperature)
	fill(&d.AvgExternalTemperature, avg.ExternalTemperature)
	fill(&d.AvgInternalHumidity, avg.InternalHumidity)
	fill(&d.AvgExternalHumidity, avg.ExternalHumidity)
	return d
}

// DropIncomplete removes every day that has an undefined field.
func DropIncomplete(days []types.DailyAggregate) []types.DailyAggregate {
	out := make([]types.DailyAggregate, 0, len(days))
	for _, d := range days {
		if d.Complete() {
			out = append(out, d)
		}
	}
	return out
}
