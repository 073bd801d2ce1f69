package savings

import (
	"time"

	"github.com/dfvmonitor/energyforecast/internal/aggregate"
	"github.com/dfvmonitor/energyforecast/internal/cost"
)

// MetricSummary aggregates one metric of a comparison over the joined days.
type MetricSummary struct {
	BaselineTotal       float64  `json:"baseline_total"`
	CompetitorTotal     float64  `json:"competitor_total"`
	TotalSavings        float64  `json:"total_savings"`
	AverageDailySavings float64  `json:"average_daily_savings"`
	Projected           Periods  `json:"projected"`
	Percent             *float64 `json:"percent,omitempty"`
	MeanDailyPercent    *float64 `json:"mean_daily_percent,omitempty"`
}

// Summary is the outcome of one pairwise comparison.
type Summary struct {
	Pair        string         `json:"pair"`
	Days        int            `json:"days"`
	Energy      MetricSummary  `json:"energy_kwh"`
	Cost        *MetricSummary `json:"cost,omitempty"`
	CO2         *MetricSummary `json:"co2_g,omitempty"`
	Unavailable []string       `json:"unavailable,omitempty"`
}

// DailyPair is one joined day of a baseline and a competitor amount.
type DailyPair struct {
	Date       time.Time `json:"date"`
	Baseline   float64   `json:"baseline"`
	Competitor float64   `json:"competitor"`
}

// Savings returns baseline minus competitor for the day.
func (d DailyPair) Savings() float64 {
	return Savings(d.Baseline, d.Competitor)
}

// SummarizeMetric totals a joined series. The average daily saving is the
// total divided by the day count, the percentage is taken on totals, and the
// mean daily percentage skips days with a zero baseline.
func SummarizeMetric(days []DailyPair) MetricSummary {
	var s MetricSummary
	if len(days) == 0 {
		return s
	}

	var pctSum float64
	var pctDays int
	for _, d := range days {
		s.BaselineTotal += d.Baseline
		s.CompetitorTotal += d.Competitor
		if pct, ok := Percent(d.Savings(), d.Baseline); ok {
			pctSum += pct
			pctDays++
		}
	}

	s.TotalSavings = Savings(s.BaselineTotal, s.CompetitorTotal)
	s.AverageDailySavings = s.TotalSavings / float64(len(days))
	s.Projected = Scale(s.AverageDailySavings)

	if pct, ok := Percent(s.TotalSavings, s.BaselineTotal); ok {
		s.Percent = &pct
	}
	if pctDays > 0 {
		mean := pctSum / float64(pctDays)
		s.MeanDailyPercent = &mean
	}
	return s
}

// Summarize computes energy, cost and CO2 summaries for a pair over the
// joined records. Cost and CO2 are omitted and noted as unavailable when the
// records do not carry them.
func Summarize(records []ComparisonRecord, pair Pair) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, ErrNoOverlap
	}

	energy := make([]DailyPair, len(records))
	var co2, costs []DailyPair
	for i, r := range records {
		energy[i] = DailyPair{Date: r.Date, Baseline: r.Energy.Of(pair.Baseline), Competitor: r.Energy.Of(pair.Competitor)}
		if r.CO2 != nil {
			co2 = append(co2, DailyPair{Date: r.Date, Baseline: r.CO2.Of(pair.Baseline), Competitor: r.CO2.Of(pair.Competitor)})
		}
		if r.Cost != nil {
			costs = append(costs, DailyPair{Date: r.Date, Baseline: r.Cost.Of(pair.Baseline), Competitor: r.Cost.Of(pair.Competitor)})
		}
	}

	s := Summary{
		Pair:   pair.String(),
		Days:   len(records),
		Energy: SummarizeMetric(energy),
	}
	if len(costs) == len(records) {
		c := SummarizeMetric(costs)
		s.Cost = &c
	} else {
		s.Unavailable = append(s.Unavailable, cost.ErrTariffUnavailable.Error())
	}
	if len(co2) == len(records) {
		c := SummarizeMetric(co2)
		s.CO2 = &c
	} else {
		s.Unavailable = append(s.Unavailable, cost.ErrCarbonIntensityUnavailable.Error())
	}
	return s, nil
}

// SummarizeAll summarises the given pairs, or every standard pair when none
// are given.
func SummarizeAll(records []ComparisonRecord, pairs ...Pair) ([]Summary, error) {
	if len(pairs) == 0 {
		pairs = Pairs()
	}
	out := make([]Summary, 0, len(pairs))
	for _, p := range pairs {
		s, err := Summarize(records, p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// HeaterCO2Comparison compares one controller's daily energy against the
// heater's hourly emissions summed over 24 hours, day by day.
func HeaterCO2Comparison(controller []aggregate.DailyValue, heaterWatts float64, intensity cost.CarbonIntensity) ([]DailyPair, MetricSummary, error) {
	if heaterWatts <= 0 {
		return nil, MetricSummary{}, ErrHeaterPowerMissing
	}
	if err := intensity.Validate(); err != nil {
		return nil, MetricSummary{}, err
	}
	if len(controller) == 0 {
		return nil, MetricSummary{}, ErrNoOverlap
	}

	heaterDaily := cost.HeaterHourlyCO2Grams(heaterWatts, intensity) * cost.HoursPerDay
	days := make([]DailyPair, len(controller))
	for i, d := range controller {
		days[i] = DailyPair{
			Date:       d.Date,
			Baseline:   heaterDaily,
			Competitor: cost.CO2Grams(d.Value, intensity),
		}
	}
	return days, SummarizeMetric(days), nil
}
