package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
	"gonum.org/v1/gonum/floats"
)

// dayBucket accumulates the readings of one calendar day.
type dayBucket struct {
	date    time.Time
	power   []float64
	intTemp []float64
	extTemp []float64
	intHum  []float64
	extHum  []float64
	first   time.Time
	last    time.Time
}

func (b *dayBucket) add(r types.RawReading) {
	if b.first.IsZero() || r.Timestamp.Before(b.first) {
		b.first = r.Timestamp
	}
	if r.Timestamp.After(b.last) {
		b.last = r.Timestamp
	}
	b.power = append(b.power, r.Power)
	b.intTemp = appendDefined(b.intTemp, r.InternalTemperature)
	b.extTemp = appendDefined(b.extTemp, r.ExternalTemperature)
	b.intHum = appendDefined(b.intHum, r.InternalHumidity)
	b.extHum = appendDefined(b.extHum, r.ExternalHumidity)
}

func appendDefined(dst []float64, v float64) []float64 {
	if math.IsNaN(v) {
		return dst
	}
	return append(dst, v)
}

// mean returns the arithmetic mean, or NaN for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Sum(values) / float64(len(values))
}

// groupByDay buckets readings with a defined power value by calendar date,
// returned in ascending date order.
func groupByDay(readings []types.RawReading) []*dayBucket {
	byDate := make(map[time.Time]*dayBucket)
	for _, r := range readings {
		if math.IsNaN(r.Power) {
			continue
		}
		d := types.DateOf(r.Timestamp)
		b, ok := byDate[d]
		if !ok {
			b = &dayBucket{date: d}
			byDate[d] = b
		}
		b.add(r)
	}

	buckets := make([]*dayBucket, 0, len(byDate))
	for _, b := range byDate {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].date.Before(buckets[j].date)
	})
	return buckets
}

// Daily aggregates readings into one record per calendar day. Energy is the sum
// of power samples times the fixed 15-minute interval; environmental fields are
// the mean of the defined samples and NaN when a day has none. Days without any
// power reading are absent.
func Daily(readings []types.RawReading) []types.DailyAggregate {
	buckets := groupByDay(readings)
	days := make([]types.DailyAggregate, 0, len(buckets))
	for _, b := range buckets {
		days = append(days, types.DailyAggregate{
			Date:                   b.date,
			EnergyKWh:              floats.Sum(b.power) * types.ReadingIntervalHours,
			AvgInternalTemperature: mean(b.intTemp),
			AvgExternalTemperature: mean(b.extTemp),
			AvgInternalHumidity:    mean(b.intHum),
			AvgExternalHumidity:    mean(b.extHum),
			Readings:               len(b.power),
		})
	}
	return days
}

// DailyValue is a single per-day scalar.
type DailyValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DailyMeanPower returns the mean power of each day.
func DailyMeanPower(readings []types.RawReading) []DailyValue {
	buckets := groupByDay(readings)
	out := make([]DailyValue, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, DailyValue{Date: b.date, Value: mean(b.power)})
	}
	return out
}

// MeanOf returns the mean of the values of a daily series, or NaN when empty.
func MeanOf(series []DailyValue) float64 {
	values := make([]float64, len(series))
	for i, v := range series {
		values[i] = v.Value
	}
	return mean(values)
}

// DailyEnergy extracts the energy column of an aggregate series.
func DailyEnergy(days []types.DailyAggregate) []DailyValue {
	out := make([]DailyValue, len(days))
	for i, d := range days {
		out[i] = DailyValue{Date: d.Date, Value: d.EnergyKWh}
	}
	return out
}

// IntervalEnergy computes the energy of each reading from the gap to the next
// reading, in hours. The last reading uses the mean gap, or one hour when there
// is no gap to average. Readings must be sorted by timestamp.
func IntervalEnergy(readings []types.RawReading) []float64 {
	n := len(readings)
	if n == 0 {
		return nil
	}

	hours := make([]float64, n)
	var total float64
	for i := 0; i < n-1; i++ {
		hours[i] = readings[i+1].Timestamp.Sub(readings[i].Timestamp).Hours()
		total += hours[i]
	}
	if n > 1 {
		hours[n-1] = total / float64(n-1)
	} else {
		hours[n-1] = 1.0
	}

	energy := make([]float64, n)
	for i, r := range readings {
		energy[i] = r.Power * hours[i]
	}
	return energy
}

// DailyIntervalEnergy sums IntervalEnergy per calendar day.
func DailyIntervalEnergy(readings []types.RawReading) []DailyValue {
	sorted := make([]types.RawReading, 0, len(readings))
	for _, r := range readings {
		if !math.IsNaN(r.Power) {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	energy := IntervalEnergy(sorted)
	var out []DailyValue
	for i, r := range sorted {
		d := types.DateOf(r.Timestamp)
		if len(out) == 0 || !out[len(out)-1].Date.Equal(d) {
			out = append(out, DailyValue{Date: d})
		}
		out[len(out)-1].Value += energy[i]
	}
	return out
}

// OperatingDay summarises a day by mean power and the span between its first
// and last reading.
type OperatingDay struct {
	Date           time.Time `json:"date"`
	MeanPower      float64   `json:"mean_power"`
	Readings       int       `json:"readings"`
	OperatingHours float64   `json:"operating_hours"`
	EnergyKWh      float64   `json:"energy_kwh"`
}

// DailyOperatingHoursEnergy estimates daily energy as mean power times the
// hours between the first and last reading of the day.
func DailyOperatingHoursEnergy(readings []types.RawReading) []OperatingDay {
	buckets := groupByDay(readings)
	out := make([]OperatingDay, 0, len(buckets))
	for _, b := range buckets {
		p := mean(b.power)
		h := b.last.Sub(b.first).Hours()
		out = append(out, OperatingDay{
			Date:           b.date,
			MeanPower:      p,
			Readings:       len(b.power),
			OperatingHours: h,
			EnergyKWh:      p * h,
		})
	}
	return out
}
