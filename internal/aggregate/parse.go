// Package aggregate turns raw controller readings into daily energy and
// environmental series.
package aggregate

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
)

// Expected column order of a readings query.
const (
	colDate = iota
	colTime
	colPower
	colCurrent
	colInternalTemperature
	colExternalTemperature
	colInternalHumidity
	colExternalHumidity
	readingColumns
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04:05.999999",
	"15:04",
}

// ParseRows converts readings-query rows into RawReadings. Numeric values that
// cannot be coerced become NaN. Rows without a usable timestamp or power value
// are dropped and counted. The result is sorted by timestamp as the query
// orders it.
func ParseRows(rows [][]any) (readings []types.RawReading, dropped int) {
	readings = make([]types.RawReading, 0, len(rows))
	for _, row := range rows {
		if len(row) < readingColumns {
			dropped++
			continue
		}

		ts, ok := timestamp(row[colDate], row[colTime])
		if !ok {
			dropped++
			continue
		}

		r := types.RawReading{
			Timestamp:           ts,
			Power:               ToFloat(row[colPower]),
			Current:             ToFloat(row[colCurrent]),
			InternalTemperature: ToFloat(row[colInternalTemperature]),
			ExternalTemperature: ToFloat(row[colExternalTemperature]),
			InternalHumidity:    ToFloat(row[colInternalHumidity]),
			ExternalHumidity:    ToFloat(row[colExternalHumidity]),
		}
		if math.IsNaN(r.Power) {
			dropped++
			continue
		}
		readings = append(readings, r)
	}
	return readings, dropped
}

// ParsePowerRows converts (date, time, power) rows, as returned by the CO2
// power query, into readings carrying only a power value.
func ParsePowerRows(rows [][]any) (readings []types.RawReading, dropped int) {
	nan := math.NaN()
	for _, row := range rows {
		if len(row) < 3 {
			dropped++
			continue
		}
		ts, ok := timestamp(row[0], row[1])
		if !ok {
			dropped++
			continue
		}
		p := ToFloat(row[2])
		if math.IsNaN(p) {
			dropped++
			continue
		}
		readings = append(readings, types.RawReading{
			Timestamp:           ts,
			Power:               p,
			Current:             nan,
			InternalTemperature: nan,
			ExternalTemperature: nan,
			InternalHumidity:    nan,
			ExternalHumidity:    nan,
		})
	}
	return readings, dropped
}

// ScalePower multiplies every power value by factor, e.g. 0.001 for W to kW.
func ScalePower(readings []types.RawReading, factor float64) []types.RawReading {
	if factor == 1 {
		return readings
	}
	out := make([]types.RawReading, len(readings))
	for i, r := range readings {
		r.Power *= factor
		out[i] = r
	}
	return out
}

// ToFloat coerces a database value to float64, returning NaN when it cannot.
func ToFloat(v any) float64 {
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return math.NaN()
	}
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// timestamp composes the separate date and time columns.
func timestamp(dateVal, clockVal any) (time.Time, bool) {
	date, ok := toTime(dateVal, dateLayouts)
	if !ok {
		return time.Time{}, false
	}

	if clockVal == nil {
		return date, true
	}

	clock, ok := toTime(clockVal, clockLayouts)
	if !ok {
		return time.Time{}, false
	}

	y, m, d := date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), time.UTC), true
}

func toTime(v any, layouts []string) (time.Time, bool) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, true
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return time.Time{}, false
	}

	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
