package types

import (
	"math"
	"time"
)

// ReadingIntervalHours is the nominal spacing between controller samples.
const ReadingIntervalHours = 0.25

// RawReading is a single sample from a controller table. Any value that failed
// numeric coercion is NaN.
type RawReading struct {
	Timestamp           time.Time
	Power               float64
	Current             float64
	InternalTemperature float64
	ExternalTemperature float64
	InternalHumidity    float64
	ExternalHumidity    float64
}

// DailyAggregate holds one calendar day of energy use and environmental means.
type DailyAggregate struct {
	Date                   time.Time `json:"date"`
	EnergyKWh              float64   `json:"energy_kwh"`
	AvgInternalTemperature float64   `json:"avg_internal_temperature"`
	AvgExternalTemperature float64   `json:"avg_external_temperature"`
	AvgInternalHumidity    float64   `json:"avg_internal_humidity"`
	AvgExternalHumidity    float64   `json:"avg_external_humidity"`
	Readings               int       `json:"readings"`
	Filled                 bool      `json:"filled,omitempty"`
}

// Complete reports whether every numeric field of the day is defined.
func (d DailyAggregate) Complete() bool {
	for _, v := range d.Exogenous() {
		if math.IsNaN(v) {
			return false
		}
	}
	return !math.IsNaN(d.EnergyKWh)
}

// Exogenous returns the four regressors in model order: internal temperature,
// external temperature, internal humidity, external humidity.
func (d DailyAggregate) Exogenous() []float64 {
	return []float64{
		d.AvgInternalTemperature,
		d.AvgExternalTemperature,
		d.AvgInternalHumidity,
		d.AvgExternalHumidity,
	}
}

// YearlyAverage is the per-field mean over a reference window of daily aggregates.
type YearlyAverage struct {
	EnergyKWh           float64 `json:"energy_kwh"`
	InternalTemperature float64 `json:"internal_temperature"`
	ExternalTemperature float64 `json:"external_temperature"`
	InternalHumidity    float64 `json:"internal_humidity"`
	ExternalHumidity    float64 `json:"external_humidity"`
	Days                int     `json:"days"`
}

// ForecastPoint is one day of forecast energy with its 95% interval.
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	Forecast   float64   `json:"forecast"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
}

// DateOf truncates t to its calendar date, keeping t's wall clock date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
