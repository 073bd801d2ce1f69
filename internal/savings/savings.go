// Package savings compares the daily energy, cost and CO2 of the dynamic
// controller, the thermostat controller and a constant-power heater.
package savings

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/aggregate"
	"github.com/dfvmonitor/energyforecast/internal/cost"
)

const (
	DaysPerMonth = 30
	DaysPerYear  = 365
)

var (
	// ErrHeaterPowerMissing means no positive heater power was configured.
	ErrHeaterPowerMissing = errors.New("heater power missing or not positive")

	// ErrNoOverlap means the compared series share no calendar day.
	ErrNoOverlap = errors.New("no overlapping days to compare")
)

// Source is one of the three compared energy consumers.
type Source int

const (
	Dynamic Source = iota
	Thermostat
	Heater
)

func (s Source) String() string {
	switch s {
	case Dynamic:
		return "dynamic"
	case Thermostat:
		return "thermostat"
	case Heater:
		return "heater"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Pair names a comparison: savings are what Competitor saves relative to Baseline.
type Pair struct {
	Baseline   Source
	Competitor Source
}

var (
	DynamicVsHeater     = Pair{Baseline: Heater, Competitor: Dynamic}
	ThermostatVsHeater  = Pair{Baseline: Heater, Competitor: Thermostat}
	DynamicVsThermostat = Pair{Baseline: Thermostat, Competitor: Dynamic}
)

// Pairs lists the standard comparisons.
func Pairs() []Pair {
	return []Pair{DynamicVsHeater, ThermostatVsHeater, DynamicVsThermostat}
}

func (p Pair) String() string {
	return fmt.Sprintf("%s_vs_%s", p.Competitor, p.Baseline)
}

// ParsePair accepts the names produced by Pair.String.
func ParsePair(s string) (Pair, error) {
	for _, p := range Pairs() {
		if p.String() == s {
			return p, nil
		}
	}
	return Pair{}, fmt.Errorf("unknown comparison %q", s)
}

// Amounts holds one metric for each source on one day.
type Amounts struct {
	Dynamic    float64 `json:"dynamic"`
	Thermostat float64 `json:"thermostat"`
	Heater     float64 `json:"heater"`
}

// Of returns the amount for source s.
func (a Amounts) Of(s Source) float64 {
	switch s {
	case Dynamic:
		return a.Dynamic
	case Thermostat:
		return a.Thermostat
	default:
		return a.Heater
	}
}

// ComparisonRecord is one day on which both controllers have data. Cost is nil
// when no price was available and CO2 is nil when the carbon intensity is
// invalid. Heater amounts are zero when no heater power is configured.
type ComparisonRecord struct {
	Date   time.Time `json:"date"`
	Energy Amounts   `json:"energy_kwh"`
	Cost   *Amounts  `json:"cost,omitempty"`
	CO2    *Amounts  `json:"co2_g,omitempty"`
}

// Baseline carries the constant inputs of a comparison.
type Baseline struct {
	HeaterWatts float64
	// Price per kWh; nil when the tariff is unavailable.
	Price     *float64
	Intensity cost.CarbonIntensity
}

// HasHeater reports whether a positive heater power is configured.
func (b Baseline) HasHeater() bool {
	return b.HeaterWatts > 0
}

// Unavailable lists the inputs missing from the baseline. Each one only
// disables the metrics that depend on it.
func (b Baseline) Unavailable() []error {
	var errs []error
	if !b.HasHeater() {
		errs = append(errs, ErrHeaterPowerMissing)
	}
	if err := b.Intensity.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Pairs returns the standard pairs the baseline can support. Pairs against
// the heater are dropped when no heater power is configured.
func (b Baseline) Pairs() []Pair {
	if b.HasHeater() {
		return Pairs()
	}
	var out []Pair
	for _, p := range Pairs() {
		if p.Baseline != Heater && p.Competitor != Heater {
			out = append(out, p)
		}
	}
	return out
}

// Join inner-joins the two controllers' daily energy on date and adds the
// heater's constant daily energy. Days present in only one series are excluded.
func Join(dynamic, thermostat []aggregate.DailyValue, b Baseline) ([]ComparisonRecord, error) {
	thermoByDate := make(map[time.Time]float64, len(thermostat))
	for _, d := range thermostat {
		thermoByDate[d.Date] = d.Value
	}

	var heaterKWh float64
	if b.HasHeater() {
		heaterKWh = cost.HeaterDailyEnergyKWh(b.HeaterWatts)
	}
	co2OK := b.Intensity.Validate() == nil

	var records []ComparisonRecord
	for _, d := range dynamic {
		th, ok := thermoByDate[d.Date]
		if !ok {
			continue
		}
		energy := Amounts{Dynamic: d.Value, Thermostat: th, Heater: heaterKWh}
		rec := ComparisonRecord{Date: d.Date, Energy: energy}
		if co2OK {
			rec.CO2 = &Amounts{
				Dynamic:    cost.CO2Grams(energy.Dynamic, b.Intensity),
				Thermostat: cost.CO2Grams(energy.Thermostat, b.Intensity),
				Heater:     cost.CO2Grams(energy.Heater, b.Intensity),
			}
		}
		if b.Price != nil {
			rec.Cost = &Amounts{
				Dynamic:    cost.EnergyCost(energy.Dynamic, *b.Price),
				Thermostat: cost.EnergyCost(energy.Thermostat, *b.Price),
				Heater:     cost.EnergyCost(energy.Heater, *b.Price),
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoOverlap
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

// Savings is what competitor saves relative to baseline; negative means it
// consumed more.
func Savings(baseline, competitor float64) float64 {
	return baseline - competitor
}

// Percent expresses savings as a percentage of baseline. ok is false when
// baseline is zero and the percentage is undefined.
func Percent(savings, baseline float64) (float64, bool) {
	if baseline == 0 {
		return 0, false
	}
	return savings / baseline * 100, true
}

// Periods scales a daily amount to fixed-length months and years.
type Periods struct {
	Daily   float64 `json:"daily"`
	Monthly float64 `json:"monthly"`
	Yearly  float64 `json:"yearly"`
}

// Scale projects a daily amount over 30-day months and 365-day years.
func Scale(daily float64) Periods {
	return Periods{
		Daily:   daily,
		Monthly: daily * DaysPerMonth,
		Yearly:  daily * DaysPerYear,
	}
}
