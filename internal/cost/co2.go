package cost

import (
	"fmt"
	"math"
	"time"
)

// DefaultCarbonIntensity is the fixed grid intensity in g CO2 per kWh.
const DefaultCarbonIntensity = 256.206

// HoursPerDay is the runtime assumed for the constant-power heater baseline.
const HoursPerDay = 24.0

// CarbonIntensity is grams of CO2 per kWh consumed. No time variation is modelled.
type CarbonIntensity float64

// Validate rejects non-finite or negative intensities.
func (c CarbonIntensity) Validate() error {
	v := float64(c)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %v g/kWh", ErrCarbonIntensityUnavailable, v)
	}
	return nil
}

// CO2Grams is the emission of kwh at the given intensity.
func CO2Grams(kwh float64, intensity CarbonIntensity) float64 {
	return kwh * float64(intensity)
}

// HeaterDailyEnergyKWh is the daily energy of a heater drawing watts for 24 hours.
func HeaterDailyEnergyKWh(watts float64) float64 {
	return watts * HoursPerDay / 1000
}

// HeaterHourlyCO2Grams is the emission of one hour of heater operation.
func HeaterHourlyCO2Grams(watts float64, intensity CarbonIntensity) float64 {
	return watts / 1000 * float64(intensity)
}

// DailyCO2 is one day of energy and its emission.
type DailyCO2 struct {
	Date      time.Time `json:"date"`
	EnergyKWh float64   `json:"energy_kwh"`
	CO2Grams  float64   `json:"co2_g"`
}

// DailyEmissions converts a dated energy series into emissions.
func DailyEmissions(dates []time.Time, energy []float64, intensity CarbonIntensity) []DailyCO2 {
	out := make([]DailyCO2, len(dates))
	for i, d := range dates {
		out[i] = DailyCO2{
			Date:      d,
			EnergyKWh: energy[i],
			CO2Grams:  CO2Grams(energy[i], intensity),
		}
	}
	return out
}
