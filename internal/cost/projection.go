package cost

import (
	"fmt"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/shopspring/decimal"
)

// DailyCost is the cost of one forecast day. Available is false when the
// tariff table has no price for the day's year; Cost is then zero.
type DailyCost struct {
	Date      time.Time `json:"date"`
	EnergyKWh float64   `json:"energy_kwh"`
	Price     float64   `json:"price,omitempty"`
	Cost      float64   `json:"cost"`
	Available bool      `json:"available"`
}

// Projection is the cost of a forecast series.
type Projection struct {
	Days             []DailyCost `json:"days"`
	TotalEnergyKWh   float64     `json:"total_energy_kwh"`
	TotalCost        float64     `json:"total_cost"`
	AverageDailyCost float64     `json:"average_daily_cost"`
	CostedDays       int         `json:"costed_days"`
	UnavailableYears []int       `json:"unavailable_years,omitempty"`
}

// Complete reports whether every day could be priced.
func (p Projection) Complete() bool {
	return len(p.UnavailableYears) == 0 && p.CostedDays == len(p.Days)
}

// ProjectForecast prices each forecast day with the tariff of its calendar
// year. Totals cover only priced days and the average is total cost divided by
// the number of priced days. It is a pure function of its inputs.
func ProjectForecast(points []types.ForecastPoint, tariffs TariffTable) Projection {
	proj := Projection{Days: make([]DailyCost, 0, len(points))}

	prices := make(map[int]decimal.Decimal)
	missing := make(map[int]bool)
	total := decimal.Zero

	for _, p := range points {
		year := p.Date.Year()
		price, ok := prices[year]
		if !ok && !missing[year] {
			d, err := tariffs.Decimal(year)
			if err != nil {
				missing[year] = true
				proj.UnavailableYears = append(proj.UnavailableYears, year)
			} else {
				prices[year] = d
				price, ok = d, true
			}
		}

		energy := decimal.NewFromFloat(p.Forecast)
		proj.TotalEnergyKWh += p.Forecast

		day := DailyCost{Date: p.Date, EnergyKWh: p.Forecast}
		if ok {
			c := energy.Mul(price)
			total = total.Add(c)
			day.Price, _ = price.Float64()
			day.Cost, _ = c.Float64()
			day.Available = true
			proj.CostedDays++
		}
		proj.Days = append(proj.Days, day)
	}

	proj.TotalCost, _ = total.Float64()
	if proj.CostedDays > 0 {
		proj.AverageDailyCost, _ = total.Div(decimal.NewFromInt(int64(proj.CostedDays))).Float64()
	}
	return proj
}

// UnavailableError describes the years a projection could not price.
func (p Projection) UnavailableError() error {
	if len(p.UnavailableYears) == 0 {
		return nil
	}
	return fmt.Errorf("%w for years %v", ErrTariffUnavailable, p.UnavailableYears)
}

// EnergyCost prices an energy amount at a fixed price.
func EnergyCost(kwh, price float64) float64 {
	c, _ := decimal.NewFromFloat(kwh).Mul(decimal.NewFromFloat(price)).Float64()
	return c
}

// Round2 rounds a currency amount to two decimals.
func Round2(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}
