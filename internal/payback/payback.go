// Package payback computes how long an investment takes to recoup from daily
// savings, and how that changes with energy price.
package payback

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MaxPaybackDays caps the payback of a sensitivity case whose adjusted
	// savings are not positive (100 years).
	MaxPaybackDays = 36500

	DaysPerYear = 365

	DefaultPriceChanges = "-75,-50,-20,-10,0,10,20,50,75,100,200,300"
)

// ErrInvalidInvestment is returned for a negative or non-finite investment.
var ErrInvalidInvestment = errors.New("investment must be a finite, non-negative amount")

// Result is the payback of an investment at a given daily saving.
type Result struct {
	Investment   float64 `json:"investment"`
	DailySavings float64 `json:"daily_savings"`
	Days         float64 `json:"days,omitempty"`
	Years        float64 `json:"years,omitempty"`
	NoPayback    bool    `json:"no_payback"`
}

// Compute returns investment / dailySavings. When the saving is zero or
// negative the investment never pays back and NoPayback is set.
func Compute(investment, dailySavings float64) (Result, error) {
	if math.IsNaN(investment) || math.IsInf(investment, 0) || investment < 0 {
		return Result{}, ErrInvalidInvestment
	}
	if math.IsNaN(dailySavings) || math.IsInf(dailySavings, 0) {
		return Result{}, fmt.Errorf("daily savings must be finite, got %v", dailySavings)
	}

	r := Result{Investment: investment, DailySavings: dailySavings}
	if dailySavings <= 0 {
		r.NoPayback = true
		return r, nil
	}
	r.Days = investment / dailySavings
	r.Years = r.Days / DaysPerYear
	return r, nil
}

// Case is one row of a sensitivity table.
type Case struct {
	PriceChangePercent float64 `json:"price_change_percent"`
	DailySavings       float64 `json:"daily_savings"`
	Days               float64 `json:"days"`
	Years              float64 `json:"years"`
	Capped             bool    `json:"capped"`
}

// Sensitivity recomputes payback for each relative price change. Savings scale
// linearly with price: adjusted = daily × (1 + pct/100). A case whose adjusted
// saving is not positive reports MaxPaybackDays and is marked Capped.
func Sensitivity(investment, dailySavings float64, changes []float64) ([]Case, error) {
	if math.IsNaN(investment) || math.IsInf(investment, 0) || investment < 0 {
		return nil, ErrInvalidInvestment
	}

	cases := make([]Case, 0, len(changes))
	for _, pct := range changes {
		adjusted := dailySavings * (1 + pct/100)
		c := Case{PriceChangePercent: pct, DailySavings: adjusted}
		if adjusted <= 0 || math.IsNaN(adjusted) {
			c.Days = MaxPaybackDays
			c.Capped = true
		} else {
			c.Days = math.Min(investment/adjusted, MaxPaybackDays)
			c.Capped = c.Days == MaxPaybackDays
		}
		c.Years = c.Days / DaysPerYear
		cases = append(cases, c)
	}
	return cases, nil
}

// ParseChanges reads a comma-separated list of percentages such as
// "-75,-50,0,10". Blank entries are ignored.
func ParseChanges(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "%"))
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price change %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("no price changes given")
	}
	return out, nil
}
