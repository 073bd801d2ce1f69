// Package cost converts daily energy into currency and CO2 figures.
package cost

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceUnitSuffix is the unit text that follows every published tariff.
const PriceUnitSuffix = "Ft/kWh"

var (
	// ErrTariffUnavailable means no parseable price exists for a year.
	ErrTariffUnavailable = errors.New("tariff unavailable")

	// ErrCarbonIntensityUnavailable means no usable carbon intensity was supplied.
	ErrCarbonIntensityUnavailable = errors.New("carbon intensity unavailable")
)

// ParsePrice reads a localized tariff string such as "56,25 Ft/kWh".
// The comma is the decimal separator and the unit suffix is optional.
func ParsePrice(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSpace(strings.TrimSuffix(v, PriceUnitSuffix))
	v = strings.ReplaceAll(v, "\u00a0", "")
	v = strings.ReplaceAll(v, " ", "")
	v = strings.Replace(v, ",", ".", 1)
	if v == "" {
		return decimal.Zero, fmt.Errorf("empty price %q", s)
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable price %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", s)
	}
	return d, nil
}

// TariffTable maps a year ("2024", "2025") to its published price string.
type TariffTable map[string]string

// Price returns the parsed price for year. ok is false when the year is
// missing or its value cannot be parsed.
func (t TariffTable) Price(year int) (float64, bool) {
	d, err := t.Decimal(year)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// Decimal returns the exact parsed price for year, or an error wrapping
// ErrTariffUnavailable.
func (t TariffTable) Decimal(year int) (decimal.Decimal, error) {
	raw, ok := t[strconv.Itoa(year)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no tariff for %d", ErrTariffUnavailable, year)
	}
	d, err := ParsePrice(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTariffUnavailable, err)
	}
	return d, nil
}

// Years lists the years with a parseable price, ascending.
func (t TariffTable) Years() []int {
	var years []int
	for k := range t {
		y, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if _, ok := t.Price(y); ok {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}
