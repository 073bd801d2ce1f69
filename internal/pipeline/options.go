package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/cost"
	"github.com/dfvmonitor/energyforecast/internal/gapfill"
	"github.com/dfvmonitor/energyforecast/internal/payback"
	"github.com/dfvmonitor/energyforecast/internal/savings"
	"github.com/dfvmonitor/energyforecast/pkg/config"
)

// Options are the domain inputs of the pipeline.
type Options struct {
	Tariffs       cost.TariffTable
	ReferenceYear int
	Intensity     cost.CarbonIntensity

	HeaterWatts        float64
	Investment         float64
	SensitivityChanges []float64
	Pair               savings.Pair

	ForecastYear   int
	Gap            gapfill.Policy
	ReferenceStart time.Time
	ReferenceEnd   time.Time
	FitTimeout     time.Duration

	// PowerScale converts stored power values to kW.
	PowerScale float64
}

// OptionsFromConfig converts a defaulted, validated configuration.
func OptionsFromConfig(cfg *config.ConfigData) (Options, error) {
	refYear, err := strconv.Atoi(cfg.Pricing.ReferenceYear)
	if err != nil {
		return Options{}, fmt.Errorf("pricing.reference-year %q: %w", cfg.Pricing.ReferenceYear, err)
	}

	changes, err := payback.ParseChanges(cfg.Investment.SensitivityChanges)
	if err != nil {
		return Options{}, fmt.Errorf("investment.sensitivity-changes: %w", err)
	}

	pair, err := savings.ParsePair(cfg.Investment.Pair)
	if err != nil {
		return Options{}, fmt.Errorf("investment.pair: %w", err)
	}

	start, end, err := cfg.Forecast.ReferenceWindow()
	if err != nil {
		return Options{}, err
	}

	return Options{
		Tariffs:            cost.TariffTable(cfg.Pricing.Tariffs),
		ReferenceYear:      refYear,
		Intensity:          cost.CarbonIntensity(cfg.Pricing.CarbonIntensity),
		HeaterWatts:        cfg.Heater.PowerWatts,
		Investment:         cfg.Investment.Cost,
		SensitivityChanges: changes,
		Pair:               pair,
		ForecastYear:       cfg.Forecast.Year,
		Gap:                gapfill.Policy{Year: cfg.Forecast.GapYear, Month: time.Month(cfg.Forecast.GapMonth)},
		ReferenceStart:     start,
		ReferenceEnd:       end,
		FitTimeout:         cfg.Forecast.Timeout(),
		PowerScale:         cfg.Forecast.PowerScale,
	}, nil
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	changes, _ := payback.ParseChanges(payback.DefaultPriceChanges)
	return Options{
		Tariffs:            cost.TariffTable{},
		ReferenceYear:      2025,
		Intensity:          cost.DefaultCarbonIntensity,
		HeaterWatts:        config.DefaultHeaterWatts,
		SensitivityChanges: changes,
		Pair:               savings.DynamicVsHeater,
		ForecastYear:       config.DefaultForecastYear,
		Gap:                gapfill.DefaultPolicy,
		ReferenceStart:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ReferenceEnd:       time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
		PowerScale:         1,
	}
}
