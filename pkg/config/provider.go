package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetStorageConfig() (*StorageData, error)
	GetPricingConfig() (*PricingData, error)

	IsReadOnly() bool
	Close() error
}

// SettingsWriter is implemented by providers that can persist the settings
// users change at runtime.
type SettingsWriter interface {
	SaveHeaterSettings(heater HeaterData) error
	SaveInvestmentSettings(investment InvestmentData) error
}

// ErrReadOnly is returned when a change is attempted against a read-only provider.
var ErrReadOnly = errors.New("configuration provider is read-only")

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Storage    StorageData    `json:"storage"`
	Pricing    PricingData    `json:"pricing"`
	Heater     HeaterData     `json:"heater"`
	Investment InvestmentData `json:"investment"`
	Forecast   ForecastData   `json:"forecast"`
	REST       RESTServerData `json:"rest"`
	Log        LogData        `json:"log"`
}

// StorageData holds the configuration for the readings store
type StorageData struct {
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// PricingData holds the electricity tariffs and the carbon intensity of the grid.
// Tariffs are keyed by year with values such as "70,10 Ft/kWh".
type PricingData struct {
	Tariffs         map[string]string `json:"tariffs,omitempty"`
	ReferenceYear   string            `json:"reference_year,omitempty"`
	CarbonIntensity float64           `json:"carbon_intensity,omitempty"`
}

type HeaterData struct {
	PowerWatts float64 `json:"power_watts"`
}

type InvestmentData struct {
	Cost               float64 `json:"cost"`
	SensitivityChanges string  `json:"sensitivity_changes,omitempty"`
	Pair               string  `json:"pair,omitempty"`
}

// ForecastData holds the forecast horizon and the history used to fit it
type ForecastData struct {
	Year           int     `json:"year,omitempty"`
	GapYear        int     `json:"gap_year,omitempty"`
	GapMonth       int     `json:"gap_month,omitempty"`
	ReferenceStart string  `json:"reference_start,omitempty"`
	ReferenceEnd   string  `json:"reference_end,omitempty"`
	FitTimeout     string  `json:"fit_timeout,omitempty"`
	PowerScale     float64 `json:"power_scale,omitempty"`
}

type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

type LogData struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

const (
	DefaultReferenceYear     = "2025"
	DefaultCarbonIntensity   = 256.206
	DefaultHeaterWatts       = 60
	MinHeaterWatts           = 30
	MaxHeaterWatts           = 120
	DefaultForecastYear      = 2026
	DefaultGapYear           = 2025
	DefaultGapMonth          = 5
	DefaultReferenceStart    = "2024-01-01"
	DefaultReferenceEnd      = "2025-12-31"
	DefaultFitTimeout        = "2m"
	DefaultSensitivityChange = "-75,-50,-20,-10,0,10,20,50,75,100,200,300"
	DefaultPair              = "dynamic_vs_heater"
	DefaultRESTPort          = 8080
	DefaultListenAddr        = "0.0.0.0"

	dateLayout = "2006-01-02"
)

// ApplyDefaults fills every unset field with its default
func (c *ConfigData) ApplyDefaults() {
	if c.Pricing.ReferenceYear == "" {
		c.Pricing.ReferenceYear = DefaultReferenceYear
	}
	if c.Pricing.CarbonIntensity == 0 {
		c.Pricing.CarbonIntensity = DefaultCarbonIntensity
	}
	if c.Heater.PowerWatts == 0 {
		c.Heater.PowerWatts = DefaultHeaterWatts
	}
	if c.Investment.SensitivityChanges == "" {
		c.Investment.SensitivityChanges = DefaultSensitivityChange
	}
	if c.Investment.Pair == "" {
		c.Investment.Pair = DefaultPair
	}
	if c.Forecast.Year == 0 {
		c.Forecast.Year = DefaultForecastYear
	}
	if c.Forecast.GapYear == 0 {
		c.Forecast.GapYear = DefaultGapYear
	}
	if c.Forecast.GapMonth == 0 {
		c.Forecast.GapMonth = DefaultGapMonth
	}
	if c.Forecast.ReferenceStart == "" {
		c.Forecast.ReferenceStart = DefaultReferenceStart
	}
	if c.Forecast.ReferenceEnd == "" {
		c.Forecast.ReferenceEnd = DefaultReferenceEnd
	}
	if c.Forecast.FitTimeout == "" {
		c.Forecast.FitTimeout = DefaultFitTimeout
	}
	if c.Forecast.PowerScale == 0 {
		c.Forecast.PowerScale = 1
	}
	if c.REST.Port == 0 {
		c.REST.Port = DefaultRESTPort
	}
	if c.REST.ListenAddr == "" {
		c.REST.ListenAddr = DefaultListenAddr
	}
}

// Validate reports every invalid value in one error
func (c *ConfigData) Validate() error {
	var problems []string

	if c.Storage.TimescaleDB == nil || c.Storage.TimescaleDB.ConnectionString == "" {
		problems = append(problems, "storage.timescaledb.connection-string is required")
	}
	if c.Pricing.CarbonIntensity < 0 {
		problems = append(problems, "pricing.carbon-intensity must not be negative")
	}
	if c.Heater.PowerWatts < MinHeaterWatts || c.Heater.PowerWatts > MaxHeaterWatts {
		problems = append(problems, fmt.Sprintf("heater.power-watts must be between %d and %d", MinHeaterWatts, MaxHeaterWatts))
	}
	if c.Investment.Cost < 0 {
		problems = append(problems, "investment.cost must not be negative")
	}
	if c.Forecast.GapMonth < 1 || c.Forecast.GapMonth > 12 {
		problems = append(problems, "forecast.gap-month must be between 1 and 12")
	}
	if c.Forecast.PowerScale <= 0 {
		problems = append(problems, "forecast.power-scale must be positive")
	}

	start, errStart := time.Parse(dateLayout, c.Forecast.ReferenceStart)
	end, errEnd := time.Parse(dateLayout, c.Forecast.ReferenceEnd)
	switch {
	case errStart != nil:
		problems = append(problems, fmt.Sprintf("forecast.reference-start: %v", errStart))
	case errEnd != nil:
		problems = append(problems, fmt.Sprintf("forecast.reference-end: %v", errEnd))
	case end.Before(start):
		problems = append(problems, "forecast.reference-end is before forecast.reference-start")
	}

	if d, err := time.ParseDuration(c.Forecast.FitTimeout); err != nil || d <= 0 {
		problems = append(problems, fmt.Sprintf("forecast.fit-timeout %q is not a positive duration", c.Forecast.FitTimeout))
	}
	if c.REST.Port < 0 || c.REST.Port > 65535 {
		problems = append(problems, "rest.port out of range")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ReferenceWindow returns the parsed reference window. Call after Validate.
func (f ForecastData) ReferenceWindow() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, f.ReferenceStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(dateLayout, f.ReferenceEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Timeout returns the parsed fit timeout, or zero when unset or invalid.
func (f ForecastData) Timeout() time.Duration {
	d, err := time.ParseDuration(f.FitTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Load loads the configuration from p, applies defaults and validates it.
func Load(p ConfigProvider) (*ConfigData, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
