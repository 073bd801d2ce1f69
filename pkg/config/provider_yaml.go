package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// YAML mirror types. ConfigData keeps json tags for the API, the file uses
// kebab-case keys.
type configYAML struct {
	Storage    StorageYAML    `yaml:"storage,omitempty"`
	Pricing    PricingYAML    `yaml:"pricing,omitempty"`
	Heater     HeaterYAML     `yaml:"heater,omitempty"`
	Investment InvestmentYAML `yaml:"investment,omitempty"`
	Forecast   ForecastYAML   `yaml:"forecast,omitempty"`
	REST       RESTServerYAML `yaml:"rest,omitempty"`
	Log        LogYAML        `yaml:"log,omitempty"`
}

type StorageYAML struct {
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type PricingYAML struct {
	Tariffs         map[string]string `yaml:"tariffs,omitempty"`
	ReferenceYear   string            `yaml:"reference-year,omitempty"`
	CarbonIntensity float64           `yaml:"carbon-intensity,omitempty"`
}

type HeaterYAML struct {
	PowerWatts float64 `yaml:"power-watts,omitempty"`
}

type InvestmentYAML struct {
	Cost               float64 `yaml:"cost,omitempty"`
	SensitivityChanges string  `yaml:"sensitivity-changes,omitempty"`
	Pair               string  `yaml:"pair,omitempty"`
}

type ForecastYAML struct {
	Year           int     `yaml:"year,omitempty"`
	GapYear        int     `yaml:"gap-year,omitempty"`
	GapMonth       int     `yaml:"gap-month,omitempty"`
	ReferenceStart string  `yaml:"reference-start,omitempty"`
	ReferenceEnd   string  `yaml:"reference-end,omitempty"`
	FitTimeout     string  `yaml:"fit-timeout,omitempty"`
	PowerScale     float64 `yaml:"power-scale,omitempty"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
}

type LogYAML struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var yamlConfig configYAML
	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	config := &ConfigData{
		Pricing: PricingData{
			Tariffs:         yamlConfig.Pricing.Tariffs,
			ReferenceYear:   yamlConfig.Pricing.ReferenceYear,
			CarbonIntensity: yamlConfig.Pricing.CarbonIntensity,
		},
		Heater: HeaterData{
			PowerWatts: yamlConfig.Heater.PowerWatts,
		},
		Investment: InvestmentData{
			Cost:               yamlConfig.Investment.Cost,
			SensitivityChanges: yamlConfig.Investment.SensitivityChanges,
			Pair:               yamlConfig.Investment.Pair,
		},
		Forecast: ForecastData{
			Year:           yamlConfig.Forecast.Year,
			GapYear:        yamlConfig.Forecast.GapYear,
			GapMonth:       yamlConfig.Forecast.GapMonth,
			ReferenceStart: yamlConfig.Forecast.ReferenceStart,
			ReferenceEnd:   yamlConfig.Forecast.ReferenceEnd,
			FitTimeout:     yamlConfig.Forecast.FitTimeout,
			PowerScale:     yamlConfig.Forecast.PowerScale,
		},
		REST: RESTServerData{
			Cert:       yamlConfig.REST.Cert,
			Key:        yamlConfig.REST.Key,
			Port:       yamlConfig.REST.Port,
			ListenAddr: yamlConfig.REST.ListenAddr,
		},
		Log: LogData{
			File:       yamlConfig.Log.File,
			MaxSizeMB:  yamlConfig.Log.MaxSizeMB,
			MaxBackups: yamlConfig.Log.MaxBackups,
			MaxAgeDays: yamlConfig.Log.MaxAgeDays,
		},
	}

	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}

	y.config = config
	return config, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// GetPricingConfig returns tariffs and carbon intensity
func (y *YAMLProvider) GetPricingConfig() (*PricingData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Pricing, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
