package config

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/dfvmonitor/energyforecast/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	defaultConfigName    = "default"
	migrationTable       = "config_schema_migrations"
	timescaleBackendType = "timescaledb"
)

// Setting keys in the settings table
const (
	keyReferenceYear      = "pricing.reference_year"
	keyCarbonIntensity    = "pricing.carbon_intensity"
	keyHeaterWatts        = "heater.power_watts"
	keyInvestmentCost     = "investment.cost"
	keySensitivityChanges = "investment.sensitivity_changes"
	keyInvestmentPair     = "investment.pair"
	keyForecastYear       = "forecast.year"
	keyGapYear            = "forecast.gap_year"
	keyGapMonth           = "forecast.gap_month"
	keyReferenceStart     = "forecast.reference_start"
	keyReferenceEnd       = "forecast.reference_end"
	keyFitTimeout         = "forecast.fit_timeout"
	keyPowerScale         = "forecast.power_scale"
	keyRESTCert           = "rest.cert"
	keyRESTKey            = "rest.key"
	keyRESTPort           = "rest.port"
	keyRESTListenAddr     = "rest.listen_addr"
	keyLogFile            = "log.file"
	keyLogMaxSizeMB       = "log.max_size_mb"
	keyLogMaxBackups      = "log.max_backups"
	keyLogMaxAgeDays      = "log.max_age_days"
)

// SQLiteProvider implements ConfigProvider and SettingsWriter for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// SchemaMigrations returns the embedded migrations of the SQLite configuration schema
func SchemaMigrations() migrate.MigrationProvider {
	return migrate.NewFSProvider(migrationFS, "migrations", migrationTable)
}

// NewSQLiteProvider opens the database and brings its schema up to date
func NewSQLiteProvider(dbPath string, logf migrate.Logf) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	migrator := migrate.NewMigrator(db, SchemaMigrations(), logf)
	if _, err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite config schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	pricing, err := s.GetPricingConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing config: %w", err)
	}
	config.Pricing = *pricing

	settings, err := s.settings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Unparseable numeric settings are left zero so ApplyDefaults replaces them
	config.Heater.PowerWatts = settingFloat(settings, keyHeaterWatts)
	config.Investment = InvestmentData{
		Cost:               settingFloat(settings, keyInvestmentCost),
		SensitivityChanges: settings[keySensitivityChanges],
		Pair:               settings[keyInvestmentPair],
	}
	config.Forecast = ForecastData{
		Year:           settingInt(settings, keyForecastYear),
		GapYear:        settingInt(settings, keyGapYear),
		GapMonth:       settingInt(settings, keyGapMonth),
		ReferenceStart: settings[keyReferenceStart],
		ReferenceEnd:   settings[keyReferenceEnd],
		FitTimeout:     settings[keyFitTimeout],
		PowerScale:     settingFloat(settings, keyPowerScale),
	}
	config.REST = RESTServerData{
		Cert:       settings[keyRESTCert],
		Key:        settings[keyRESTKey],
		Port:       settingInt(settings, keyRESTPort),
		ListenAddr: settings[keyRESTListenAddr],
	}
	config.Log = LogData{
		File:       settings[keyLogFile],
		MaxSizeMB:  settingInt(settings, keyLogMaxSizeMB),
		MaxBackups: settingInt(settings, keyLogMaxBackups),
		MaxAgeDays: settingInt(settings, keyLogMaxAgeDays),
	}

	return config, nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, connection_string
		FROM storage_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
	`

	rows, err := s.db.Query(query, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType string
		var connectionString sql.NullString

		if err := rows.Scan(&backendType, &connectionString); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case timescaleBackendType:
			if connectionString.Valid {
				storage.TimescaleDB = &TimescaleDBData{ConnectionString: connectionString.String}
			}
		}
	}

	return storage, rows.Err()
}

// GetPricingConfig returns the tariffs and carbon intensity from the database
func (s *SQLiteProvider) GetPricingConfig() (*PricingData, error) {
	query := `
		SELECT year, price
		FROM tariffs
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
		ORDER BY year
	`

	rows, err := s.db.Query(query, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	pricing := &PricingData{}
	for rows.Next() {
		var year, price string
		if err := rows.Scan(&year, &price); err != nil {
			return nil, fmt.Errorf("failed to scan tariff row: %w", err)
		}
		if pricing.Tariffs == nil {
			pricing.Tariffs = make(map[string]string)
		}
		pricing.Tariffs[year] = price
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	settings, err := s.settings()
	if err != nil {
		return nil, err
	}
	pricing.ReferenceYear = settings[keyReferenceYear]
	pricing.CarbonIntensity = settingFloat(settings, keyCarbonIntensity)

	return pricing, nil
}

// IsReadOnly returns false since SQLite supports writes
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.getOrCreateConfigID(tx)
	if err != nil {
		return err
	}

	if err := s.clearExistingConfig(tx, configID); err != nil {
		return err
	}

	if ts := configData.Storage.TimescaleDB; ts != nil {
		if _, err := tx.Exec(
			`INSERT INTO storage_configs (config_id, backend_type, connection_string) VALUES (?, ?, ?)`,
			configID, timescaleBackendType, nullString(ts.ConnectionString),
		); err != nil {
			return fmt.Errorf("failed to insert TimescaleDB config: %w", err)
		}
	}

	for year, price := range configData.Pricing.Tariffs {
		if _, err := tx.Exec(
			`INSERT INTO tariffs (config_id, year, price) VALUES (?, ?, ?)`,
			configID, year, price,
		); err != nil {
			return fmt.Errorf("failed to insert tariff for %s: %w", year, err)
		}
	}

	settings := map[string]string{
		keyReferenceYear:      configData.Pricing.ReferenceYear,
		keyCarbonIntensity:    formatFloat(configData.Pricing.CarbonIntensity),
		keyHeaterWatts:        formatFloat(configData.Heater.PowerWatts),
		keyInvestmentCost:     formatFloat(configData.Investment.Cost),
		keySensitivityChanges: configData.Investment.SensitivityChanges,
		keyInvestmentPair:     configData.Investment.Pair,
		keyForecastYear:       formatInt(configData.Forecast.Year),
		keyGapYear:            formatInt(configData.Forecast.GapYear),
		keyGapMonth:           formatInt(configData.Forecast.GapMonth),
		keyReferenceStart:     configData.Forecast.ReferenceStart,
		keyReferenceEnd:       configData.Forecast.ReferenceEnd,
		keyFitTimeout:         configData.Forecast.FitTimeout,
		keyPowerScale:         formatFloat(configData.Forecast.PowerScale),
		keyRESTCert:           configData.REST.Cert,
		keyRESTKey:            configData.REST.Key,
		keyRESTPort:           formatInt(configData.REST.Port),
		keyRESTListenAddr:     configData.REST.ListenAddr,
		keyLogFile:            configData.Log.File,
		keyLogMaxSizeMB:       formatInt(configData.Log.MaxSizeMB),
		keyLogMaxBackups:      formatInt(configData.Log.MaxBackups),
		keyLogMaxAgeDays:      formatInt(configData.Log.MaxAgeDays),
	}
	if err := s.putSettings(tx, configID, settings); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveHeaterSettings stores the heater baseline power
func (s *SQLiteProvider) SaveHeaterSettings(heater HeaterData) error {
	if heater.PowerWatts < MinHeaterWatts || heater.PowerWatts > MaxHeaterWatts {
		return fmt.Errorf("heater power %.0f W outside %d..%d W", heater.PowerWatts, MinHeaterWatts, MaxHeaterWatts)
	}
	return s.updateSettings(map[string]string{
		keyHeaterWatts: formatFloat(heater.PowerWatts),
	})
}

// SaveInvestmentSettings stores the investment cost, sensitivity list and comparison pair
func (s *SQLiteProvider) SaveInvestmentSettings(investment InvestmentData) error {
	if investment.Cost < 0 {
		return fmt.Errorf("investment cost must not be negative")
	}
	return s.updateSettings(map[string]string{
		keyInvestmentCost:     formatFloat(investment.Cost),
		keySensitivityChanges: investment.SensitivityChanges,
		keyInvestmentPair:     investment.Pair,
	})
}

func (s *SQLiteProvider) updateSettings(settings map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.getOrCreateConfigID(tx)
	if err != nil {
		return err
	}
	if err := s.putSettings(tx, configID, settings); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE configs SET updated_at = datetime('now') WHERE id = ?`, configID); err != nil {
		return fmt.Errorf("failed to touch config: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteProvider) putSettings(tx *sql.Tx, configID int64, settings map[string]string) error {
	for key, value := range settings {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO settings (config_id, key, value) VALUES (?, ?, ?)`,
			configID, key, nullString(value),
		); err != nil {
			return fmt.Errorf("failed to store setting %s: %w", key, err)
		}
	}
	return nil
}

func (s *SQLiteProvider) settings() (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT key, value
		FROM settings
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
	`, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		if value.Valid {
			settings[key] = value.String
		}
	}
	return settings, rows.Err()
}

func (s *SQLiteProvider) insertConfig(tx *sql.Tx, name string) (int64, error) {
	result, err := tx.Exec(`INSERT OR REPLACE INTO configs (name, created_at, updated_at) VALUES (?, datetime('now'), datetime('now'))`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert config: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	for _, table := range []string{"storage_configs", "tariffs", "settings"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE config_id = ?", table), configID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteProvider) getOrCreateConfigID(tx *sql.Tx) (int64, error) {
	var configID int64
	err := tx.QueryRow("SELECT id FROM configs WHERE name = ?", defaultConfigName).Scan(&configID)
	if err == sql.ErrNoRows {
		return s.insertConfig(tx, defaultConfigName)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get config ID: %w", err)
	}
	return configID, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatInt(i int) string {
	if i == 0 {
		return ""
	}
	return strconv.Itoa(i)
}

func settingFloat(settings map[string]string, key string) float64 {
	f, err := strconv.ParseFloat(settings[key], 64)
	if err != nil {
		return 0
	}
	return f
}

func settingInt(settings map[string]string, key string) int {
	i, err := strconv.Atoi(settings[key])
	if err != nil {
		return 0
	}
	return i
}
