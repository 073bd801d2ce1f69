package types

import (
	"fmt"
	"strings"
)

// Controller identifies which heating controller a series of readings belongs to.
type Controller int

const (
	ControllerDynamic Controller = iota
	ControllerThermostat
)

// Shared outdoor sensor columns, present in both controller tables.
const (
	ExternalTemperatureColumn = "trend_kulso_homerseklet_pillanatnyi"
	ExternalHumidityColumn    = "trend_kulso_paratartalom"
)

// ColumnMapping names the table and columns holding one controller's readings.
// It is the only source of identifiers that ever reach SQL text.
type ColumnMapping struct {
	Table               string
	Power               string
	Current             string
	InternalTemperature string
	InternalHumidity    string
	ExternalTemperature string
	ExternalHumidity    string
}

var columnMappings = map[Controller]ColumnMapping{
	ControllerDynamic: {
		Table:               "dfv_smart_db",
		Power:               "trend_smart_p",
		Current:             "trend_smart_i1",
		InternalTemperature: "trend_smart_t",
		InternalHumidity:    "trend_smart_rh",
		ExternalTemperature: ExternalTemperatureColumn,
		ExternalHumidity:    ExternalHumidityColumn,
	},
	ControllerThermostat: {
		Table:               "dfv_termosztat_db",
		Power:               "trend_termosztat_p",
		Current:             "trend_termosztat_i1",
		InternalTemperature: "trend_termosztat_t",
		InternalHumidity:    "trend_termosztat_rh",
		ExternalTemperature: ExternalTemperatureColumn,
		ExternalHumidity:    ExternalHumidityColumn,
	},
}

// Controllers lists every known controller in a stable order.
func Controllers() []Controller {
	return []Controller{ControllerDynamic, ControllerThermostat}
}

// Columns returns the table/column mapping for the controller.
func (c Controller) Columns() ColumnMapping {
	return columnMappings[c]
}

// Valid reports whether c is a known controller.
func (c Controller) Valid() bool {
	_, ok := columnMappings[c]
	return ok
}

func (c Controller) String() string {
	switch c {
	case ControllerDynamic:
		return "dynamic"
	case ControllerThermostat:
		return "thermostat"
	default:
		return fmt.Sprintf("controller(%d)", int(c))
	}
}

// ParseController accepts the controller names used in configuration and query parameters.
func ParseController(s string) (Controller, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dynamic", "smart", "dfv":
		return ControllerDynamic, nil
	case "thermostat", "termosztat":
		return ControllerThermostat, nil
	}
	return 0, fmt.Errorf("unknown controller %q", s)
}
