package database

import (
	"fmt"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
)

const dateLayout = "2006-01-02"

// Selection restricts which readings a query returns: either an inclusive
// calendar date range or an inclusive month-of-year range across all years.
type Selection struct {
	Start     time.Time
	End       time.Time
	FromMonth time.Month
	ToMonth   time.Month
}

// DateRange selects readings whose date falls within [start, end].
func DateRange(start, end time.Time) Selection {
	return Selection{Start: types.DateOf(start), End: types.DateOf(end)}
}

// MonthRange selects readings from months from..to of every year on record.
func MonthRange(from, to time.Month) Selection {
	return Selection{FromMonth: from, ToMonth: to}
}

// IsMonthRange reports whether the selection is month-of-year based.
func (s Selection) IsMonthRange() bool {
	return s.FromMonth != 0
}

func (s Selection) String() string {
	if s.IsMonthRange() {
		if s.FromMonth == s.ToMonth {
			return fmt.Sprintf("month %02d", int(s.FromMonth))
		}
		return fmt.Sprintf("months %02d-%02d", int(s.FromMonth), int(s.ToMonth))
	}
	return fmt.Sprintf("%s..%s", s.Start.Format(dateLayout), s.End.Format(dateLayout))
}

// Validate checks the selection bounds.
func (s Selection) Validate() error {
	if s.IsMonthRange() {
		if s.FromMonth < time.January || s.ToMonth > time.December || s.FromMonth > s.ToMonth {
			return fmt.Errorf("invalid month range %d-%d", s.FromMonth, s.ToMonth)
		}
		return nil
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("date range requires both start and end")
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("date range end %s precedes start %s", s.End.Format(dateLayout), s.Start.Format(dateLayout))
	}
	return nil
}

// ReadingsQuery builds the SELECT for a controller's readings. Identifiers come
// only from the controller's column mapping; bounds are bind parameters.
// Columns are returned as: date, time, value, current, internal_temp,
// external_temp, internal_humidity, external_humidity.
func ReadingsQuery(c types.Controller, sel Selection) (string, []any, error) {
	if !c.Valid() {
		return "", nil, fmt.Errorf("unknown controller %v", c)
	}
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}

	m := c.Columns()

	var where string
	var args []any
	if sel.IsMonthRange() {
		where = "EXTRACT(MONTH FROM date) BETWEEN $1 AND $2"
		args = []any{int(sel.FromMonth), int(sel.ToMonth)}
	} else {
		where = "DATE(date) BETWEEN $1 AND $2"
		args = []any{sel.Start.Format(dateLayout), sel.End.Format(dateLayout)}
	}

	query := fmt.Sprintf(`
		SELECT date, time,
		       %[2]s AS value,
		       %[3]s AS current,
		       %[4]s AS internal_temp,
		       %[5]s AS external_temp,
		       %[6]s AS internal_humidity,
		       %[7]s AS external_humidity
		  FROM %[1]s
		 WHERE %[8]s
		   AND %[2]s IS NOT NULL
		   AND %[3]s IS NOT NULL
		   AND %[4]s IS NOT NULL
		   AND %[5]s IS NOT NULL
		 ORDER BY date, time`,
		m.Table, m.Power, m.Current, m.InternalTemperature, m.ExternalTemperature,
		m.InternalHumidity, m.ExternalHumidity, where)

	return query, args, nil
}

// PowerQuery builds the SELECT used by the historical CO2 series: date, time, power.
func PowerQuery(c types.Controller, start, end time.Time) (string, []any, error) {
	if !c.Valid() {
		return "", nil, fmt.Errorf("unknown controller %v", c)
	}
	sel := DateRange(start, end)
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}

	m := c.Columns()
	query := fmt.Sprintf(`
		SELECT date, time, %[2]s AS power_w
		  FROM %[1]s
		 WHERE date >= $1 AND date <= $2
		   AND %[2]s IS NOT NULL
		 ORDER BY date, time`, m.Table, m.Power)

	return query, []any{sel.Start.Format(dateLayout), sel.End.Format(dateLayout)}, nil
}

// LastDateQuery returns the most recent reading date for a controller.
func LastDateQuery(c types.Controller) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("unknown controller %v", c)
	}
	return fmt.Sprintf("SELECT MAX(date) AS last_date FROM %s", c.Columns().Table), nil
}
