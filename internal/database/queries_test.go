package database

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSelectionString(t *testing.T) {
	tests := []struct {
		sel  Selection
		want string
	}{
		{MonthRange(time.March, time.March), "month 03"},
		{MonthRange(time.April, time.June), "months 04-06"},
		{DateRange(time.Date(2025, 5, 1, 13, 0, 0, 0, time.UTC), time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)), "2025-05-01..2025-05-31"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.String())
		})
	}
}

func TestSelectionValidate(t *testing.T) {
	may := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, MonthRange(time.January, time.December).Validate())
	assert.Error(t, MonthRange(time.June, time.April).Validate())
	assert.Error(t, MonthRange(time.January, 13).Validate())
	assert.NoError(t, DateRange(may, may).Validate())
	assert.Error(t, DateRange(may, may.AddDate(0, 0, -1)).Validate())
	assert.Error(t, Selection{Start: may}.Validate())
}

func TestReadingsQuery(t *testing.T) {
	query, args, err := ReadingsQuery(types.ControllerThermostat, MonthRange(time.April, time.June))
	require.NoError(t, err)
	assert.Contains(t, query, "FROM dfv_termosztat_db")
	assert.Contains(t, query, "trend_termosztat_p AS value")
	assert.Contains(t, query, "EXTRACT(MONTH FROM date) BETWEEN $1 AND $2")
	assert.Equal(t, []any{4, 6}, args)

	query, args, err = ReadingsQuery(types.ControllerDynamic, DateRange(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Contains(t, query, "FROM dfv_smart_db")
	assert.Contains(t, query, "DATE(date) BETWEEN $1 AND $2")
	assert.Equal(t, []any{"2025-05-01", "2025-05-31"}, args)

	_, _, err = ReadingsQuery(types.Controller(7), MonthRange(time.May, time.May))
	assert.Error(t, err)

	_, _, err = ReadingsQuery(types.ControllerDynamic, MonthRange(time.May, time.April))
	assert.Error(t, err)
}

func TestLastDateQuery(t *testing.T) {
	query, err := LastDateQuery(types.ControllerDynamic)
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(date) AS last_date FROM dfv_smart_db", query)

	_, err = LastDateQuery(types.Controller(-1))
	assert.Error(t, err)
}

func TestSQLExecutorPowerQuery(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE dfv_smart_db (date TEXT, time TEXT, trend_smart_p REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO dfv_smart_db VALUES
		('2025-04-30', '23:45:00', 9.0),
		('2025-05-01', '00:00:00', 0.5),
		('2025-05-01', '00:15:00', NULL),
		('2025-05-02', '00:00:00', 0.7),
		('2025-05-03', '00:00:00', 9.0)`)
	require.NoError(t, err)

	query, args, err := PowerQuery(types.ControllerDynamic,
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, strings.Contains(query, "power_w"))

	rows, err := NewSQLExecutor(db).ExecuteQuery(context.Background(), query, args...)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"2025-05-01", "00:00:00", 0.5}, rows[0])
	assert.Equal(t, []any{"2025-05-02", "00:00:00", 0.7}, rows[1])
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient("postgres://localhost/none", nil)
	_, err := c.ExecuteQuery(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)
}
