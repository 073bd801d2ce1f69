package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/cost"
	"github.com/dfvmonitor/energyforecast/internal/forecast"
	"github.com/dfvmonitor/energyforecast/internal/pipeline"
	"github.com/dfvmonitor/energyforecast/internal/savings"
	"github.com/dfvmonitor/energyforecast/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStore serves four readings a day in January 2025: 0.5 kW for the
// dynamic controller and 1.0 kW for the thermostat.
type stubStore struct {
	empty bool
}

func (s *stubStore) ExecuteQuery(_ context.Context, query string, args ...any) ([][]any, error) {
	if strings.Contains(query, "MAX(date)") {
		return [][]any{{time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)}}, nil
	}
	if s.empty {
		return nil, nil
	}

	power := 1.0
	if strings.Contains(query, "dfv_smart_db") {
		power = 0.5
	}

	var rows [][]any
	for d := 1; d <= 31; d++ {
		day := time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
		if from, ok := args[0].(string); ok {
			if day.Format(dateLayout) < from || day.Format(dateLayout) > args[1].(string) {
				continue
			}
		}
		for _, clock := range []string{"00:00:00", "06:00:00", "12:00:00", "18:00:00"} {
			if strings.Contains(query, "power_w") {
				rows = append(rows, []any{day, clock, power})
			} else {
				rows = append(rows, []any{day, clock, power, 2.1, 21.0, 4.0, 45.0, 75.0})
			}
		}
	}
	return rows, nil
}

type memorySettings struct {
	heater config.HeaterData
	fail   error
}

func (m *memorySettings) SaveHeaterSettings(h config.HeaterData) error {
	if m.fail != nil {
		return m.fail
	}
	m.heater = h
	return nil
}

func (m *memorySettings) SaveInvestmentSettings(config.InvestmentData) error { return nil }

func newTestController(t *testing.T, store *stubStore, settings config.SettingsWriter) *Controller {
	t.Helper()
	opts := pipeline.DefaultOptions()
	opts.Tariffs = cost.TariffTable{"2025": "70,00 Ft/kWh"}
	opts.Investment = 100
	opts.FitTimeout = time.Minute

	svc := pipeline.NewService(store, opts, zap.NewNop().Sugar())
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, svc, settings, config.RESTServerData{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return ctrl
}

func serve(ctrl *Controller, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewControllerDefaults(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)
	assert.Equal(t, fmt.Sprintf("0.0.0.0:%d", config.DefaultRESTPort), ctrl.Server.Addr)

	_, err := NewController(context.Background(), &sync.WaitGroup{}, nil, nil, config.RESTServerData{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, false, body["settings_writable"])
	assert.EqualValues(t, config.DefaultHeaterWatts, body["heater_watts"])
	controllers := body["controllers"].([]any)
	require.Len(t, controllers, 2)
	assert.Equal(t, "2025-01-31T00:00:00Z", controllers[0].(map[string]any)["last_date"])
}

func TestGetSavings(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/savings?start=2025-01-01&end=2025-01-09", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Len(t, body["records"], 9)
	assert.EqualValues(t, 70, body["price"])
	assert.NotEmpty(t, body["run_id"])
}

func TestGetSavingsBadDates(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/savings?start=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "end")

	rec = serve(ctrl, http.MethodGet, "/api/savings?start=2025-02-01&end=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSavingsNoData(t *testing.T) {
	ctrl := newTestController(t, &stubStore{empty: true}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/savings?start=2025-01-01&end=2025-01-09", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetForecastBadParams(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	tests := []string{
		"/api/forecast?controller=boiler&period=monthly&index=1",
		"/api/forecast?period=weekly&index=1",
		"/api/forecast?period=monthly&index=13",
		"/api/forecast?period=quarterly",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			rec := serve(ctrl, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetForecastNoHistory(t *testing.T) {
	ctrl := newTestController(t, &stubStore{empty: true}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/forecast?controller=thermostat&period=quarterly&index=3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCO2(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/co2?controller=thermostat&start=2025-01-01&end=2025-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "thermostat", body["controller"])
	assert.Len(t, body["days"], 2)
}

func TestGetPayback(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/payback?start=2025-01-01&end=2025-01-31&investment=500&pair=dynamic_vs_thermostat", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 500, body["investment"])

	rec = serve(ctrl, http.MethodGet, "/api/payback?start=2025-01-01&end=2025-01-31&investment=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(ctrl, http.MethodGet, "/api/payback?start=2025-01-01&end=2025-01-31&pair=heater_vs_gas", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutHeaterSettings(t *testing.T) {
	settings := &memorySettings{}
	ctrl := newTestController(t, &stubStore{}, settings)

	rec := serve(ctrl, http.MethodPut, "/api/settings/heater", `{"power_watts": 75}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.EqualValues(t, 75, body["heater_watts"])
	assert.Equal(t, true, body["persisted"])
	assert.Equal(t, 75.0, settings.heater.PowerWatts)
	assert.Equal(t, 75.0, ctrl.service.Options().HeaterWatts)

	rec = serve(ctrl, http.MethodPut, "/api/settings/heater", `{"power_watts": 500}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(ctrl, http.MethodPut, "/api/settings/heater", `{"watts": 50}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutHeaterSettingsReadOnly(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodPut, "/api/settings/heater", `{"power_watts": 90}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["persisted"])
}

func TestPutHeaterSettingsSaveFails(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, &memorySettings{fail: errors.New("disk full")})

	rec := serve(ctrl, http.MethodPut, "/api/settings/heater", `{"power_watts": 90}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "disk full")
}

func TestPostCacheInvalidate(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	require.Equal(t, http.StatusOK, serve(ctrl, http.MethodGet, "/api/savings?start=2025-01-01&end=2025-01-09", "").Code)

	rec := serve(ctrl, http.MethodPost, "/api/cache/invalidate?controller=dynamic", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decode(t, rec)["invalidated"])

	rec = serve(ctrl, http.MethodPost, "/api/cache/invalidate?controller=gas", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(ctrl, http.MethodPost, "/api/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutingErrors(t *testing.T) {
	ctrl := newTestController(t, &stubStore{}, nil)

	rec := serve(ctrl, http.MethodGet, "/api/weather", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode(t, rec)["error"])

	rec = serve(ctrl, http.MethodDelete, "/api/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", badRequest(errors.New("x")), http.StatusBadRequest},
		{"invalid request", fmt.Errorf("%w: y", pipeline.ErrInvalidRequest), http.StatusBadRequest},
		{"no data", fmt.Errorf("load: %w", pipeline.ErrNoData), http.StatusNotFound},
		{"fit", &forecast.FitError{Reason: "singular"}, http.StatusUnprocessableEntity},
		{"tariff", cost.ErrTariffUnavailable, http.StatusUnprocessableEntity},
		{"heater", savings.ErrHeaterPowerMissing, http.StatusUnprocessableEntity},
		{"timeout", forecast.ErrFitTimeout, http.StatusGatewayTimeout},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
