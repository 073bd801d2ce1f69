package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/cost"
	"github.com/dfvmonitor/energyforecast/internal/forecast"
	"github.com/dfvmonitor/energyforecast/internal/period"
	"github.com/dfvmonitor/energyforecast/internal/pipeline"
	"github.com/dfvmonitor/energyforecast/internal/savings"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/dfvmonitor/energyforecast/pkg/config"
	"github.com/dfvmonitor/energyforecast/pkg/responseformat"
)

const dateLayout = "2006-01-02"

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	pipeline.Status
	SettingsWritable bool `json:"settings_writable"`
}

// GetStatus reports the data held per controller and the cache state
func (h *Handlers) GetStatus(w http.ResponseWriter, req *http.Request) {
	status := h.controller.service.Status(req.Context())
	h.respond(w, req, StatusResponse{Status: status, SettingsWritable: h.controller.settings != nil})
}

// GetForecast handles /api/forecast?controller=dynamic&period=monthly&index=5
func (h *Handlers) GetForecast(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	ctrl, err := controllerParam(q.Get("controller"))
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}

	p, err := period.Parse(q.Get("period"), q.Get("index"))
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}

	report, err := h.controller.service.ForecastEnergy(req.Context(), ctrl, p)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.respond(w, req, report)
}

// GetSavings handles /api/savings?start=2025-01-01&end=2025-03-31
func (h *Handlers) GetSavings(w http.ResponseWriter, req *http.Request) {
	start, end, err := dateRangeParams(req)
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}

	report, err := h.controller.service.CompareSavings(req.Context(), start, end)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.respond(w, req, report)
}

// GetCO2 handles /api/co2?controller=thermostat&start=2025-01-01&end=2025-01-31
func (h *Handlers) GetCO2(w http.ResponseWriter, req *http.Request) {
	ctrl, err := controllerParam(req.URL.Query().Get("controller"))
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}

	start, end, err := dateRangeParams(req)
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}

	report, err := h.controller.service.CO2History(req.Context(), ctrl, start, end)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.respond(w, req, report)
}

// GetPayback handles /api/payback?start=...&end=...[&investment=150000][&pair=dynamic_vs_heater]
func (h *Handlers) GetPayback(w http.ResponseWriter, req *http.Request) {
	start, end, err := dateRangeParams(req)
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}

	query := pipeline.PaybackQuery{Start: start, End: end}
	q := req.URL.Query()

	if s := q.Get("investment"); s != "" {
		investment, err := strconv.ParseFloat(s, 64)
		if err != nil {
			h.writeError(w, req, badRequest(fmt.Errorf("invalid investment %q", s)))
			return
		}
		query.Investment = &investment
	}

	if s := q.Get("pair"); s != "" {
		pair, err := savings.ParsePair(s)
		if err != nil {
			h.writeError(w, req, badRequest(err))
			return
		}
		query.Pair = &pair
	}

	report, err := h.controller.service.Payback(req.Context(), query)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.respond(w, req, report)
}

// HeaterSettingsResponse is the body returned after a heater change
type HeaterSettingsResponse struct {
	HeaterWatts float64 `json:"heater_watts"`
	Invalidated int     `json:"invalidated"`
	Persisted   bool    `json:"persisted"`
}

// PutHeaterSettings handles PUT /api/settings/heater with {"power_watts": 75}
func (h *Handlers) PutHeaterSettings(w http.ResponseWriter, req *http.Request) {
	var body config.HeaterData
	decoder := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		h.writeError(w, req, badRequest(fmt.Errorf("invalid heater settings: %v", err)))
		return
	}

	n, err := h.controller.service.SetHeaterWatts(body.PowerWatts)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	resp := HeaterSettingsResponse{HeaterWatts: body.PowerWatts, Invalidated: n}
	if h.controller.settings != nil {
		if err := h.controller.settings.SaveHeaterSettings(body); err != nil {
			h.controller.logger.Errorf("failed to persist heater settings: %v", err)
			h.writeError(w, req, fmt.Errorf("heater baseline applied but not saved: %w", err))
			return
		}
		resp.Persisted = true
	}
	h.respond(w, req, resp)
}

// CacheResponse reports how many cached entries were dropped
type CacheResponse struct {
	Invalidated int `json:"invalidated"`
}

// PostCacheInvalidate handles POST /api/cache/invalidate[?controller=dynamic]
func (h *Handlers) PostCacheInvalidate(w http.ResponseWriter, req *http.Request) {
	s := req.URL.Query().Get("controller")
	if s == "" {
		h.respond(w, req, CacheResponse{Invalidated: h.controller.service.InvalidateAll()})
		return
	}

	ctrl, err := types.ParseController(s)
	if err != nil {
		h.writeError(w, req, badRequest(err))
		return
	}
	h.respond(w, req, CacheResponse{Invalidated: h.controller.service.InvalidateController(ctrl)})
}

// NotFound answers unknown routes with a JSON error
func (h *Handlers) NotFound(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteError(w, req, http.StatusNotFound, "not found")
}

// MethodNotAllowed answers known routes called with the wrong method
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteError(w, req, http.StatusMethodNotAllowed, "method not allowed")
}

func (h *Handlers) respond(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, data, nil); err != nil {
		h.controller.logger.Errorf("error encoding response: %v", err)
	}
}

// requestError marks errors caused by malformed parameters
type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	var reqErr requestError
	var fitErr *forecast.FitError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, forecast.ErrFitTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &fitErr),
		errors.Is(err, cost.ErrTariffUnavailable),
		errors.Is(err, cost.ErrCarbonIntensityUnavailable),
		errors.Is(err, savings.ErrHeaterPowerMissing),
		errors.Is(err, savings.ErrNoOverlap):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	} else {
		h.controller.logger.Debugw("request rejected", "path", req.URL.Path, "status", status, "error", err)
	}
	h.formatter.WriteError(w, req, status, err.Error())
}

func controllerParam(s string) (types.Controller, error) {
	if s == "" {
		return types.ControllerDynamic, nil
	}
	return types.ParseController(s)
}

func dateRangeParams(req *http.Request) (time.Time, time.Time, error) {
	q := req.URL.Query()
	start, err := time.Parse(dateLayout, q.Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be a YYYY-MM-DD date")
	}
	end, err := time.Parse(dateLayout, q.Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end must be a YYYY-MM-DD date")
	}
	return start, end, nil
}
