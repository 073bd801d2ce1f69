// Package forecast fits the daily energy model and projects it over a
// forecast window with a 95% interval.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
	"go.uber.org/zap"
)

const (
	// MinRecommendedDays is the series length below which the result carries
	// a reliability warning.
	MinRecommendedDays = 10

	// Alpha is the significance level of the reported interval.
	Alpha = 0.05

	DefaultFitTimeout = 2 * time.Minute
)

// Result is the outcome of one forecast run.
type Result struct {
	Points   []types.ForecastPoint `json:"points"`
	Model    *Model                `json:"model"`
	Warnings []string              `json:"warnings,omitempty"`
	Days     int                   `json:"history_days"`
}

// Engine runs model fits on a dedicated goroutine bounded by a timeout.
type Engine struct {
	logger     *zap.SugaredLogger
	fitTimeout time.Duration
}

// NewEngine creates a forecast engine. A zero timeout uses DefaultFitTimeout.
func NewEngine(logger *zap.SugaredLogger, fitTimeout time.Duration) *Engine {
	if fitTimeout <= 0 {
		fitTimeout = DefaultFitTimeout
	}
	return &Engine{logger: logger, fitTimeout: fitTimeout}
}

// Run fits the model to a cleaned daily series and forecasts every day of
// [start, end]. The call blocks until the fit finishes, the timeout elapses or
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context, days []types.DailyAggregate, start, end time.Time) (*Result, error) {
	if len(days) == 0 {
		return nil, ErrNoData
	}
	start, end = types.DateOf(start), types.DateOf(end)
	if end.Before(start) {
		return nil, fmt.Errorf("forecast window end %s precedes start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	result := &Result{Days: len(days)}
	if len(days) < MinRecommendedDays {
		msg := fmt.Sprintf("only %d days of history available; at least %d are recommended for a reliable forecast", len(days), MinRecommendedDays)
		e.logger.Warn(msg)
		result.Warnings = append(result.Warnings, msg)
	}

	y := make([]float64, len(days))
	x := make([][]float64, len(days))
	for i, d := range days {
		y[i] = d.EnergyKWh
		x[i] = d.Exogenous()
	}

	model, err := e.fit(ctx, y, x)
	if err != nil {
		return nil, err
	}
	result.Model = model
	if !model.Converged() {
		msg := "optimiser stopped at its iteration limit before converging"
		e.logger.Warn(msg)
		result.Warnings = append(result.Warnings, msg)
	}
	if model.DegenerateInterval() {
		msg := fmt.Sprintf("the regressors fit all %d days exactly; the 95%% interval has zero width and does not reflect uncertainty", len(days))
		e.logger.Warn(msg)
		result.Warnings = append(result.Warnings, msg)
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}

	future := ExtrapolateExog(x, len(dates))
	mean, variance, err := model.Forecast(future)
	if err != nil {
		return nil, &FitError{Reason: "forecast", Err: err}
	}

	result.Points = Bounds(dates, mean, variance, Interval(Alpha))
	e.logger.Infow("forecast complete",
		"history_days", len(days),
		"horizon_days", len(dates),
		"phi", model.Phi,
		"theta", model.Theta,
		"sigma2", model.Sigma2)

	return result, nil
}

type fitOutcome struct {
	model *Model
	err   error
}

func (e *Engine) fit(ctx context.Context, y []float64, x [][]float64) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fitCtx, cancel := context.WithTimeout(ctx, e.fitTimeout)
	defer cancel()

	done := make(chan fitOutcome, 1)
	go func() {
		m, err := Fit(fitCtx, y, x)
		done <- fitOutcome{model: m, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && fitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, ErrFitTimeout
		}
		return out.model, out.err
	case <-fitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrFitTimeout
	}
}

// ExtrapolateExog supplies regressors for h future steps: the last h observed
// rows when the history is at least that long, otherwise the last row repeated.
func ExtrapolateExog(history [][]float64, h int) [][]float64 {
	out := make([][]float64, h)
	if len(history) == 0 || h == 0 {
		return out
	}
	if len(history) >= h {
		tail := history[len(history)-h:]
		for i, row := range tail {
			out[i] = append([]float64{}, row...)
		}
		return out
	}
	last := history[len(history)-1]
	for i := range out {
		out[i] = append([]float64{}, last...)
	}
	return out
}

// Bounds builds forecast points with a symmetric normal interval. The lower
// bound is clamped at zero and the point forecast is clamped into the
// interval so that lower <= forecast <= upper always holds.
func Bounds(dates []time.Time, mean, variance []float64, z float64) []types.ForecastPoint {
	points := make([]types.ForecastPoint, len(dates))
	for i, d := range dates {
		half := z * math.Sqrt(variance[i])
		lower := math.Max(mean[i]-half, 0)
		upper := mean[i] + half
		f := math.Min(math.Max(mean[i], lower), upper)
		if upper < lower {
			upper = lower
			f = lower
		}
		points[i] = types.ForecastPoint{
			Date:       d,
			Forecast:   f,
			LowerBound: lower,
			UpperBound: upper,
		}
	}
	return points
}
