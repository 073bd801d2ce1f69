// Package pipeline runs the aggregation, gap-fill, forecast, savings and
// payback stages for one request at a time against the reading store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/aggregate"
	"github.com/dfvmonitor/energyforecast/internal/cost"
	"github.com/dfvmonitor/energyforecast/internal/database"
	"github.com/dfvmonitor/energyforecast/internal/forecast"
	"github.com/dfvmonitor/energyforecast/internal/gapfill"
	"github.com/dfvmonitor/energyforecast/internal/payback"
	"github.com/dfvmonitor/energyforecast/internal/period"
	"github.com/dfvmonitor/energyforecast/internal/savings"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/dfvmonitor/energyforecast/pkg/config"
	"go.uber.org/zap"
)

// ErrNoData means a selection produced no usable readings.
var ErrNoData = forecast.ErrNoData

// ErrInvalidRequest wraps caller mistakes such as an inverted date range.
var ErrInvalidRequest = errors.New("invalid request")

// Spanner is implemented by executors that can summarise a reading table.
type Spanner interface {
	Span(ctx context.Context, ctrl types.Controller) (database.TableSpan, error)
}

// Service serialises pipeline runs so the cache is only touched by the
// active request.
type Service struct {
	mu     sync.Mutex
	db     database.QueryExecutor
	engine *forecast.Engine
	opts   Options
	cache  *Cache
	logger *zap.SugaredLogger
}

// NewService creates a pipeline over db.
func NewService(db database.QueryExecutor, opts Options, logger *zap.SugaredLogger) *Service {
	if opts.PowerScale <= 0 {
		opts.PowerScale = 1
	}
	return &Service{
		db:     db,
		engine: forecast.NewEngine(logger, opts.FitTimeout),
		opts:   opts,
		cache:  NewCache(),
		logger: logger,
	}
}

// Options returns a copy of the current options.
func (s *Service) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// ForecastReport is the forecast of one controller over one period.
type ForecastReport struct {
	Meta
	Controller     string                `json:"controller"`
	Period         string                `json:"period"`
	Label          string                `json:"label"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
	History        string                `json:"history"`
	HistoryDays    int                   `json:"history_days"`
	FilledDays     int                   `json:"filled_days"`
	Points         []types.ForecastPoint `json:"points"`
	Model          *forecast.Model       `json:"model"`
	TotalEnergyKWh float64               `json:"total_energy_kwh"`
	Cost           cost.Projection       `json:"cost"`
}

// ForecastEnergy forecasts daily energy of ctrl for period p of the
// configured forecast year and prices it.
func (s *Service) ForecastEnergy(ctx context.Context, ctrl types.Controller, p period.Period) (*ForecastReport, error) {
	if !ctrl.Valid() {
		return nil, fmt.Errorf("%w: unknown controller %v", ErrInvalidRequest, ctrl)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := newRun(s.logger, "forecast")
	defer run.done()

	sel := s.historySelection(p)
	touchesGap := s.opts.Gap.TouchesGap(p)
	readings, err := s.readings(ctx, run, ctrl, sel)
	if err != nil && !(touchesGap && errors.Is(err, ErrNoData)) {
		return nil, err
	}

	days := aggregate.Daily(readings)
	if touchesGap {
		avg, err := s.yearlyAverage(ctx, run, ctrl)
		if err != nil {
			return nil, err
		}
		if avg == nil {
			run.warn(fmt.Sprintf("no reference data for %s; gap days %s were dropped instead of filled",
				ctrl, s.opts.Gap.Start().Format("2006-01")))
		}
		days = s.opts.Gap.Fill(days, avg)
	} else {
		days = gapfill.DropIncomplete(days)
	}

	filled := 0
	for _, d := range days {
		if d.Filled {
			filled++
		}
	}

	start, end := p.Window(s.opts.ForecastYear)
	result, err := s.engine.Run(ctx, days, start, end)
	if err != nil {
		return nil, err
	}
	run.Warnings = append(run.Warnings, result.Warnings...)

	projection := cost.ProjectForecast(result.Points, s.forecastTariffs(run))
	if err := projection.UnavailableError(); err != nil {
		run.unavailable(err)
	}

	return &ForecastReport{
		Meta:           run.meta(),
		Controller:     ctrl.String(),
		Period:         p.String(),
		Label:          p.Label(s.opts.ForecastYear),
		Start:          start,
		End:            end,
		History:        sel.String(),
		HistoryDays:    result.Days,
		FilledDays:     filled,
		Points:         result.Points,
		Model:          result.Model,
		TotalEnergyKWh: projection.TotalEnergyKWh,
		Cost:           projection,
	}, nil
}

// historySelection picks the readings a period is fitted on: the same
// months of every year, except that the gap month on its own only uses the
// gap year and the full year uses the reference window.
func (s *Service) historySelection(p period.Period) database.Selection {
	switch p.Kind {
	case period.Yearly:
		return database.DateRange(s.opts.ReferenceStart, s.opts.ReferenceEnd)
	case period.Monthly:
		if time.Month(p.Index) == s.opts.Gap.Month {
			return database.DateRange(s.opts.Gap.Start(), s.opts.Gap.End())
		}
	}
	from, to := p.Months()
	return database.MonthRange(from, to)
}

func (s *Service) yearlyAverage(ctx context.Context, run *Run, ctrl types.Controller) (*types.YearlyAverage, error) {
	readings, err := s.readings(ctx, run, ctrl, database.DateRange(s.opts.ReferenceStart, s.opts.ReferenceEnd))
	if err != nil && !errors.Is(err, ErrNoData) {
		return nil, err
	}
	avg, ok := gapfill.ComputeYearlyAverage(aggregate.Daily(readings))
	if !ok {
		return nil, nil
	}
	return avg, nil
}

// forecastTariffs prices the forecast year at the reference-year tariff when
// no tariff is published for the forecast year itself.
func (s *Service) forecastTariffs(run *Run) cost.TariffTable {
	year := strconv.Itoa(s.opts.ForecastYear)
	if _, ok := s.opts.Tariffs[year]; ok {
		return s.opts.Tariffs
	}
	ref, ok := s.opts.Tariffs[strconv.Itoa(s.opts.ReferenceYear)]
	if !ok {
		return s.opts.Tariffs
	}

	table := make(cost.TariffTable, len(s.opts.Tariffs)+1)
	for k, v := range s.opts.Tariffs {
		table[k] = v
	}
	table[year] = ref
	run.warn(fmt.Sprintf("no tariff for %s; priced at the %d tariff", year, s.opts.ReferenceYear))
	return table
}

// readings loads and caches a controller's full readings for sel.
func (s *Service) readings(ctx context.Context, run *Run, ctrl types.Controller, sel database.Selection) ([]types.RawReading, error) {
	key := Key{Controller: ctrl.String(), Selection: sel.String(), Metric: metricReadings}
	if v, ok := s.cache.Get(key); ok {
		run.logger.Debugw("cache hit", "controller", ctrl, "selection", key.Selection)
		return v.([]types.RawReading), nil
	}

	query, args, err := database.ReadingsQuery(ctrl, sel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	rows, err := s.db.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s readings: %w", ctrl, err)
	}

	readings, dropped := aggregate.ParseRows(rows)
	if dropped > 0 {
		run.logger.Debugw("dropped unusable rows", "controller", ctrl, "dropped", dropped)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w for %s (%s)", ErrNoData, ctrl, sel)
	}
	readings = aggregate.ScalePower(readings, s.opts.PowerScale)

	s.cache.Put(key, readings)
	return readings, nil
}

// power loads and caches a controller's power readings between start and end.
func (s *Service) power(ctx context.Context, run *Run, ctrl types.Controller, start, end time.Time) ([]types.RawReading, error) {
	key := Key{Controller: ctrl.String(), Selection: database.DateRange(start, end).String(), Metric: metricPower}
	if v, ok := s.cache.Get(key); ok {
		return v.([]types.RawReading), nil
	}

	query, args, err := database.PowerQuery(ctrl, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	rows, err := s.db.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s power: %w", ctrl, err)
	}

	readings, dropped := aggregate.ParsePowerRows(rows)
	if dropped > 0 {
		run.logger.Debugw("dropped unusable rows", "controller", ctrl, "dropped", dropped)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w for %s between %s and %s", ErrNoData, ctrl, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	readings = aggregate.ScalePower(readings, s.opts.PowerScale)

	s.cache.Put(key, readings)
	return readings, nil
}

// ControllerUsage summarises one controller's consumption over a comparison
// window using each of the daily energy conventions.
type ControllerUsage struct {
	Controller            string  `json:"controller"`
	Days                  int     `json:"days"`
	MeanPower             float64 `json:"mean_power"`
	MeanDailyKWh          float64 `json:"mean_daily_kwh"`
	MeanDailyIntervalKWh  float64 `json:"mean_daily_interval_kwh"`
	MeanDailyOperatingKWh float64 `json:"mean_daily_operating_kwh"`
	TotalKWh              float64 `json:"total_kwh"`
}

// SavingsReport compares both controllers and the heater over a date range.
type SavingsReport struct {
	Meta
	Start       time.Time                  `json:"start"`
	End         time.Time                  `json:"end"`
	HeaterWatts float64                    `json:"heater_watts"`
	Price       *float64                   `json:"price,omitempty"`
	Intensity   float64                    `json:"carbon_intensity"`
	Usage       []ControllerUsage          `json:"usage"`
	Records     []savings.ComparisonRecord `json:"records"`
	Summaries   []savings.Summary          `json:"summaries"`
}

// CompareSavings joins both controllers' daily energy over [start, end] and
// compares them with the heater baseline.
func (s *Service) CompareSavings(ctx context.Context, start, end time.Time) (*SavingsReport, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := newRun(s.logger, "savings")
	defer run.done()

	report, err := s.compare(ctx, run, types.DateOf(start), types.DateOf(end))
	if err != nil {
		return nil, err
	}
	report.Meta = run.meta()
	return report, nil
}

func (s *Service) compare(ctx context.Context, run *Run, start, end time.Time) (*SavingsReport, error) {
	series := make(map[types.Controller][]aggregate.DailyValue, 2)
	report := &SavingsReport{
		Start:       start,
		End:         end,
		HeaterWatts: s.opts.HeaterWatts,
		Intensity:   float64(s.opts.Intensity),
	}

	for _, ctrl := range types.Controllers() {
		readings, err := s.power(ctx, run, ctrl, start, end)
		if err != nil {
			return nil, err
		}
		daily := aggregate.DailyEnergy(aggregate.Daily(readings))
		series[ctrl] = daily
		report.Usage = append(report.Usage, usage(ctrl, readings, daily))
	}

	baseline := savings.Baseline{HeaterWatts: s.opts.HeaterWatts, Intensity: s.opts.Intensity}
	for _, err := range baseline.Unavailable() {
		run.unavailable(err)
	}
	if price, ok := s.opts.Tariffs.Price(s.opts.ReferenceYear); ok {
		baseline.Price = &price
		report.Price = &price
	} else {
		run.unavailable(fmt.Errorf("%w: no tariff for %d", cost.ErrTariffUnavailable, s.opts.ReferenceYear))
	}

	key := Key{Selection: database.DateRange(start, end).String(), Metric: metricComparison, HeaterWatts: s.opts.HeaterWatts}
	if v, ok := s.cache.Get(key); ok {
		report.Records = v.([]savings.ComparisonRecord)
	} else {
		records, err := savings.Join(series[types.ControllerDynamic], series[types.ControllerThermostat], baseline)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, records)
		report.Records = records
	}

	joined := len(report.Records)
	if missing := len(series[types.ControllerDynamic]) + len(series[types.ControllerThermostat]) - 2*joined; missing > 0 {
		run.warn(fmt.Sprintf("%d controller days without a matching day on the other controller were excluded", missing))
	}

	summaries, err := savings.SummarizeAll(report.Records, baseline.Pairs()...)
	if err != nil {
		return nil, err
	}
	report.Summaries = summaries
	return report, nil
}

func usage(ctrl types.Controller, readings []types.RawReading, daily []aggregate.DailyValue) ControllerUsage {
	u := ControllerUsage{
		Controller:           ctrl.String(),
		Days:                 len(daily),
		MeanPower:            aggregate.MeanOf(aggregate.DailyMeanPower(readings)),
		MeanDailyKWh:         aggregate.MeanOf(daily),
		MeanDailyIntervalKWh: aggregate.MeanOf(aggregate.DailyIntervalEnergy(readings)),
	}
	var operating float64
	ops := aggregate.DailyOperatingHoursEnergy(readings)
	for _, d := range ops {
		operating += d.EnergyKWh
	}
	if len(ops) > 0 {
		u.MeanDailyOperatingKWh = operating / float64(len(ops))
	}
	for _, d := range daily {
		u.TotalKWh += d.Value
	}
	return u
}

// CO2Report is the historical emission series of one controller and its
// comparison against the heater.
type CO2Report struct {
	Meta
	Controller string                   `json:"controller"`
	Start      time.Time                `json:"start"`
	End        time.Time                `json:"end"`
	Days       []aggregate.OperatingDay `json:"days"`
	Emissions  []cost.DailyCO2          `json:"emissions,omitempty"`
	Heater     []savings.DailyPair      `json:"heater_comparison,omitempty"`
	Summary    *savings.MetricSummary   `json:"summary,omitempty"`
}

// CO2History derives daily energy from operating hours and converts it to
// emissions, comparing each day with the heater running all day.
func (s *Service) CO2History(ctx context.Context, ctrl types.Controller, start, end time.Time) (*CO2Report, error) {
	if !ctrl.Valid() {
		return nil, fmt.Errorf("%w: unknown controller %v", ErrInvalidRequest, ctrl)
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := newRun(s.logger, "co2")
	defer run.done()

	start, end = types.DateOf(start), types.DateOf(end)
	readings, err := s.power(ctx, run, ctrl, start, end)
	if err != nil {
		return nil, err
	}

	days := aggregate.DailyOperatingHoursEnergy(readings)
	report := &CO2Report{Controller: ctrl.String(), Start: start, End: end, Days: days}

	if err := s.opts.Intensity.Validate(); err != nil {
		run.unavailable(err)
		report.Meta = run.meta()
		return report, nil
	}

	dates := make([]time.Time, len(days))
	energy := make([]float64, len(days))
	series := make([]aggregate.DailyValue, len(days))
	for i, d := range days {
		dates[i], energy[i] = d.Date, d.EnergyKWh
		series[i] = aggregate.DailyValue{Date: d.Date, Value: d.EnergyKWh}
	}
	report.Emissions = cost.DailyEmissions(dates, energy, s.opts.Intensity)

	pairs, summary, err := savings.HeaterCO2Comparison(series, s.opts.HeaterWatts, s.opts.Intensity)
	if err != nil {
		run.unavailable(err)
	} else {
		report.Heater = pairs
		report.Summary = &summary
	}

	report.Meta = run.meta()
	return report, nil
}

// PaybackQuery selects the savings window and optionally overrides the
// configured investment and comparison.
type PaybackQuery struct {
	Start      time.Time
	End        time.Time
	Investment *float64
	Pair       *savings.Pair
}

// PaybackReport is the payback of the investment at the observed daily cost
// savings, with its price sensitivity.
type PaybackReport struct {
	Meta
	Pair        string         `json:"pair"`
	Investment  float64        `json:"investment"`
	Days        int            `json:"days"`
	Result      payback.Result `json:"result"`
	Sensitivity []payback.Case `json:"sensitivity"`
}

// Payback computes how long the investment takes to recoup from the average
// daily cost savings of the chosen comparison.
func (s *Service) Payback(ctx context.Context, q PaybackQuery) (*PaybackReport, error) {
	if err := checkRange(q.Start, q.End); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := newRun(s.logger, "payback")
	defer run.done()

	investment := s.opts.Investment
	if q.Investment != nil {
		investment = *q.Investment
	}
	pair := s.opts.Pair
	if q.Pair != nil {
		pair = *q.Pair
	}

	comparison, err := s.compare(ctx, run, types.DateOf(q.Start), types.DateOf(q.End))
	if err != nil {
		return nil, err
	}

	var summary *savings.Summary
	for i := range comparison.Summaries {
		if comparison.Summaries[i].Pair == pair.String() {
			summary = &comparison.Summaries[i]
		}
	}
	if summary == nil {
		if (pair.Baseline == savings.Heater || pair.Competitor == savings.Heater) && s.opts.HeaterWatts <= 0 {
			return nil, fmt.Errorf("payback for %s: %w", pair, savings.ErrHeaterPowerMissing)
		}
		summary = new(savings.Summary)
		*summary, err = savings.Summarize(comparison.Records, pair)
		if err != nil {
			return nil, err
		}
	}
	if summary.Cost == nil {
		return nil, fmt.Errorf("payback needs cost savings: %w", cost.ErrTariffUnavailable)
	}

	daily := summary.Cost.AverageDailySavings
	result, err := payback.Compute(investment, daily)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if result.NoPayback {
		run.warn(fmt.Sprintf("%s does not save money on average; the investment never pays back", pair))
	}

	cases, err := payback.Sensitivity(investment, daily, s.opts.SensitivityChanges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return &PaybackReport{
		Meta:        run.meta(),
		Pair:        pair.String(),
		Investment:  investment,
		Days:        summary.Days,
		Result:      result,
		Sensitivity: cases,
	}, nil
}

// ControllerStatus describes the readings held for one controller.
type ControllerStatus struct {
	Controller string     `json:"controller"`
	FirstDate  *time.Time `json:"first_date,omitempty"`
	LastDate   *time.Time `json:"last_date,omitempty"`
	Readings   *int64     `json:"readings,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Status reports the data held for each controller and the cache state.
type Status struct {
	Controllers  []ControllerStatus `json:"controllers"`
	Cache        CacheStats         `json:"cache"`
	HeaterWatts  float64            `json:"heater_watts"`
	ForecastYear int                `json:"forecast_year"`
}

// Status queries the reading tables. A failing controller is reported in
// its entry rather than failing the whole call.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Cache: s.cache.Stats(), HeaterWatts: s.opts.HeaterWatts, ForecastYear: s.opts.ForecastYear}
	for _, ctrl := range types.Controllers() {
		cs := ControllerStatus{Controller: ctrl.String()}
		if spanner, ok := s.db.(Spanner); ok {
			span, err := spanner.Span(ctx, ctrl)
			if err != nil {
				cs.Error = err.Error()
			} else {
				cs.FirstDate, cs.LastDate, cs.Readings = span.FirstDate, span.LastDate, &span.Readings
			}
		} else if last, err := s.lastDate(ctx, ctrl); err != nil {
			cs.Error = err.Error()
		} else {
			cs.LastDate = last
		}
		st.Controllers = append(st.Controllers, cs)
	}
	return st
}

func (s *Service) lastDate(ctx context.Context, ctrl types.Controller) (*time.Time, error) {
	query, err := database.LastDateQuery(ctrl)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == nil {
		return nil, nil
	}
	switch v := rows[0][0].(type) {
	case time.Time:
		d := types.DateOf(v)
		return &d, nil
	case string:
		return parseDate(v)
	case []byte:
		return parseDate(string(v))
	}
	return nil, fmt.Errorf("unexpected last date value %T", rows[0][0])
}

func parseDate(s string) (*time.Time, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetHeaterWatts changes the heater baseline and drops every cached result
// that depended on the old value.
func (s *Service) SetHeaterWatts(watts float64) (int, error) {
	if watts < config.MinHeaterWatts || watts > config.MaxHeaterWatts {
		return 0, fmt.Errorf("%w: heater power %.0f W outside %d..%d W", ErrInvalidRequest, watts, config.MinHeaterWatts, config.MaxHeaterWatts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.HeaterWatts = watts
	n := s.cache.Invalidate(func(k Key) bool { return k.HeaterWatts != 0 })
	s.logger.Infow("heater baseline changed", "watts", watts, "invalidated", n)
	return n, nil
}

// InvalidateController drops cached results for one controller.
func (s *Service) InvalidateController(ctrl types.Controller) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ctrl.String()
	return s.cache.Invalidate(func(k Key) bool { return k.Controller == name || k.Metric == metricComparison })
}

// InvalidateAll empties the cache.
func (s *Service) InvalidateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Clear()
}

func checkRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if types.DateOf(end).Before(types.DateOf(start)) {
		return fmt.Errorf("%w: end %s precedes start %s", ErrInvalidRequest, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return nil
}
