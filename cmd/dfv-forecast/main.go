package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/database"
	"github.com/dfvmonitor/energyforecast/internal/log"
	"github.com/dfvmonitor/energyforecast/internal/period"
	"github.com/dfvmonitor/energyforecast/internal/pipeline"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"github.com/dfvmonitor/energyforecast/pkg/config"
)

type Mode string

const (
	ModeForecast Mode = "forecast"
	ModeSavings  Mode = "savings"
	ModePayback  Mode = "payback"
	ModeCO2      Mode = "co2"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	dsn := flag.String("dsn", "", "Database connection string (overrides storage.timescaledb.connection-string)")
	modeStr := flag.String("mode", "forecast", "What to compute: forecast, savings, payback or co2")
	controller := flag.String("controller", "dynamic", "Controller: dynamic or thermostat")
	periodKind := flag.String("period", "monthly", "Forecast period: monthly, quarterly, semester or yearly")
	index := flag.String("index", "1", "Period index: month 1-12, quarter 1-4 or semester 1-2")
	startStr := flag.String("start", "", "First day (YYYY-MM-DD) for savings, payback and co2")
	endStr := flag.String("end", "", "Last day (YYYY-MM-DD) for savings, payback and co2")
	csvOut := flag.String("csv", "", "Write the daily rows to this CSV file")
	asJSON := flag.Bool("json", false, "Print the full report as JSON")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := config.Load(config.NewYAMLProvider(*cfgFile))
	if err != nil && *dsn == "" {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err != nil {
		// A DSN on the command line is enough to run with the built-in defaults
		log.Warnf("using defaults: %v", err)
		cfgData = &config.ConfigData{}
		cfgData.ApplyDefaults()
	}
	if *dsn != "" {
		cfgData.Storage.TimescaleDB = &config.TimescaleDBData{ConnectionString: *dsn}
	}

	opts, err := pipeline.OptionsFromConfig(cfgData)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.OpenSQL(ctx, cfgData.Storage.TimescaleDB.ConnectionString)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	svc := pipeline.NewService(db, opts, log.GetSugaredLogger())

	var report any
	var rows [][]string

	switch Mode(*modeStr) {
	case ModeForecast:
		ctrl, err := types.ParseController(*controller)
		if err != nil {
			log.Fatalf("%v", err)
		}
		p, err := period.Parse(*periodKind, *index)
		if err != nil {
			log.Fatalf("%v", err)
		}
		r, err := svc.ForecastEnergy(ctx, ctrl, p)
		if err != nil {
			log.Fatalf("Forecast failed: %v", err)
		}
		report, rows = r, forecastRows(r)
		printForecast(r)

	case ModeSavings:
		start, end := dateRange(*startStr, *endStr)
		r, err := svc.CompareSavings(ctx, start, end)
		if err != nil {
			log.Fatalf("Savings comparison failed: %v", err)
		}
		report, rows = r, savingsRows(r)
		printSavings(r)

	case ModePayback:
		start, end := dateRange(*startStr, *endStr)
		r, err := svc.Payback(ctx, pipeline.PaybackQuery{Start: start, End: end})
		if err != nil {
			log.Fatalf("Payback failed: %v", err)
		}
		report = r
		printPayback(r)

	case ModeCO2:
		ctrl, err := types.ParseController(*controller)
		if err != nil {
			log.Fatalf("%v", err)
		}
		start, end := dateRange(*startStr, *endStr)
		r, err := svc.CO2History(ctx, ctrl, start, end)
		if err != nil {
			log.Fatalf("CO2 history failed: %v", err)
		}
		report, rows = r, co2Rows(r)
		printCO2(r)

	default:
		log.Fatalf("Invalid mode: %s. Must be forecast, savings, payback or co2", *modeStr)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
	}

	if *csvOut != "" {
		if rows == nil {
			log.Fatalf("-csv is not supported for mode %s", *modeStr)
		}
		if err := writeCSV(*csvOut, rows); err != nil {
			log.Fatalf("CSV export failed: %v", err)
		}
		log.Infof("wrote %d rows to %s", len(rows)-1, *csvOut)
	}
}

func dateRange(start, end string) (time.Time, time.Time) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		log.Fatalf("-start must be a YYYY-MM-DD date")
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		log.Fatalf("-end must be a YYYY-MM-DD date")
	}
	return s, e
}

func printWarnings(m pipeline.Meta) {
	for _, w := range m.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, u := range m.Unavailable {
		fmt.Printf("unavailable: %s\n", u)
	}
}

func printForecast(r *pipeline.ForecastReport) {
	fmt.Printf("%s forecast for %s (%s), history %s: %d days, %d filled\n",
		r.Controller, r.Label, r.Period, r.History, r.HistoryDays, r.FilledDays)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\tforecast kWh\tlower\tupper\tcost\t")
	for i, p := range r.Points {
		price := "-"
		if i < len(r.Cost.Days) && r.Cost.Days[i].Available {
			price = strconv.FormatFloat(r.Cost.Days[i].Cost, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%s\t\n", p.Date.Format("2006-01-02"), p.Forecast, p.LowerBound, p.UpperBound, price)
	}
	tw.Flush()

	fmt.Printf("total energy: %.2f kWh\n", r.TotalEnergyKWh)
	if r.Cost.Complete() {
		fmt.Printf("total cost: %.2f (%.2f per day)\n", r.Cost.TotalCost, r.Cost.AverageDailyCost)
	}
	printWarnings(r.Meta)
}

func printSavings(r *pipeline.SavingsReport) {
	fmt.Printf("comparison %s..%s over %d days, heater %g W\n",
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), len(r.Records), r.HeaterWatts)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "pair\tenergy saved kWh\tper day\tco2 saved g\tcost saved\tpercent")
	for _, s := range r.Summaries {
		saved := "-"
		if s.Cost != nil {
			saved = strconv.FormatFloat(s.Cost.TotalSavings, 'f', 2, 64)
		}
		co2 := "-"
		if s.CO2 != nil {
			co2 = strconv.FormatFloat(s.CO2.TotalSavings, 'f', 0, 64)
		}
		percent := "-"
		if s.Energy.Percent != nil {
			percent = strconv.FormatFloat(*s.Energy.Percent, 'f', 1, 64) + "%"
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%s\t%s\t%s\n", s.Pair, s.Energy.TotalSavings, s.Energy.AverageDailySavings, co2, saved, percent)
	}
	tw.Flush()
	printWarnings(r.Meta)
}

func printPayback(r *pipeline.PaybackReport) {
	fmt.Printf("%s over %d days: investment %.2f, daily savings %.4f\n", r.Pair, r.Days, r.Investment, r.Result.DailySavings)
	if r.Result.NoPayback {
		fmt.Println("the investment never pays back")
	} else {
		fmt.Printf("payback: %.0f days (%.2f years)\n", r.Result.Days, r.Result.Years)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "price change\tdaily savings\tpayback days\tyears")
	for _, c := range r.Sensitivity {
		days := strconv.FormatFloat(c.Days, 'f', 0, 64)
		if c.Capped {
			days = ">" + days
		}
		fmt.Fprintf(tw, "%+.0f%%\t%.4f\t%s\t%.2f\n", c.PriceChangePercent, c.DailySavings, days, c.Years)
	}
	tw.Flush()
	printWarnings(r.Meta)
}

func printCO2(r *pipeline.CO2Report) {
	fmt.Printf("%s emissions %s..%s over %d days\n", r.Controller, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), len(r.Days))
	if r.Summary != nil {
		fmt.Printf("heater baseline: %.0f g, controller: %.0f g, saved %.0f g\n",
			r.Summary.BaselineTotal, r.Summary.CompetitorTotal, r.Summary.TotalSavings)
	}
	printWarnings(r.Meta)
}

func forecastRows(r *pipeline.ForecastReport) [][]string {
	rows := [][]string{{"date", "forecast_kwh", "lower_kwh", "upper_kwh", "cost"}}
	for i, p := range r.Points {
		price := ""
		if i < len(r.Cost.Days) && r.Cost.Days[i].Available {
			price = formatFloat(r.Cost.Days[i].Cost)
		}
		rows = append(rows, []string{p.Date.Format("2006-01-02"), formatFloat(p.Forecast), formatFloat(p.LowerBound), formatFloat(p.UpperBound), price})
	}
	return rows
}

func savingsRows(r *pipeline.SavingsReport) [][]string {
	rows := [][]string{{"date", "dynamic_kwh", "thermostat_kwh", "heater_kwh", "dynamic_co2_g", "thermostat_co2_g", "heater_co2_g"}}
	for _, rec := range r.Records {
		row := []string{
			rec.Date.Format("2006-01-02"),
			formatFloat(rec.Energy.Dynamic), formatFloat(rec.Energy.Thermostat), formatFloat(rec.Energy.Heater),
			"", "", "",
		}
		if rec.CO2 != nil {
			row[4], row[5], row[6] = formatFloat(rec.CO2.Dynamic), formatFloat(rec.CO2.Thermostat), formatFloat(rec.CO2.Heater)
		}
		rows = append(rows, row)
	}
	return rows
}

func co2Rows(r *pipeline.CO2Report) [][]string {
	rows := [][]string{{"date", "operating_hours", "energy_kwh", "co2_g"}}
	for i, d := range r.Days {
		co2 := ""
		if i < len(r.Emissions) {
			co2 = formatFloat(r.Emissions[i].CO2Grams)
		}
		rows = append(rows, []string{d.Date.Format("2006-01-02"), formatFloat(d.OperatingHours), formatFloat(d.EnergyKWh), co2})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func writeCSV(filename string, rows [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}
