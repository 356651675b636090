// Command validate scores a labelled CSV with the outage model and reports
// how far the predictions fall from the recorded risk. It checks that every
// row is a valid request, that mean absolute error stays under a bound, and
// that risk levels agree often enough.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -model models/outage_xgb.json \
//	  -data data/validation.csv \
//	  -max-mae 12 -min-level-accuracy 0.7
//
// Without -model the heuristic scorer is evaluated.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/model"
)

// labelColumn holds the recorded risk score of a row.
const labelColumn = "risk_score"

// requiredColumns must appear in the CSV header.
var requiredColumns = []string{
	"latitude", "longitude", "temperature", "humidity", "wind_speed", "rainfall",
	"lightning_strikes", "storm_alert", "load_factor", "voltage_stability",
	"historical_outages", "maintenance_status", "feeder_health", labelColumn,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// labelledRow is one CSV row turned into a request plus its recorded score.
type labelledRow struct {
	line  int
	req   domain.PredictionRequest
	label float64
}

// levelStats counts agreement for one recorded risk level.
type levelStats struct {
	total   int
	correct int
}

// evaluation is the outcome of scoring every row.
type evaluation struct {
	scored  int
	mae     float64
	rmse    float64
	method  string
	levels  map[domain.RiskLevel]*levelStats
	overall float64
}

func main() {
	modelPath := flag.String("model", "", "path to the XGBoost JSON model (heuristic when empty)")
	dataPath := flag.String("data", "", "path to the labelled CSV")
	maxMAE := flag.Float64("max-mae", 15, "fail when mean absolute error exceeds this")
	minAccuracy := flag.Float64("min-level-accuracy", 0.6, "fail when overall risk-level accuracy is below this")
	flag.Parse()

	if *dataPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*modelPath, *dataPath, *maxMAE, *minAccuracy, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(modelPath, dataPath string, maxMAE, minAccuracy float64, out io.Writer) int {
	// Fixed clock so temporal features are reproducible across runs.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.July, 14, 12, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	fmt.Fprintln(out, "=== Outage Model Validation ===")
	fmt.Fprintln(out)

	var primary model.Scorer
	if modelPath != "" {
		tm, err := model.LoadTreeEnsemble(modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load model: %v\n", err)
			return 1
		}
		primary = tm
	}
	ensemble := model.NewEnsemble(primary, "validate", slog.New(slog.NewTextHandler(io.Discard, nil)))

	f, err := os.Open(dataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open data: %v\n", err)
		return 1
	}
	defer f.Close()

	rows, inputs := loadRows(f)
	if len(rows) == 0 && inputs.passed() {
		inputs.errorf("no data rows in %s", dataPath)
	}

	eval, scoring := evaluate(context.Background(), ensemble, rows)
	accuracy := checkAccuracy(eval, maxMAE, minAccuracy)

	phases := []*phase{inputs, scoring, accuracy}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Method: %s\n", eval.method)
	fmt.Fprintf(out, "Rows: %d loaded, %d scored\n", len(rows), eval.scored)
	fmt.Fprintf(out, "MAE: %.2f  RMSE: %.2f  Level accuracy: %.1f%%\n", eval.mae, eval.rmse, eval.overall*100)
	for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		ls := eval.levels[level]
		if ls == nil || ls.total == 0 {
			continue
		}
		fmt.Fprintf(out, "  %-9s %4d/%-4d %.1f%%\n", level, ls.correct, ls.total, 100*float64(ls.correct)/float64(ls.total))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Input rows ──

// loadRows parses the CSV. Rows that fail to parse or validate are reported
// and left out.
func loadRows(r io.Reader) ([]labelledRow, *phase) {
	p := &phase{name: "Phase 1: Input Rows (CSV)"}

	all, err := csv.NewReader(r).ReadAll()
	if err != nil {
		p.errorf("read csv: %v", err)
		return nil, p
	}
	if len(all) == 0 {
		p.errorf("csv is empty")
		return nil, p
	}

	index := make(map[string]int, len(all[0]))
	for i, h := range all[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			p.errorf("header missing column %q", col)
		}
	}
	if !p.passed() {
		return nil, p
	}

	var rows []labelledRow
	for i, rec := range all[1:] {
		line := i + 2
		row, err := parseRow(index, rec)
		if err != nil {
			p.errorf("line %d: %v", line, err)
			continue
		}
		if err := row.req.Validate(); err != nil {
			p.errorf("line %d: %v", line, err)
			continue
		}
		row.line = line
		rows = append(rows, row)
	}
	return rows, p
}

func parseRow(index map[string]int, rec []string) (labelledRow, error) {
	f := fieldReader{index: index, rec: rec}
	req := domain.PredictionRequest{
		Weather: domain.WeatherInput{
			Latitude:         f.floatCol("latitude"),
			Longitude:        f.floatCol("longitude"),
			Temperature:      f.floatCol("temperature"),
			Humidity:         f.floatCol("humidity"),
			WindSpeed:        f.floatCol("wind_speed"),
			Rainfall:         f.floatCol("rainfall"),
			LightningStrikes: f.intCol("lightning_strikes"),
			StormAlert:       f.boolCol("storm_alert"),
			Timestamp:        f.timeCol("timestamp"),
		},
		Grid: domain.GridInput{
			SubstationID:      f.stringCol("substation_id", "VALIDATION"),
			LoadFactor:        f.floatCol("load_factor"),
			VoltageStability:  f.floatCol("voltage_stability"),
			HistoricalOutages: f.intCol("historical_outages"),
			MaintenanceStatus: f.boolCol("maintenance_status"),
			FeederHealth:      f.floatCol("feeder_health"),
		},
		PredictionHorizon: f.intCol("prediction_horizon"),
	}
	explain := false
	req.IncludeExplanation = &explain
	label := f.floatCol(labelColumn)
	if f.err != nil {
		return labelledRow{}, f.err
	}
	if label < 0 || label > 100 {
		return labelledRow{}, fmt.Errorf("%s %g outside 0..100", labelColumn, label)
	}
	return labelledRow{req: req, label: label}, nil
}

// fieldReader reads typed columns from one record and keeps the first error.
type fieldReader struct {
	index map[string]int
	rec   []string
	err   error
}

func (f *fieldReader) raw(col string) string {
	i, ok := f.index[col]
	if !ok || i >= len(f.rec) {
		return ""
	}
	return strings.TrimSpace(f.rec[i])
}

func (f *fieldReader) fail(col, raw string) {
	if f.err == nil {
		f.err = fmt.Errorf("column %s: cannot parse %q", col, raw)
	}
}

func (f *fieldReader) stringCol(col, fallback string) string {
	if v := f.raw(col); v != "" {
		return v
	}
	return fallback
}

func (f *fieldReader) floatCol(col string) float64 {
	raw := f.raw(col)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		f.fail(col, raw)
	}
	return v
}

func (f *fieldReader) intCol(col string) int {
	raw := f.raw(col)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		f.fail(col, raw)
	}
	return v
}

func (f *fieldReader) boolCol(col string) bool {
	raw := f.raw(col)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		f.fail(col, raw)
	}
	return v
}

func (f *fieldReader) timeCol(col string) time.Time {
	raw := f.raw(col)
	if raw == "" {
		return time.Time{}
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		f.fail(col, raw)
	}
	return v
}

// ── Phase 2: Scoring ──

func evaluate(ctx context.Context, e *model.Ensemble, rows []labelledRow) (evaluation, *phase) {
	p := &phase{name: "Phase 2: Scoring"}
	eval := evaluation{method: e.Method(), levels: map[domain.RiskLevel]*levelStats{}}

	absErr := make([]float64, 0, len(rows))
	sqErr := make([]float64, 0, len(rows))
	correct := 0
	for _, row := range rows {
		pred, err := e.Predict(ctx, row.req.WithDefaults())
		if err != nil {
			p.errorf("line %d: %v", row.line, err)
			continue
		}
		diff := pred.RiskScore - row.label
		absErr = append(absErr, math.Abs(diff))
		sqErr = append(sqErr, diff*diff)

		want := domain.ClassifyRisk(row.label)
		ls := eval.levels[want]
		if ls == nil {
			ls = &levelStats{}
			eval.levels[want] = ls
		}
		ls.total++
		if pred.RiskLevel == want {
			ls.correct++
			correct++
		}
	}

	eval.scored = len(absErr)
	if eval.scored > 0 {
		eval.mae = stat.Mean(absErr, nil)
		eval.rmse = math.Sqrt(stat.Mean(sqErr, nil))
		eval.overall = float64(correct) / float64(eval.scored)
	}
	return eval, p
}

// ── Phase 3: Accuracy bounds ──

func checkAccuracy(eval evaluation, maxMAE, minAccuracy float64) *phase {
	p := &phase{name: "Phase 3: Accuracy Bounds"}
	if eval.scored == 0 {
		p.errorf("no rows were scored")
		return p
	}
	if eval.mae > maxMAE {
		p.errorf("MAE %.2f exceeds %.2f", eval.mae, maxMAE)
	}
	if eval.overall < minAccuracy {
		p.errorf("risk-level accuracy %.3f below %.3f", eval.overall, minAccuracy)
	}
	return p
}
