package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog/log"
)

// Reporter writes backtest reports.
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, the day log and the JSON report.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generateDayLog(); err != nil {
		return err
	}

	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "backtest_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	res := r.results
	fmt.Fprintf(w, "BACKTEST RESULTS SUMMARY\n")
	fmt.Fprintf(w, "========================\n\n")

	fmt.Fprintf(w, "Species: %s\n", res.Species)
	fmt.Fprintf(w, "Period: %s to %s\n", res.From.Format("2006-01-02"), res.To.Format("2006-01-02"))
	fmt.Fprintf(w, "Days evaluated: %d\n\n", len(res.Days))

	fmt.Fprintf(w, "ERROR METRICS\n")
	fmt.Fprintf(w, "-------------\n")
	fmt.Fprintf(w, "MAE: %.2f\n", res.Scores.MAE)
	fmt.Fprintf(w, "RMSE: %.2f\n", res.Scores.RMSE)
	fmt.Fprintf(w, "R2: %.3f\n", res.Scores.R2)
	fmt.Fprintf(w, "Mean actual: %.1f\n", res.Scores.MeanActual)
	fmt.Fprintf(w, "Mean predicted: %.1f\n\n", res.Scores.MeanPredicted)

	fmt.Fprintf(w, "ACCURACY GRADES\n")
	fmt.Fprintf(w, "---------------\n")
	for _, g := range Grades {
		fmt.Fprintf(w, "%-10s %4d  %s\n", g, res.GradeCounts[g], g.Text())
	}
	fmt.Fprintf(w, "Hit rate (good or better): %.2f%%\n", res.HitRate*100)
}

// dayRow is one line of the CSV day log.
type dayRow struct {
	Date         string  `csv:"date"`
	Predicted    int     `csv:"predicted"`
	Actual       int     `csv:"actual"`
	ErrorAmount  int     `csv:"error_amount"`
	ErrorPercent float64 `csv:"error_percent"`
	Grade        Grade   `csv:"grade"`
	Direction    bool    `csv:"direction_correct"`
	Weather      int     `csv:"weather"`
	WaterTemp    float64 `csv:"water_temp"`
	Tide         int     `csv:"tide"`
	Visitors     float64 `csv:"visitors"`
	Entries      int     `csv:"entries"`
}

func (r *Reporter) generateDayLog() error {
	csvPath := filepath.Join(r.outputPath, "day_log.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create day log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	enc := csvutil.NewEncoder(writer)
	if err := enc.EncodeHeader(dayRow{}); err != nil {
		return err
	}
	for _, d := range r.results.Days {
		row := dayRow{
			Date:         d.Date.Format("2006-01-02"),
			Predicted:    d.Predicted,
			Actual:       d.Actual,
			ErrorAmount:  d.Accuracy.ErrorAmount,
			ErrorPercent: d.Accuracy.ErrorPercent,
			Grade:        d.Accuracy.Grade,
			Direction:    d.Accuracy.DirectionCorrect,
			Weather:      d.Conditions.Weather,
			WaterTemp:    d.Conditions.WaterTemp,
			Tide:         d.Conditions.Tide,
			Visitors:     d.Conditions.Visitors,
			Entries:      d.Entries,
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	log.Info().Str("file", csvPath).Msg("Day log generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "backtest_results.json")

	report := map[string]interface{}{
		"summary": map[string]interface{}{
			"species":      r.results.Species,
			"from":         r.results.From,
			"to":           r.results.To,
			"days":         len(r.results.Days),
			"scores":       r.results.Scores,
			"grade_counts": r.results.GradeCounts,
			"hit_rate":     r.results.HitRate,
			"start_time":   r.results.StartTime,
			"end_time":     r.results.EndTime,
		},
		"days":         r.results.Days,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	fmt.Println()
	r.writeSummary(os.Stdout)
	fmt.Println("=======================")
}
