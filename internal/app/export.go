package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"whalewatch/internal/storage"
)

// Export renders alert history as CSV, JSON, Markdown, and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.JSONPath == "" && opts.MDPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv, --json, --md, or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Monitor.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	downsampled := downsampleAlerts(alerts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(alerts)).Int("exported", len(downsampled)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.JSONPath != "" {
		if err := writeAlertsJSON(opts.JSONPath, downsampled, from, to); err != nil {
			return err
		}
	}
	if opts.MDPath != "" {
		if err := writeAlertsMarkdown(opts.MDPath, downsampled, from, to); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAlerts(alerts []storage.AlertRecord, max int) []storage.AlertRecord {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}

	result := make([]storage.AlertRecord, 0, max)
	step := float64(len(alerts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(alerts) {
			idx = len(alerts) - 1
		}
		result = append(result, alerts[idx])
	}
	return result
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"type", "value_usd", "amount", "hash", "block", "timestamp", "from", "to"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range alerts {
		block := ""
		if rec.Block != nil {
			block = strconv.FormatInt(*rec.Block, 10)
		}
		record := []string{
			rec.Type,
			rec.ValueUSD.String(),
			rec.Amount.String(),
			rec.Hash,
			block,
			rec.AlertTS.UTC().Format(time.RFC3339),
			rec.FromAddr,
			rec.ToAddr,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

type exportEnvelope struct {
	GeneratedAt time.Time             `json:"generated_at"`
	From        time.Time             `json:"from"`
	To          time.Time             `json:"to"`
	Count       int                   `json:"count"`
	TotalUSD    decimal.Decimal       `json:"total_usd"`
	Alerts      []storage.AlertRecord `json:"alerts"`
}

func writeAlertsJSON(path string, alerts []storage.AlertRecord, from, to time.Time) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	total := decimal.Zero
	for _, rec := range alerts {
		total = total.Add(rec.ValueUSD)
	}

	envelope := exportEnvelope{
		GeneratedAt: time.Now().UTC(),
		From:        from,
		To:          to,
		Count:       len(alerts),
		TotalUSD:    total,
		Alerts:      alerts,
	}

	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeAlertsMarkdown(path string, alerts []storage.AlertRecord, from, to time.Time) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	total := decimal.Zero
	byType := make(map[string]int)
	for _, rec := range alerts {
		total = total.Add(rec.ValueUSD)
		byType[rec.Type]++
	}

	builder := strings.Builder{}
	builder.WriteString("# Whale Alert Report\n\n")
	builder.WriteString(fmt.Sprintf("Window: %s to %s UTC\n\n", from.Format(time.RFC3339), to.Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Alerts: %d, total value $%s\n\n", len(alerts), total.StringFixed(0)))

	builder.WriteString("| Type | Count |\n|---|---|\n")
	for _, rec := range alerts {
		if count, ok := byType[rec.Type]; ok {
			builder.WriteString(fmt.Sprintf("| %s | %d |\n", rec.Type, count))
			delete(byType, rec.Type)
		}
	}

	builder.WriteString("\n| Time (UTC) | Type | Value USD | Hash |\n|---|---|---|---|\n")
	for _, rec := range alerts {
		builder.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			rec.AlertTS.UTC().Format(time.RFC3339), rec.Type, rec.ValueUSD.StringFixed(0), rec.Hash))
	}

	return os.WriteFile(path, []byte(builder.String()), 0o644)
}

func writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(alerts) < 2 {
		return errors.New("need at least two alerts to render a chart")
	}

	x := make([]time.Time, len(alerts))
	values := make([]float64, len(alerts))
	for i, rec := range alerts {
		x[i] = rec.AlertTS
		values[i] = rec.ValueUSD.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Value (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Whale transfers",
				XValues: x,
				YValues: values,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
