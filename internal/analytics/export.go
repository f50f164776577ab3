package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// exportEnvelope is the JSON export document: a snapshot header, the
// aggregate, and the full raw log.
type exportEnvelope struct {
	ExportedAt time.Time     `json:"exportedAt"`
	Summary    exportSummary `json:"summary"`
	Aggregated *FunnelReport `json:"aggregated"`
	RawEvents  []Event       `json:"rawEvents"`
}

type exportSummary struct {
	TotalEvents    int     `json:"totalEvents"`
	TotalSessions  int     `json:"totalSessions"`
	Completed      int     `json:"completed"`
	ConversionRate float64 `json:"conversionRate"`
}

// ExportJSON renders the full analytics state as an indented JSON document
func (e *Engine) ExportJSON(ctx context.Context) ([]byte, error) {
	events, err := e.AllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event log: %w", err)
	}
	report := e.aggregate(events)

	doc := exportEnvelope{
		ExportedAt: e.clock.Now().UTC(),
		Summary: exportSummary{
			TotalEvents:    len(events),
			TotalSessions:  report.TotalSessions,
			Completed:      report.Completed,
			ConversionRate: report.ConversionRate,
		},
		Aggregated: report,
		RawEvents:  events,
	}

	return json.MarshalIndent(doc, "", "  ")
}

// ExportCSV renders the per-question aggregate as CSV with trailing
// summary rows.
func (e *Engine) ExportCSV(ctx context.Context) ([]byte, error) {
	report, err := e.ComputeFunnelStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate event log: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"Question", "Views", "Completions", "Drop-offs", "Drop-off Rate (%)", "Avg Time (seconds)"})
	for _, q := range report.Questions {
		w.Write([]string{
			q.Name,
			strconv.Itoa(q.Views),
			strconv.Itoa(q.Completions),
			strconv.Itoa(q.DropOffs),
			fmt.Sprintf("%.2f", q.Rate),
			strconv.Itoa(q.AvgTimeSeconds),
		})
	}

	w.Write([]string{})
	w.Write([]string{"Summary"})
	w.Write([]string{"Total Sessions", strconv.Itoa(report.TotalSessions)})
	w.Write([]string{"Completed", strconv.Itoa(report.Completed)})
	w.Write([]string{"Conversion Rate", fmt.Sprintf("%.2f%%", report.ConversionRate)})

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}

	return buf.Bytes(), nil
}

// Summary renders a human-readable text digest of the funnel
func (e *Engine) Summary(ctx context.Context) (string, error) {
	events, err := e.AllEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load event log: %w", err)
	}
	report := e.aggregate(events)

	var b strings.Builder
	rule := strings.Repeat("-", 40)

	fmt.Fprintf(&b, "ANALYTICS SUMMARY\nGenerated: %s\n\n", e.clock.Now().UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "%s\nOVERALL METRICS\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Total Sessions: %d\n", report.TotalSessions)
	fmt.Fprintf(&b, "Completed Submissions: %d\n", report.Completed)
	fmt.Fprintf(&b, "Conversion Rate: %.2f%%\n", report.ConversionRate)
	fmt.Fprintf(&b, "Drop-off Rate: %.2f%%\n", 100-report.ConversionRate)
	fmt.Fprintf(&b, "Total Events Tracked: %d\n\n", len(events))

	fmt.Fprintf(&b, "%s\nQUESTION BREAKDOWN\n%s\n", rule, rule)
	for _, q := range report.Questions {
		fmt.Fprintf(&b, "Q%d: %s\n", q.Number, q.Name)
		fmt.Fprintf(&b, "  Views: %d | Completions: %d | Drop-offs: %d (%.1f%%) | Avg Time: %ds\n",
			q.Views, q.Completions, q.DropOffs, q.Rate, q.AvgTimeSeconds)
	}

	var worst []QuestionStat
	for _, q := range report.Questions {
		if q.DropOffs > 0 {
			worst = append(worst, q)
		}
	}
	sort.SliceStable(worst, func(i, j int) bool { return worst[i].Rate > worst[j].Rate })
	if len(worst) > 5 {
		worst = worst[:5]
	}

	fmt.Fprintf(&b, "\n%s\nTOP DROP-OFF QUESTIONS\n%s\n", rule, rule)
	for i, q := range worst {
		fmt.Fprintf(&b, "%d. Q%d: %s - %d drop-offs (%.1f%%)\n", i+1, q.Number, q.Name, q.DropOffs, q.Rate)
	}

	return strings.TrimSpace(b.String()), nil
}
