package analysis

import (
	"fmt"
	"strings"

	"urbanvision/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
)

// EmptyMessage is shown when no registered object was found.
const EmptyMessage = "No objects detected. Try another image or adjust the confidence level."

// Row is one line of the details table.
type Row struct {
	Object     string `json:"object"`
	Index      int    `json:"index"`
	Confidence string `json:"confidence"`
}

// Summary is the formatted view of an aggregated result.
type Summary struct {
	Text  string `json:"summary"`
	Rows  []Row  `json:"rows"`
	Empty bool   `json:"empty"`
}

// Format builds the one-line summary and the per-detection rows. Rows are
// grouped by class in counts order and numbered from 1 within each class.
func Format(result model.AggregatedResult) Summary {
	if result.Empty() {
		return Summary{Text: EmptyMessage, Rows: []Row{}, Empty: true}
	}

	parts := make([]string, 0, len(result.Counts))
	for _, c := range result.Counts {
		parts = append(parts, fmt.Sprintf("%d %s%s", c.Count, c.Name, pluralSuffix(c.Count)))
	}

	rows := make([]Row, 0, len(result.Details))
	for _, c := range result.Counts {
		n := 0
		for _, d := range result.Details {
			if d.Name != c.Name {
				continue
			}
			n++
			rows = append(rows, Row{
				Object:     d.Name,
				Index:      n,
				Confidence: FormatPercent(d.Confidence),
			})
		}
	}

	return Summary{
		Text: "Detected: " + strings.Join(parts, ", "),
		Rows: rows,
	}
}

// FormatPercent renders a confidence in [0,1] as a percentage with two decimals.
func FormatPercent(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}

// FormatLabel renders the on-image label for a detail.
func FormatLabel(d model.Detail) string {
	return fmt.Sprintf("%s (%.2f)", d.Name, d.Confidence)
}

// RenderTable renders rows as an aligned text table.
func RenderTable(rows []Row) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Object", "Index", "Confidence"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.Object, r.Index, r.Confidence})
	}
	return tw.Render()
}

// naive English plural; irregular nouns are not handled
func pluralSuffix(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
