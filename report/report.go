// Package report renders model evaluations as reStructuredText documents.
package report

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/jonboulle/clockwork"

	"github.com/Noofbiz/fluxbench/evaluate"
)

// clock stamps report dates. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// StyleRST renders a reStructuredText simple table.
var StyleRST = table.Style{
	Name: "StyleRST",
	Box: table.BoxStyle{
		BottomLeft:       "",
		BottomRight:      "",
		BottomSeparator:  "  ",
		Left:             "",
		LeftSeparator:    "",
		MiddleHorizontal: "=",
		MiddleSeparator:  "  ",
		MiddleVertical:   "  ",
		PaddingLeft:      "",
		PaddingRight:     "",
		Right:            "",
		RightSeparator:   "",
		TopLeft:          "",
		TopRight:         "",
		TopSeparator:     "  ",
	},
	Format: table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	},
	Options: table.Options{
		DrawBorder:      true,
		SeparateColumns: true,
		SeparateHeader:  true,
	},
}

// NotGenerated is the model description of simulations that were imported
// rather than fitted here.
const NotGenerated = "Not generated"

// formatValue rounds to 4 decimals.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

// FormatEvaluation renders the results as an rst table with one row per
// variable and one column per metric.
func FormatEvaluation(res *evaluate.Results) string {
	t := table.NewWriter()
	t.SetStyle(StyleRST)

	header := make(table.Row, 0, len(res.Metrics)+1)
	header = append(header, "")
	for _, m := range res.Metrics {
		header = append(header, m)
	}
	t.AppendHeader(header)
	for _, r := range res.Rows {
		row := make(table.Row, 0, len(res.Metrics)+1)
		row = append(row, r.Variable)
		for _, m := range res.Metrics {
			row = append(row, formatValue(r.Values[m]))
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// Format assembles the report document.
func Format(model, name, site, evalText string, files []string) string {
	date := clock.Now().Truncate(time.Second).Format("2006-01-02 15:04:05")

	images := make([]string, len(files))
	for i, f := range files {
		images[i] = ".. image :: " + f
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s at %s\n====================\n\n", name, site)
	fmt.Fprintf(&b, "date: :code:`%s`\n\n", date)
	fmt.Fprintf(&b, "Model details:\n--------------\n\n:code:`%s`\n\n", model)
	fmt.Fprintf(&b, "Evaluation results:\n-------------------\n\n%s\n\n", evalText)
	fmt.Fprintf(&b, "Plots:\n------\n\n%s\n", strings.Join(images, "\n\n"))
	return b.String()
}

// Writer writes report files.
type Writer struct {
	Logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{Logger: logger}
}

// Write renders and writes the report to path. Plot paths are written
// relative to the report's directory.
func (w *Writer) Write(path, model, name, site string, res *evaluate.Results, files []string) error {
	w.Logger.Info("generating rst file", "model", name, "site", site, "path", path)

	dir := filepath.Dir(path)
	rel := make([]string, len(files))
	for i, f := range files {
		r, err := filepath.Rel(dir, f)
		if err != nil {
			r = f
		}
		rel[i] = filepath.ToSlash(r)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out := Format(model, name, site, FormatEvaluation(res), rel)
	return os.WriteFile(path, []byte(out), 0o644)
}
