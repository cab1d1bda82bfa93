package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	"tickpulse/internal/pipeline"
)

// TimeFormat is the number format of timestamp cells
const TimeFormat = "yyyy-mm-dd hh:mm:ss"

// Chart layout on the charts sheet: one row of two charts per symbol
const (
	chartRowStride = 20
	chartWidth     = 480
	chartHeight    = 300
)

// Resampled sheet columns referenced by the charts
const (
	colBucketTime    = "B"
	colMidMean       = "C"
	colSpreadBpsMean = "F"
)

// XLSXWriter writes a result as a multi-sheet workbook
type XLSXWriter struct {
	path   string
	charts bool
	logger *slog.Logger
}

// NewXLSXWriter creates a workbook writer for path. With charts set, the
// charts sheet gets an average spread and an average mid line chart per
// symbol.
func NewXLSXWriter(path string, charts bool, logger *slog.Logger) *XLSXWriter {
	return &XLSXWriter{
		path:   path,
		charts: charts,
		logger: infrastructure.WithComponent(logger, "report.xlsx"),
	}
}

type cellStyles struct {
	header int
	time   int
}

// Write implements pipeline.Writer
func (w *XLSXWriter) Write(ctx context.Context, r *pipeline.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newCellStyles(f)
	if err != nil {
		return errors.NewStorageError("create workbook styles", err)
	}

	tables := Tables(r)
	for i, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), t.Name)
		} else {
			_, err = f.NewSheet(t.Name)
		}
		if err != nil {
			return errors.NewStorageError("create sheet", err).WithContext("sheet", t.Name)
		}
		if err := writeSheet(f, t, styles); err != nil {
			return errors.NewStorageError("write sheet", err).WithContext("sheet", t.Name)
		}
	}

	if _, err := f.NewSheet(SheetCharts); err != nil {
		return errors.NewStorageError("create sheet", err).WithContext("sheet", SheetCharts)
	}
	charts := 0
	if w.charts {
		if charts, err = addCharts(f, symbolSpans(r.Buckets)); err != nil {
			return errors.NewStorageError("add charts", err)
		}
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return errors.NewStorageError("create report directory", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return errors.NewStorageError("save workbook", err).WithContext("path", w.path)
	}

	w.logger.InfoContext(ctx, "report written",
		slog.String("path", w.path),
		slog.Int("sheets", len(tables)+1),
		slog.Int("charts", charts))
	return nil
}

func newCellStyles(f *excelize.File) (cellStyles, error) {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return cellStyles{}, err
	}
	timeFmt := TimeFormat
	ts, err := f.NewStyle(&excelize.Style{CustomNumFmt: &timeFmt})
	if err != nil {
		return cellStyles{}, err
	}
	return cellStyles{header: header, time: ts}, nil
}

func writeSheet(f *excelize.File, t Table, styles cellStyles) error {
	sw, err := f.NewStreamWriter(t.Name)
	if err != nil {
		return err
	}
	if len(t.Headers) > 0 {
		if err := sw.SetColWidth(1, len(t.Headers), 14); err != nil {
			return err
		}
	}

	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = excelize.Cell{StyleID: styles.header, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = cellValue(v, styles)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return sw.Flush()
}

// cellValue maps a table value to what the stream writer stores: missing
// floats become empty cells and infinities the text inf/-inf
func cellValue(v interface{}, styles cellStyles) interface{} {
	switch val := v.(type) {
	case float64:
		switch {
		case math.IsNaN(val):
			return nil
		case math.IsInf(val, 1):
			return "inf"
		case math.IsInf(val, -1):
			return "-inf"
		}
		return val
	case time.Time:
		return excelize.Cell{StyleID: styles.time, Value: wallClock(val)}
	default:
		return v
	}
}

func addCharts(f *excelize.File, spans []symbolSpan) (int, error) {
	added := 0
	for i, span := range spans {
		row := i*chartRowStride + 1
		cats := seriesRange(colBucketTime, span)

		specs := []struct {
			anchor string
			title  string
			yTitle string
			values string
			name   string
		}{
			{
				anchor: fmt.Sprintf("A%d", row),
				title:  span.Symbol + " - Avg Spread (bps)",
				yTitle: "bps",
				values: seriesRange(colSpreadBpsMean, span),
				name:   fmt.Sprintf("'%s'!$%s$1", SheetResampled, colSpreadBpsMean),
			},
			{
				anchor: fmt.Sprintf("I%d", row),
				title:  span.Symbol + " - Avg Mid",
				yTitle: "Price",
				values: seriesRange(colMidMean, span),
				name:   fmt.Sprintf("'%s'!$%s$1", SheetResampled, colMidMean),
			},
		}

		for _, s := range specs {
			err := f.AddChart(SheetCharts, s.anchor, &excelize.Chart{
				Type: excelize.Line,
				Series: []excelize.ChartSeries{{
					Name:       s.name,
					Categories: cats,
					Values:     s.values,
				}},
				Title:     []excelize.RichTextRun{{Text: s.title}},
				Legend:    excelize.ChartLegend{Position: "none"},
				XAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Time"}}},
				YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: s.yTitle}}},
				Dimension: excelize.ChartDimension{Width: chartWidth, Height: chartHeight},
			})
			if err != nil {
				return added, fmt.Errorf("chart %q: %w", s.title, err)
			}
			added++
		}
	}
	return added, nil
}

func seriesRange(col string, span symbolSpan) string {
	return fmt.Sprintf("'%s'!$%s$%d:$%s$%d", SheetResampled, col, span.From, col, span.To)
}
