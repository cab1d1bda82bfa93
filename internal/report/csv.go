package report

import (
	"context"
	"log/slog"

	"tickpulse/internal/errors"
	"tickpulse/internal/exporter"
	"tickpulse/internal/infrastructure"
	"tickpulse/internal/pipeline"
)

// CSVBundleWriter writes each table of a result to <dir>/<table>.csv
type CSVBundleWriter struct {
	dir    string
	csv    *exporter.CSVWriter
	logger *slog.Logger
}

// NewCSVBundleWriter creates a bundle writer rooted at dir
func NewCSVBundleWriter(dir string, logger *slog.Logger) *CSVBundleWriter {
	return &CSVBundleWriter{
		dir:    dir,
		csv:    exporter.NewCSVWriter(dir, logger),
		logger: infrastructure.WithComponent(logger, "report.csv"),
	}
}

// Write implements pipeline.Writer
func (w *CSVBundleWriter) Write(ctx context.Context, r *pipeline.Result) error {
	tables := Tables(r)
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.writeTable(t); err != nil {
			return errors.NewStorageError("write csv table", err).WithContext("table", t.Name)
		}
	}

	w.logger.InfoContext(ctx, "report written",
		slog.String("dir", w.dir),
		slog.Int("files", len(tables)))
	return nil
}

func (w *CSVBundleWriter) writeTable(t Table) error {
	stream, err := w.csv.CreateStreamWriter(t.Name+".csv", t.Headers)
	if err != nil {
		return err
	}

	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, exporter.FormatValue(v))
		}
		if err := stream.WriteRecord(record); err != nil {
			stream.Close()
			return err
		}
	}
	return stream.Close()
}
