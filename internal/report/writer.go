package report

import (
	"log/slog"
	"path/filepath"
	"strings"

	"tickpulse/internal/config"
	"tickpulse/internal/errors"
	"tickpulse/internal/pipeline"
)

// Output formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// NewWriter picks the writer for cfg.Format. A CSV bundle goes to a directory
// named after cfg.Output without its extension.
func NewWriter(cfg config.ReportConfig, logger *slog.Logger) (pipeline.Writer, error) {
	switch strings.ToLower(cfg.Format) {
	case FormatXLSX, "":
		return NewXLSXWriter(cfg.Output, cfg.Charts, logger), nil
	case FormatCSV:
		return NewCSVBundleWriter(BundleDir(cfg.Output), logger), nil
	default:
		return nil, errors.NewAppValidationError("unsupported report format").
			WithContext("format", cfg.Format)
	}
}

// BundleDir strips a file extension from output
func BundleDir(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output))
}
