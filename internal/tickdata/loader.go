package tickdata

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	"tickpulse/pkg/contracts/domain"
)

// Format identifies a supported tick file encoding
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// checkEvery bounds how many rows are decoded between context checks
const checkEvery = 4096

// DetectFormat maps a file extension (case-insensitive) to its Format
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", errors.NewFormatError(fmt.Sprintf("unsupported file extension %q", ext), nil).
			WithContext("path", path)
	}
}

// Loader reads tick files into typed records
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: infrastructure.WithComponent(logger, "tickdata")}
}

// Load reads every tick in path. Malformed files and unknown extensions are
// FORMAT errors; missing columns and unparseable cells are SCHEMA errors.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.Tick, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var ticks []domain.Tick
	switch format {
	case FormatCSV, FormatTSV:
		ticks, err = l.loadDelimited(ctx, path, format)
	case FormatXLSX:
		ticks, err = loadXLSX(ctx, path)
	case FormatParquet:
		ticks, err = loadParquet(ctx, path)
	}
	if err != nil {
		l.logger.WarnContext(ctx, "tick file rejected",
			slog.String("path", path),
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		return nil, err
	}

	l.logger.InfoContext(ctx, "ticks loaded",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("rows", len(ticks)),
		slog.Int("symbols", countSymbols(ticks)))
	return ticks, nil
}

func (l *Loader) loadDelimited(ctx context.Context, path string, format Format) ([]domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewFormatError("cannot open tick file", err).WithContext("path", path)
	}
	defer f.Close()

	comma := ','
	if format == FormatTSV {
		comma = '\t'
	}
	return ReadDelimited(ctx, f, comma)
}

// ReadDelimited decodes CSV or TSV tick records from r
func ReadDelimited(ctx context.Context, r io.Reader, comma rune) ([]domain.Tick, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewSchemaError("tick file has no header row", nil)
	}
	if err != nil {
		return nil, errors.NewFormatError("malformed header row", err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}
	row := textRow{cols: cols, parseTime: ParseTimestamp}

	ticks := make([]domain.Tick, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if stderrors.As(err, &parseErr) {
				return nil, errors.NewFormatError("malformed delimited file", err).WithContext("row", parseErr.Line)
			}
			return nil, errors.NewFormatError("failed to read delimited file", err)
		}
		if line%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlank(record) {
			continue
		}

		tick, err := row.decode(record, line)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func countSymbols(ticks []domain.Tick) int {
	seen := make(map[string]struct{})
	for _, t := range ticks {
		seen[t.Symbol] = struct{}{}
	}
	return len(seen)
}
