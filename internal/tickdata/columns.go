package tickdata

import (
	"fmt"
	"strings"
	"time"

	"tickpulse/internal/errors"
	"tickpulse/pkg/contracts/domain"
)

// Required column names, matched case-insensitively
const (
	ColSymbol    = "symbol"
	ColTimestamp = "timestamp"
	ColBid       = "bid"
	ColAsk       = "ask"
	ColSize      = "size"
)

// RequiredColumns lists every column a tick file must carry
var RequiredColumns = []string{ColSymbol, ColTimestamp, ColBid, ColAsk, ColSize}

// columnIndex maps a required column to its position in the header
type columnIndex map[string]int

func resolveColumns(header []string) (columnIndex, error) {
	cols := make(columnIndex, len(RequiredColumns))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewSchemaError(
			fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil).
			WithContext("missing", missing)
	}
	return cols, nil
}

// textRow decodes one record of string cells. parseTime lets the XLSX reader
// fall back to spreadsheet serial dates.
type textRow struct {
	cols      columnIndex
	parseTime func(string) (time.Time, error)
}

func (r textRow) cell(record []string, name string) string {
	i := r.cols[name]
	if i >= len(record) {
		return ""
	}
	return record[i]
}

func (r textRow) decode(record []string, line int) (domain.Tick, error) {
	tick := domain.Tick{Symbol: strings.TrimSpace(r.cell(record, ColSymbol))}
	if tick.Symbol == "" {
		return tick, schemaRowError("empty symbol", nil, ColSymbol, line)
	}

	ts, err := r.parseTime(r.cell(record, ColTimestamp))
	if err != nil {
		return tick, schemaRowError("unparseable timestamp", err, ColTimestamp, line)
	}
	tick.Timestamp = ts

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{ColBid, &tick.Bid},
		{ColAsk, &tick.Ask},
		{ColSize, &tick.Size},
	} {
		v, err := parseNumber(r.cell(record, f.name))
		if err != nil {
			return tick, schemaRowError("unparseable number", err, f.name, line)
		}
		*f.dst = v
	}
	return tick, nil
}

func schemaRowError(msg string, cause error, column string, line int) error {
	return errors.NewSchemaError(fmt.Sprintf("%s in column %q at row %d", msg, column, line), cause).
		WithContext("column", column).
		WithContext("row", line)
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
