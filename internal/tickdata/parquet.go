package tickdata

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"

	"tickpulse/internal/errors"
	"tickpulse/pkg/contracts/domain"
)

const parquetBatch = 512

// julianUnixEpoch is the Julian day number of 1970-01-01
const julianUnixEpoch = 2440588

// parquetColumn locates one required leaf column and how to read it
type parquetColumn struct {
	name  string
	index int
	kind  parquet.Kind
	logic *format.LogicalType
}

func loadParquet(ctx context.Context, path string) ([]domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewFormatError("cannot open parquet file", err).WithContext("path", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.NewFormatError("cannot stat parquet file", err).WithContext("path", path)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, errors.NewFormatError("malformed parquet file", err).WithContext("path", path)
	}

	cols, err := lookupParquetColumns(pf.Schema())
	if err != nil {
		return nil, err
	}

	ticks := make([]domain.Tick, 0, int(pf.NumRows()))
	line := 1
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(ctx, rg, cols, &line, &ticks); err != nil {
			return nil, err
		}
	}
	return ticks, nil
}

func lookupParquetColumns(schema *parquet.Schema) (map[string]parquetColumn, error) {
	cols := make(map[string]parquetColumn, len(RequiredColumns))
	byLower := make(map[string][]string)
	for _, path := range schema.Columns() {
		if len(path) == 1 {
			byLower[strings.ToLower(path[0])] = path
		}
	}

	var missing []string
	for _, name := range RequiredColumns {
		path, ok := byLower[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		leaf, ok := schema.Lookup(path...)
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = parquetColumn{
			name:  name,
			index: leaf.ColumnIndex,
			kind:  leaf.Node.Type().Kind(),
			logic: leaf.Node.Type().LogicalType(),
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewSchemaError(
			fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil).
			WithContext("missing", missing)
	}
	return cols, nil
}

func readRowGroup(ctx context.Context, rg parquet.RowGroup, cols map[string]parquetColumn, line *int, ticks *[]domain.Tick) error {
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, parquetBatch)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			*line++
			tick, decodeErr := decodeParquetRow(row, cols, *line)
			if decodeErr != nil {
				return decodeErr
			}
			*ticks = append(*ticks, tick)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewFormatError("failed to read parquet rows", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func decodeParquetRow(row parquet.Row, cols map[string]parquetColumn, line int) (domain.Tick, error) {
	values := make(map[int]parquet.Value, len(cols))
	for _, v := range row {
		values[v.Column()] = v
	}

	var tick domain.Tick

	symbol := values[cols[ColSymbol].index]
	if symbol.IsNull() || !isBytes(symbol.Kind()) {
		return tick, schemaRowError("empty symbol", nil, ColSymbol, line)
	}
	tick.Symbol = strings.TrimSpace(string(symbol.ByteArray()))
	if tick.Symbol == "" {
		return tick, schemaRowError("empty symbol", nil, ColSymbol, line)
	}

	ts, err := parquetTime(values[cols[ColTimestamp].index], cols[ColTimestamp])
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
		v, err := parquetNumber(values[cols[f.name].index])
		if err != nil {
			return tick, schemaRowError("unparseable number", err, f.name, line)
		}
		*f.dst = v
	}
	return tick, nil
}

func isBytes(kind parquet.Kind) bool {
	return kind == parquet.ByteArray || kind == parquet.FixedLenByteArray
}

func parquetNumber(v parquet.Value) (float64, error) {
	if v.IsNull() {
		return math.NaN(), nil
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Int32:
		return float64(v.Int32()), nil
	case parquet.Int64:
		return float64(v.Int64()), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return parseNumber(string(v.ByteArray()))
	default:
		return 0, fmt.Errorf("unsupported numeric kind %s", v.Kind())
	}
}

// parquetTime reads TIMESTAMP and DATE annotated integers as-is, decodes
// legacy INT96 cells and parses BYTE_ARRAY cells as text
func parquetTime(v parquet.Value, col parquetColumn) (time.Time, error) {
	if v.IsNull() {
		return time.Time{}, fmt.Errorf("null timestamp")
	}
	if isBytes(v.Kind()) {
		return ParseTimestamp(string(v.ByteArray()))
	}
	if v.Kind() == parquet.Int96 {
		return int96Time(v.Int96()), nil
	}

	if col.logic != nil && col.logic.Timestamp != nil {
		if v.Kind() != parquet.Int64 {
			return time.Time{}, fmt.Errorf("timestamp stored as %s", v.Kind())
		}
		raw := v.Int64()
		unit := col.logic.Timestamp.Unit
		switch {
		case unit.Millis != nil:
			return time.UnixMilli(raw).UTC(), nil
		case unit.Micros != nil:
			return time.UnixMicro(raw).UTC(), nil
		default:
			return time.Unix(0, raw).UTC(), nil
		}
	}
	if col.logic != nil && col.logic.Date != nil && v.Kind() == parquet.Int32 {
		return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("column of kind %s carries no timestamp annotation", v.Kind())
}

// int96Time decodes the Impala/Spark INT96 layout: nanoseconds of the day in
// the low 64 bits, then the Julian day. Values are UTC.
func int96Time(v deprecated.Int96) time.Time {
	nanos := int64(uint64(v[1])<<32 | uint64(v[0]))
	days := int64(v[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos).UTC()
}
