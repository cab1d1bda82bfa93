package tickdata

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tickpulse/internal/errors"
	"tickpulse/pkg/contracts/domain"
)

// TicksSheet is preferred over the first sheet when a workbook has it
const TicksSheet = "ticks"

func loadXLSX(ctx context.Context, path string) ([]domain.Tick, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewFormatError("cannot open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList())
	if sheet == "" {
		return nil, errors.NewFormatError("workbook has no sheets", nil).WithContext("path", path)
	}

	// raw values keep native dates as serial numbers
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.NewFormatError("cannot read sheet", err).WithContext("sheet", sheet)
	}
	if len(rows) == 0 {
		return nil, errors.NewSchemaError("sheet has no header row", nil).WithContext("sheet", sheet)
	}

	cols, err := resolveColumns(rows[0])
	if err != nil {
		return nil, err
	}
	row := textRow{cols: cols, parseTime: parseCellTime(f)}

	ticks := make([]domain.Tick, 0, len(rows)-1)
	for i, record := range rows[1:] {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlank(record) {
			continue
		}
		tick, err := row.decode(record, i+2)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func pickSheet(sheets []string) string {
	for _, name := range sheets {
		if strings.EqualFold(name, TicksSheet) {
			return name
		}
	}
	if len(sheets) == 0 {
		return ""
	}
	return sheets[0]
}

// parseCellTime accepts text timestamps and spreadsheet serial dates
func parseCellTime(f *excelize.File) func(string) (time.Time, error) {
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	return func(s string) (time.Time, error) {
		t, err := ParseTimestamp(s)
		if err == nil {
			return t, nil
		}
		serial, convErr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if convErr != nil {
			return time.Time{}, err
		}
		return excelize.ExcelDateToTime(serial, date1904)
	}
}
