package dailybars

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	"tickpulse/internal/tickdata"
	"tickpulse/pkg/contracts/domain"
)

// Daily CSV columns, matched case-insensitively
var barColumns = []string{"date", "open", "high", "low", "close", "volume"}

var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._^-]{0,19}$`)

// ValidTicker reports whether ticker is safe to use as a file name
func ValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker) && !strings.Contains(ticker, "..")
}

// Store reads daily bars from a directory of per-ticker CSV files
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: infrastructure.WithComponent(logger, "dailybars.store")}
}

// Load returns the bars of ticker sorted by date
func (s *Store) Load(ctx context.Context, ticker string) ([]domain.DailyBar, error) {
	if !ValidTicker(ticker) {
		return nil, errors.NewAppValidationError("invalid ticker").WithContext("ticker", ticker)
	}
	path := filepath.Join(s.dir, strings.ToUpper(ticker)+".csv")

	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotFoundError("ticker " + strings.ToUpper(ticker))
		}
		return nil, errors.NewStorageError("open daily bars", err).WithContext("path", path)
	}
	defer f.Close()

	bars, err := ReadBars(ctx, f)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "daily bars loaded",
		slog.String("ticker", ticker),
		slog.Int("bars", len(bars)))
	return bars, nil
}

// Tickers lists the tickers that have a {TICKER}.csv file, sorted. A missing
// directory holds no tickers.
func (s *Store) Tickers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, errors.NewStorageError("list daily bars", err).WithContext("dir", s.dir)
	}

	tickers := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		ticker := strings.TrimSuffix(name, ".csv")
		// Load only opens upper-case names
		if ticker != strings.ToUpper(ticker) || !ValidTicker(ticker) {
			continue
		}
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	s.logger.DebugContext(ctx, "daily bar files listed",
		slog.String("dir", s.dir),
		slog.Int("tickers", len(tickers)))
	return tickers, nil
}

// ReadBars parses a daily OHLCV CSV. Empty numeric cells load as NaN.
func ReadBars(ctx context.Context, r io.Reader) ([]domain.DailyBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewSchemaError("daily bars file is empty", nil)
	}
	if err != nil {
		return nil, errors.NewFormatError("malformed daily bars file", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	for _, c := range barColumns {
		if _, ok := cols[c]; !ok {
			return nil, errors.NewSchemaError("missing required column: "+c, nil).WithContext("column", c)
		}
	}

	var bars []domain.DailyBar
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewFormatError("malformed daily bars file", err)
		}
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		bar, err := decodeBar(record, cols)
		if err != nil {
			return nil, errors.NewSchemaError(err.Error(), err).WithContext("line", line)
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func decodeBar(record []string, cols map[string]int) (domain.DailyBar, error) {
	cell := func(name string) string {
		if i := cols[name]; i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	date, err := tickdata.ParseTimestamp(cell("date"))
	if err != nil {
		return domain.DailyBar{}, fmt.Errorf("date: %w", err)
	}
	bar := domain.DailyBar{Date: date}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low},
		{"close", &bar.Close}, {"volume", &bar.Volume},
	} {
		raw := cell(f.name)
		if raw == "" {
			*f.dst = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return bar, nil
}
