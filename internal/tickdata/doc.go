// Package tickdata loads raw bid/ask/size tick records from CSV, TSV, XLSX and
// Parquet files.
//
// Every format must carry the columns symbol, timestamp, bid, ask and size
// (case-insensitive, extra columns ignored). Empty numeric cells load as NaN.
// Text timestamps are parsed against a fixed list of layouts; values without
// an offset are taken as UTC wall-clock time, values with one keep it.
package tickdata
