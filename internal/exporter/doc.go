// Package exporter writes report tables as CSV files.
//
// CSVWriter resolves relative file names under a base directory and writes
// tables row by row through a StreamWriter. Every file starts with a UTF-8
// BOM so spreadsheet tools detect the encoding.
//
// The Format helpers render cell values: missing floats become empty cells,
// infinities become inf/-inf, and timestamps keep their zone offset.
//
// Example usage:
//
//	w := exporter.NewCSVWriter("out/report", logger)
//	stream, err := w.CreateStreamWriter("ticks.csv", headers)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	err = stream.WriteRecord(row)
package exporter
