// Package pipeline runs a tick file through the microstructure analyzers and
// hands the combined result to a report writer.
//
// A run loads the file, derives the feature table once, then fans the five
// analyzers (resample, rolling, stats, outliers, heatmap) out over the shared
// read-only feature table with an errgroup. Each analyzer writes only its own
// field of Result, so the output is the same as a sequential run.
//
// Every stage is traced with an OpenTelemetry span, timed into
// PipelineMetrics, and reported to an optional Observer as a
// events.RunSnapshot. The run id doubles as the trace id carried by log
// records.
package pipeline
