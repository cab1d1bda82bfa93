// Package shared holds helpers used across tickpulse packages that do not
// belong to any single layer.
//
// The testutil subpackage provides a buffered slog handler for asserting on
// log output and small tick fixtures for analytics tests:
//
//	logger, logs := testutil.NewTestLogger(t)
//	features := microstructure.AddFeatures(testutil.SampleTicks())
//	testutil.AssertNoErrors(t, logs)
//
// Nothing here may import domain logic packages.
package shared
