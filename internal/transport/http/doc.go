// Package http implements the HTTP handlers of the tickpulse server.
//
// Handlers stay thin: they bind and validate requests, call a service and
// render the result. Failures go through errors.ErrorHandler, which writes
// RFC 7807 problem details.
//
// Routes, relative to the /api prefix mounted by the app package:
//
//	GET  /health                  liveness, websocket clients, active run
//	GET  /version                 build information
//	GET  /v1/dashboard            tickers with a daily bar file
//	GET  /v1/dashboard/{ticker}   daily OHLCV indicators, regression, regimes
//	POST /v1/reports              start a background report run (202, 409)
//	GET  /v1/reports/current      latest run snapshot
//
// Float fields that are missing or infinite are encoded as null.
package http
