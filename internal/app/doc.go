// Package app wires the tickpulse server together and manages its lifecycle.
//
// New builds every component from a loaded configuration: OpenTelemetry
// providers, the websocket hub, the background report runner and the daily
// dashboard service. It then mounts them on a chi router:
//
//	/ws                      live run snapshots (RequestID, RealIP only)
//	/metrics                 Prometheus exposition
//	/api/...                 OTel, logging, recovery, security headers,
//	                         CORS and rate limiting, then a request timeout
//
// Run serves until SIGINT or SIGTERM and then shuts down in order: HTTP
// server, active report run, websocket hub, telemetry.
//
//	cfg, _ := config.Load("")
//	application, err := app.New(cfg, logger)
//	if err != nil {
//		return err
//	}
//	return application.Run(ctx)
package app
