// Package config provides centralized configuration management for tickpulse.
//
// # Configuration Sources
//
// Configuration is assembled in layers, later layers winning:
//
//	1. Default values (Default)
//	2. YAML file (tickpulse.yaml or configs/tickpulse.yaml, or an explicit path)
//	3. Environment variables (TICKPULSE_*)
//
// CLI flags are applied by cmd/tickpulse on top of the loaded Config.
//
// # Environment Variables
//
// Nested sections are joined with underscores:
//
//	TICKPULSE_PIPELINE_FREQ=5m
//	TICKPULSE_PIPELINE_WINDOW=60
//	TICKPULSE_REPORT_FORMAT=csv
//	TICKPULSE_LOGGING_LEVEL=debug
//	TICKPULSE_SERVER_PORT=9090
//	TICKPULSE_DASHBOARD_DATA_DIR=/srv/ohlcv
//
// # Validation
//
// Field constraints are declared with go-playground/validator struct tags and
// checked by Validate. Failures are returned as CONFIG AppErrors.
package config
