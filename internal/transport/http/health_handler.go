package http

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"

	"tickpulse/internal/infrastructure"
	"tickpulse/pkg/contracts"
)

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// RunTracker reports the active report run
type RunTracker interface {
	Active() string
}

// HealthStatus is the body of GET /api/health
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Services  map[string]interface{} `json:"services"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	clients ClientCounter
	runs    RunTracker
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. Either dependency may be nil.
func NewHealthHandler(clients ClientCounter, runs RunTracker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		clients: clients,
		runs:    runs,
		started: time.Now(),
		logger:  infrastructure.WithComponent(logger, "http.health"),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	services := map[string]interface{}{}
	if h.clients != nil {
		services["websocket_clients"] = h.clients.ClientCount()
	}
	if h.runs != nil {
		services["active_run"] = h.runs.Active()
	}

	render.JSON(w, r, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(h.started).Seconds(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
		},
		Services: services,
	})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
