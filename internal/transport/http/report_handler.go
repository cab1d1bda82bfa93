package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	"tickpulse/internal/pipeline"
	"tickpulse/pkg/contracts/events"
)

// ReportSubmitter starts background report runs
type ReportSubmitter interface {
	Submit(ctx context.Context, job pipeline.Job) (string, error)
	Last() (events.RunSnapshot, bool)
}

// ReportPaths confines the files a request may name. Sources resolve under
// InputDir and outputs under OutputDir; DefaultOutput is used when a request
// names no output.
type ReportPaths struct {
	InputDir      string
	OutputDir     string
	DefaultOutput string
}

// ReportHandler starts report runs and exposes their progress
type ReportHandler struct {
	jobs         ReportSubmitter
	defaults     pipeline.Options
	paths        ReportPaths
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewReportHandler creates a report handler. defaults are the analyzer
// options requests override.
func NewReportHandler(jobs ReportSubmitter, defaults pipeline.Options, paths ReportPaths, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	return &ReportHandler{
		jobs:         jobs,
		defaults:     defaults,
		paths:        paths,
		logger:       infrastructure.WithComponent(logger, "http.reports"),
		errorHandler: errorHandler,
	}
}

// resolveUnder joins a request path onto dir. Absolute paths and paths that
// climb out of dir are rejected.
func resolveUnder(dir, name, field string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%s %q must be a relative path inside the %s directory", field, name, field)
	}
	return filepath.Join(dir, name), nil
}

// Routes mounts under /api/v1/reports
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.StartReport)
	r.Get("/current", h.CurrentReport)
	return r
}

var validate = validator.New()

// ReportRequest is the body of POST /api/v1/reports. Omitted fields keep the
// configured values.
type ReportRequest struct {
	Source      string  `json:"source" validate:"required"`
	Output      string  `json:"output,omitempty"`
	Format      string  `json:"format,omitempty" validate:"omitempty,oneof=xlsx csv"`
	Charts      *bool   `json:"charts,omitempty"`
	Freq        string  `json:"freq,omitempty"`
	Window      int     `json:"window,omitempty" validate:"gte=0"`
	Z           float64 `json:"z,omitempty" validate:"gte=0"`
	HoursPerDay float64 `json:"hours_per_day,omitempty" validate:"gte=0,lte=24"`
	FillEmpty   *bool   `json:"fill_empty,omitempty"`

	freq time.Duration
}

// Bind implements the render.Binder interface for request validation
func (req *ReportRequest) Bind(r *http.Request) error {
	req.Source = strings.TrimSpace(req.Source)
	req.Output = strings.TrimSpace(req.Output)
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if err := validate.Struct(req); err != nil {
		return err
	}
	if req.Freq != "" {
		d, err := time.ParseDuration(req.Freq)
		if err != nil {
			return fmt.Errorf("invalid freq %q: %w", req.Freq, err)
		}
		if d <= 0 {
			return fmt.Errorf("freq must be positive, got %s", req.Freq)
		}
		req.freq = d
	}
	return nil
}

// options overlays the request on defaults
func (req *ReportRequest) options(defaults pipeline.Options) pipeline.Options {
	opts := defaults
	if req.freq > 0 {
		opts.Freq = req.freq
	}
	if req.Window > 0 {
		opts.Window = req.Window
	}
	if req.Z > 0 {
		opts.Z = req.Z
	}
	if req.HoursPerDay > 0 {
		opts.Calendar.HoursPerDay = req.HoursPerDay
	}
	if req.FillEmpty != nil {
		opts.FillEmpty = *req.FillEmpty
	}
	return opts
}

// ReportAccepted is the 202 body of a started run
type ReportAccepted struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	Websocket string `json:"websocket"`
}

// StartReport handles POST /api/v1/reports
func (h *ReportHandler) StartReport(w http.ResponseWriter, r *http.Request) {
	req := &ReportRequest{}
	if err := render.Bind(r, req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	source, err := resolveUnder(h.paths.InputDir, req.Source, "source")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	output := req.Output
	if output == "" {
		output = h.paths.DefaultOutput
	}
	if output, err = resolveUnder(h.paths.OutputDir, output, "output"); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	opts := req.options(h.defaults)
	runID, err := h.jobs.Submit(r.Context(), pipeline.Job{
		Source:  source,
		Output:  output,
		Format:  req.Format,
		Charts:  req.Charts,
		Options: &opts,
	})
	if stderrors.Is(err, pipeline.ErrRunInProgress) {
		h.errorHandler.HandleError(w, r, apierrors.ErrReportRunning)
		return
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "report accepted",
		slog.String("run_id", runID),
		slog.String("source", req.Source))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, ReportAccepted{
		RunID:     runID,
		Status:    events.StatusPending,
		Source:    req.Source,
		Websocket: "/ws",
	})
}

// CurrentReport handles GET /api/v1/reports/current
func (h *ReportHandler) CurrentReport(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.jobs.Last()
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("report run"))
		return
	}
	render.JSON(w, r, snap)
}
