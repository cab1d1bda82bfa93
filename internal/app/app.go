package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"

	"tickpulse/internal/config"
	"tickpulse/internal/dailybars"
	"tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	customMiddleware "tickpulse/internal/middleware"
	"tickpulse/internal/pipeline"
	"tickpulse/internal/report"
	"tickpulse/internal/tickdata"
	handlers "tickpulse/internal/transport/http"
	ws "tickpulse/internal/websocket"
	"tickpulse/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	WebSocketHub  *ws.Hub
	Jobs          *pipeline.Jobs
	Dashboard     *dailybars.Service
	OTelProviders *infrastructure.OTelProviders

	registerer   prometheus.Registerer
	errorHandler *errors.ErrorHandler
}

// Option configures an Application
type Option func(*Application)

// WithRegisterer sets where the websocket collectors are registered. The
// default is prometheus.DefaultRegisterer, which /metrics serves.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Application) { a.registerer = reg }
}

// New wires every component from cfg
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	a := &Application{
		Config:     cfg,
		Logger:     logger,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, o := range opts {
		o(a)
	}

	logger.Info("application starting",
		slog.String("version", contracts.Version),
		slog.Int("port", cfg.Server.Port))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers

	if err := a.initializeServices(); err != nil {
		return nil, err
	}
	a.errorHandler = errors.NewErrorHandler(logger, cfg.Logging.Development)
	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) initializeServices() error {
	wsMetrics, err := ws.NewMetrics(a.registerer)
	if err != nil {
		return fmt.Errorf("failed to register websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, wsMetrics)

	pipelineMetrics, err := infrastructure.CreatePipelineMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	runner := pipeline.NewRunner(
		tickdata.NewLoader(a.Logger),
		pipeline.OptionsFromConfig(a.Config.Pipeline),
		a.Logger,
		pipeline.WithTracer(a.OTelProviders.Tracer),
		pipeline.WithMetrics(pipelineMetrics),
	)
	writers := func(cfg config.ReportConfig) (pipeline.Writer, error) {
		return report.NewWriter(cfg, a.Logger)
	}
	a.Jobs = pipeline.NewJobs(runner, writers, a.Config.Report, a.Config.Server.ReportTimeout, a.WebSocketHub, a.Logger)

	store := dailybars.NewStore(a.Config.Dashboard.DataDir, a.Logger)
	a.Dashboard = dailybars.NewService(store, a.Config.Dashboard.Clusters, a.Logger)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// these two do not wrap the ResponseWriter, so the websocket upgrade works
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	cors := a.corsConfig()
	r.Handle("/ws", ws.NewHandler(a.WebSocketHub, cors.OriginAllowed, a.Logger))
	r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(cors))
		if rl := a.Config.Server.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout))

		health := handlers.NewHealthHandler(a.WebSocketHub, a.Jobs, a.Logger)
		r.Get("/health", health.HealthCheck)
		r.Get("/version", health.Version)

		r.Route("/v1", func(r chi.Router) {
			r.Mount("/dashboard", handlers.NewDashboardHandler(a.Dashboard, a.Logger, a.errorHandler).Routes())
			r.Mount("/reports", handlers.NewReportHandler(a.Jobs,
				pipeline.OptionsFromConfig(a.Config.Pipeline), a.reportPaths(), a.Logger, a.errorHandler).Routes())
		})
	})
}

func (a *Application) reportPaths() handlers.ReportPaths {
	rc := a.Config.Report
	return handlers.ReportPaths{
		InputDir:      rc.InputDir,
		OutputDir:     rc.OutputDir,
		DefaultOutput: filepath.Base(rc.Output),
	}
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", customMiddleware.RequestIDHeader},
		ExposedHeaders: []string{customMiddleware.RequestIDHeader},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start begins serving on ln, or on the configured port when ln is nil.
// A serve error calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc, ln net.Listener) error {
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.Server.Addr); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
		}
	}

	a.WebSocketHub.Start()

	go func() {
		if err := a.Server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", ln.Addr().String()),
		slog.String("dashboard_dir", a.Config.Dashboard.DataDir))
	return nil
}

// Stop gracefully stops the application. An active report run is cancelled.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if err := a.Jobs.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "report run did not stop in time", slog.String("error", err.Error()))
	}
	a.WebSocketHub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run serves until SIGINT, SIGTERM or a server error
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, cancel, nil); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("received shutdown signal")
	return a.Stop(context.Background())
}
