package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	"tickpulse/pkg/contracts/domain"
)

// DashboardService builds the dashboard of a ticker
type DashboardService interface {
	Dashboard(ctx context.Context, ticker string) (*domain.DashboardView, error)
	Tickers(ctx context.Context) ([]string, error)
}

// DashboardHandler serves the daily OHLCV dashboard
type DashboardHandler struct {
	service      DashboardService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDashboardHandler creates a dashboard handler
func NewDashboardHandler(service DashboardService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DashboardHandler {
	return &DashboardHandler{
		service:      service,
		logger:       infrastructure.WithComponent(logger, "http.dashboard"),
		errorHandler: errorHandler,
	}
}

// Routes mounts under /api/v1/dashboard
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.ListTickers)
	r.Get("/{ticker}", h.GetDashboard)
	return r
}

// TickerList is the response of ListTickers
type TickerList struct {
	Tickers []string `json:"tickers"`
}

// ListTickers handles GET /api/v1/dashboard
func (h *DashboardHandler) ListTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.service.Tickers(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, TickerList{Tickers: tickers})
}

// GetDashboard handles GET /api/v1/dashboard/{ticker}
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	view, err := h.service.Dashboard(r.Context(), ticker)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, NewDashboardResponse(view))
}

// DashboardResponse is the JSON form of a dashboard. Missing and infinite
// values are null.
type DashboardResponse struct {
	Ticker     string              `json:"ticker"`
	Bars       []BarResponse       `json:"bars"`
	Regression *RegressionResponse `json:"regression"`
	Centroids  []CentroidResponse  `json:"centroids"`
}

// BarResponse is one dashboard row
type BarResponse struct {
	Date         string   `json:"date"`
	Open         *float64 `json:"open"`
	High         *float64 `json:"high"`
	Low          *float64 `json:"low"`
	Close        *float64 `json:"close"`
	Volume       *float64 `json:"volume"`
	Returns      *float64 `json:"returns"`
	MA20         *float64 `json:"ma20"`
	MA50         *float64 `json:"ma50"`
	Volatility20 *float64 `json:"volatility20"`
	SpreadHL     *float64 `json:"spread_hl"`
	VolCluster   int      `json:"vol_cluster"`
}

// RegressionResponse is the OLS summary
type RegressionResponse struct {
	N          int      `json:"n"`
	Alpha      *float64 `json:"alpha"`
	Beta       *float64 `json:"beta"`
	RSquared   *float64 `json:"r_squared"`
	AlphaSE    *float64 `json:"alpha_se"`
	BetaSE     *float64 `json:"beta_se"`
	AlphaTStat *float64 `json:"alpha_t"`
	BetaTStat  *float64 `json:"beta_t"`
}

// CentroidResponse is one volatility regime
type CentroidResponse struct {
	Label        int      `json:"label"`
	Volatility20 *float64 `json:"volatility20"`
	Returns      *float64 `json:"returns"`
	Members      int      `json:"members"`
}

// NewDashboardResponse converts a view for encoding/json, which rejects NaN
func NewDashboardResponse(view *domain.DashboardView) DashboardResponse {
	resp := DashboardResponse{
		Ticker:    view.Ticker,
		Bars:      make([]BarResponse, len(view.Bars)),
		Centroids: make([]CentroidResponse, len(view.Centroids)),
	}
	for i, b := range view.Bars {
		resp.Bars[i] = BarResponse{
			Date:         b.Date.Format("2006-01-02"),
			Open:         finite(b.Open),
			High:         finite(b.High),
			Low:          finite(b.Low),
			Close:        finite(b.Close),
			Volume:       finite(b.Volume),
			Returns:      finite(b.Returns),
			MA20:         finite(b.MA20),
			MA50:         finite(b.MA50),
			Volatility20: finite(b.Volatility20),
			SpreadHL:     finite(b.SpreadHL),
			VolCluster:   b.VolCluster,
		}
	}
	if reg := view.Regression; reg != nil {
		resp.Regression = &RegressionResponse{
			N:          reg.N,
			Alpha:      finite(reg.Alpha),
			Beta:       finite(reg.Beta),
			RSquared:   finite(reg.RSquared),
			AlphaSE:    finite(reg.AlphaSE),
			BetaSE:     finite(reg.BetaSE),
			AlphaTStat: finite(reg.AlphaTStat),
			BetaTStat:  finite(reg.BetaTStat),
		}
	}
	for i, c := range view.Centroids {
		resp.Centroids[i] = CentroidResponse{
			Label:        c.Label,
			Volatility20: finite(c.Volatility20),
			Returns:      finite(c.Returns),
			Members:      c.Members,
		}
	}
	return resp
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
