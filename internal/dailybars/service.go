package dailybars

import (
	"context"
	"log/slog"
	"strings"

	"tickpulse/internal/infrastructure"
	"tickpulse/pkg/contracts/domain"
)

// BarSource supplies the daily bars of a ticker
type BarSource interface {
	Load(ctx context.Context, ticker string) ([]domain.DailyBar, error)
	Tickers(ctx context.Context) ([]string, error)
}

// Service builds dashboard views
type Service struct {
	source   BarSource
	clusters int
	logger   *slog.Logger
}

// NewService creates a dashboard service. clusters <= 0 uses DefaultClusters.
func NewService(source BarSource, clusters int, logger *slog.Logger) *Service {
	if clusters <= 0 {
		clusters = DefaultClusters
	}
	return &Service{
		source:   source,
		clusters: clusters,
		logger:   infrastructure.WithComponent(logger, "dailybars"),
	}
}

// Dashboard loads a ticker and computes its indicators, regression and
// volatility regimes
func (s *Service) Dashboard(ctx context.Context, ticker string) (*domain.DashboardView, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	bars, err := s.source.Load(ctx, ticker)
	if err != nil {
		return nil, err
	}

	rows := Indicators(bars)
	view := &domain.DashboardView{
		Ticker:     ticker,
		Bars:       rows,
		Regression: Regress(rows),
		Centroids:  ClusterVolatility(rows, ClusterOptions{K: s.clusters, Seed: DefaultSeed}),
	}

	attrs := []any{
		slog.String("ticker", ticker),
		slog.Int("bars", len(rows)),
		slog.Int("clusters", len(view.Centroids)),
	}
	if view.Regression != nil {
		attrs = append(attrs, slog.Int("regression_rows", view.Regression.N))
	}
	s.logger.InfoContext(ctx, "dashboard computed", attrs...)
	return view, nil
}

// Tickers lists the tickers a dashboard can be built for
func (s *Service) Tickers(ctx context.Context) ([]string, error) {
	return s.source.Tickers(ctx)
}
