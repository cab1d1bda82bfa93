package dailybars

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tickpulse/pkg/contracts/domain"
)

// minRegressionRows leaves at least one residual degree of freedom
const minRegressionRows = 3

// Regress fits Returns = alpha + beta*Volatility20 by ordinary least squares
// over the complete rows. It returns nil when fewer than three rows qualify or
// Volatility20 does not vary.
func Regress(rows []domain.BarIndicators) *domain.RegressionSummary {
	var x, y []float64
	for _, r := range rows {
		if Complete(r) && !math.IsInf(r.Returns, 0) && !math.IsInf(r.Volatility20, 0) {
			x = append(x, r.Volatility20)
			y = append(y, r.Returns)
		}
	}
	n := len(x)
	if n < minRegressionRows {
		return nil
	}

	xMean := stat.Mean(x, nil)
	var sxx float64
	for _, v := range x {
		sxx += (v - xMean) * (v - xMean)
	}
	if sxx == 0 {
		return nil
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)

	var ssr float64
	for i := range x {
		e := y[i] - (alpha + beta*x[i])
		ssr += e * e
	}
	s2 := ssr / float64(n-2)
	betaSE := math.Sqrt(s2 / sxx)
	alphaSE := math.Sqrt(s2 * (1/float64(n) + xMean*xMean/sxx))

	return &domain.RegressionSummary{
		N:          n,
		Alpha:      alpha,
		Beta:       beta,
		RSquared:   stat.RSquared(x, y, nil, alpha, beta),
		AlphaSE:    alphaSE,
		BetaSE:     betaSE,
		AlphaTStat: alpha / alphaSE,
		BetaTStat:  beta / betaSE,
	}
}
