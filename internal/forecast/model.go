package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// ridge penalty keeping the initial regression solvable when the
	// differenced regressors are constant or collinear
	ridgeLambda = 1e-6

	iterationsPerRound = 500
	maxRounds          = 40
)

// Model is a regression with ARIMA(1,1,1) errors:
//
//	y_t = x_t'β + u_t,  (1 - φL)(1 - L)u_t = (1 + θL)ε_t
//
// estimated by conditional sum of squares on first differences.
// Stationarity and invertibility are not enforced.
type Model struct {
	Beta   []float64 `json:"beta"`
	Phi    float64   `json:"phi"`
	Theta  float64   `json:"theta"`
	Sigma2 float64   `json:"sigma2"`
	SSE    float64   `json:"sse"`
	NObs   int       `json:"nobs"`
	AIC    *float64  `json:"aic,omitempty"`
	BIC    *float64  `json:"bic,omitempty"`

	// state at the end of the sample, needed to start the forecast recursion
	lastY     float64
	lastX     []float64
	lastW     float64
	lastEps   float64
	converged bool
}

// DegenerateInterval reports whether the differenced series has no more
// points than the regression and ARMA terms can fit exactly. The residual
// variance is then zero and the interval collapses onto the point forecast.
func (m *Model) DegenerateInterval() bool {
	return m.NObs-1 <= len(m.Beta)+1
}

// Converged reports whether the optimiser stopped on its convergence test
// rather than on the round limit.
func (m *Model) Converged() bool {
	return m.converged
}

// Fit estimates the model from a level series y and its regressors x, where
// x[t] holds the exogenous values for y[t]. It needs at least two
// observations.
func Fit(ctx context.Context, y []float64, x [][]float64) (*Model, error) {
	n := len(y)
	if n == 0 {
		return nil, ErrNoData
	}
	if n < 2 {
		return nil, &FitError{Reason: "at least two observations are required for first differencing"}
	}
	if len(x) != n {
		return nil, &FitError{Reason: fmt.Sprintf("regressor rows (%d) do not match observations (%d)", len(x), n)}
	}
	k := len(x[0])
	for i, row := range x {
		if len(row) != k {
			return nil, &FitError{Reason: fmt.Sprintf("regressor row %d has %d columns, want %d", i, len(row), k)}
		}
	}
	if !allFinite(y) {
		return nil, &FitError{Reason: "observations contain non-finite values"}
	}
	for _, row := range x {
		if !allFinite(row) {
			return nil, &FitError{Reason: "regressors contain non-finite values"}
		}
	}

	dy, dx := difference(y, x)

	beta, err := initialBeta(dy, dx, k)
	if err != nil {
		return nil, &FitError{Reason: "initial regression", Err: err}
	}

	// parameter vector: β_1..β_k, φ, θ
	params := append(append([]float64{}, beta...), 0, 0)
	objective := func(p []float64) float64 {
		sse, _, _ := css(dy, dx, p[:k], p[k], p[k+1])
		if math.IsNaN(sse) || math.IsInf(sse, 0) {
			return math.MaxFloat64
		}
		return sse
	}

	converged := false
	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := optimize.Minimize(
			optimize.Problem{Func: objective},
			params,
			&optimize.Settings{
				MajorIterations: iterationsPerRound,
				Converger: &optimize.FunctionConverge{
					Absolute:   1e-12,
					Relative:   1e-10,
					Iterations: 100,
				},
			},
			&optimize.NelderMead{},
		)
		if result == nil {
			return nil, &FitError{Reason: "optimiser returned no result", Err: err}
		}
		if result.Status != optimize.IterationLimit && err != nil {
			return nil, &FitError{Reason: "optimiser failed", Err: err}
		}

		params = result.X
		if result.Status != optimize.IterationLimit {
			converged = true
			break
		}
	}

	sse, lastW, lastEps := css(dy, dx, params[:k], params[k], params[k+1])
	if math.IsNaN(sse) || math.IsInf(sse, 0) || !allFinite(params) {
		return nil, &FitError{Reason: "non-finite parameter estimates"}
	}

	nDiff := float64(len(dy))
	m := &Model{
		Beta:      append([]float64{}, params[:k]...),
		Phi:       params[k],
		Theta:     params[k+1],
		Sigma2:    sse / nDiff,
		SSE:       sse,
		NObs:      n,
		lastY:     y[n-1],
		lastX:     append([]float64{}, x[n-1]...),
		lastW:     lastW,
		lastEps:   lastEps,
		converged: converged,
	}
	m.AIC, m.BIC = informationCriteria(nDiff, sse, float64(k+3))

	return m, nil
}

// Forecast produces point forecasts and their variances for future regressor
// rows, one step per row, continuing from the end of the fitted sample.
func (m *Model) Forecast(future [][]float64) (mean, variance []float64, err error) {
	h := len(future)
	mean = make([]float64, h)
	variance = make([]float64, h)

	prevX := m.lastX
	level := m.lastY
	w := m.lastW
	for i, row := range future {
		if len(row) != len(m.Beta) {
			return nil, nil, fmt.Errorf("future regressor row %d has %d columns, want %d", i, len(row), len(m.Beta))
		}

		var wNext float64
		if i == 0 {
			wNext = m.Phi*w + m.Theta*m.lastEps
		} else {
			wNext = m.Phi * w
		}
		w = wNext

		var dxb float64
		for j, b := range m.Beta {
			dxb += b * (row[j] - prevX[j])
		}
		level += dxb + w
		mean[i] = level
		prevX = row
	}

	psi := psiWeights(m.Phi, m.Theta, h)
	var cum float64
	for i := 0; i < h; i++ {
		cum += psi[i] * psi[i]
		variance[i] = m.Sigma2 * cum
	}

	if !allFinite(mean) || !allFinite(variance) {
		return nil, nil, errors.New("forecast diverged to non-finite values")
	}
	return mean, variance, nil
}

// Interval returns the two-sided normal quantile for confidence level 1-alpha.
func Interval(alpha float64) float64 {
	return distuv.UnitNormal.Quantile(1 - alpha/2)
}

// psiWeights returns the MA(∞) weights of the integrated ARMA(1,1):
// ψ_0 = 1, ψ_1 = 1 + φ + θ, ψ_j = (1+φ)ψ_{j-1} - φψ_{j-2}.
func psiWeights(phi, theta float64, h int) []float64 {
	psi := make([]float64, h)
	if h == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < h; j++ {
		psi[j] = (1 + phi) * psi[j-1]
		if j >= 2 {
			psi[j] -= phi * psi[j-2]
		}
		if j == 1 {
			psi[j] += theta
		}
	}
	return psi
}

// css runs the ARMA(1,1) error recursion on the differenced series and returns
// the sum of squared innovations with the final error and innovation.
func css(dy []float64, dx [][]float64, beta []float64, phi, theta float64) (sse, lastW, lastEps float64) {
	var wPrev, ePrev float64
	for t := range dy {
		w := dy[t] - floats.Dot(dx[t], beta)
		e := w - phi*wPrev - theta*ePrev
		sse += e * e
		wPrev, ePrev = w, e
	}
	return sse, wPrev, ePrev
}

func difference(y []float64, x [][]float64) ([]float64, [][]float64) {
	n := len(y)
	dy := make([]float64, n-1)
	dx := make([][]float64, n-1)
	for t := 1; t < n; t++ {
		dy[t-1] = y[t] - y[t-1]
		row := make([]float64, len(x[t]))
		floats.SubTo(row, x[t], x[t-1])
		dx[t-1] = row
	}
	return dy, dx
}

// initialBeta solves the ridge-augmented least squares problem
// [ΔX; √λI]β = [Δy; 0] by QR decomposition.
func initialBeta(dy []float64, dx [][]float64, k int) ([]float64, error) {
	m := len(dy)
	a := mat.NewDense(m+k, k, nil)
	b := mat.NewVecDense(m+k, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			a.Set(i, j, dx[i][j])
		}
		b.SetVec(i, dy[i])
	}
	sqrtLambda := math.Sqrt(ridgeLambda)
	for j := 0; j < k; j++ {
		a.Set(m+j, j, sqrtLambda)
	}

	var qr mat.QR
	qr.Factorize(a)

	coeffs := mat.NewVecDense(k, nil)
	if err := qr.SolveVecTo(coeffs, false, b); err != nil {
		return nil, err
	}

	beta := make([]float64, k)
	for j := range beta {
		beta[j] = coeffs.AtVec(j)
	}
	return beta, nil
}

// informationCriteria returns AIC and BIC from the residual sum of squares,
// or nil when the fit is exact and the criteria are undefined.
func informationCriteria(n, sse, k float64) (*float64, *float64) {
	if sse <= 0 || n <= 0 {
		return nil, nil
	}
	ll := n * math.Log(sse/n)
	aic := 2*k + ll
	bic := k*math.Log(n) + ll
	return &aic, &bic
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
