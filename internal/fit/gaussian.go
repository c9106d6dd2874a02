// Package fit fits intensity profiles to a Gaussian and converts the fitted
// width into calibrated pulse-duration measurements.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoConvergence is returned when a profile yields no usable fit. It is a
// per-frame condition; callers skip the frame and carry on.
var ErrNoConvergence = errors.New("gaussian fit did not converge")

// FWHMFactor converts a Gaussian standard deviation to its full width at
// half maximum: 2·√(2·ln 2).
var FWHMFactor = 2 * math.Sqrt(2*math.Ln2)

const (
	ftol         = 1.49012e-8 // relative cost reduction treated as converged
	xtol         = 1.49012e-8 // relative parameter step treated as converged
	lambdaStart  = 1e-3
	lambdaMin    = 1e-12
	lambdaMax    = 1e16
	minSigmaPx   = 0.5
	numParams    = 3
	minProfileSz = numParams
)

// Params are the model parameters of a·exp(-(x-x0)²/(2σ²)).
type Params struct {
	Amplitude float64
	Center    float64 // column position of the peak
	Sigma     float64 // standard deviation in columns
}

// At evaluates the model at x.
func (p Params) At(x float64) float64 {
	d := x - p.Center
	return p.Amplitude * math.Exp(-d*d/(2*p.Sigma*p.Sigma))
}

// Curve evaluates the model at columns 0..n-1.
func (p Params) Curve(n int) []float64 {
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = p.At(float64(i))
	}
	return ys
}

// Result is a successful fit with its derived, calibrated measurements.
type Result struct {
	Params

	// FWHM is the full width at half maximum in pixels. Always ≥ 0.
	FWHM float64
	// PulseDuration is FWHM scaled by the calibration factor, in fs.
	PulseDuration float64

	RSquared    float64
	Evaluations int
}

// Options configure the optimiser and acceptance checks.
type Options struct {
	// CalibrationFactor is physical time units (fs) per pixel.
	CalibrationFactor float64
	// InitialSigma seeds the width guess, in columns.
	InitialSigma float64
	// MaxEvaluations bounds model evaluations before giving up.
	MaxEvaluations int
	// MinRSquared rejects converged fits that explain too little variance.
	MinRSquared float64
}

// DefaultOptions mirrors the lab defaults.
func DefaultOptions() Options {
	return Options{
		CalibrationFactor: 0.00373,
		InitialSigma:      10,
		MaxEvaluations:    800,
		MinRSquared:       0.5,
	}
}

// Fitter runs Levenberg-Marquardt least squares. A Fitter holds no per-fit
// state and may be shared.
type Fitter struct {
	opts Options
}

// NewFitter returns a Fitter with opts; zero fields take defaults.
func NewFitter(opts Options) *Fitter {
	def := DefaultOptions()
	if !(opts.InitialSigma > 0) {
		opts.InitialSigma = def.InitialSigma
	}
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = def.MaxEvaluations
	}
	return &Fitter{opts: opts}
}

// CalibrationFactor returns the fs-per-pixel factor applied to every result.
func (f *Fitter) CalibrationFactor() float64 { return f.opts.CalibrationFactor }

// Measure derives FWHM and pulse duration from fitted params.
func (f *Fitter) Measure(p Params) Result {
	fwhm := FWHMFactor * math.Abs(p.Sigma)
	return Result{
		Params:        p,
		FWHM:          fwhm,
		PulseDuration: fwhm * f.opts.CalibrationFactor,
	}
}

// Fit fits ys sampled at columns 0..len(ys)-1, starting from amplitude =
// max(ys), center = len/2, sigma = InitialSigma. Any failure wraps
// ErrNoConvergence.
func (f *Fitter) Fit(ys []float64) (Result, error) {
	n := len(ys)
	if n < minProfileSz {
		return Result{}, fmt.Errorf("%w: profile has %d samples", ErrNoConvergence, n)
	}
	for _, v := range ys {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("%w: profile contains non-finite samples", ErrNoConvergence)
		}
	}

	p := []float64{floats.Max(ys), float64(n) / 2, f.opts.InitialSigma}
	r := mat.NewVecDense(n, nil)
	cand := mat.NewVecDense(n, nil)
	jac := mat.NewDense(n, numParams, nil)

	cost := residuals(p, ys, r)
	evals := 1
	if !isFinite(cost) {
		return Result{}, fmt.Errorf("%w: non-finite residuals at initial guess", ErrNoConvergence)
	}

	var (
		jtj    mat.Dense
		jtr    mat.VecDense
		step   mat.VecDense
		damped = mat.NewDense(numParams, numParams, nil)
		next   = make([]float64, numParams)
		lambda = lambdaStart
	)

	converged := cost == 0
	for !converged {
		jacobian(p, jac)
		jtj.Mul(jac.T(), jac)
		jtr.MulVec(jac.T(), r)

		improved := false
		for !improved {
			if evals >= f.opts.MaxEvaluations {
				return Result{}, fmt.Errorf("%w: no convergence after %d evaluations", ErrNoConvergence, evals)
			}
			if lambda > lambdaMax {
				// No descent direction left: we are at a stationary point.
				converged = true
				break
			}

			damped.Copy(&jtj)
			for i := 0; i < numParams; i++ {
				damped.Set(i, i, jtj.At(i, i)*(1+lambda))
			}
			if err := step.SolveVec(damped, &jtr); err != nil && !isCondition(err) {
				lambda *= 10
				continue
			}

			for i := range next {
				next[i] = p[i] - step.AtVec(i)
			}
			nextCost := residuals(next, ys, cand)
			evals++

			if !isFinite(nextCost) || nextCost >= cost {
				lambda *= 10
				continue
			}

			reduction := (cost - nextCost) / cost
			relStep := 0.0
			for i := range next {
				relStep = math.Max(relStep, math.Abs(step.AtVec(i))/(math.Abs(p[i])+xtol))
			}

			copy(p, next)
			r.CopyVec(cand)
			cost = nextCost
			lambda = math.Max(lambda/10, lambdaMin)
			improved = true

			if reduction < ftol || relStep < xtol || cost == 0 {
				converged = true
			}
		}
	}

	return f.accept(Params{Amplitude: p[0], Center: p[1], Sigma: math.Abs(p[2])}, ys, cost, evals)
}

// accept applies the peak sanity checks to a converged solution.
func (f *Fitter) accept(p Params, ys []float64, cost float64, evals int) (Result, error) {
	n := float64(len(ys))
	switch {
	case !isFinite(p.Amplitude) || !isFinite(p.Center) || !isFinite(p.Sigma):
		return Result{}, fmt.Errorf("%w: non-finite parameters", ErrNoConvergence)
	case p.Sigma <= minSigmaPx:
		return Result{}, fmt.Errorf("%w: sigma collapsed to %.3g px", ErrNoConvergence, p.Sigma)
	case p.Sigma > n:
		return Result{}, fmt.Errorf("%w: sigma %.1f px exceeds profile width", ErrNoConvergence, p.Sigma)
	case p.Center < 0 || p.Center > n-1:
		return Result{}, fmt.Errorf("%w: centre %.1f outside profile", ErrNoConvergence, p.Center)
	case p.Amplitude <= 0:
		return Result{}, fmt.Errorf("%w: non-positive amplitude %.3g", ErrNoConvergence, p.Amplitude)
	}

	mean := stat.Mean(ys, nil)
	var total float64
	for _, v := range ys {
		total += (v - mean) * (v - mean)
	}
	if total == 0 {
		return Result{}, fmt.Errorf("%w: flat profile", ErrNoConvergence)
	}
	r2 := 1 - cost/total
	if r2 < f.opts.MinRSquared {
		return Result{}, fmt.Errorf("%w: R² %.3f below %.3f", ErrNoConvergence, r2, f.opts.MinRSquared)
	}

	res := f.Measure(p)
	res.RSquared = r2
	res.Evaluations = evals
	return res, nil
}

// residuals fills r with model - ys and returns the sum of squares.
func residuals(p, ys []float64, r *mat.VecDense) float64 {
	a, x0, s := p[0], p[1], p[2]
	twoS2 := 2 * s * s
	if twoS2 == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i, y := range ys {
		d := float64(i) - x0
		v := a*math.Exp(-d*d/twoS2) - y
		r.SetVec(i, v)
		sum += v * v
	}
	return sum
}

// jacobian fills j with ∂model/∂(a, x0, σ) at every column.
func jacobian(p []float64, j *mat.Dense) {
	a, x0, s := p[0], p[1], p[2]
	rows, _ := j.Dims()
	s2 := s * s
	for i := 0; i < rows; i++ {
		d := float64(i) - x0
		e := math.Exp(-d * d / (2 * s2))
		j.Set(i, 0, e)
		j.Set(i, 1, a*e*d/s2)
		j.Set(i, 2, a*e*d*d/(s2*s))
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// isCondition reports whether err only warns about conditioning; the
// solution is still usable.
func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}
