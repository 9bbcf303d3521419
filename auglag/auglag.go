package auglag

import (
	"fmt"
	"math"
	"time"

	mhe "github.com/milosgajdos/go-mhe"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Options configure the solver. Zero-valued fields are replaced by the
// corresponding DefaultOptions values when the solver is constructed.
type Options struct {
	// MaxOuterIter limits the number of multiplier updates
	MaxOuterIter int
	// MaxInnerIter limits the iterations of each inner minimization
	MaxInnerIter int
	// ConsTol is the feasibility tolerance on constraint violation
	ConsTol float64
	// GradTol is the gradient tolerance of the inner minimization
	GradTol float64
	// InitPenalty is the initial quadratic penalty weight
	InitPenalty float64
	// PenaltyGrowth is the penalty growth factor applied when the
	// constraint violation stalls
	PenaltyGrowth float64
	// MaxPenalty caps the penalty weight
	MaxPenalty float64
}

// DefaultOptions returns the safe default solver options
func DefaultOptions() Options {
	return Options{
		MaxOuterIter:  30,
		MaxInnerIter:  400,
		ConsTol:       1e-6,
		GradTol:       1e-6,
		InitPenalty:   10.0,
		PenaltyGrowth: 10.0,
		MaxPenalty:    1e12,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxOuterIter == 0 {
		o.MaxOuterIter = def.MaxOuterIter
	}
	if o.MaxInnerIter == 0 {
		o.MaxInnerIter = def.MaxInnerIter
	}
	if o.ConsTol == 0 {
		o.ConsTol = def.ConsTol
	}
	if o.GradTol == 0 {
		o.GradTol = def.GradTol
	}
	if o.InitPenalty == 0 {
		o.InitPenalty = def.InitPenalty
	}
	if o.PenaltyGrowth == 0 {
		o.PenaltyGrowth = def.PenaltyGrowth
	}
	if o.MaxPenalty == 0 {
		o.MaxPenalty = def.MaxPenalty
	}
	return o
}

// Solver solves a nonlinear program with an augmented Lagrangian outer
// loop around quasi-Newton inner minimizations. General constraints
// and variable bounds enter through Powell-Hestenes-Rockafellar
// multiplier terms; gradients are estimated with central finite
// differences. Solver implements mhe.Solver.
//
// A Solver owns scratch buffers and must not be shared across
// concurrent Solve calls.
type Solver struct {
	prob *mhe.Problem
	opts Options
}

// New constructs a Solver for the given problem, merging opts over the
// defaults. It returns error if the problem description is incomplete.
func New(prob *mhe.Problem, opts Options) (*Solver, error) {
	if prob == nil {
		return nil, fmt.Errorf("nil problem")
	}
	if prob.NumVars <= 0 {
		return nil, fmt.Errorf("invalid number of decision variables: %d", prob.NumVars)
	}
	if prob.Objective == nil {
		return nil, fmt.Errorf("missing objective")
	}
	if prob.NumCons > 0 {
		if prob.Constraints == nil {
			return nil, fmt.Errorf("missing constraint function for %d constraints", prob.NumCons)
		}
		if len(prob.ConsLower) != prob.NumCons || len(prob.ConsUpper) != prob.NumCons {
			return nil, fmt.Errorf("invalid constraint bound lengths: %d, %d", len(prob.ConsLower), len(prob.ConsUpper))
		}
	}

	return &Solver{prob: prob, opts: opts.withDefaults()}, nil
}

// Solve minimizes the problem objective subject to its constraints and
// the supplied variable bounds, starting from guess with parameter
// values p. Non-convergence is reported through Stats, not as an
// error: the best point found is still returned.
func (s *Solver) Solve(guess, lb, ub, p mat.Vector) (*mhe.Solution, mhe.Stats, error) {
	start := time.Now()
	n, m := s.prob.NumVars, s.prob.NumCons

	if guess == nil || guess.Len() != n {
		return nil, mhe.Stats{}, fmt.Errorf("invalid initial guess")
	}
	if lb == nil || lb.Len() != n || ub == nil || ub.Len() != n {
		return nil, mhe.Stats{}, fmt.Errorf("invalid variable bounds")
	}
	np := 0
	if p != nil {
		np = p.Len()
	}
	if np != s.prob.NumParams {
		return nil, mhe.Stats{}, fmt.Errorf("invalid parameter vector length: want %d, got %d", s.prob.NumParams, np)
	}

	x := make([]float64, n)
	lbs := make([]float64, n)
	ubs := make([]float64, n)
	for i := 0; i < n; i++ {
		lbs[i], ubs[i] = lb.AtVec(i), ub.AtVec(i)
		x[i] = math.Min(math.Max(guess.AtVec(i), lbs[i]), ubs[i])
	}
	pv := make([]float64, np)
	for i := 0; i < np; i++ {
		pv[i] = p.AtVec(i)
	}

	cbuf := make([]float64, m)
	evalCons := func(v []float64) []float64 {
		if m > 0 {
			s.prob.Constraints(cbuf, v, pv)
		}
		return cbuf
	}

	// one multiplier per finite constraint side
	lamLo := make([]float64, m)
	lamHi := make([]float64, m)
	bndLo := make([]float64, n)
	bndHi := make([]float64, n)

	mu := s.opts.InitPenalty

	// phr is the multiplier term for one constraint side with
	// signed violation d (positive means violated)
	phr := func(lam, d float64) float64 {
		t := math.Max(0.0, lam+mu*d)
		return (t*t - lam*lam) / (2.0 * mu)
	}

	lagrangian := func(v []float64) float64 {
		l := s.prob.Objective(v, pv)
		c := evalCons(v)
		for i := 0; i < m; i++ {
			if !math.IsInf(s.prob.ConsUpper[i], 1) {
				l += phr(lamHi[i], c[i]-s.prob.ConsUpper[i])
			}
			if !math.IsInf(s.prob.ConsLower[i], -1) {
				l += phr(lamLo[i], s.prob.ConsLower[i]-c[i])
			}
		}
		for i := 0; i < n; i++ {
			if !math.IsInf(ubs[i], 1) {
				l += phr(bndHi[i], v[i]-ubs[i])
			}
			if !math.IsInf(lbs[i], -1) {
				l += phr(bndLo[i], lbs[i]-v[i])
			}
		}
		return l
	}

	fdSettings := &fd.Settings{Formula: fd.Central}
	innerProb := optimize.Problem{
		Func: lagrangian,
		Grad: func(grad, v []float64) {
			fd.Gradient(grad, lagrangian, v, fdSettings)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: s.opts.GradTol,
		MajorIterations:   s.opts.MaxInnerIter,
	}

	stats := mhe.Stats{Status: "max outer iterations"}
	prevViol := math.Inf(1)

	for outer := 0; outer < s.opts.MaxOuterIter; outer++ {
		stats.Iterations = outer + 1

		res, err := optimize.Minimize(innerProb, x, settings, &optimize.LBFGS{})
		if res == nil {
			stats.Status = fmt.Sprintf("inner solver failure: %v", err)
			break
		}
		copy(x, res.X)

		// multiplier updates and feasibility measure
		viol := 0.0
		c := evalCons(x)
		for i := 0; i < m; i++ {
			if !math.IsInf(s.prob.ConsUpper[i], 1) {
				d := c[i] - s.prob.ConsUpper[i]
				lamHi[i] = math.Max(0.0, lamHi[i]+mu*d)
				viol = math.Max(viol, d)
			}
			if !math.IsInf(s.prob.ConsLower[i], -1) {
				d := s.prob.ConsLower[i] - c[i]
				lamLo[i] = math.Max(0.0, lamLo[i]+mu*d)
				viol = math.Max(viol, d)
			}
		}
		for i := 0; i < n; i++ {
			if !math.IsInf(ubs[i], 1) {
				d := x[i] - ubs[i]
				bndHi[i] = math.Max(0.0, bndHi[i]+mu*d)
				viol = math.Max(viol, d)
			}
			if !math.IsInf(lbs[i], -1) {
				d := lbs[i] - x[i]
				bndLo[i] = math.Max(0.0, bndLo[i]+mu*d)
				viol = math.Max(viol, d)
			}
		}

		if viol <= s.opts.ConsTol {
			stats.Success = true
			stats.Status = "converged"
			break
		}

		// grow the penalty when feasibility stalls
		if viol > 0.25*prevViol {
			mu = math.Min(mu*s.opts.PenaltyGrowth, s.opts.MaxPenalty)
		}
		prevViol = viol
	}

	stats.Runtime = time.Since(start)

	var mult *mat.VecDense
	if m > 0 {
		mult = mat.NewVecDense(m, nil)
		for i := 0; i < m; i++ {
			mult.SetVec(i, lamHi[i]-lamLo[i])
		}
	}

	sol := &mhe.Solution{
		X:           mat.NewVecDense(n, x),
		Objective:   s.prob.Objective(x, pv),
		Multipliers: mult,
	}

	return sol, stats, nil
}
