package mhe

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Problem is a compiled description of a constrained nonlinear program
//
//	min  f(v; p)
//	s.t. gl <= g(v; p) <= gu
//	     lb <= v <= ub
//
// over the flat decision vector v with the flat parameter vector p.
// A Problem is built once and never mutated afterwards.
type Problem struct {
	// NumVars is the number of decision variables
	NumVars int
	// NumParams is the number of problem parameters
	NumParams int
	// NumCons is the number of general constraints
	NumCons int
	// Objective evaluates the scalar objective f(v; p)
	Objective func(v, p []float64) float64
	// Constraints evaluates the general constraints g(v; p) into dst.
	// dst has length NumCons.
	Constraints func(dst, v, p []float64)
	// ConsLower and ConsUpper are the constraint bounds gl and gu.
	// Equality constraints have ConsLower[i] == ConsUpper[i].
	ConsLower []float64
	ConsUpper []float64
}

// Solution is the result of one Problem solve
type Solution struct {
	// X is the optimal decision vector
	X *mat.VecDense
	// Objective is the objective value at X
	Objective float64
	// Multipliers are the Lagrange multiplier estimates of the
	// general constraints, one per constraint row
	Multipliers *mat.VecDense
}

// Stats are solve statistics reported by a Solver.
// Non-convergence is reported here rather than as an error:
// a receding horizon estimator keeps using the returned point.
type Stats struct {
	// Success indicates whether the solver converged
	Success bool
	// Status is a short human readable solver status
	Status string
	// Iterations is the number of (outer) solver iterations
	Iterations int
	// Runtime is the wall clock duration of the solve
	Runtime time.Duration
}

// Solver solves a Problem for given initial guess, decision variable
// bounds and parameter values. Solve is synchronous and blocking.
type Solver interface {
	Solve(guess, lb, ub, p mat.Vector) (*Solution, Stats, error)
}

// History is an append-only sink recording per-step estimator trajectories
type History interface {
	// InitStorage clears all recorded trajectories
	InitStorage()
	// SetMeta stores estimator meta data
	SetMeta(meta map[string]interface{})
	// Update appends one record for the named quantity
	Update(name string, val mat.Vector) error
}
