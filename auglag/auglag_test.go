package auglag

import (
	"math"
	"testing"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func unbounded(n int) (lb, ub *mat.VecDense) {
	l := make([]float64, n)
	u := make([]float64, n)
	for i := range l {
		l[i] = math.Inf(-1)
		u[i] = math.Inf(1)
	}
	return mat.NewVecDense(n, l), mat.NewVecDense(n, u)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	prob := &mhe.Problem{
		NumVars:   1,
		Objective: func(v, p []float64) float64 { return v[0] * v[0] },
	}
	s, err := New(prob, Options{})
	assert.NoError(err)
	assert.NotNil(s)
	assert.Equal(DefaultOptions().MaxOuterIter, s.opts.MaxOuterIter)

	// nil problem
	s, err = New(nil, Options{})
	assert.Nil(s)
	assert.Error(err)

	// missing objective
	s, err = New(&mhe.Problem{NumVars: 1}, Options{})
	assert.Nil(s)
	assert.Error(err)

	// constraints without evaluator
	s, err = New(&mhe.Problem{
		NumVars:   1,
		NumCons:   1,
		Objective: func(v, p []float64) float64 { return 0.0 },
	}, Options{})
	assert.Nil(s)
	assert.Error(err)
}

func TestSolveUnconstrained(t *testing.T) {
	assert := assert.New(t)

	prob := &mhe.Problem{
		NumVars: 2,
		Objective: func(v, p []float64) float64 {
			return (v[0]-3.0)*(v[0]-3.0) + (v[1]+1.0)*(v[1]+1.0)
		},
	}
	s, err := New(prob, Options{})
	assert.NoError(err)

	lb, ub := unbounded(2)
	sol, stats, err := s.Solve(mat.NewVecDense(2, nil), lb, ub, nil)
	assert.NoError(err)
	assert.True(stats.Success)
	assert.True(stats.Runtime > 0)
	assert.InDelta(3.0, sol.X.AtVec(0), 1e-4)
	assert.InDelta(-1.0, sol.X.AtVec(1), 1e-4)
	assert.InDelta(0.0, sol.Objective, 1e-6)
	assert.Nil(sol.Multipliers)
}

func TestSolveEqualityConstrained(t *testing.T) {
	assert := assert.New(t)

	// min x^2 + y^2 s.t. x + y = 2 has minimum at (1, 1)
	prob := &mhe.Problem{
		NumVars: 2,
		NumCons: 1,
		Objective: func(v, p []float64) float64 {
			return v[0]*v[0] + v[1]*v[1]
		},
		Constraints: func(dst, v, p []float64) {
			dst[0] = v[0] + v[1]
		},
		ConsLower: []float64{2.0},
		ConsUpper: []float64{2.0},
	}
	s, err := New(prob, Options{})
	assert.NoError(err)

	lb, ub := unbounded(2)
	sol, stats, err := s.Solve(mat.NewVecDense(2, nil), lb, ub, nil)
	assert.NoError(err)
	assert.True(stats.Success)
	assert.InDelta(1.0, sol.X.AtVec(0), 1e-4)
	assert.InDelta(1.0, sol.X.AtVec(1), 1e-4)
	assert.NotNil(sol.Multipliers)
	assert.Equal(1, sol.Multipliers.Len())
}

func TestSolveInequalityConstrained(t *testing.T) {
	assert := assert.New(t)

	// min x^2 + y^2 s.t. x + y >= 1 has minimum at (0.5, 0.5)
	prob := &mhe.Problem{
		NumVars: 2,
		NumCons: 1,
		Objective: func(v, p []float64) float64 {
			return v[0]*v[0] + v[1]*v[1]
		},
		Constraints: func(dst, v, p []float64) {
			dst[0] = v[0] + v[1]
		},
		ConsLower: []float64{1.0},
		ConsUpper: []float64{math.Inf(1)},
	}
	s, err := New(prob, Options{})
	assert.NoError(err)

	lb, ub := unbounded(2)
	sol, stats, err := s.Solve(mat.NewVecDense(2, nil), lb, ub, nil)
	assert.NoError(err)
	assert.True(stats.Success)
	assert.InDelta(0.5, sol.X.AtVec(0), 1e-3)
	assert.InDelta(0.5, sol.X.AtVec(1), 1e-3)
}

func TestSolveBounded(t *testing.T) {
	assert := assert.New(t)

	// min (x-3)^2 s.t. x <= 2 has minimum at the bound
	prob := &mhe.Problem{
		NumVars: 1,
		Objective: func(v, p []float64) float64 {
			return (v[0] - 3.0) * (v[0] - 3.0)
		},
	}
	s, err := New(prob, Options{})
	assert.NoError(err)

	lb := mat.NewVecDense(1, []float64{math.Inf(-1)})
	ub := mat.NewVecDense(1, []float64{2.0})
	sol, stats, err := s.Solve(mat.NewVecDense(1, nil), lb, ub, nil)
	assert.NoError(err)
	assert.True(stats.Success)
	assert.InDelta(2.0, sol.X.AtVec(0), 1e-3)
}

func TestSolveParameterized(t *testing.T) {
	assert := assert.New(t)

	prob := &mhe.Problem{
		NumVars:   1,
		NumParams: 1,
		Objective: func(v, p []float64) float64 {
			return (v[0] - p[0]) * (v[0] - p[0])
		},
	}
	s, err := New(prob, Options{})
	assert.NoError(err)

	lb, ub := unbounded(1)
	pv := mat.NewVecDense(1, []float64{7.5})
	sol, stats, err := s.Solve(mat.NewVecDense(1, nil), lb, ub, pv)
	assert.NoError(err)
	assert.True(stats.Success)
	assert.InDelta(7.5, sol.X.AtVec(0), 1e-4)

	// missing parameter vector
	_, _, err = s.Solve(mat.NewVecDense(1, nil), lb, ub, nil)
	assert.Error(err)
}

func TestSolveInfeasible(t *testing.T) {
	assert := assert.New(t)

	// x = 0 and x = 1 cannot both hold; the solve must still return a
	// point and report non-convergence through the stats
	prob := &mhe.Problem{
		NumVars: 1,
		NumCons: 2,
		Objective: func(v, p []float64) float64 {
			return v[0] * v[0]
		},
		Constraints: func(dst, v, p []float64) {
			dst[0] = v[0]
			dst[1] = v[0]
		},
		ConsLower: []float64{0.0, 1.0},
		ConsUpper: []float64{0.0, 1.0},
	}
	s, err := New(prob, Options{MaxOuterIter: 5})
	assert.NoError(err)

	lb, ub := unbounded(1)
	sol, stats, err := s.Solve(mat.NewVecDense(1, nil), lb, ub, nil)
	assert.NoError(err)
	assert.NotNil(sol)
	assert.False(stats.Success)
	assert.Equal(5, stats.Iterations)
}

func TestSolveInvalidArgs(t *testing.T) {
	assert := assert.New(t)

	prob := &mhe.Problem{
		NumVars:   2,
		Objective: func(v, p []float64) float64 { return v[0] },
	}
	s, err := New(prob, Options{})
	assert.NoError(err)

	lb, ub := unbounded(2)

	// wrong guess length
	_, _, err = s.Solve(mat.NewVecDense(1, nil), lb, ub, nil)
	assert.Error(err)

	// missing bounds
	_, _, err = s.Solve(mat.NewVecDense(2, nil), nil, ub, nil)
	assert.Error(err)
}
