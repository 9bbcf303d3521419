package colloc

import (
	"fmt"

	"github.com/milosgajdos/go-mhe/model"
	"gonum.org/v1/gonum/mat"
)

// radauPoints are the collocation points on (0, 1] for the Radau IIA
// scheme, indexed by degree
var radauPoints = map[int][]float64{
	1: {1.0},
	2: {0.333333333333333, 1.0},
	3: {0.155051025721682, 0.644948974278318, 1.0},
	4: {0.088587959512704, 0.409466864440735, 0.787659461760847, 1.0},
	5: {0.057104196114518, 0.276843013638124, 0.583590432368917, 0.860240135656219, 1.0},
}

// Transition evaluates one step of the discretization scheme.
// It writes the discretization defect and the predicted end-of-step
// state xf, given the state x0 at the step start, the intermediate
// collocation states xc (ni*deg blocks in element order), the algebraic
// values zc at the collocation points (ni*deg blocks, nil when the
// model has no algebraic symbols), the step input u and the current
// time-varying and full parameter vectors.
type Transition func(defect, xf []float64, x0 []float64, xc, zc [][]float64, u, tvp, p mat.Vector)

// Scheme is an orthogonal collocation discretization of one estimator
// step: ni finite elements per step, each with deg Radau collocation
// points. A Scheme is immutable once created.
type Scheme struct {
	deg int
	ni  int
	// tau are the collocation points including tau[0] = 0
	tau []float64
	// c[j][r] is the derivative of the j-th Lagrange polynomial at tau[r]
	c [][]float64
	// d[j] is the j-th Lagrange polynomial evaluated at 1
	d []float64
}

// NewRadau creates a Radau collocation scheme of the given degree with
// ni finite elements per step. Degrees 1 to 5 are supported.
func NewRadau(deg, ni int) (*Scheme, error) {
	points, ok := radauPoints[deg]
	if !ok {
		return nil, fmt.Errorf("unsupported collocation degree: %d", deg)
	}
	if ni < 1 {
		return nil, fmt.Errorf("invalid number of finite elements: %d", ni)
	}

	tau := append([]float64{0.0}, points...)

	c := make([][]float64, deg+1)
	d := make([]float64, deg+1)
	for j := 0; j <= deg; j++ {
		p := lagrange(tau, j)
		d[j] = polyEval(p, 1.0)

		dp := polyDeriv(p)
		c[j] = make([]float64, deg+1)
		for r := 0; r <= deg; r++ {
			c[j][r] = polyEval(dp, tau[r])
		}
	}

	return &Scheme{deg: deg, ni: ni, tau: tau, c: c, d: d}, nil
}

// Degree returns the collocation degree
func (s *Scheme) Degree() int { return s.deg }

// NI returns the number of finite elements per step
func (s *Scheme) NI() int { return s.ni }

// PointsPerStep returns the total number of intermediate collocation
// points per step
func (s *Scheme) PointsPerStep() int { return s.deg * s.ni }

// NumDefects returns the number of defect equations per step for a
// model with nx states and nz algebraic symbols
func (s *Scheme) NumDefects(nx, nz int) int {
	return s.ni * s.deg * (nx + nz)
}

// Transition compiles the per-step transition function for the given
// model and step size. The returned function is not safe for
// concurrent use: it owns preallocated scratch buffers.
func (s *Scheme) Transition(m *model.Model, h float64) Transition {
	nx, _, nz, _ := m.SystemDims()
	he := h / float64(s.ni)

	fval := mat.NewVecDense(nx, nil)
	var gval *mat.VecDense
	if nz > 0 {
		gval = mat.NewVecDense(nz, nil)
	}
	start := make([]float64, nx)

	return func(defect, xf []float64, x0 []float64, xc, zc [][]float64, u, tvp, p mat.Vector) {
		copy(start, x0)
		at := 0

		for i := 0; i < s.ni; i++ {
			// element states indexed by tau: point(0) is the element
			// start, point(j) the j-th collocation state
			point := func(j int) []float64 {
				if j == 0 {
					return start
				}
				return xc[i*s.deg+j-1]
			}

			for j := 1; j <= s.deg; j++ {
				xj := point(j)
				xv := mat.NewVecDense(nx, xj)

				var zv mat.Vector
				if nz > 0 {
					zv = mat.NewVecDense(nz, zc[i*s.deg+j-1])
				}

				// polynomial slope minus scaled dynamics
				m.RHS(fval, xv, u, zv, tvp, p)
				for n := 0; n < nx; n++ {
					sum := 0.0
					for r := 0; r <= s.deg; r++ {
						sum += s.c[r][j] * point(r)[n]
					}
					defect[at+n] = sum - he*fval.AtVec(n)
				}
				at += nx

				if nz > 0 {
					m.Alg(gval, xv, u, zv, tvp, p)
					for n := 0; n < nz; n++ {
						defect[at+n] = gval.AtVec(n)
					}
					at += nz
				}
			}

			// element end state becomes the next element start
			for n := 0; n < nx; n++ {
				sum := 0.0
				for r := 0; r <= s.deg; r++ {
					sum += s.d[r] * point(r)[n]
				}
				xf[n] = sum
			}
			copy(start, xf)
		}
	}
}

// lagrange returns the coefficients (ascending powers) of the j-th
// Lagrange basis polynomial over the points tau
func lagrange(tau []float64, j int) []float64 {
	p := []float64{1.0}
	for r := range tau {
		if r == j {
			continue
		}
		// multiply by (t - tau[r]) / (tau[j] - tau[r])
		den := tau[j] - tau[r]
		q := make([]float64, len(p)+1)
		for k, c := range p {
			q[k] += c * (-tau[r]) / den
			q[k+1] += c / den
		}
		p = q
	}
	return p
}

func polyEval(p []float64, t float64) float64 {
	v := 0.0
	for k := len(p) - 1; k >= 0; k-- {
		v = v*t + p[k]
	}
	return v
}

func polyDeriv(p []float64) []float64 {
	if len(p) <= 1 {
		return []float64{0.0}
	}
	d := make([]float64, len(p)-1)
	for k := 1; k < len(p); k++ {
		d[k-1] = float64(k) * p[k]
	}
	return d
}
