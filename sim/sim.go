package sim

import (
	"fmt"

	"github.com/milosgajdos/go-mhe/model"
	"gonum.org/v1/gonum/mat"
)

// Config configures a measurement Source
type Config struct {
	// TStep is the sampling period
	TStep float64
	// Substeps is the number of RK4 integration substeps per sampling
	// period; defaults to 1
	Substeps int
	// X0 is the initial process state
	X0 mat.Vector
	// U is the held input value; may be nil for models without inputs
	U mat.Vector
	// TVP is the held time-varying parameter value
	TVP mat.Vector
	// P is the model parameter value
	P mat.Vector
	// Noise is optional measurement noise
	Noise *Gaussian
}

// Source simulates a process model forward in time and produces its
// measurements, optionally corrupted by Gaussian noise. It is the test
// side counterpart of an estimator: both consume the same model.
type Source struct {
	m    *model.Model
	h    float64
	nsub int

	x   *mat.VecDense
	u   *mat.VecDense
	tvp *mat.VecDense
	p   *mat.VecDense
	t   float64

	noise *Gaussian

	// RK4 scratch
	k1, k2, k3, k4, xs *mat.VecDense
}

// NewSource creates a new measurement Source for the given model and
// returns it. It returns error if the model has algebraic symbols
// (the simulator integrates pure ODE models only), the step size is
// not positive, or a held vector has the wrong size.
func NewSource(m *model.Model, c Config) (*Source, error) {
	nx, nu, nz, _ := m.SystemDims()
	if nz > 0 {
		return nil, fmt.Errorf("cannot simulate a model with algebraic symbols")
	}
	if c.TStep <= 0 {
		return nil, fmt.Errorf("invalid step size: %f", c.TStep)
	}
	if c.Substeps < 0 {
		return nil, fmt.Errorf("invalid substep count: %d", c.Substeps)
	}

	x := mat.NewVecDense(nx, nil)
	if c.X0 != nil {
		if c.X0.Len() != nx {
			return nil, fmt.Errorf("invalid initial state length: want %d, got %d", nx, c.X0.Len())
		}
		x.CloneFromVec(c.X0)
	}

	u, err := held("input", c.U, nu)
	if err != nil {
		return nil, err
	}
	tvp, err := held("time-varying parameter", c.TVP, m.TVP().Len())
	if err != nil {
		return nil, err
	}
	p, err := held("parameter", c.P, m.P().Len())
	if err != nil {
		return nil, err
	}

	nsub := c.Substeps
	if nsub == 0 {
		nsub = 1
	}

	return &Source{
		m:     m,
		h:     c.TStep,
		nsub:  nsub,
		x:     x,
		u:     u,
		tvp:   tvp,
		p:     p,
		noise: c.Noise,
		k1:    mat.NewVecDense(nx, nil),
		k2:    mat.NewVecDense(nx, nil),
		k3:    mat.NewVecDense(nx, nil),
		k4:    mat.NewVecDense(nx, nil),
		xs:    mat.NewVecDense(nx, nil),
	}, nil
}

func held(kind string, v mat.Vector, want int) (*mat.VecDense, error) {
	if want == 0 {
		return nil, nil
	}
	out := mat.NewVecDense(want, nil)
	if v != nil {
		if v.Len() != want {
			return nil, fmt.Errorf("invalid %s length: want %d, got %d", kind, want, v.Len())
		}
		out.CloneFromVec(v)
	}
	return out, nil
}

// Step advances the simulated process by one sampling period and
// returns the (possibly noisy) measurement taken after the step
func (s *Source) Step() *mat.VecDense {
	h := s.h / float64(s.nsub)

	for i := 0; i < s.nsub; i++ {
		// classic RK4 stage evaluations
		s.m.RHS(s.k1, s.x, s.u, nil, s.tvp, s.p)

		s.xs.AddScaledVec(s.x, h/2.0, s.k1)
		s.m.RHS(s.k2, s.xs, s.u, nil, s.tvp, s.p)

		s.xs.AddScaledVec(s.x, h/2.0, s.k2)
		s.m.RHS(s.k3, s.xs, s.u, nil, s.tvp, s.p)

		s.xs.AddScaledVec(s.x, h, s.k3)
		s.m.RHS(s.k4, s.xs, s.u, nil, s.tvp, s.p)

		s.x.AddScaledVec(s.x, h/6.0, s.k1)
		s.x.AddScaledVec(s.x, h/3.0, s.k2)
		s.x.AddScaledVec(s.x, h/3.0, s.k3)
		s.x.AddScaledVec(s.x, h/6.0, s.k4)
	}
	s.t += s.h

	_, _, _, ny := s.m.SystemDims()
	y := mat.NewVecDense(ny, nil)
	s.m.Measure(y, s.x, s.u, nil, s.tvp, s.p)

	if s.noise != nil {
		y.AddVec(y, s.noise.Sample())
	}

	return y
}

// State returns a copy of the current simulated state
func (s *Source) State() *mat.VecDense {
	x := mat.NewVecDense(s.x.Len(), nil)
	x.CloneFromVec(s.x)

	return x
}

// Time returns the current simulation time
func (s *Source) Time() float64 {
	return s.t
}
