package estimator

import (
	mhe "github.com/milosgajdos/go-mhe"
	"gonum.org/v1/gonum/mat"
)

// ConsFunc evaluates a nonlinear constraint expression into dst.
// The expression is evaluated at the node state of every horizon step.
type ConsFunc func(dst *mat.VecDense, x, u, z, tvp, p mat.Vector)

type nlCon struct {
	name string
	size int
	fn   ConsFunc
	ub   float64
}

// SetNLCons adds a nonlinear constraint cons(x,u,z,tvp,p) <= ub,
// enforced at every step of the horizon. size is the number of rows of
// the constraint expression.
// SetNLCons fails with StateError once Setup was called.
func (e *MHE) SetNLCons(name string, size int, fn ConsFunc, ub float64) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetNLCons", Msg: "cannot add constraints after setup"}
	}
	if name == "" {
		return &mhe.ConfigurationError{Op: "SetNLCons", Msg: "empty constraint name"}
	}
	if size < 1 {
		return &mhe.ConfigurationError{Op: "SetNLCons", Msg: "constraint size must be positive"}
	}
	if fn == nil {
		return &mhe.ConfigurationError{Op: "SetNLCons", Msg: "nil constraint function"}
	}
	for _, c := range e.nlCons {
		if c.name == name {
			return &mhe.ConfigurationError{Op: "SetNLCons", Msg: "duplicate constraint name: " + name}
		}
	}

	e.nlCons = append(e.nlCons, nlCon{name: name, size: size, fn: fn, ub: ub})

	return nil
}
