package model

import (
	"fmt"

	"github.com/milosgajdos/go-mhe/structvec"
	"gonum.org/v1/gonum/mat"
)

// Func is a compiled model expression evaluator. It writes its result
// into dst. Any of x, u, z, tvp, p may be nil when the corresponding
// symbol set is empty.
type Func func(dst *mat.VecDense, x, u, z, tvp, p mat.Vector)

// Config declares the symbol sets and expression evaluators of a model.
// States and Measurements are mandatory; the remaining sets may be empty.
type Config struct {
	// States declares the state symbols
	States []structvec.Entry
	// Inputs declares the input symbols
	Inputs []structvec.Entry
	// Algebraics declares the algebraic symbols
	Algebraics []structvec.Entry
	// Params declares the model parameter symbols
	Params []structvec.Entry
	// TVParams declares the time-varying parameter symbols
	TVParams []structvec.Entry
	// Measurements declares the measurement symbols
	Measurements []structvec.Entry
	// Aux declares the auxiliary expression symbols
	Aux []structvec.Entry

	// RHS evaluates the continuous state derivative dx/dt
	RHS Func
	// AlgFunc evaluates the algebraic residual; mandatory iff
	// Algebraics is non-empty
	AlgFunc Func
	// MeasFunc evaluates the measurement expression
	MeasFunc Func
	// AuxFunc evaluates the auxiliary expressions; mandatory iff
	// Aux is non-empty
	AuxFunc Func
}

// Model is a continuous-time process model with labeled symbol sets and
// compiled expression evaluators. A Model is immutable once created.
type Model struct {
	x   *structvec.Spec
	u   *structvec.Spec
	z   *structvec.Spec
	p   *structvec.Spec
	tvp *structvec.Spec
	y   *structvec.Spec
	aux *structvec.Spec

	rhs  Func
	alg  Func
	meas Func
	auxF Func
}

// New creates a new Model from the given config and returns it.
// It returns error if a symbol set is invalid, no states are declared,
// or a mandatory evaluator is missing.
func New(c Config) (*Model, error) {
	x, err := structvec.NewSpec(c.States...)
	if err != nil {
		return nil, fmt.Errorf("invalid state symbols: %v", err)
	}
	if x.Len() == 0 {
		return nil, fmt.Errorf("model declares no states")
	}
	u, err := structvec.NewSpec(c.Inputs...)
	if err != nil {
		return nil, fmt.Errorf("invalid input symbols: %v", err)
	}
	z, err := structvec.NewSpec(c.Algebraics...)
	if err != nil {
		return nil, fmt.Errorf("invalid algebraic symbols: %v", err)
	}
	p, err := structvec.NewSpec(c.Params...)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter symbols: %v", err)
	}
	tvp, err := structvec.NewSpec(c.TVParams...)
	if err != nil {
		return nil, fmt.Errorf("invalid time-varying parameter symbols: %v", err)
	}
	y, err := structvec.NewSpec(c.Measurements...)
	if err != nil {
		return nil, fmt.Errorf("invalid measurement symbols: %v", err)
	}
	if y.Len() == 0 {
		return nil, fmt.Errorf("model declares no measurements")
	}
	aux, err := structvec.NewSpec(c.Aux...)
	if err != nil {
		return nil, fmt.Errorf("invalid auxiliary symbols: %v", err)
	}

	if c.RHS == nil {
		return nil, fmt.Errorf("missing RHS evaluator")
	}
	if c.MeasFunc == nil {
		return nil, fmt.Errorf("missing measurement evaluator")
	}
	if z.Len() > 0 && c.AlgFunc == nil {
		return nil, fmt.Errorf("missing algebraic evaluator for %d algebraic symbols", z.Len())
	}
	if aux.Len() > 0 && c.AuxFunc == nil {
		return nil, fmt.Errorf("missing auxiliary evaluator for %d auxiliary symbols", aux.Len())
	}

	return &Model{
		x:    x,
		u:    u,
		z:    z,
		p:    p,
		tvp:  tvp,
		y:    y,
		aux:  aux,
		rhs:  c.RHS,
		alg:  c.AlgFunc,
		meas: c.MeasFunc,
		auxF: c.AuxFunc,
	}, nil
}

// X returns the state symbol spec
func (m *Model) X() *structvec.Spec { return m.x }

// U returns the input symbol spec
func (m *Model) U() *structvec.Spec { return m.u }

// Z returns the algebraic symbol spec
func (m *Model) Z() *structvec.Spec { return m.z }

// P returns the parameter symbol spec
func (m *Model) P() *structvec.Spec { return m.p }

// TVP returns the time-varying parameter symbol spec
func (m *Model) TVP() *structvec.Spec { return m.tvp }

// Y returns the measurement symbol spec
func (m *Model) Y() *structvec.Spec { return m.y }

// Aux returns the auxiliary expression spec
func (m *Model) Aux() *structvec.Spec { return m.aux }

// SystemDims returns the model symbol set sizes
func (m *Model) SystemDims() (nx, nu, nz, ny int) {
	return m.x.Len(), m.u.Len(), m.z.Len(), m.y.Len()
}

// RHS evaluates the state derivative into dst
func (m *Model) RHS(dst *mat.VecDense, x, u, z, tvp, p mat.Vector) {
	m.rhs(dst, x, u, z, tvp, p)
}

// Alg evaluates the algebraic residual into dst.
// It is a no-op for models without algebraic symbols.
func (m *Model) Alg(dst *mat.VecDense, x, u, z, tvp, p mat.Vector) {
	if m.alg == nil {
		return
	}
	m.alg(dst, x, u, z, tvp, p)
}

// Measure evaluates the measurement expression into dst
func (m *Model) Measure(dst *mat.VecDense, x, u, z, tvp, p mat.Vector) {
	m.meas(dst, x, u, z, tvp, p)
}

// AuxEval evaluates the auxiliary expressions into dst.
// It is a no-op for models without auxiliary expressions.
func (m *Model) AuxEval(dst *mat.VecDense, x, u, z, tvp, p mat.Vector) {
	if m.auxF == nil {
		return
	}
	m.auxF(dst, x, u, z, tvp, p)
}
