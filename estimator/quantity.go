package estimator

import (
	"fmt"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/milosgajdos/go-mhe/structvec"
)

// Quantity identifies a decision variable category of the estimator.
// It is the closed set of names under which bounds and scaling can be
// declared.
type Quantity int

const (
	// QuantityState are the model states
	QuantityState Quantity = iota
	// QuantityInput are the model inputs
	QuantityInput
	// QuantityAlgebraic are the model algebraic variables
	QuantityAlgebraic
	// QuantityParamEst are the estimated parameters
	QuantityParamEst
)

// String implements fmt.Stringer
func (q Quantity) String() string {
	switch q {
	case QuantityState:
		return "state"
	case QuantityInput:
		return "input"
	case QuantityAlgebraic:
		return "algebraic"
	case QuantityParamEst:
		return "parameter"
	default:
		return fmt.Sprintf("Quantity(%d)", int(q))
	}
}

// vars returns the bound and scaling structures owned by the quantity
func (e *MHE) vars(q Quantity) (lb, ub, scaling *structvec.Vec, err error) {
	switch q {
	case QuantityState:
		return e.xLb, e.xUb, e.xScaling, nil
	case QuantityInput:
		return e.uLb, e.uUb, e.uScaling, nil
	case QuantityAlgebraic:
		return e.zLb, e.zUb, e.zScaling, nil
	case QuantityParamEst:
		return e.pEstLb, e.pEstUb, e.pEstScaling, nil
	default:
		return nil, nil, nil, &mhe.ConfigurationError{Op: "vars", Msg: fmt.Sprintf("unknown quantity: %d", int(q))}
	}
}

// SetBounds declares the lower and upper bound of every component of
// the named variable within the given quantity. Bound consistency
// (lower <= upper) is checked once during Setup.
// It fails with ConfigurationError if the variable is unknown and with
// StateError once Setup was called.
func (e *MHE) SetBounds(q Quantity, name string, lower, upper float64) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetBounds", Msg: "setting bounds after setup is prohibited"}
	}

	lb, ub, _, err := e.vars(q)
	if err != nil {
		return err
	}
	if err := lb.SetAll(name, lower); err != nil {
		return &mhe.ConfigurationError{Op: "SetBounds", Msg: fmt.Sprintf("%s %s: %v", q, name, err)}
	}
	// the name exists, the upper assignment cannot fail
	_ = ub.SetAll(name, upper)

	return nil
}

// SetScaling declares the positive scaling factor of every component
// of the named variable within the given quantity.
// It fails with ConfigurationError if the variable is unknown or the
// factor is not positive and with StateError once Setup was called.
func (e *MHE) SetScaling(q Quantity, name string, s float64) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetScaling", Msg: "setting scaling after setup is prohibited"}
	}
	if s <= 0 {
		return &mhe.ConfigurationError{Op: "SetScaling", Msg: fmt.Sprintf("scaling for %s %s must be positive, got %f", q, name, s)}
	}

	_, _, scaling, err := e.vars(q)
	if err != nil {
		return err
	}
	if err := scaling.SetAll(name, s); err != nil {
		return &mhe.ConfigurationError{Op: "SetScaling", Msg: fmt.Sprintf("%s %s: %v", q, name, err)}
	}

	return nil
}

// Bounds returns copies of the declared lower and upper bounds of the
// given quantity
func (e *MHE) Bounds(q Quantity) (lower, upper *structvec.Vec, err error) {
	lb, ub, _, err := e.vars(q)
	if err != nil {
		return nil, nil, err
	}
	return lb.Clone(), ub.Clone(), nil
}

// Scaling returns a copy of the declared scaling of the given quantity
func (e *MHE) Scaling(q Quantity) (*structvec.Vec, error) {
	_, _, scaling, err := e.vars(q)
	if err != nil {
		return nil, err
	}
	return scaling.Clone(), nil
}
