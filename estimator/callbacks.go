package estimator

import (
	"fmt"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/milosgajdos/go-mhe/structvec"
)

// TVPFunc supplies the time-varying parameter values for the estimation
// window starting at time t. The returned Vec must match GetTVPTemplate.
type TVPFunc func(t float64) *structvec.Vec

// PFunc supplies the fixed parameter values at time t.
// The returned Vec must match GetPTemplate.
type PFunc func(t float64) *structvec.Vec

// YFunc supplies the window of past measurements at time t.
// The returned Vec must match GetYTemplate.
type YFunc func(t float64) *structvec.Vec

// GetTVPTemplate returns a zero-valued template for the time-varying
// parameter callback, one block per horizon step. The horizon must be
// set through SetParam before a template can be requested; a zero
// horizon yields a single-step template.
func (e *MHE) GetTVPTemplate() *structvec.Vec {
	return repeatTemplate("tvp", e.m.TVP().Len(), e.nHorizon)
}

// GetPTemplate returns a zero-valued template for the fixed parameter
// callback
func (e *MHE) GetPTemplate() *structvec.Vec {
	return e.part.Fixed().Zero()
}

// GetYTemplate returns a zero-valued template for the measurement
// callback, one block per horizon step
func (e *MHE) GetYTemplate() *structvec.Vec {
	return repeatTemplate("y", e.m.Y().Len(), e.nHorizon)
}

func repeatTemplate(name string, size, n int) *structvec.Vec {
	if n < 1 {
		n = 1
	}
	spec, _ := structvec.NewSpec(structvec.Entry{Name: name, Size: size, Repeat: []int{n}})
	return spec.Zero()
}

// SetTVPFun registers the time-varying parameter callback.
// The callback is probed at t=0 and its result compared against the
// template; a structure mismatch fails with ShapeMismatchError.
// SetTVPFun fails with StateError once Setup was called.
func (e *MHE) SetTVPFun(f TVPFunc) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetTVPFun", Msg: "cannot set callbacks after setup"}
	}
	if f == nil {
		return &mhe.ConfigurationError{Op: "SetTVPFun", Msg: "nil callback"}
	}
	if err := probeCallback("SetTVPFun", f(0), e.GetTVPTemplate()); err != nil {
		return err
	}
	e.tvpFun = f
	e.tvpFunSet = true
	return nil
}

// SetPFun registers the fixed parameter callback.
// The callback is probed at t=0 and its result compared against the
// template; a structure mismatch fails with ShapeMismatchError.
// SetPFun fails with StateError once Setup was called.
func (e *MHE) SetPFun(f PFunc) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetPFun", Msg: "cannot set callbacks after setup"}
	}
	if f == nil {
		return &mhe.ConfigurationError{Op: "SetPFun", Msg: "nil callback"}
	}
	if err := probeCallback("SetPFun", f(0), e.GetPTemplate()); err != nil {
		return err
	}
	e.pFun = f
	e.pFunSet = true
	return nil
}

// SetYFun registers the measurement callback. An explicit callback
// takes precedence over the meas_from_data default.
// The callback is probed at t=0 and its result compared against the
// template; a structure mismatch fails with ShapeMismatchError.
// SetYFun fails with StateError once Setup was called.
func (e *MHE) SetYFun(f YFunc) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetYFun", Msg: "cannot set callbacks after setup"}
	}
	if f == nil {
		return &mhe.ConfigurationError{Op: "SetYFun", Msg: "nil callback"}
	}
	if err := probeCallback("SetYFun", f(0), e.GetYTemplate()); err != nil {
		return err
	}
	e.yFun = f
	e.yFunSet = true
	return nil
}

func probeCallback(op string, got *structvec.Vec, want *structvec.Vec) error {
	if got == nil {
		return &mhe.ShapeMismatchError{Op: op, Want: want.Labels(), Got: nil}
	}
	if !got.Spec().Equal(want.Spec()) {
		return &mhe.ShapeMismatchError{Op: op, Want: want.Labels(), Got: got.Labels()}
	}
	return nil
}

// defaultYFun reads the most recent horizon of measurements back from
// the estimator history. When fewer than n_horizon measurements were
// recorded the window is padded at the front with the oldest row.
func (e *MHE) defaultYFun() YFunc {
	return func(t float64) *structvec.Vec {
		N := e.nHorizon
		tmpl := e.GetYTemplate()

		rows := e.hist.Recent("y", N)
		if len(rows) == 0 {
			return tmpl
		}
		pad := N - len(rows)
		for k := 0; k < N; k++ {
			row := rows[0]
			if k >= pad {
				row = rows[k-pad]
			}
			b, err := tmpl.Block("y", k)
			if err != nil {
				panic(fmt.Sprintf("measurement template: %v", err))
			}
			copy(b, row)
		}
		return tmpl
	}
}
