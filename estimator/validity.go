package estimator

import (
	"fmt"
	"math"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/milosgajdos/go-mhe/structvec"
)

type phase int

const (
	// phaseConfiguring is the initial phase: callbacks, objective,
	// bounds and parameters may be set freely
	phaseConfiguring phase = iota
	// phaseReady means checkValidity passed and defaults were injected
	phaseReady
	// phaseAssembled means Setup completed; the configuration is frozen
	phaseAssembled
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// checkValidity verifies that the configured estimator is complete and
// consistent, injecting trivial defaults where the model makes a
// callback redundant. It is called once by Setup.
func (e *MHE) checkValidity() error {
	if !e.objectiveSet {
		return &mhe.ConfigurationError{Op: "Setup", Msg: "no objective was set, call SetObjective first"}
	}

	if e.m.TVP().Len() > 0 && !e.tvpFunSet {
		return &mhe.ConfigurationError{Op: "Setup", Msg: "model declares time-varying parameters, call SetTVPFun first"}
	}
	if !e.tvpFunSet {
		tmpl := e.GetTVPTemplate()
		e.tvpFun = func(t float64) *structvec.Vec { return tmpl }
	}

	if e.part.Fixed().Len() > 0 && !e.pFunSet {
		return &mhe.ConfigurationError{Op: "Setup", Msg: "model declares fixed parameters, call SetPFun first"}
	}
	if !e.pFunSet {
		tmpl := e.GetPTemplate()
		e.pFun = func(t float64) *structvec.Vec { return tmpl }
	}

	// an explicit measurement callback always wins; without one the
	// estimator can still read measurements back from its own history
	if !e.yFunSet {
		if !e.measFromData {
			return &mhe.ConfigurationError{Op: "Setup", Msg: "no measurement source: call SetYFun or set meas_from_data"}
		}
		e.yFun = e.defaultYFun()
	}

	if err := e.checkBounds(); err != nil {
		return err
	}

	e.phase = phaseReady

	return nil
}

// checkBounds verifies lower <= upper componentwise for every bounded
// decision variable category and reports all offending components.
func (e *MHE) checkBounds() error {
	var bad []string

	check := func(lb, ub *structvec.Vec) {
		labels := lb.Labels()
		l, u := lb.Data(), ub.Data()
		for i := range l {
			if l[i] > u[i] {
				bad = append(bad, fmt.Sprintf("%s: lower %g > upper %g", labels[i], l[i], u[i]))
			}
		}
	}
	check(e.xLb, e.xUb)
	check(e.uLb, e.uUb)
	check(e.zLb, e.zUb)
	check(e.pEstLb, e.pEstUb)

	if len(bad) > 0 {
		return &mhe.BoundsError{Components: bad}
	}
	return nil
}
