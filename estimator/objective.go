package estimator

import (
	"math"

	mhe "github.com/milosgajdos/go-mhe"
	"gonum.org/v1/gonum/mat"
)

// StageVars are the quantities a stage cost may depend on. The typed
// signature is the whole domain: a stage cost cannot reach beyond the
// current state, input, algebraic value, time-varying parameters, full
// parameter vector and window measurement. Vectors of empty symbol
// sets are nil.
type StageVars struct {
	X     mat.Vector
	U     mat.Vector
	Z     mat.Vector
	TVP   mat.Vector
	P     mat.Vector
	YMeas mat.Vector
}

// StageCost is the per-step cost accumulated over the horizon
type StageCost func(v StageVars) float64

// ArrivalVars are the quantities an arrival cost may depend on: the
// first window state and estimated parameters, and the previous
// window's final estimates. All values are in scaled solver units.
type ArrivalVars struct {
	X     mat.Vector
	XPrev mat.Vector
	PEst  mat.Vector
	PPrev mat.Vector
}

// ArrivalCost summarizes the information of measurements older than
// the current window
type ArrivalCost func(v ArrivalVars) float64

// SetObjective registers the stage cost and the arrival cost.
// Both functions are probed once at their zero-valued arguments; a
// probe that does not produce a finite scalar fails with DomainError.
// SetObjective fails with StateError once Setup was called.
func (e *MHE) SetObjective(stage StageCost, arrival ArrivalCost) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetObjective", Msg: "cannot set objective after setup"}
	}
	if stage == nil || arrival == nil {
		return &mhe.ConfigurationError{Op: "SetObjective", Msg: "both stage cost and arrival cost must be supplied"}
	}

	sv := StageVars{
		X:     zeroVec(e.m.X().Len()),
		U:     zeroVec(e.m.U().Len()),
		Z:     zeroVec(e.m.Z().Len()),
		TVP:   zeroVec(e.m.TVP().Len()),
		P:     zeroVec(e.m.P().Len()),
		YMeas: zeroVec(e.m.Y().Len()),
	}
	if l := stage(sv); math.IsNaN(l) || math.IsInf(l, 0) {
		return &mhe.DomainError{Op: "SetObjective", Msg: "stage cost is not finite on its domain"}
	}

	av := ArrivalVars{
		X:     zeroVec(e.m.X().Len()),
		XPrev: zeroVec(e.m.X().Len()),
		PEst:  zeroVec(e.part.Est().Len()),
		PPrev: zeroVec(e.part.Est().Len()),
	}
	if l := arrival(av); math.IsNaN(l) || math.IsInf(l, 0) {
		return &mhe.DomainError{Op: "SetObjective", Msg: "arrival cost is not finite on its domain"}
	}

	e.stageCost = stage
	e.arrivalCost = arrival
	e.objectiveSet = true

	return nil
}

func zeroVec(n int) mat.Vector {
	if n == 0 {
		return nil
	}
	return mat.NewVecDense(n, nil)
}
