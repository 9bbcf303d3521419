package estimator

import (
	"fmt"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/milosgajdos/go-mhe/auglag"
	"github.com/milosgajdos/go-mhe/colloc"
	"github.com/milosgajdos/go-mhe/data"
	"github.com/milosgajdos/go-mhe/model"
	"github.com/milosgajdos/go-mhe/params"
	"github.com/milosgajdos/go-mhe/structvec"
	"gonum.org/v1/gonum/mat"
)

// SolverFactory constructs a solver for the assembled optimization
// problem. The default factory builds an auglag.Solver.
type SolverFactory func(*mhe.Problem) (mhe.Solver, error)

// storableStats are the solver statistics that may be recorded per step
var storableStats = map[string]bool{
	"success":      true,
	"t_wall_total": true,
	"iter_count":   true,
}

// MHE is a moving horizon estimator: each step it estimates the
// current state and a chosen subset of model parameters by solving a
// constrained nonlinear program over a sliding window of past
// measurements.
//
// The estimator is configured between New and Setup (objective,
// callbacks, bounds, parameters), assembled once by Setup, and then
// driven by repeated MakeStep calls. It must be used from a single
// goroutine.
type MHE struct {
	m    *model.Model
	part *params.Partition
	hist *data.Data

	// configuration parameters with the closed SetParam key set
	nHorizon            int
	tStep               float64
	measFromData        bool
	stateDiscretization string
	collocationType     string
	collocationDeg      int
	collocationNI       int
	storeFullSolution   bool
	storeLagrMultiplier bool
	storeSolverStats    []string
	solverOpts          auglag.Options
	solverFactory       SolverFactory

	// lifecycle
	phase        phase
	objectiveSet bool
	tvpFunSet    bool
	pFunSet      bool
	yFunSet      bool

	// registered functions
	stageCost   StageCost
	arrivalCost ArrivalCost
	tvpFun      TVPFunc
	pFun        PFunc
	yFun        YFunc
	nlCons      []nlCon

	// bounds and scaling per decision variable category
	xLb, xUb, xScaling          *structvec.Vec
	uLb, uUb, uScaling          *structvec.Vec
	zLb, zUb, zScaling          *structvec.Vec
	pEstLb, pEstUb, pEstScaling *structvec.Vec

	// assembled problem
	scheme         *colloc.Scheme
	optX           *structvec.Spec
	optP           *structvec.Spec
	auxSpec        *structvec.Spec
	prob           *mhe.Problem
	solver         mhe.Solver
	lbOptX, ubOptX *structvec.Vec
	auxFun         func(dst, v, p []float64)

	// persistent numeric buffers, overwritten in place each step
	optXNum   *structvec.Vec
	optPNum   *structvec.Vec
	optAuxNum *structvec.Vec

	// estimator state carried between steps
	x0    *structvec.Vec
	u0    *structvec.Vec
	z0    *structvec.Vec
	pEst0 *structvec.Vec
	t0    float64

	lastStats mhe.Stats
}

// New creates a new moving horizon estimator for the given model and
// returns it. pEstNames name the model parameters to estimate; the
// remaining parameters are fixed and supplied per step through the
// fixed parameter callback.
// It returns error if an estimated parameter name is not declared by
// the model.
func New(m *model.Model, pEstNames ...string) (*MHE, error) {
	if m == nil {
		return nil, fmt.Errorf("nil model")
	}

	part, err := params.Split(m.P(), pEstNames)
	if err != nil {
		return nil, err
	}

	e := &MHE{
		m:    m,
		part: part,

		stateDiscretization: "collocation",
		collocationType:     "radau",
		collocationDeg:      2,
		collocationNI:       1,
		storeLagrMultiplier: true,
		storeSolverStats:    []string{"success", "t_wall_total"},
		solverOpts:          auglag.DefaultOptions(),

		phase: phaseConfiguring,

		xLb:         m.X().Filled(negInf),
		xUb:         m.X().Filled(posInf),
		xScaling:    m.X().Filled(1.0),
		uLb:         m.U().Filled(negInf),
		uUb:         m.U().Filled(posInf),
		uScaling:    m.U().Filled(1.0),
		zLb:         m.Z().Filled(negInf),
		zUb:         m.Z().Filled(posInf),
		zScaling:    m.Z().Filled(1.0),
		pEstLb:      part.Est().Filled(negInf),
		pEstUb:      part.Est().Filled(posInf),
		pEstScaling: part.Est().Filled(1.0),

		x0:    m.X().Zero(),
		u0:    m.U().Zero(),
		z0:    m.Z().Zero(),
		pEst0: part.Est().Zero(),
	}
	e.solverFactory = func(p *mhe.Problem) (mhe.Solver, error) {
		return auglag.New(p, e.solverOpts)
	}

	return e, nil
}

// Model returns the estimator model
func (e *MHE) Model() *model.Model {
	return e.m
}

// Partition returns the parameter partition
func (e *MHE) Partition() *params.Partition {
	return e.part
}

// Data returns the estimator history store.
// The store is built during Setup; Data returns nil before it.
func (e *MHE) Data() *data.Data {
	return e.hist
}

// Stats returns the solver statistics of the most recent step
func (e *MHE) Stats() mhe.Stats {
	return e.lastStats
}

// Time returns the current estimator time
func (e *MHE) Time() float64 {
	return e.t0
}

// StateEstimate returns a copy of the current state estimate
func (e *MHE) StateEstimate() *mat.VecDense {
	return mat.VecDenseCopyOf(e.x0.Cat())
}

// ParamEstimate returns a copy of the current estimated parameter
// values. It returns nil when no parameters are estimated.
func (e *MHE) ParamEstimate() *mat.VecDense {
	if e.pEst0.Len() == 0 {
		return nil
	}
	return mat.VecDenseCopyOf(e.pEst0.Cat())
}

// SetParam sets estimator parameters from the given key/value pairs.
// The recognized keys are n_horizon (int), t_step (float64),
// meas_from_data (bool), state_discretization (string),
// collocation_type (string), collocation_deg (int), collocation_ni
// (int), store_full_solution (bool), store_lagr_multiplier (bool),
// store_solver_stats ([]string) and solver_opts (auglag.Options).
//
// Recognized keys are applied even when the call returns an error:
// unknown keys and wrongly typed values are reported through a
// ConfigurationError but do not undo the valid assignments.
// SetParam fails with StateError once Setup was called.
func (e *MHE) SetParam(kv map[string]interface{}) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetParam", Msg: "setting parameters after setup is prohibited"}
	}

	var bad []string
	for key, val := range kv {
		ok := true
		switch key {
		case "n_horizon":
			ok = assign(&e.nHorizon, val)
		case "t_step":
			ok = assign(&e.tStep, val)
		case "meas_from_data":
			ok = assign(&e.measFromData, val)
		case "state_discretization":
			ok = assign(&e.stateDiscretization, val)
		case "collocation_type":
			ok = assign(&e.collocationType, val)
		case "collocation_deg":
			ok = assign(&e.collocationDeg, val)
		case "collocation_ni":
			ok = assign(&e.collocationNI, val)
		case "store_full_solution":
			ok = assign(&e.storeFullSolution, val)
		case "store_lagr_multiplier":
			ok = assign(&e.storeLagrMultiplier, val)
		case "store_solver_stats":
			ok = assign(&e.storeSolverStats, val)
		case "solver_opts":
			ok = assign(&e.solverOpts, val)
		default:
			bad = append(bad, fmt.Sprintf("unknown key %q", key))
			continue
		}
		if !ok {
			bad = append(bad, fmt.Sprintf("invalid value for %q: %v", key, val))
		}
	}

	if len(bad) > 0 {
		return &mhe.ConfigurationError{Op: "SetParam", Msg: fmt.Sprint(bad)}
	}
	return nil
}

func assign[T any](dst *T, val interface{}) bool {
	v, ok := val.(T)
	if ok {
		*dst = v
	}
	return ok
}

// SetSolverFactory replaces the solver used for the assembled problem.
// It fails with StateError once Setup was called.
func (e *MHE) SetSolverFactory(f SolverFactory) error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "SetSolverFactory", Msg: "replacing the solver after setup is prohibited"}
	}
	if f == nil {
		return &mhe.ConfigurationError{Op: "SetSolverFactory", Msg: "nil solver factory"}
	}
	e.solverFactory = f
	return nil
}

// SetInitialState sets the initial state estimate of the estimator and
// optionally resets the recorded history
func (e *MHE) SetInitialState(x0 mat.Vector, resetHistory bool) error {
	nx := e.m.X().Len()
	if x0 == nil || x0.Len() != nx {
		return &mhe.ConfigurationError{Op: "SetInitialState", Msg: fmt.Sprintf("initial state must have %d components", nx)}
	}

	copyVec(e.x0.Data(), x0)

	if resetHistory {
		e.ResetHistory()
	}
	return nil
}

// ResetHistory clears the recorded trajectories.
// The current state and parameter estimates and the clock are kept.
// Before Setup there is nothing to clear.
func (e *MHE) ResetHistory() {
	if e.hist == nil {
		return
	}
	e.hist.InitStorage()
}

// SetInitialGuess seeds the warm start buffer from the current state,
// input, algebraic and parameter estimates. It is invoked
// automatically at the end of Setup.
// It fails with StateError if the estimator was not set up.
func (e *MHE) SetInitialGuess() error {
	if e.phase != phaseAssembled {
		return &mhe.StateError{Op: "SetInitialGuess", Msg: "estimator was not setup"}
	}

	N := e.nHorizon
	npts := e.scheme.PointsPerStep()

	for k := 0; k <= N; k++ {
		for j := 0; j <= npts; j++ {
			b, _ := e.optXNum.Block("x", k, j)
			scaleInto(b, e.x0.Data(), e.xScaling.Data())
		}
	}
	for k := 0; k < N; k++ {
		b, _ := e.optXNum.Block("u", k)
		scaleInto(b, e.u0.Data(), e.uScaling.Data())
		for j := 0; j < npts; j++ {
			b, _ := e.optXNum.Block("z", k, j)
			scaleInto(b, e.z0.Data(), e.zScaling.Data())
		}
	}
	b, _ := e.optXNum.Block("p_est")
	scaleInto(b, e.pEst0.Data(), e.pEstScaling.Data())

	return nil
}

// scaleInto writes src/scaling into dst
func scaleInto(dst, src, scaling []float64) {
	for i := range dst {
		dst[i] = src[i] / scaling[i]
	}
}

func copyVec(dst []float64, src mat.Vector) {
	for i := range dst {
		dst[i] = src.AtVec(i)
	}
}
