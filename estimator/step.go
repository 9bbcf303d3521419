package estimator

import (
	"fmt"

	mhe "github.com/milosgajdos/go-mhe"
	"gonum.org/v1/gonum/mat"
)

// MakeStep advances the estimator by one step: it records the new
// measurement, refreshes the window parameters and measurements,
// solves the estimation problem warm started from the previous
// solution and returns the new state estimate.
// MakeStep fails with StateError if the estimator was not setup and
// with ShapeMismatchError if y does not match the model measurements.
func (e *MHE) MakeStep(y mat.Vector) (*mat.VecDense, error) {
	if e.phase != phaseAssembled {
		return nil, &mhe.StateError{Op: "MakeStep", Msg: "estimator was not setup"}
	}

	ny := e.m.Y().Len()
	got := 0
	if y != nil {
		got = y.Len()
	}
	if got != ny {
		return nil, &mhe.ShapeMismatchError{
			Op:   "MakeStep",
			Want: e.m.Y().Labels(),
			Got:  []string{fmt.Sprintf("%d components", got)},
		}
	}
	if err := e.hist.Update("y", y); err != nil {
		return nil, err
	}

	if err := e.updateWindowParams(); err != nil {
		return nil, err
	}

	sol, stats, err := e.solver.Solve(e.optXNum.Cat(), e.lbOptX.Cat(), e.ubOptX.Cat(), e.optPNum.Cat())
	if err != nil {
		return nil, fmt.Errorf("failed to solve estimation problem: %v", err)
	}
	e.lastStats = stats

	// the solution is the warm start of the next step
	copyVec(e.optXNum.Data(), sol.X)
	if e.auxFun != nil {
		e.auxFun(e.optAuxNum.Data(), e.optXNum.Data(), e.optPNum.Data())
	}

	if err := e.extractAndRecord(sol, stats); err != nil {
		return nil, err
	}

	return mat.VecDenseCopyOf(e.x0.Cat()), nil
}

// updateWindowParams evaluates the time callbacks at the current time
// and fills the parameter vector of the estimation problem. The first
// window state and parameter estimates are the results of the previous
// step, in physical units.
func (e *MHE) updateWindowParams() error {
	tvpVal := e.tvpFun(e.t0)
	if err := probeCallback("MakeStep", tvpVal, e.GetTVPTemplate()); err != nil {
		return err
	}
	pVal := e.pFun(e.t0)
	if err := probeCallback("MakeStep", pVal, e.GetPTemplate()); err != nil {
		return err
	}
	yVal := e.yFun(e.t0)
	if err := probeCallback("MakeStep", yVal, e.GetYTemplate()); err != nil {
		return err
	}

	e.optPNum.Set("x_prev", e.x0.Cat())
	e.optPNum.Set("p_prev", e.pEst0.Cat())
	e.optPNum.Set("p_set", pVal.Cat())

	for k := 0; k < e.nHorizon; k++ {
		dst, _ := e.optPNum.Block("tvp", k)
		src, _ := tvpVal.Block("tvp", k)
		copy(dst, src)

		dst, _ = e.optPNum.Block("y_meas", k)
		src, _ = yVal.Block("y", k)
		copy(dst, src)
	}

	return nil
}

// extractAndRecord pulls the new estimates out of the solution, records
// the step in the history store and advances the estimator clock
func (e *MHE) extractAndRecord(sol *mhe.Solution, stats mhe.Stats) error {
	N := e.nHorizon
	npts := e.scheme.PointsPerStep()
	nz := e.m.Z().Len()
	xs, us, zs, ps := e.xScaling.Data(), e.uScaling.Data(), e.zScaling.Data(), e.pEstScaling.Data()

	xb, _ := e.optXNum.Block("x", N, npts)
	unscale(e.x0.Data(), xb, xs)

	pEstB, _ := e.optXNum.Block("p_est")
	unscale(e.pEst0.Data(), pEstB, ps)

	ub, _ := e.optXNum.Block("u", N-1)
	unscale(e.u0.Data(), ub, us)

	if nz > 0 {
		zb, _ := e.optXNum.Block("z", N-1, npts-1)
		unscale(e.z0.Data(), zb, zs)
	}

	pSet, _ := e.optPNum.VecView("p_set")
	pFull := e.part.Full().Zero()
	if err := e.part.Recombine(pFull.Data(), e.pEst0.Cat(), pSet); err != nil {
		return err
	}

	e.hist.Update("time", mat.NewVecDense(1, []float64{e.t0}))
	e.hist.Update("x", e.x0.Cat())
	e.hist.Update("u", e.u0.Cat())
	e.hist.Update("z", e.z0.Cat())
	e.hist.Update("p", pFull.Cat())
	if e.m.Aux().Len() > 0 {
		aux, _ := e.optAuxNum.VecView("aux", N-1)
		e.hist.Update("aux", aux)
	} else {
		e.hist.Update("aux", nil)
	}

	if e.storeFullSolution {
		e.hist.Update("opt_x", e.optXNum.Cat())
	}
	if e.storeLagrMultiplier {
		e.hist.Update("lam_g", sol.Multipliers)
	}
	for _, s := range e.storeSolverStats {
		switch s {
		case "success":
			v := 0.0
			if stats.Success {
				v = 1.0
			}
			e.hist.Update("success", mat.NewVecDense(1, []float64{v}))
		case "t_wall_total":
			e.hist.Update("t_wall_total", mat.NewVecDense(1, []float64{stats.Runtime.Seconds()}))
		case "iter_count":
			e.hist.Update("iter_count", mat.NewVecDense(1, []float64{float64(stats.Iterations)}))
		}
	}

	e.t0 += e.tStep

	return nil
}
