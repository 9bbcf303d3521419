package estimator

import (
	"fmt"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/milosgajdos/go-mhe/colloc"
	"github.com/milosgajdos/go-mhe/data"
	"github.com/milosgajdos/go-mhe/structvec"
	"gonum.org/v1/gonum/mat"
)

// Setup assembles the estimation problem from the configured model,
// objective, callbacks and bounds and freezes the configuration.
// After Setup the estimator is driven with MakeStep.
// Setup fails with StateError when called twice.
func (e *MHE) Setup() error {
	if e.phase == phaseAssembled {
		return &mhe.StateError{Op: "Setup", Msg: "estimator was already setup"}
	}

	if e.nHorizon < 1 {
		return &mhe.ConfigurationError{Op: "Setup", Msg: "n_horizon must be set to a positive value"}
	}
	if e.tStep <= 0 {
		return &mhe.ConfigurationError{Op: "Setup", Msg: "t_step must be set to a positive value"}
	}
	if e.stateDiscretization != "collocation" {
		return &mhe.ConfigurationError{Op: "Setup", Msg: fmt.Sprintf("unsupported state discretization: %s", e.stateDiscretization)}
	}
	if e.collocationType != "radau" {
		return &mhe.ConfigurationError{Op: "Setup", Msg: fmt.Sprintf("unsupported collocation type: %s", e.collocationType)}
	}
	for _, s := range e.storeSolverStats {
		if !storableStats[s] {
			return &mhe.ConfigurationError{Op: "Setup", Msg: fmt.Sprintf("unknown solver statistic: %s", s)}
		}
	}

	if err := e.checkValidity(); err != nil {
		return err
	}

	scheme, err := colloc.NewRadau(e.collocationDeg, e.collocationNI)
	if err != nil {
		return &mhe.ConfigurationError{Op: "Setup", Msg: err.Error()}
	}
	e.scheme = scheme

	nx, nu, nz, ny := e.m.SystemDims()
	ntvp := e.m.TVP().Len()
	naux := e.m.Aux().Len()
	nEst := e.part.Est().Len()
	nFix := e.part.Fixed().Len()
	N := e.nHorizon
	npts := scheme.PointsPerStep()

	// decision variable layout: the state at index [k, npts] is the
	// node state at step k, the states at [k+1, 0..npts-1] are the
	// collocation states of step k. The collocation states of index 0
	// are unused padding that keeps the layout uniform.
	e.optX, err = structvec.NewSpec(
		structvec.Entry{Name: "x", Size: nx, Repeat: []int{N + 1, npts + 1}},
		structvec.Entry{Name: "z", Size: nz, Repeat: []int{N, npts}},
		structvec.Entry{Name: "u", Size: nu, Repeat: []int{N}},
		structvec.Entry{Name: "p_est", Size: nEst},
	)
	if err != nil {
		return err
	}
	e.optP, err = structvec.NewSpec(
		structvec.Entry{Name: "x_prev", Size: nx},
		structvec.Entry{Name: "p_prev", Size: nEst},
		structvec.Entry{Name: "p_set", Size: nFix},
		structvec.Entry{Name: "tvp", Size: ntvp, Repeat: []int{N}},
		structvec.Entry{Name: "y_meas", Size: ny, Repeat: []int{N}},
	)
	if err != nil {
		return err
	}
	e.auxSpec, err = structvec.NewSpec(
		structvec.Entry{Name: "aux", Size: naux, Repeat: []int{N}},
	)
	if err != nil {
		return err
	}

	e.buildBounds(N, npts)

	dpts := scheme.NumDefects(nx, nz)
	nlRows := 0
	for _, c := range e.nlCons {
		nlRows += c.size
	}
	rowsPerStep := dpts + nx + nlRows
	numCons := N * rowsPerStep

	consLo := make([]float64, numCons)
	consHi := make([]float64, numCons)
	at := 0
	for k := 0; k < N; k++ {
		// defect and continuity rows are equality constraints
		at += dpts + nx
		for _, c := range e.nlCons {
			for r := 0; r < c.size; r++ {
				consLo[at+r] = negInf
				consHi[at+r] = c.ub
			}
			at += c.size
		}
	}

	e.prob = &mhe.Problem{
		NumVars:     e.optX.Len(),
		NumParams:   e.optP.Len(),
		NumCons:     numCons,
		Objective:   e.buildObjective(N, npts),
		Constraints: e.buildConstraints(N, npts, dpts),
		ConsLower:   consLo,
		ConsUpper:   consHi,
	}
	e.auxFun = nil
	if naux > 0 {
		e.auxFun = e.buildAuxEval(N, npts)
	}

	solver, err := e.solverFactory(e.prob)
	if err != nil {
		return fmt.Errorf("failed to build solver: %v", err)
	}
	e.solver = solver

	if err := e.rebuildStorage(numCons); err != nil {
		return err
	}

	e.optXNum = e.optX.Zero()
	e.optPNum = e.optP.Zero()
	e.optAuxNum = e.auxSpec.Zero()

	e.phase = phaseAssembled

	return e.SetInitialGuess()
}

// buildBounds fills the scaled variable bounds of the decision vector.
// State and input bounds are enforced on the first n_horizon steps; the
// terminal state and the algebraic values stay unbounded.
func (e *MHE) buildBounds(N, npts int) {
	e.lbOptX = e.optX.Filled(negInf)
	e.ubOptX = e.optX.Filled(posInf)

	xs, us, ps := e.xScaling.Data(), e.uScaling.Data(), e.pEstScaling.Data()

	for k := 0; k < N; k++ {
		for j := 0; j <= npts; j++ {
			lb, _ := e.lbOptX.Block("x", k, j)
			ub, _ := e.ubOptX.Block("x", k, j)
			scaleInto(lb, e.xLb.Data(), xs)
			scaleInto(ub, e.xUb.Data(), xs)
		}
		lb, _ := e.lbOptX.Block("u", k)
		ub, _ := e.ubOptX.Block("u", k)
		scaleInto(lb, e.uLb.Data(), us)
		scaleInto(ub, e.uUb.Data(), us)
	}
	lb, _ := e.lbOptX.Block("p_est")
	ub, _ := e.ubOptX.Block("p_est")
	scaleInto(lb, e.pEstLb.Data(), ps)
	scaleInto(ub, e.pEstUb.Data(), ps)
}

// buildObjective compiles the window objective: the arrival cost on
// the scaled first node state and parameter estimates, plus the stage
// cost summed over the horizon on physical values.
func (e *MHE) buildObjective(N, npts int) func(v, p []float64) float64 {
	nx, nu, nz, _ := e.m.SystemDims()
	nEst := e.part.Est().Len()
	np := e.m.P().Len()
	xs, us, zs, ps := e.xScaling.Data(), e.uScaling.Data(), e.zScaling.Data(), e.pEstScaling.Data()

	xPrevS := make([]float64, nx)
	pPrevS := make([]float64, nEst)
	xkP := make([]float64, nx)
	uP := make([]float64, nu)
	zP := make([]float64, nz)
	pEstP := make([]float64, nEst)
	pFull := make([]float64, np)

	return func(v, p []float64) float64 {
		xv, _ := e.optX.Wrap(v)
		pv, _ := e.optP.Wrap(p)

		// arrival cost on scaled values
		x0b, _ := xv.Block("x", 0, npts)
		xPrevB, _ := pv.Block("x_prev")
		scaleInto(xPrevS, xPrevB, xs)
		pEstB, _ := xv.Block("p_est")
		pPrevB, _ := pv.Block("p_prev")
		scaleInto(pPrevS, pPrevB, ps)

		cost := e.arrivalCost(ArrivalVars{
			X:     vecOf(x0b),
			XPrev: vecOf(xPrevS),
			PEst:  vecOf(pEstB),
			PPrev: vecOf(pPrevS),
		})

		unscale(pEstP, pEstB, ps)
		pSetB, _ := pv.Block("p_set")
		e.part.Recombine(pFull, vecOf(pEstP), vecOf(pSetB))
		pVec := vecOf(pFull)

		// stage cost on physical values
		for k := 0; k < N; k++ {
			xb, _ := xv.Block("x", k+1, npts)
			unscale(xkP, xb, xs)
			ub, _ := xv.Block("u", k)
			unscale(uP, ub, us)
			if nz > 0 {
				zb, _ := xv.Block("z", k, npts-1)
				unscale(zP, zb, zs)
			}
			tvpB, _ := pv.Block("tvp", k)
			yB, _ := pv.Block("y_meas", k)

			cost += e.stageCost(StageVars{
				X:     vecOf(xkP),
				U:     vecOf(uP),
				Z:     vecOf(zP),
				TVP:   vecOf(tvpB),
				P:     pVec,
				YMeas: vecOf(yB),
			})
		}

		return cost
	}
}

// buildConstraints compiles the constraint function: per step the
// collocation defects, the continuity with the next node state and the
// registered nonlinear constraints, all on physical values.
func (e *MHE) buildConstraints(N, npts, dpts int) func(dst, v, p []float64) {
	nx, nu, nz, _ := e.m.SystemDims()
	nEst := e.part.Est().Len()
	np := e.m.P().Len()
	xs, us, zs, ps := e.xScaling.Data(), e.uScaling.Data(), e.zScaling.Data(), e.pEstScaling.Data()

	trans := e.scheme.Transition(e.m, e.tStep)

	x0P := make([]float64, nx)
	xf := make([]float64, nx)
	uP := make([]float64, nu)
	zNodeP := make([]float64, nz)
	pEstP := make([]float64, nEst)
	pFull := make([]float64, np)

	xc := make([][]float64, npts)
	for j := range xc {
		xc[j] = make([]float64, nx)
	}
	var zc [][]float64
	if nz > 0 {
		zc = make([][]float64, npts)
		for j := range zc {
			zc[j] = make([]float64, nz)
		}
	}

	return func(dst, v, p []float64) {
		xv, _ := e.optX.Wrap(v)
		pv, _ := e.optP.Wrap(p)

		pEstB, _ := xv.Block("p_est")
		unscale(pEstP, pEstB, ps)
		pSetB, _ := pv.Block("p_set")
		e.part.Recombine(pFull, vecOf(pEstP), vecOf(pSetB))
		pVec := vecOf(pFull)

		at := 0
		for k := 0; k < N; k++ {
			xb, _ := xv.Block("x", k, npts)
			unscale(x0P, xb, xs)
			for j := 0; j < npts; j++ {
				cb, _ := xv.Block("x", k+1, j)
				unscale(xc[j], cb, xs)
				if nz > 0 {
					zb, _ := xv.Block("z", k, j)
					unscale(zc[j], zb, zs)
				}
			}
			ub, _ := xv.Block("u", k)
			unscale(uP, ub, us)
			tvpB, _ := pv.Block("tvp", k)
			uVec, tvpVec := vecOf(uP), vecOf(tvpB)

			trans(dst[at:at+dpts], xf, x0P, xc, zc, uVec, tvpVec, pVec)
			at += dpts

			// continuity with the next node state
			xnb, _ := xv.Block("x", k+1, npts)
			for n := 0; n < nx; n++ {
				dst[at+n] = xf[n] - xnb[n]*xs[n]
			}
			at += nx

			if len(e.nlCons) > 0 {
				var zVec mat.Vector
				if nz > 0 {
					zb, _ := xv.Block("z", k, npts-1)
					unscale(zNodeP, zb, zs)
					zVec = vecOf(zNodeP)
				}
				xVec := vecOf(x0P)
				for _, c := range e.nlCons {
					c.fn(mat.NewVecDense(c.size, dst[at:at+c.size]), xVec, uVec, zVec, tvpVec, pVec)
					at += c.size
				}
			}
		}
	}
}

// buildAuxEval compiles the auxiliary expression evaluation over the
// horizon node states
func (e *MHE) buildAuxEval(N, npts int) func(dst, v, p []float64) {
	nx, nu, nz, _ := e.m.SystemDims()
	naux := e.m.Aux().Len()
	nEst := e.part.Est().Len()
	np := e.m.P().Len()
	xs, us, zs, ps := e.xScaling.Data(), e.uScaling.Data(), e.zScaling.Data(), e.pEstScaling.Data()

	xkP := make([]float64, nx)
	uP := make([]float64, nu)
	zP := make([]float64, nz)
	pEstP := make([]float64, nEst)
	pFull := make([]float64, np)
	aval := mat.NewVecDense(naux, nil)

	return func(dst, v, p []float64) {
		xv, _ := e.optX.Wrap(v)
		pv, _ := e.optP.Wrap(p)
		av, _ := e.auxSpec.Wrap(dst)

		pEstB, _ := xv.Block("p_est")
		unscale(pEstP, pEstB, ps)
		pSetB, _ := pv.Block("p_set")
		e.part.Recombine(pFull, vecOf(pEstP), vecOf(pSetB))
		pVec := vecOf(pFull)

		for k := 0; k < N; k++ {
			xb, _ := xv.Block("x", k, npts)
			unscale(xkP, xb, xs)
			ub, _ := xv.Block("u", k)
			unscale(uP, ub, us)
			if nz > 0 {
				zb, _ := xv.Block("z", k, npts-1)
				unscale(zP, zb, zs)
			}
			tvpB, _ := pv.Block("tvp", k)

			e.m.AuxEval(aval, vecOf(xkP), vecOf(uP), vecOf(zP), vecOf(tvpB), pVec)

			ab, _ := av.Block("aux", k)
			copyVec(ab, aval)
		}
	}
}

// rebuildStorage recreates the history store with the assembled
// problem dimensions and records the estimator configuration as meta
// data
func (e *MHE) rebuildStorage(numCons int) error {
	nx, nu, nz, ny := e.m.SystemDims()
	fields := []data.Field{
		{Name: "time", Size: 1},
		{Name: "x", Size: nx},
		{Name: "u", Size: nu},
		{Name: "z", Size: nz},
		{Name: "p", Size: e.m.P().Len()},
		{Name: "y", Size: ny},
		{Name: "aux", Size: e.m.Aux().Len()},
		{Name: "success", Size: 1},
		{Name: "t_wall_total", Size: 1},
		{Name: "iter_count", Size: 1},
	}
	if e.storeFullSolution {
		fields = append(fields, data.Field{Name: "opt_x", Size: e.optX.Len()})
	}
	if e.storeLagrMultiplier {
		fields = append(fields, data.Field{Name: "lam_g", Size: numCons})
	}

	hist, err := data.New(fields...)
	if err != nil {
		return err
	}
	hist.SetMeta(map[string]interface{}{
		"n_horizon":             e.nHorizon,
		"t_step":                e.tStep,
		"meas_from_data":        e.measFromData,
		"state_discretization":  e.stateDiscretization,
		"collocation_type":      e.collocationType,
		"collocation_deg":       e.collocationDeg,
		"collocation_ni":        e.collocationNI,
		"store_full_solution":   e.storeFullSolution,
		"store_lagr_multiplier": e.storeLagrMultiplier,
	})
	e.hist = hist

	return nil
}

// unscale writes src*scaling into dst
func unscale(dst, src, scaling []float64) {
	for i := range dst {
		dst[i] = src[i] * scaling[i]
	}
}

// vecOf wraps the slice as a gonum vector, nil for an empty slice
func vecOf(b []float64) mat.Vector {
	if len(b) == 0 {
		return nil
	}
	return mat.NewVecDense(len(b), b)
}
