package colloc

import (
	"os"
	"testing"

	"github.com/milosgajdos/go-mhe/model"
	"github.com/milosgajdos/go-mhe/structvec"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	// dx/dt = u, constant slope
	rampModel *model.Model
)

func setup() {
	rampModel, _ = model.New(model.Config{
		States:       []structvec.Entry{{Name: "x", Size: 1}},
		Inputs:       []structvec.Entry{{Name: "u", Size: 1}},
		Measurements: []structvec.Entry{{Name: "y", Size: 1}},
		RHS: func(dst *mat.VecDense, x, u, z, tvp, p mat.Vector) {
			dst.SetVec(0, u.AtVec(0))
		},
		MeasFunc: func(dst *mat.VecDense, x, u, z, tvp, p mat.Vector) {
			dst.SetVec(0, x.AtVec(0))
		},
	})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNewRadau(t *testing.T) {
	assert := assert.New(t)

	for deg := 1; deg <= 5; deg++ {
		s, err := NewRadau(deg, 1)
		assert.NoError(err)
		assert.Equal(deg, s.Degree())
		assert.Equal(deg, s.PointsPerStep())
	}

	s, err := NewRadau(2, 3)
	assert.NoError(err)
	assert.Equal(6, s.PointsPerStep())
	assert.Equal(6, s.NumDefects(1, 0))
	assert.Equal(18, s.NumDefects(2, 1))

	// unsupported degree
	s, err = NewRadau(0, 1)
	assert.Nil(s)
	assert.Error(err)

	s, err = NewRadau(6, 1)
	assert.Nil(s)
	assert.Error(err)

	// invalid element count
	s, err = NewRadau(2, 0)
	assert.Nil(s)
	assert.Error(err)
}

func TestCoefficients(t *testing.T) {
	assert := assert.New(t)

	for deg := 1; deg <= 5; deg++ {
		s, err := NewRadau(deg, 1)
		assert.NoError(err)

		// the basis reproduces constants: sum of d is 1, the
		// derivative of the constant interpolant is 0 everywhere
		sumD := 0.0
		for j := 0; j <= deg; j++ {
			sumD += s.d[j]
		}
		assert.InDelta(1.0, sumD, 1e-12)

		for r := 0; r <= deg; r++ {
			sumC := 0.0
			lin := 0.0
			for j := 0; j <= deg; j++ {
				sumC += s.c[j][r]
				lin += s.c[j][r] * s.tau[j]
			}
			assert.InDelta(0.0, sumC, 1e-10)
			// the interpolant of t has unit slope
			assert.InDelta(1.0, lin, 1e-10)
		}
	}
}

func TestTransitionExactRamp(t *testing.T) {
	assert := assert.New(t)

	// dx/dt = u with u = 2 over h = 0.5: the trajectory is linear so
	// collocation of any degree reproduces it exactly
	h := 0.5
	u := mat.NewVecDense(1, []float64{2.0})

	for deg := 1; deg <= 3; deg++ {
		for ni := 1; ni <= 2; ni++ {
			s, err := NewRadau(deg, ni)
			assert.NoError(err)

			tr := s.Transition(rampModel, h)

			x0 := []float64{1.0}
			xc := make([][]float64, s.PointsPerStep())
			for i := 0; i < ni; i++ {
				for j := 1; j <= deg; j++ {
					// exact state on the linear trajectory
					frac := (float64(i) + s.tau[j]) / float64(ni)
					xc[i*deg+j-1] = []float64{1.0 + 2.0*h*frac}
				}
			}

			defect := make([]float64, s.NumDefects(1, 0))
			xf := make([]float64, 1)
			tr(defect, xf, x0, xc, nil, u, nil, nil)

			for _, g := range defect {
				assert.InDelta(0.0, g, 1e-10)
			}
			assert.InDelta(2.0, xf[0], 1e-10)
		}
	}
}

func TestTransitionDefectNonzero(t *testing.T) {
	assert := assert.New(t)

	s, err := NewRadau(2, 1)
	assert.NoError(err)

	tr := s.Transition(rampModel, 0.5)

	// a flat guess violates the ramp dynamics
	x0 := []float64{1.0}
	xc := [][]float64{{1.0}, {1.0}}
	defect := make([]float64, s.NumDefects(1, 0))
	xf := make([]float64, 1)
	tr(defect, xf, x0, xc, nil, mat.NewVecDense(1, []float64{2.0}), nil, nil)

	violated := false
	for _, g := range defect {
		if g != 0.0 {
			violated = true
		}
	}
	assert.True(violated)
	// flat interpolant predicts no movement
	assert.InDelta(1.0, xf[0], 1e-12)
}
