package structvec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	spec *Spec
)

func setup() {
	spec, _ = NewSpec(
		Entry{Name: "x", Size: 2, Repeat: []int{3, 2}},
		Entry{Name: "u", Size: 1, Repeat: []int{3}},
		Entry{Name: "p", Size: 2},
	)
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNewSpec(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSpec(Entry{Name: "a", Size: 3})
	assert.NoError(err)
	assert.Equal(3, s.Len())

	// empty spec is valid
	s, err = NewSpec()
	assert.NoError(err)
	assert.Equal(0, s.Len())

	// zero-size entries are valid
	s, err = NewSpec(Entry{Name: "a", Size: 0})
	assert.NoError(err)
	assert.Equal(0, s.Len())

	// empty name
	s, err = NewSpec(Entry{Size: 1})
	assert.Nil(s)
	assert.Error(err)

	// duplicate name
	s, err = NewSpec(Entry{Name: "a", Size: 1}, Entry{Name: "a", Size: 2})
	assert.Nil(s)
	assert.Error(err)

	// negative size
	s, err = NewSpec(Entry{Name: "a", Size: -1})
	assert.Nil(s)
	assert.Error(err)

	// bad repeat
	s, err = NewSpec(Entry{Name: "a", Size: 1, Repeat: []int{0}})
	assert.Nil(s)
	assert.Error(err)

	// too many repeat dims
	s, err = NewSpec(Entry{Name: "a", Size: 1, Repeat: []int{1, 1, 1}})
	assert.Nil(s)
	assert.Error(err)
}

func TestSpecLayout(t *testing.T) {
	assert := assert.New(t)

	// 3*2 blocks of 2 + 3 blocks of 1 + 1 block of 2
	assert.Equal(17, spec.Len())
	assert.Equal([]string{"x", "u", "p"}, spec.Names())
	assert.True(spec.Has("u"))
	assert.False(spec.Has("y"))

	size, err := spec.EntrySize("x")
	assert.NoError(err)
	assert.Equal(2, size)

	_, err = spec.EntrySize("y")
	assert.Error(err)
}

func TestSpecLabels(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSpec(
		Entry{Name: "x", Size: 1, Repeat: []int{2}},
		Entry{Name: "p", Size: 2},
	)
	assert.NoError(err)
	assert.Equal([]string{"x[0][0]", "x[1][0]", "p[0]", "p[1]"}, s.Labels())

	other, err := NewSpec(
		Entry{Name: "x", Size: 1, Repeat: []int{2}},
		Entry{Name: "p", Size: 2},
	)
	assert.NoError(err)
	assert.True(s.Equal(other))

	renamed, err := NewSpec(
		Entry{Name: "y", Size: 1, Repeat: []int{2}},
		Entry{Name: "p", Size: 2},
	)
	assert.NoError(err)
	assert.False(s.Equal(renamed))
	assert.False(s.Equal(nil))
}

func TestVecBlocks(t *testing.T) {
	assert := assert.New(t)

	v := spec.Zero()
	assert.Equal(spec.Len(), v.Len())

	err := v.Set("x", mat.NewVecDense(2, []float64{1.0, 2.0}), 1, 0)
	assert.NoError(err)

	b, err := v.Block("x", 1, 0)
	assert.NoError(err)
	assert.Equal([]float64{1.0, 2.0}, b)

	// neighbouring blocks untouched
	b, err = v.Block("x", 1, 1)
	assert.NoError(err)
	assert.Equal([]float64{0.0, 0.0}, b)

	// views share storage
	view, err := v.VecView("x", 1, 0)
	assert.NoError(err)
	view.SetVec(0, -3.0)
	b, err = v.Block("x", 1, 0)
	assert.NoError(err)
	assert.Equal(-3.0, b[0])

	// wrong index arity
	_, err = v.Block("x", 1)
	assert.Error(err)

	// index out of range
	_, err = v.Block("u", 3)
	assert.Error(err)

	// unknown entry
	_, err = v.Block("nope")
	assert.Error(err)

	// wrong value size
	err = v.Set("p", mat.NewVecDense(1, []float64{1.0}))
	assert.Error(err)
}

func TestVecFillCloneCopy(t *testing.T) {
	assert := assert.New(t)

	v := spec.Filled(2.5)
	for _, x := range v.Data() {
		assert.Equal(2.5, x)
	}

	c := v.Clone()
	c.Fill(0.0)
	b, err := v.Block("p")
	assert.NoError(err)
	assert.Equal(2.5, b[0])

	err = v.Copy(c)
	assert.NoError(err)
	assert.Equal(0.0, v.Data()[0])

	other, _ := NewSpec(Entry{Name: "q", Size: 1})
	err = v.Copy(other.Zero())
	assert.Error(err)
}

func TestVecSetAll(t *testing.T) {
	assert := assert.New(t)

	v := spec.Zero()
	err := v.SetAll("u", 4.0)
	assert.NoError(err)

	for i := 0; i < 3; i++ {
		b, err := v.Block("u", i)
		assert.NoError(err)
		assert.Equal(4.0, b[0])
	}

	// other entries untouched
	b, err := v.Block("p")
	assert.NoError(err)
	assert.Equal(0.0, b[0])

	err = v.SetAll("nope", 1.0)
	assert.Error(err)
}

func TestEmptyBlocks(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSpec(Entry{Name: "pest", Size: 0})
	assert.NoError(err)

	v := s.Zero()
	assert.Nil(v.Cat())

	view, err := v.VecView("pest")
	assert.NoError(err)
	assert.Nil(view)

	err = v.Set("pest", nil)
	assert.NoError(err)

	// a nil *mat.VecDense behind the interface, as Cat and VecView
	// return for empty vectors, is accepted the same way
	err = v.Set("pest", v.Cat())
	assert.NoError(err)
	err = v.Set("pest", view)
	assert.NoError(err)

	err = spec.Zero().Set("p", view)
	assert.Error(err)
}

func TestSpecWrap(t *testing.T) {
	assert := assert.New(t)

	raw := make([]float64, spec.Len())
	v, err := spec.Wrap(raw)
	assert.NoError(err)

	// storage is shared, not copied
	raw[0] = 7.0
	b, err := v.Block("x", 0, 0)
	assert.NoError(err)
	assert.Equal(7.0, b[0])

	if _, err := spec.Wrap(make([]float64, spec.Len()+1)); err == nil {
		t.Error("expected error for wrong storage length")
	}
}
