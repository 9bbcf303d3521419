package structvec

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Entry declares one named block of a Spec.
// A block holds Size scalar components and may be replicated along up to
// two repeat dimensions, e.g. one state block per horizon step and
// collocation point.
type Entry struct {
	// Name is the block name
	Name string
	// Size is the number of scalar components per block
	Size int
	// Repeat are optional repeat dimensions, at most two
	Repeat []int
}

// Spec is an ordered, labeled layout of named blocks inside one flat
// vector. A Spec is immutable once created; numeric instances are
// created with Zero and Filled.
type Spec struct {
	entries []Entry
	offsets []int
	index   map[string]int
	total   int
}

// NewSpec creates a new Spec from the given entries.
// It returns error if an entry name is empty or duplicate, a size is
// negative, or a repeat dimension is not positive. A Spec with no
// entries is valid and has length zero.
func NewSpec(entries ...Entry) (*Spec, error) {
	s := &Spec{
		entries: make([]Entry, len(entries)),
		offsets: make([]int, len(entries)),
		index:   make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has empty name", i)
		}
		if _, ok := s.index[e.Name]; ok {
			return nil, fmt.Errorf("duplicate entry name: %s", e.Name)
		}
		if e.Size < 0 {
			return nil, fmt.Errorf("entry %s has negative size: %d", e.Name, e.Size)
		}
		if len(e.Repeat) > 2 {
			return nil, fmt.Errorf("entry %s has %d repeat dimensions, at most 2 are supported", e.Name, len(e.Repeat))
		}
		for _, r := range e.Repeat {
			if r < 1 {
				return nil, fmt.Errorf("entry %s has non-positive repeat dimension: %d", e.Name, r)
			}
		}

		cp := e
		cp.Repeat = append([]int(nil), e.Repeat...)

		s.entries[i] = cp
		s.offsets[i] = s.total
		s.index[e.Name] = i
		s.total += e.Size * blockCount(cp.Repeat)
	}

	return s, nil
}

func blockCount(repeat []int) int {
	n := 1
	for _, r := range repeat {
		n *= r
	}
	return n
}

// Len returns the total number of scalar components
func (s *Spec) Len() int {
	return s.total
}

// Names returns the entry names in declaration order
func (s *Spec) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Has reports whether the Spec declares the named entry
func (s *Spec) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// EntrySize returns the per-block size of the named entry.
// It returns error if the entry does not exist.
func (s *Spec) EntrySize(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return 0, fmt.Errorf("unknown entry: %s", name)
	}
	return s.entries[i].Size, nil
}

// Entries returns a copy of the entry declarations
func (s *Spec) Entries() []Entry {
	entries := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		cp := e
		cp.Repeat = append([]int(nil), e.Repeat...)
		entries[i] = cp
	}
	return entries
}

// Labels returns one label per scalar component, in layout order.
// Two Specs describe the same structure iff their labels are equal.
func (s *Spec) Labels() []string {
	labels := make([]string, 0, s.total)
	for _, e := range s.entries {
		switch len(e.Repeat) {
		case 0:
			for c := 0; c < e.Size; c++ {
				labels = append(labels, fmt.Sprintf("%s[%d]", e.Name, c))
			}
		case 1:
			for i := 0; i < e.Repeat[0]; i++ {
				for c := 0; c < e.Size; c++ {
					labels = append(labels, fmt.Sprintf("%s[%d][%d]", e.Name, i, c))
				}
			}
		case 2:
			for i := 0; i < e.Repeat[0]; i++ {
				for j := 0; j < e.Repeat[1]; j++ {
					for c := 0; c < e.Size; c++ {
						labels = append(labels, fmt.Sprintf("%s[%d,%d][%d]", e.Name, i, j, c))
					}
				}
			}
		}
	}
	return labels
}

// Equal reports whether the two Specs describe identical structures
func (s *Spec) Equal(other *Spec) bool {
	if other == nil || s.total != other.total || len(s.entries) != len(other.entries) {
		return false
	}
	a, b := s.Labels(), other.Labels()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Zero returns a new zero-valued instance of the Spec
func (s *Spec) Zero() *Vec {
	return &Vec{spec: s, data: make([]float64, s.total)}
}

// Filled returns a new instance with every component set to val
func (s *Spec) Filled(val float64) *Vec {
	v := s.Zero()
	v.Fill(val)
	return v
}

// Wrap returns a Vec that uses data as its storage without copying.
// It returns error if the length of data does not match the Spec.
func (s *Spec) Wrap(data []float64) (*Vec, error) {
	if len(data) != s.total {
		return nil, fmt.Errorf("wrapped storage has %d components, spec needs %d", len(data), s.total)
	}
	return &Vec{spec: s, data: data}, nil
}

// offset resolves the flat offset of the addressed block.
// idx must supply one index per declared repeat dimension.
func (s *Spec) offset(name string, idx ...int) (off, size int, err error) {
	i, ok := s.index[name]
	if !ok {
		return 0, 0, fmt.Errorf("unknown entry: %s", name)
	}
	e := s.entries[i]
	if len(idx) != len(e.Repeat) {
		return 0, 0, fmt.Errorf("entry %s needs %d indices, got %d", name, len(e.Repeat), len(idx))
	}

	flat := 0
	for d, ix := range idx {
		if ix < 0 || ix >= e.Repeat[d] {
			return 0, 0, fmt.Errorf("entry %s index %d out of range [0,%d)", name, ix, e.Repeat[d])
		}
		flat = flat*e.Repeat[d] + ix
	}

	return s.offsets[i] + flat*e.Size, e.Size, nil
}

// Vec is a numeric instance of a Spec: one flat vector with labeled
// block access. Blocks are views into the flat storage, not copies.
type Vec struct {
	spec *Spec
	data []float64
}

// Spec returns the layout of the Vec
func (v *Vec) Spec() *Spec {
	return v.spec
}

// Len returns the number of scalar components
func (v *Vec) Len() int {
	return len(v.data)
}

// Data returns the underlying flat storage.
// Mutating the returned slice mutates the Vec.
func (v *Vec) Data() []float64 {
	return v.data
}

// Cat returns the flat vector as a gonum vector sharing the underlying
// storage. It returns nil for a zero-length Vec.
func (v *Vec) Cat() *mat.VecDense {
	if len(v.data) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v.data), v.data)
}

// Labels returns the component labels of the Vec
func (v *Vec) Labels() []string {
	return v.spec.Labels()
}

// Fill sets every component to val
func (v *Vec) Fill(val float64) {
	for i := range v.data {
		v.data[i] = val
	}
}

// Clone returns a deep copy of the Vec
func (v *Vec) Clone() *Vec {
	c := v.spec.Zero()
	copy(c.data, v.data)
	return c
}

// Copy copies the components of u into v.
// It returns error if the two Vecs have different structures.
func (v *Vec) Copy(u *Vec) error {
	if !v.spec.Equal(u.spec) {
		return fmt.Errorf("structure mismatch")
	}
	copy(v.data, u.data)
	return nil
}

// Block returns the addressed block as a slice view into the flat
// storage. idx must supply one index per declared repeat dimension.
func (v *Vec) Block(name string, idx ...int) ([]float64, error) {
	off, size, err := v.spec.offset(name, idx...)
	if err != nil {
		return nil, err
	}
	return v.data[off : off+size], nil
}

// VecView returns the addressed block as a gonum vector sharing the
// underlying storage. It returns nil for a zero-size block.
func (v *Vec) VecView(name string, idx ...int) (*mat.VecDense, error) {
	b, err := v.Block(name, idx...)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return mat.NewVecDense(len(b), b), nil
}

// Set copies val into the addressed block.
// It returns error if the block does not exist or val has wrong length.
func (v *Vec) Set(name string, val mat.Vector, idx ...int) error {
	b, err := v.Block(name, idx...)
	if err != nil {
		return err
	}
	if isNilVector(val) {
		if len(b) != 0 {
			return fmt.Errorf("entry %s expects %d components, got nil", name, len(b))
		}
		return nil
	}
	if val.Len() != len(b) {
		return fmt.Errorf("entry %s expects %d components, got %d", name, len(b), val.Len())
	}
	for i := range b {
		b[i] = val.AtVec(i)
	}
	return nil
}

// isNilVector reports whether v is nil, including a nil *mat.VecDense
// hidden behind the interface, as returned by Cat and VecView for
// empty vectors and blocks
func isNilVector(v mat.Vector) bool {
	if v == nil {
		return true
	}
	vd, ok := v.(*mat.VecDense)
	return ok && vd == nil
}

// SetAll sets every component of every repeated block of the named
// entry to val
func (v *Vec) SetAll(name string, val float64) error {
	i, ok := v.spec.index[name]
	if !ok {
		return fmt.Errorf("unknown entry: %s", name)
	}
	e := v.spec.entries[i]
	off := v.spec.offsets[i]
	n := e.Size * blockCount(e.Repeat)
	for k := off; k < off+n; k++ {
		v.data[k] = val
	}
	return nil
}
