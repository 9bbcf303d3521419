package params

import (
	"fmt"

	mhe "github.com/milosgajdos/go-mhe"
	"github.com/milosgajdos/go-mhe/structvec"
	"gonum.org/v1/gonum/mat"
)

// segment maps one full-spec entry onto its source subset vector
type segment struct {
	est  bool
	off  int
	size int
}

// Partition splits a model parameter structure into an estimated subset
// and a fixed subset while preserving the relative order of both.
// A Partition is immutable once created.
type Partition struct {
	full     *structvec.Spec
	est      *structvec.Spec
	fixed    *structvec.Spec
	segments []segment
}

// Split partitions the full parameter spec into the estimated entries
// named in estNames and the remaining fixed entries. The relative order
// within each subset follows the order of the full spec.
// It fails with ConfigurationError if an estimated name is not declared
// in the full spec.
func Split(full *structvec.Spec, estNames []string) (*Partition, error) {
	want := make(map[string]bool, len(estNames))
	for _, name := range estNames {
		if !full.Has(name) {
			return nil, &mhe.ConfigurationError{
				Op:  "params.Split",
				Msg: fmt.Sprintf("estimated parameter %s is not declared by the model", name),
			}
		}
		want[name] = true
	}

	var estEntries, fixedEntries []structvec.Entry
	for _, e := range full.Entries() {
		if want[e.Name] {
			estEntries = append(estEntries, e)
		} else {
			fixedEntries = append(fixedEntries, e)
		}
	}

	est, err := structvec.NewSpec(estEntries...)
	if err != nil {
		return nil, err
	}
	fixed, err := structvec.NewSpec(fixedEntries...)
	if err != nil {
		return nil, err
	}

	// record, per full entry, where its components live in the subsets
	segments := make([]segment, 0, len(full.Entries()))
	estOff, fixedOff := 0, 0
	for _, e := range full.Entries() {
		n := e.Size
		for _, r := range e.Repeat {
			n *= r
		}
		if want[e.Name] {
			segments = append(segments, segment{est: true, off: estOff, size: n})
			estOff += n
		} else {
			segments = append(segments, segment{est: false, off: fixedOff, size: n})
			fixedOff += n
		}
	}

	return &Partition{
		full:     full,
		est:      est,
		fixed:    fixed,
		segments: segments,
	}, nil
}

// Full returns the full parameter spec
func (p *Partition) Full() *structvec.Spec {
	return p.full
}

// Est returns the estimated parameter subset spec
func (p *Partition) Est() *structvec.Spec {
	return p.est
}

// Fixed returns the fixed parameter subset spec
func (p *Partition) Fixed() *structvec.Spec {
	return p.fixed
}

// Recombine reconstructs the full parameter vector from the estimated
// and fixed subset values, restoring the original component order.
// dst must have the full spec length; pEst and pFix may be nil when the
// corresponding subset is empty.
func (p *Partition) Recombine(dst []float64, pEst, pFix mat.Vector) error {
	if len(dst) != p.full.Len() {
		return fmt.Errorf("invalid destination length: want %d, got %d", p.full.Len(), len(dst))
	}
	if err := checkLen("estimated", pEst, p.est.Len()); err != nil {
		return err
	}
	if err := checkLen("fixed", pFix, p.fixed.Len()); err != nil {
		return err
	}

	at := 0
	for _, seg := range p.segments {
		src := pFix
		if seg.est {
			src = pEst
		}
		for i := 0; i < seg.size; i++ {
			dst[at+i] = src.AtVec(seg.off + i)
		}
		at += seg.size
	}

	return nil
}

func checkLen(kind string, v mat.Vector, want int) error {
	got := 0
	// a nil *mat.VecDense behind the interface counts as empty too
	if vd, ok := v.(*mat.VecDense); v != nil && (!ok || vd != nil) {
		got = v.Len()
	}
	if got != want {
		return fmt.Errorf("invalid %s parameter vector length: want %d, got %d", kind, want, got)
	}
	return nil
}
