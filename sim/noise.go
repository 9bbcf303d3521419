package sim

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is zero-mean gaussian measurement noise with a fixed seed,
// so simulated measurement sequences are reproducible
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// cov is the noise covariance
	cov *mat.SymDense
}

// NewGaussian creates new zero-mean Gaussian noise with covariance cov
// and the given random seed. It returns error if it fails to create
// the underlying distribution.
func NewGaussian(cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	src := rand.New(rand.NewSource(seed))
	dist, ok := distmv.NewNormal(make([]float64, c.SymmetricDim()), c, src)
	if !ok {
		return nil, fmt.Errorf("failed to create Gaussian noise")
	}

	return &Gaussian{dist: dist, cov: c}, nil
}

// NewGaussianIID creates new zero-mean Gaussian noise with n
// independent components of variance sigma2
func NewGaussianIID(n int, sigma2 float64, seed uint64) (*Gaussian, error) {
	eye, err := matrix.NewDenseValIdentity(n, sigma2)
	if err != nil {
		return nil, fmt.Errorf("failed to build noise covariance: %v", err)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, eye.At(i, j))
		}
	}

	return NewGaussian(cov, seed)
}

// Sample generates a noise sample and returns it
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns the noise covariance
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}
