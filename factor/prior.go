package factor

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
	"github.com/slamlab/go-smooth/noise"
)

// Prior anchors a single variable at a fixed value under a noise model.
type Prior struct {
	// key is the constrained variable
	key smooth.Key
	// prior is the anchor value
	prior *mat.VecDense
	// model is the residual noise model; nil means unit noise
	model noise.Model
}

// NewPrior creates new Prior factor and returns it.
// It returns error if the noise model dimension does not match the prior.
func NewPrior(key smooth.Key, prior mat.Vector, model noise.Model) (*Prior, error) {
	if prior.Len() == 0 {
		return nil, fmt.Errorf("empty prior value for key %v", key)
	}
	if model != nil && model.Dim() != prior.Len() {
		return nil, fmt.Errorf("invalid noise model dimension: %d != %d", model.Dim(), prior.Len())
	}

	p := mat.NewVecDense(prior.Len(), nil)
	p.CopyVec(prior)

	return &Prior{key: key, prior: p, model: model}, nil
}

// Keys returns the single constrained key.
func (p *Prior) Keys() []smooth.Key {
	return []smooth.Key{p.key}
}

// Dim returns the residual dimension.
func (p *Prior) Dim() int {
	return p.prior.Len()
}

// Error returns 0.5 times the squared whitened residual norm at vals.
func (p *Prior) Error(vals *smooth.Values) float64 {
	r := p.residual(vals)
	if r == nil {
		return 0
	}
	if p.model != nil {
		return 0.5 * p.model.Distance(r)
	}
	return 0.5 * mat.Dot(r, r)
}

// Linearize returns the Jacobian form of the factor at vals:
// I*delta = prior - x.
// It returns error if vals has no value for the key.
func (p *Prior) Linearize(vals *smooth.Values) (linear.Factor, error) {
	r := p.residual(vals)
	if r == nil {
		return nil, fmt.Errorf("missing value for key %v", p.key)
	}

	eye, err := matrix.NewDenseValIdentity(p.prior.Len(), 1.0)
	if err != nil {
		return nil, err
	}

	b := mat.NewVecDense(r.Len(), nil)
	b.ScaleVec(-1, r)

	return linear.NewJacobian([]smooth.Key{p.key}, []*mat.Dense{eye}, b, p.model)
}

// residual returns x - prior at vals, nil if the key has no value.
func (p *Prior) residual(vals *smooth.Values) *mat.VecDense {
	if vals == nil {
		return nil
	}
	x, ok := vals.At(p.key)
	if !ok || x.Len() != p.prior.Len() {
		return nil
	}
	r := mat.NewVecDense(x.Len(), nil)
	r.SubVec(x, p.prior)
	return r
}
