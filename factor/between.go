package factor

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
	"github.com/slamlab/go-smooth/noise"
)

// Between constrains the difference of two variables to a measured value:
// x2 - x1 = measured, under a noise model.
type Between struct {
	// k1 and k2 are the constrained variables
	k1, k2 smooth.Key
	// measured is the measured difference
	measured *mat.VecDense
	// model is the residual noise model; nil means unit noise
	model noise.Model
}

// NewBetween creates new Between factor and returns it.
// It returns error if the keys coincide or the noise model dimension
// does not match the measurement.
func NewBetween(k1, k2 smooth.Key, measured mat.Vector, model noise.Model) (*Between, error) {
	if k1 == k2 {
		return nil, fmt.Errorf("between factor needs two distinct keys, got %v", k1)
	}
	if measured.Len() == 0 {
		return nil, fmt.Errorf("empty measurement for keys %v, %v", k1, k2)
	}
	if model != nil && model.Dim() != measured.Len() {
		return nil, fmt.Errorf("invalid noise model dimension: %d != %d", model.Dim(), measured.Len())
	}

	m := mat.NewVecDense(measured.Len(), nil)
	m.CopyVec(measured)

	return &Between{k1: k1, k2: k2, measured: m, model: model}, nil
}

// Keys returns the two constrained keys.
func (b *Between) Keys() []smooth.Key {
	return []smooth.Key{b.k1, b.k2}
}

// Dim returns the residual dimension.
func (b *Between) Dim() int {
	return b.measured.Len()
}

// Error returns 0.5 times the squared whitened residual norm at vals.
func (b *Between) Error(vals *smooth.Values) float64 {
	r := b.residual(vals)
	if r == nil {
		return 0
	}
	if b.model != nil {
		return 0.5 * b.model.Distance(r)
	}
	return 0.5 * mat.Dot(r, r)
}

// Linearize returns the Jacobian form of the factor at vals:
// -I*delta1 + I*delta2 = measured - (x2 - x1).
// It returns error if vals misses either key.
func (b *Between) Linearize(vals *smooth.Values) (linear.Factor, error) {
	r := b.residual(vals)
	if r == nil {
		return nil, fmt.Errorf("missing value for keys %v, %v", b.k1, b.k2)
	}

	n := b.measured.Len()
	eye, err := matrix.NewDenseValIdentity(n, 1.0)
	if err != nil {
		return nil, err
	}
	neg, err := matrix.NewDenseValIdentity(n, -1.0)
	if err != nil {
		return nil, err
	}

	rhs := mat.NewVecDense(n, nil)
	rhs.ScaleVec(-1, r)

	return linear.NewJacobian([]smooth.Key{b.k1, b.k2}, []*mat.Dense{neg, eye}, rhs, b.model)
}

// residual returns (x2 - x1) - measured at vals, nil if a key has no value.
func (b *Between) residual(vals *smooth.Values) *mat.VecDense {
	if vals == nil {
		return nil
	}
	x1, ok1 := vals.At(b.k1)
	x2, ok2 := vals.At(b.k2)
	if !ok1 || !ok2 || x1.Len() != b.measured.Len() || x2.Len() != b.measured.Len() {
		return nil
	}
	r := mat.NewVecDense(b.measured.Len(), nil)
	r.SubVec(x2, x1)
	r.SubVec(r, b.measured)
	return r
}
