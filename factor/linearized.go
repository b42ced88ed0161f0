package factor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
)

// LinearizedJacobian wraps a Jacobian form linear factor together with the
// linearization point it was derived at, letting it act as a reusable
// nonlinear factor: its error is evaluated on the delta from that point and
// relinearization shifts the right hand side accordingly.
type LinearizedJacobian struct {
	// jf is the wrapped linear factor
	jf *linear.Jacobian
	// lin holds the linearization point values of every factor key
	lin *smooth.Values
}

// NewLinearizedJacobian creates new LinearizedJacobian anchored at lin.
// It returns error if lin misses a value for any factor key.
func NewLinearizedJacobian(jf *linear.Jacobian, lin *smooth.Values) (*LinearizedJacobian, error) {
	anchor, err := anchorValues(jf.Keys(), lin)
	if err != nil {
		return nil, err
	}
	return &LinearizedJacobian{jf: jf, lin: anchor}, nil
}

// Keys returns the factor variable keys.
func (l *LinearizedJacobian) Keys() []smooth.Key {
	return l.jf.Keys()
}

// Dim returns the residual dimension.
func (l *LinearizedJacobian) Dim() int {
	return l.jf.Rows()
}

// LinPoint returns the linearization point the factor is anchored at.
func (l *LinearizedJacobian) LinPoint() *smooth.Values {
	return l.lin
}

// Inner returns the wrapped linear factor.
func (l *LinearizedJacobian) Inner() *linear.Jacobian {
	return l.jf
}

// Error evaluates the wrapped factor on the delta of vals from the anchor.
func (l *LinearizedJacobian) Error(vals *smooth.Values) float64 {
	return l.jf.Error(deltaFrom(l.jf.Keys(), l.lin, vals))
}

// Linearize re-anchors the factor at vals: the coefficient blocks are
// unchanged and the right hand side becomes b - A*(vals - lin).
// It returns error if vals misses a value for any factor key.
func (l *LinearizedJacobian) Linearize(vals *smooth.Values) (linear.Factor, error) {
	if _, err := anchorValues(l.jf.Keys(), vals); err != nil {
		return nil, err
	}
	delta := deltaFrom(l.jf.Keys(), l.lin, vals)

	b := mat.NewVecDense(l.jf.Rows(), nil)
	b.CopyVec(l.jf.B())

	blocks := make([]*mat.Dense, 0, len(l.jf.Keys()))
	for _, key := range l.jf.Keys() {
		a := l.jf.A(key)
		blocks = append(blocks, mat.DenseCopyOf(a))

		d, _ := delta.At(key)
		tmp := mat.NewVecDense(b.Len(), nil)
		tmp.MulVec(a, d)
		b.SubVec(b, tmp)
	}

	return linear.NewJacobian(l.jf.Keys(), blocks, b, l.jf.Model())
}

// LinearizedHessian wraps a Hessian form linear factor together with the
// linearization point it was derived at.
type LinearizedHessian struct {
	// hf is the wrapped linear factor
	hf *linear.Hessian
	// lin holds the linearization point values of every factor key
	lin *smooth.Values
}

// NewLinearizedHessian creates new LinearizedHessian anchored at lin.
// It returns error if lin misses a value for any factor key.
func NewLinearizedHessian(hf *linear.Hessian, lin *smooth.Values) (*LinearizedHessian, error) {
	anchor, err := anchorValues(hf.Keys(), lin)
	if err != nil {
		return nil, err
	}
	return &LinearizedHessian{hf: hf, lin: anchor}, nil
}

// Keys returns the factor variable keys.
func (l *LinearizedHessian) Keys() []smooth.Key {
	return l.hf.Keys()
}

// Dim returns the total variable dimension of the quadratic form.
func (l *LinearizedHessian) Dim() int {
	return l.hf.Eta().Len()
}

// LinPoint returns the linearization point the factor is anchored at.
func (l *LinearizedHessian) LinPoint() *smooth.Values {
	return l.lin
}

// Inner returns the wrapped linear factor.
func (l *LinearizedHessian) Inner() *linear.Hessian {
	return l.hf
}

// Error evaluates the wrapped factor on the delta of vals from the anchor.
func (l *LinearizedHessian) Error(vals *smooth.Values) float64 {
	return l.hf.Error(deltaFrom(l.hf.Keys(), l.lin, vals))
}

// Linearize re-anchors the quadratic form at vals: with delta0 the offset
// from the stored point, G stays, eta' = eta - G*delta0 and the constant
// picks up the completed square terms.
// It returns error if vals misses a value for any factor key.
func (l *LinearizedHessian) Linearize(vals *smooth.Values) (linear.Factor, error) {
	if _, err := anchorValues(l.hf.Keys(), vals); err != nil {
		return nil, err
	}
	delta := deltaFrom(l.hf.Keys(), l.lin, vals)

	keys := l.hf.Keys()
	dims := make([]int, len(keys))
	total := 0
	for i, key := range keys {
		dims[i] = l.hf.Dim(key)
		total += dims[i]
	}

	d0 := mat.NewVecDense(total, nil)
	off := 0
	for i, key := range keys {
		d, _ := delta.At(key)
		for j := 0; j < dims[i]; j++ {
			d0.SetVec(off+j, d.AtVec(j))
		}
		off += dims[i]
	}

	gd := mat.NewVecDense(total, nil)
	gd.MulVec(l.hf.Info(), d0)

	eta := mat.NewVecDense(total, nil)
	eta.SubVec(l.hf.Eta(), gd)

	c := l.hf.Constant() + mat.Dot(d0, gd) - 2*mat.Dot(d0, l.hf.Eta())

	info := mat.NewSymDense(total, nil)
	info.CopySym(l.hf.Info())

	return linear.NewHessian(keys, dims, info, eta, c)
}

// anchorValues copies the values of keys out of vals.
// It returns error if any key has no value.
func anchorValues(keys []smooth.Key, vals *smooth.Values) (*smooth.Values, error) {
	anchor := smooth.NewValues()
	for _, key := range keys {
		if vals == nil {
			return nil, fmt.Errorf("missing value for key %v", key)
		}
		v, ok := vals.At(key)
		if !ok {
			return nil, fmt.Errorf("missing value for key %v", key)
		}
		anchor.Insert(key, v)
	}
	return anchor, nil
}

// deltaFrom returns vals - lin over keys; keys missing from vals get zero.
func deltaFrom(keys []smooth.Key, lin, vals *smooth.Values) *smooth.Values {
	delta := smooth.NewValues()
	for _, key := range keys {
		l, ok := lin.At(key)
		if !ok {
			continue
		}
		d := mat.NewVecDense(l.Len(), nil)
		if vals != nil {
			if v, ok := vals.At(key); ok && v.Len() == l.Len() {
				d.SubVec(v, l)
			}
		}
		delta.Insert(key, d)
	}
	return delta
}
