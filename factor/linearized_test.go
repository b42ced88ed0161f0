package factor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
)

func anchoredJacobian(t *testing.T) (*linear.Jacobian, *smooth.Values) {
	// 2*delta = 4 anchored at x0=1
	jf, err := linear.NewJacobian(
		[]smooth.Key{smooth.Sym('x', 0)},
		[]*mat.Dense{mat.NewDense(1, 1, []float64{2.0})},
		mat.NewVecDense(1, []float64{4.0}),
		nil)
	assert.NoError(t, err)

	lin := smooth.NewValues()
	lin.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{1.0}))

	return jf, lin
}

func TestNewLinearizedJacobian(t *testing.T) {
	assert := assert.New(t)

	jf, lin := anchoredJacobian(t)

	l, err := NewLinearizedJacobian(jf, lin)
	assert.NoError(err)
	assert.NotNil(l)
	assert.Equal(jf.Keys(), l.Keys())
	assert.Equal(1, l.Dim())
	assert.Equal(jf, l.Inner())
	assert.True(l.LinPoint().Has(smooth.Sym('x', 0)))

	// missing anchor value
	l, err = NewLinearizedJacobian(jf, smooth.NewValues())
	assert.Nil(l)
	assert.Error(err)
}

func TestLinearizedJacobianError(t *testing.T) {
	assert := assert.New(t)

	jf, lin := anchoredJacobian(t)
	l, err := NewLinearizedJacobian(jf, lin)
	assert.NoError(err)

	// at the anchor the delta is zero: 0.5*4^2
	assert.InDelta(8.0, l.Error(lin), 1e-12)

	// at x0=3 the delta is 2: residual 2*2-4=0
	vals := smooth.NewValues()
	vals.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{3.0}))
	assert.InDelta(0.0, l.Error(vals), 1e-12)
}

func TestLinearizedJacobianLinearize(t *testing.T) {
	assert := assert.New(t)

	jf, lin := anchoredJacobian(t)
	l, err := NewLinearizedJacobian(jf, lin)
	assert.NoError(err)

	// re-anchoring at x0=2 shifts b by A*delta0: b' = 4 - 2*1
	vals := smooth.NewValues()
	vals.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{2.0}))

	lf, err := l.Linearize(vals)
	assert.NoError(err)

	shifted, ok := lf.(*linear.Jacobian)
	assert.True(ok)
	assert.Equal(2.0, shifted.A(smooth.Sym('x', 0)).At(0, 0))
	assert.InDelta(2.0, shifted.B().AtVec(0), 1e-12)

	// the shifted factor agrees with the original on absolute values:
	// both are zeroed at x0=3
	delta := smooth.NewValues()
	delta.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{1.0}))
	assert.InDelta(0.0, shifted.Error(delta), 1e-12)

	// missing value fails
	lf, err = l.Linearize(nil)
	assert.Nil(lf)
	assert.Error(err)
}

func anchoredHessian(t *testing.T) (*linear.Hessian, *smooth.Values) {
	// E(delta) = 0.5*2*delta^2 - 4*delta + 0.5*8, zero at delta=2,
	// anchored at x0=1
	hf, err := linear.NewHessian(
		[]smooth.Key{smooth.Sym('x', 0)},
		[]int{1},
		mat.NewSymDense(1, []float64{2.0}),
		mat.NewVecDense(1, []float64{4.0}),
		8.0)
	assert.NoError(t, err)

	lin := smooth.NewValues()
	lin.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{1.0}))

	return hf, lin
}

func TestNewLinearizedHessian(t *testing.T) {
	assert := assert.New(t)

	hf, lin := anchoredHessian(t)

	l, err := NewLinearizedHessian(hf, lin)
	assert.NoError(err)
	assert.NotNil(l)
	assert.Equal(hf.Keys(), l.Keys())
	assert.Equal(1, l.Dim())
	assert.Equal(hf, l.Inner())

	l, err = NewLinearizedHessian(hf, nil)
	assert.Nil(l)
	assert.Error(err)
}

func TestLinearizedHessianError(t *testing.T) {
	assert := assert.New(t)

	hf, lin := anchoredHessian(t)
	l, err := NewLinearizedHessian(hf, lin)
	assert.NoError(err)

	// zero error at x0 = anchor + 2
	vals := smooth.NewValues()
	vals.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{3.0}))
	assert.InDelta(0.0, l.Error(vals), 1e-12)

	assert.InDelta(4.0, l.Error(lin), 1e-12)
}

func TestLinearizedHessianLinearize(t *testing.T) {
	assert := assert.New(t)

	hf, lin := anchoredHessian(t)
	l, err := NewLinearizedHessian(hf, lin)
	assert.NoError(err)

	// re-anchor at x0=2, one unit from the stored point
	vals := smooth.NewValues()
	vals.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{2.0}))

	lf, err := l.Linearize(vals)
	assert.NoError(err)

	shifted, ok := lf.(*linear.Hessian)
	assert.True(ok)

	// the quadratic form keeps its shape and its minimum moves with the
	// anchor: zero error one unit above the new point
	delta := smooth.NewValues()
	delta.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{1.0}))
	assert.InDelta(0.0, shifted.Error(delta), 1e-12)
	assert.Equal(2.0, shifted.Info().At(0, 0))
	assert.InDelta(2.0, shifted.Eta().AtVec(0), 1e-12)

	lf, err = l.Linearize(nil)
	assert.Nil(lf)
	assert.Error(err)
}
