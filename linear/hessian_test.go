package linear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
)

func TestNewHessian(t *testing.T) {
	assert := assert.New(t)

	keys := []smooth.Key{smooth.Sym('x', 0)}
	info := mat.NewSymDense(1, []float64{2.0})
	eta := mat.NewVecDense(1, []float64{4.0})

	h, err := NewHessian(keys, []int{1}, info, eta, 8.0)
	assert.NoError(err)
	assert.NotNil(h)
	assert.Equal(KindHessian, h.Kind())
	assert.Equal(1, h.Dim(smooth.Sym('x', 0)))
	assert.Equal(0, h.Dim(smooth.Sym('x', 1)))
	assert.Equal(8.0, h.Constant())

	// keys and dims disagree
	h, err = NewHessian(keys, nil, info, eta, 0)
	assert.Nil(h)
	assert.Error(err)

	// duplicate key
	h, err = NewHessian(
		[]smooth.Key{smooth.Sym('x', 0), smooth.Sym('x', 0)},
		[]int{1, 1},
		mat.NewSymDense(2, nil), mat.NewVecDense(2, nil), 0)
	assert.Nil(h)
	assert.Error(err)

	// information matrix dimension mismatch
	h, err = NewHessian(keys, []int{2}, info, eta, 0)
	assert.Nil(h)
	assert.Error(err)

	// information vector dimension mismatch
	h, err = NewHessian(keys, []int{1}, info, mat.NewVecDense(2, nil), 0)
	assert.Nil(h)
	assert.Error(err)
}

func TestHessianError(t *testing.T) {
	assert := assert.New(t)

	// E(x) = 0.5*2*x^2 - 4*x + 0.5*8, minimized at x=2 with E=0
	h, err := NewHessian(
		[]smooth.Key{smooth.Sym('x', 0)},
		[]int{1},
		mat.NewSymDense(1, []float64{2.0}),
		mat.NewVecDense(1, []float64{4.0}),
		8.0)
	assert.NoError(err)

	delta := smooth.NewValues()
	delta.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{2.0}))
	assert.InDelta(0.0, h.Error(delta), 1e-12)

	delta.Insert(smooth.Sym('x', 0), mat.NewVecDense(1, []float64{1.0}))
	assert.InDelta(1.0, h.Error(delta), 1e-12)

	// missing key contributes zero motion
	assert.InDelta(4.0, h.Error(nil), 1e-12)

	// wrong dimension values are skipped
	delta.Insert(smooth.Sym('x', 0), mat.NewVecDense(2, nil))
	assert.InDelta(4.0, h.Error(delta), 1e-12)
}
