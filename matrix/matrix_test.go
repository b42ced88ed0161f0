package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestBackSubstituteUpper(t *testing.T) {
	assert := assert.New(t)

	r := mat.NewDense(2, 2, []float64{
		2.0, 1.0,
		0.0, 4.0,
	})
	b := mat.NewVecDense(2, []float64{5.0, 8.0})

	x, err := BackSubstituteUpper(r, b)
	assert.NoError(err)
	assert.InDelta(1.5, x.AtVec(0), 1e-12)
	assert.InDelta(2.0, x.AtVec(1), 1e-12)

	// non square matrix
	x, err = BackSubstituteUpper(mat.NewDense(2, 3, nil), b)
	assert.Nil(x)
	assert.Error(err)

	// rhs dimension mismatch
	x, err = BackSubstituteUpper(r, mat.NewVecDense(3, nil))
	assert.Nil(x)
	assert.Error(err)

	// singular matrix
	x, err = BackSubstituteUpper(mat.NewDense(2, 2, []float64{1, 1, 0, 0}), b)
	assert.Nil(x)
	assert.Error(err)
}

func TestForwardSubstituteUpperT(t *testing.T) {
	assert := assert.New(t)

	r := mat.NewDense(2, 2, []float64{
		2.0, 1.0,
		0.0, 4.0,
	})
	// R' is lower triangular: R'x = b
	b := mat.NewVecDense(2, []float64{4.0, 10.0})

	x, err := ForwardSubstituteUpperT(r, b)
	assert.NoError(err)
	assert.InDelta(2.0, x.AtVec(0), 1e-12)
	assert.InDelta(2.0, x.AtVec(1), 1e-12)

	// solving both ways against gonum agrees with a dense solve
	var dense mat.VecDense
	err = dense.SolveVec(r.T(), b)
	assert.NoError(err)
	assert.True(EqualVecWithinAbs(x, &dense, 1e-12))

	x, err = ForwardSubstituteUpperT(mat.NewDense(3, 2, nil), b)
	assert.Nil(x)
	assert.Error(err)

	x, err = ForwardSubstituteUpperT(r, mat.NewVecDense(1, nil))
	assert.Nil(x)
	assert.Error(err)

	x, err = ForwardSubstituteUpperT(mat.NewDense(2, 2, []float64{0, 1, 0, 1}), b)
	assert.Nil(x)
	assert.Error(err)
}

func TestEqualWithinAbs(t *testing.T) {
	assert := assert.New(t)

	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{1, 2, 3, 4.0001})

	assert.True(EqualWithinAbs(a, b, 1e-3))
	assert.False(EqualWithinAbs(a, b, 1e-6))
	assert.False(EqualWithinAbs(a, mat.NewDense(2, 1, nil), 1e-3))
}

func TestEqualVecWithinAbs(t *testing.T) {
	assert := assert.New(t)

	a := mat.NewVecDense(2, []float64{1, 2})
	b := mat.NewVecDense(2, []float64{1, 2.0001})

	assert.True(EqualVecWithinAbs(a, b, 1e-3))
	assert.False(EqualVecWithinAbs(a, b, 1e-6))
	assert.False(EqualVecWithinAbs(a, mat.NewVecDense(1, nil), 1e-3))
}
