package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// BackSubstituteUpper solves R*x = b for upper triangular R.
// It returns error if R is not square, dimensions mismatch or R is singular.
func BackSubstituteUpper(r mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	n, c := r.Dims()
	if n != c {
		return nil, fmt.Errorf("invalid triangular matrix dimensions: [%d x %d]", n, c)
	}
	if b.Len() != n {
		return nil, fmt.Errorf("invalid rhs dimension: %d != %d", b.Len(), n)
	}

	x := mat.NewVecDense(n, nil)
	for i := n - 1; i >= 0; i-- {
		sum := b.AtVec(i)
		for j := i + 1; j < n; j++ {
			sum -= r.At(i, j) * x.AtVec(j)
		}
		d := r.At(i, i)
		if d == 0 {
			return nil, fmt.Errorf("singular triangular matrix: zero diagonal at %d", i)
		}
		x.SetVec(i, sum/d)
	}

	return x, nil
}

// ForwardSubstituteUpperT solves R'*x = b for upper triangular R.
// It returns error if R is not square, dimensions mismatch or R is singular.
func ForwardSubstituteUpperT(r mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	n, c := r.Dims()
	if n != c {
		return nil, fmt.Errorf("invalid triangular matrix dimensions: [%d x %d]", n, c)
	}
	if b.Len() != n {
		return nil, fmt.Errorf("invalid rhs dimension: %d != %d", b.Len(), n)
	}

	x := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sum := b.AtVec(i)
		for j := 0; j < i; j++ {
			sum -= r.At(j, i) * x.AtVec(j)
		}
		d := r.At(i, i)
		if d == 0 {
			return nil, fmt.Errorf("singular triangular matrix: zero diagonal at %d", i)
		}
		x.SetVec(i, sum/d)
	}

	return x, nil
}

// EqualWithinAbs compares two matrices elementwise with absolute tolerance tol.
// Matrices of different dimensions are unequal.
func EqualWithinAbs(a, b mat.Matrix, tol float64) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			if !scalar.EqualWithinAbs(a.At(i, j), b.At(i, j), tol) {
				return false
			}
		}
	}
	return true
}

// EqualVecWithinAbs compares two vectors elementwise with absolute tolerance tol.
// Vectors of different lengths are unequal.
func EqualVecWithinAbs(a, b mat.Vector, tol float64) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if !scalar.EqualWithinAbs(a.AtVec(i), b.AtVec(i), tol) {
			return false
		}
	}
	return true
}
