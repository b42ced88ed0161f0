package noise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model is a diagonal measurement noise model attached to a Jacobian factor.
// Whitening divides each residual row by its standard deviation so the
// whitened system has unit noise.
type Model interface {
	// Dim returns the number of residual rows the model covers
	Dim() int
	// Sigmas returns per-row standard deviations
	Sigmas() []float64
	// Whiten scales the rows of the system A*x = b in place
	Whiten(a *mat.Dense, b *mat.VecDense)
	// Distance returns the squared whitened norm of residual r
	Distance(r mat.Vector) float64
}

// Diagonal is a noise model with independent per-row standard deviations.
type Diagonal struct {
	// sigmas are per-row standard deviations
	sigmas []float64
}

// NewDiagonal creates new Diagonal noise model from per-row standard deviations.
// It returns error if sigmas is empty or contains non-positive entries.
func NewDiagonal(sigmas []float64) (*Diagonal, error) {
	if len(sigmas) == 0 {
		return nil, fmt.Errorf("invalid noise model dimension: %d", len(sigmas))
	}
	for i, s := range sigmas {
		if s <= 0 || math.IsNaN(s) {
			return nil, fmt.Errorf("invalid sigma at row %d: %v", i, s)
		}
	}

	c := make([]float64, len(sigmas))
	copy(c, sigmas)

	return &Diagonal{sigmas: c}, nil
}

// NewIsotropic creates new Diagonal noise model with dim rows sharing one sigma.
// It returns error if dim is not positive or sigma is not positive.
func NewIsotropic(dim int, sigma float64) (*Diagonal, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid noise model dimension: %d", dim)
	}

	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = sigma
	}

	return NewDiagonal(sigmas)
}

// NewUnit creates new Diagonal noise model with dim unit sigmas.
func NewUnit(dim int) *Diagonal {
	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = 1.0
	}

	return &Diagonal{sigmas: sigmas}
}

// Dim returns the number of rows the model covers.
func (d *Diagonal) Dim() int {
	return len(d.sigmas)
}

// Sigmas returns a copy of per-row standard deviations.
func (d *Diagonal) Sigmas() []float64 {
	c := make([]float64, len(d.sigmas))
	copy(c, d.sigmas)
	return c
}

// Whiten divides every row of A and b by the row sigma in place.
// It panics if the row counts do not match the model dimension.
func (d *Diagonal) Whiten(a *mat.Dense, b *mat.VecDense) {
	rows, cols := a.Dims()
	if rows != len(d.sigmas) || b.Len() != len(d.sigmas) {
		panic(fmt.Sprintf("noise model dimension mismatch: %d rows, %d sigmas", rows, len(d.sigmas)))
	}
	for i := 0; i < rows; i++ {
		w := 1.0 / d.sigmas[i]
		for j := 0; j < cols; j++ {
			a.Set(i, j, a.At(i, j)*w)
		}
		b.SetVec(i, b.AtVec(i)*w)
	}
}

// Distance returns the squared whitened norm of residual r.
func (d *Diagonal) Distance(r mat.Vector) float64 {
	var sum float64
	for i := 0; i < r.Len(); i++ {
		w := r.AtVec(i) / d.sigmas[i]
		sum += w * w
	}
	return sum
}

// String implements the Stringer interface.
func (d *Diagonal) String() string {
	return fmt.Sprintf("Diagonal{Sigmas=%v}", d.sigmas)
}
