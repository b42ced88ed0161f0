package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/noise"
)

// Jacobian is a linear factor in residual form: A*delta = b under a
// diagonal noise model. The coefficient matrix is stored as one block
// per key, aligned with the key order.
type Jacobian struct {
	// keys are factor variable keys in block order
	keys []smooth.Key
	// a are per-key coefficient blocks, all with the same row count
	a []*mat.Dense
	// b is the right hand side vector
	b *mat.VecDense
	// model is the per-row noise model; nil means unit noise
	model noise.Model
}

// NewJacobian creates new Jacobian factor and returns it.
// It returns error if keys and blocks disagree, row counts mismatch
// or the noise model dimension does not match the row count.
func NewJacobian(keys []smooth.Key, a []*mat.Dense, b *mat.VecDense, model noise.Model) (*Jacobian, error) {
	if len(keys) == 0 || len(keys) != len(a) {
		return nil, fmt.Errorf("invalid jacobian blocks: %d keys, %d blocks", len(keys), len(a))
	}

	rows := b.Len()
	seen := make(map[smooth.Key]struct{}, len(keys))
	for i, key := range keys {
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("duplicate key: %v", key)
		}
		seen[key] = struct{}{}

		r, c := a[i].Dims()
		if r != rows {
			return nil, fmt.Errorf("invalid block row count for key %v: %d != %d", key, r, rows)
		}
		if c == 0 {
			return nil, fmt.Errorf("empty block for key %v", key)
		}
	}

	if model != nil && model.Dim() != rows {
		return nil, fmt.Errorf("invalid noise model dimension: %d != %d", model.Dim(), rows)
	}

	return &Jacobian{keys: keys, a: a, b: b, model: model}, nil
}

// Keys returns the factor variable keys in block order.
func (j *Jacobian) Keys() []smooth.Key {
	keys := make([]smooth.Key, len(j.keys))
	copy(keys, j.keys)
	return keys
}

// Dim returns the block width of key, 0 if the factor does not touch it.
func (j *Jacobian) Dim(key smooth.Key) int {
	for i, k := range j.keys {
		if k == key {
			_, c := j.a[i].Dims()
			return c
		}
	}
	return 0
}

// Kind returns KindJacobian.
func (j *Jacobian) Kind() Kind {
	return KindJacobian
}

// Rows returns the residual row count of the factor.
func (j *Jacobian) Rows() int {
	return j.b.Len()
}

// A returns the coefficient block of key, nil if the factor does not touch it.
func (j *Jacobian) A(key smooth.Key) *mat.Dense {
	for i, k := range j.keys {
		if k == key {
			return j.a[i]
		}
	}
	return nil
}

// B returns the right hand side vector.
func (j *Jacobian) B() *mat.VecDense {
	return j.b
}

// Model returns the noise model, nil for unit noise.
func (j *Jacobian) Model() noise.Model {
	return j.model
}

// Error returns 0.5 times the squared whitened residual norm at delta.
// Keys missing from delta contribute zero motion.
func (j *Jacobian) Error(delta *smooth.Values) float64 {
	r := mat.NewVecDense(j.b.Len(), nil)
	r.ScaleVec(-1, j.b)

	for i, key := range j.keys {
		if delta == nil {
			break
		}
		d, ok := delta.At(key)
		if !ok {
			continue
		}
		tmp := mat.NewVecDense(j.b.Len(), nil)
		tmp.MulVec(j.a[i], d)
		r.AddVec(r, tmp)
	}

	if j.model != nil {
		return 0.5 * j.model.Distance(r)
	}
	return 0.5 * mat.Dot(r, r)
}

// whitened returns copies of the stacked blocks and rhs with noise scaled out.
func (j *Jacobian) whitened() ([]*mat.Dense, *mat.VecDense) {
	rows := j.b.Len()
	cols := 0
	for _, blk := range j.a {
		_, c := blk.Dims()
		cols += c
	}

	stacked := mat.NewDense(rows, cols, nil)
	off := 0
	for _, blk := range j.a {
		_, c := blk.Dims()
		stacked.Slice(0, rows, off, off+c).(*mat.Dense).Copy(blk)
		off += c
	}

	b := mat.NewVecDense(rows, nil)
	b.CopyVec(j.b)

	if j.model != nil {
		j.model.Whiten(stacked, b)
	}

	blocks := make([]*mat.Dense, len(j.a))
	off = 0
	for i, blk := range j.a {
		_, c := blk.Dims()
		blocks[i] = mat.DenseCopyOf(stacked.Slice(0, rows, off, off+c))
		off += c
	}

	return blocks, b
}
