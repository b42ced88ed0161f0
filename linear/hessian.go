package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
)

// Hessian is a linear factor in quadratic information form:
// E(x) = 0.5*x'*G*x - x'*eta + 0.5*c, blocked by key order.
type Hessian struct {
	// keys are factor variable keys in block order
	keys []smooth.Key
	// dims are per-key block widths
	dims []int
	// info is the full information matrix G
	info *mat.SymDense
	// eta is the information vector
	eta *mat.VecDense
	// c is the constant error term
	c float64
}

// NewHessian creates new Hessian factor and returns it.
// It returns error if block widths do not add up to the information
// matrix dimension or keys are duplicated.
func NewHessian(keys []smooth.Key, dims []int, info *mat.SymDense, eta *mat.VecDense, c float64) (*Hessian, error) {
	if len(keys) == 0 || len(keys) != len(dims) {
		return nil, fmt.Errorf("invalid hessian blocks: %d keys, %d dims", len(keys), len(dims))
	}

	total := 0
	seen := make(map[smooth.Key]struct{}, len(keys))
	for i, key := range keys {
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("duplicate key: %v", key)
		}
		seen[key] = struct{}{}
		if dims[i] <= 0 {
			return nil, fmt.Errorf("invalid block width for key %v: %d", key, dims[i])
		}
		total += dims[i]
	}

	if info.SymmetricDim() != total {
		return nil, fmt.Errorf("invalid information matrix dimension: %d != %d", info.SymmetricDim(), total)
	}
	if eta.Len() != total {
		return nil, fmt.Errorf("invalid information vector dimension: %d != %d", eta.Len(), total)
	}

	return &Hessian{keys: keys, dims: dims, info: info, eta: eta, c: c}, nil
}

// Keys returns the factor variable keys in block order.
func (h *Hessian) Keys() []smooth.Key {
	keys := make([]smooth.Key, len(h.keys))
	copy(keys, h.keys)
	return keys
}

// Dim returns the block width of key, 0 if the factor does not touch it.
func (h *Hessian) Dim(key smooth.Key) int {
	for i, k := range h.keys {
		if k == key {
			return h.dims[i]
		}
	}
	return 0
}

// Kind returns KindHessian.
func (h *Hessian) Kind() Kind {
	return KindHessian
}

// Info returns the information matrix G.
func (h *Hessian) Info() *mat.SymDense {
	return h.info
}

// Eta returns the information vector.
func (h *Hessian) Eta() *mat.VecDense {
	return h.eta
}

// Constant returns the constant error term.
func (h *Hessian) Constant() float64 {
	return h.c
}

// offset returns the column offset of the i-th key block.
func (h *Hessian) offset(i int) int {
	off := 0
	for j := 0; j < i; j++ {
		off += h.dims[j]
	}
	return off
}

// Error returns the quadratic form value at delta.
// Keys missing from delta contribute zero motion.
func (h *Hessian) Error(delta *smooth.Values) float64 {
	total := h.eta.Len()
	x := mat.NewVecDense(total, nil)
	for i, key := range h.keys {
		if delta == nil {
			break
		}
		d, ok := delta.At(key)
		if !ok || d.Len() != h.dims[i] {
			continue
		}
		off := h.offset(i)
		for j := 0; j < h.dims[i]; j++ {
			x.SetVec(off+j, d.AtVec(j))
		}
	}

	gx := mat.NewVecDense(total, nil)
	gx.MulVec(h.info, x)

	return 0.5*mat.Dot(x, gx) - mat.Dot(x, h.eta) + 0.5*h.c
}
