package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/matrix"
)

// Parent is a per-parent coefficient block of a conditional.
type Parent struct {
	// Key is the parent variable key
	Key smooth.Key
	// A is the coefficient block, with as many rows as the conditional
	A *mat.Dense
}

// Conditional is a Gaussian conditional density over one or more frontal
// variables given its parents: R*x_f = d - sum_p A_p*x_p, with R upper
// triangular in frontal variable order and per-row noise scales sigmas.
type Conditional struct {
	// frontals are the frontal variable keys in elimination order
	frontals []smooth.Key
	// dims are per-frontal block widths
	dims []int
	// r is the upper triangular coefficient matrix over the frontals
	r *mat.Dense
	// parents are per-parent coefficient blocks
	parents []Parent
	// d is the offset vector
	d *mat.VecDense
	// sigmas are per-row noise scales
	sigmas *mat.VecDense
}

// NewConditional creates new Conditional and returns it.
// It returns error if R is not square over the total frontal dimension,
// parent keys are duplicated or block row counts disagree.
func NewConditional(frontals []smooth.Key, dims []int, r *mat.Dense, parents []Parent, d, sigmas *mat.VecDense) (*Conditional, error) {
	if len(frontals) == 0 || len(frontals) != len(dims) {
		return nil, fmt.Errorf("invalid frontal blocks: %d keys, %d dims", len(frontals), len(dims))
	}

	n := 0
	for _, dim := range dims {
		n += dim
	}

	rows, cols := r.Dims()
	if rows != n || cols != n {
		return nil, fmt.Errorf("invalid R dimensions: [%d x %d] != [%d x %d]", rows, cols, n, n)
	}
	if d.Len() != n || sigmas.Len() != n {
		return nil, fmt.Errorf("invalid offset or sigma dimension: %d, %d != %d", d.Len(), sigmas.Len(), n)
	}

	seen := make(map[smooth.Key]struct{}, len(parents))
	for _, p := range parents {
		if _, ok := seen[p.Key]; ok {
			return nil, fmt.Errorf("duplicate parent key: %v", p.Key)
		}
		seen[p.Key] = struct{}{}

		pr, _ := p.A.Dims()
		if pr != n {
			return nil, fmt.Errorf("invalid parent block row count for key %v: %d != %d", p.Key, pr, n)
		}
	}

	return &Conditional{
		frontals: frontals,
		dims:     dims,
		r:        r,
		parents:  parents,
		d:        d,
		sigmas:   sigmas,
	}, nil
}

// Frontals returns the frontal variable keys in elimination order.
func (c *Conditional) Frontals() []smooth.Key {
	keys := make([]smooth.Key, len(c.frontals))
	copy(keys, c.frontals)
	return keys
}

// FrontalDim returns the total frontal dimension.
func (c *Conditional) FrontalDim() int {
	n := 0
	for _, dim := range c.dims {
		n += dim
	}
	return n
}

// Parents returns the per-parent coefficient blocks.
func (c *Conditional) Parents() []Parent {
	return c.parents
}

// ParentKeys returns the parent variable keys in block order.
func (c *Conditional) ParentKeys() []smooth.Key {
	keys := make([]smooth.Key, len(c.parents))
	for i, p := range c.parents {
		keys[i] = p.Key
	}
	return keys
}

// R returns the upper triangular frontal coefficient matrix.
func (c *Conditional) R() *mat.Dense {
	return c.r
}

// D returns the offset vector.
func (c *Conditional) D() *mat.VecDense {
	return c.d
}

// Sigmas returns the per-row noise scales.
func (c *Conditional) Sigmas() *mat.VecDense {
	return c.sigmas
}

// Solve computes the frontal assignment given parent values:
// x_f = R^-1 * (d - sum_p A_p*x_p).
// It returns error if a parent value is missing or has a wrong dimension.
func (c *Conditional) Solve(parents *smooth.Values) (*smooth.Values, error) {
	rhs := mat.NewVecDense(c.d.Len(), nil)
	rhs.CopyVec(c.d)

	for _, p := range c.parents {
		var x *mat.VecDense
		if parents != nil {
			x, _ = parents.At(p.Key)
		}
		if x == nil {
			return nil, fmt.Errorf("missing parent value: %v", p.Key)
		}
		_, pc := p.A.Dims()
		if x.Len() != pc {
			return nil, fmt.Errorf("invalid parent value dimension for key %v: %d != %d", p.Key, x.Len(), pc)
		}

		tmp := mat.NewVecDense(rhs.Len(), nil)
		tmp.MulVec(p.A, x)
		rhs.SubVec(rhs, tmp)
	}

	x, err := matrix.BackSubstituteUpper(c.r, rhs)
	if err != nil {
		return nil, err
	}

	return c.splitFrontals(x), nil
}

// SolveTranspose solves R'*x_f = rhs by forward substitution.
// It returns error if rhs dimension does not match the frontal dimension.
func (c *Conditional) SolveTranspose(rhs mat.Vector) (*smooth.Values, error) {
	x, err := matrix.ForwardSubstituteUpperT(c.r, rhs)
	if err != nil {
		return nil, err
	}

	return c.splitFrontals(x), nil
}

// splitFrontals splits a stacked frontal solution vector by block widths.
func (c *Conditional) splitFrontals(x *mat.VecDense) *smooth.Values {
	vals := smooth.NewValues()
	off := 0
	for i, key := range c.frontals {
		vals.Insert(key, x.SliceVec(off, off+c.dims[i]))
		off += c.dims[i]
	}
	return vals
}

// EqualsWithin compares two conditionals within absolute tolerance tol.
// Structural mismatch of frontal or parent key sets short-circuits to false;
// otherwise R, d, sigmas and every parent block must match elementwise.
func (c *Conditional) EqualsWithin(o *Conditional, tol float64) bool {
	if o == nil {
		return false
	}
	if len(c.frontals) != len(o.frontals) || len(c.parents) != len(o.parents) {
		return false
	}
	for i, key := range c.frontals {
		if o.frontals[i] != key {
			return false
		}
	}

	others := make(map[smooth.Key]*mat.Dense, len(o.parents))
	for _, p := range o.parents {
		others[p.Key] = p.A
	}

	if !matrix.EqualWithinAbs(c.r, o.r, tol) {
		return false
	}
	if !matrix.EqualVecWithinAbs(c.d, o.d, tol) {
		return false
	}
	if !matrix.EqualVecWithinAbs(c.sigmas, o.sigmas, tol) {
		return false
	}

	for _, p := range c.parents {
		ob, ok := others[p.Key]
		if !ok {
			return false
		}
		if !matrix.EqualWithinAbs(p.A, ob, tol) {
			return false
		}
	}

	return true
}
