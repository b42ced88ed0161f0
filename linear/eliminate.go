package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/matrix"
)

// Eliminator is an elimination policy. Eliminate removes the given frontal
// keys from the combined system of all factors in g, producing a conditional
// density on the frontals and at most one remainder factor on the separator
// (the remaining keys). The remainder is nil when the separator is empty or
// carries no information.
type Eliminator interface {
	Eliminate(g *Graph, frontals []smooth.Key) (*Conditional, Factor, error)
}

// layout assigns a column range to every key of a combined system:
// frontals first in the given order, separator keys after in ascending order.
type layout struct {
	keys []smooth.Key
	dims []int
	off  map[smooth.Key]int
	// nf is the total frontal column count, total the full column count
	nf, total int
}

func newLayout(g *Graph, frontals []smooth.Key) (*layout, error) {
	l := &layout{off: make(map[smooth.Key]int)}

	isFrontal := make(map[smooth.Key]struct{}, len(frontals))
	for _, key := range frontals {
		if _, ok := isFrontal[key]; ok {
			return nil, fmt.Errorf("duplicate frontal key: %v", key)
		}
		isFrontal[key] = struct{}{}

		dim := g.Dim(key)
		if dim == 0 {
			return nil, fmt.Errorf("frontal key %v not present in graph", key)
		}
		l.off[key] = l.total
		l.keys = append(l.keys, key)
		l.dims = append(l.dims, dim)
		l.total += dim
	}
	l.nf = l.total

	for _, key := range g.Keys() {
		if _, ok := isFrontal[key]; ok {
			continue
		}
		l.off[key] = l.total
		l.keys = append(l.keys, key)
		l.dims = append(l.dims, g.Dim(key))
		l.total += g.Dim(key)
	}

	return l, nil
}

// separator returns the non-frontal keys and dims of the layout.
func (l *layout) separator() ([]smooth.Key, []int) {
	var keys []smooth.Key
	var dims []int
	col := 0
	for i, key := range l.keys {
		if col >= l.nf {
			keys = append(keys, key)
			dims = append(dims, l.dims[i])
		}
		col += l.dims[i]
	}
	return keys, dims
}

// QR is an elimination policy based on dense QR factorization of the
// stacked whitened residual system. Hessian form factors are converted
// to square root form via Cholesky of their information matrix before
// stacking; the remainder comes out in Jacobian form with unit noise.
type QR struct{}

// Eliminate implements the Eliminator interface.
func (QR) Eliminate(g *Graph, frontals []smooth.Key) (*Conditional, Factor, error) {
	l, err := newLayout(g, frontals)
	if err != nil {
		return nil, nil, err
	}

	rows := 0
	for _, f := range g.Factors() {
		switch f := f.(type) {
		case *Jacobian:
			rows += f.Rows()
		case *Hessian:
			rows += f.Eta().Len()
		default:
			return nil, nil, fmt.Errorf("unsupported factor kind: %v", f.Kind())
		}
	}
	if rows == 0 {
		return nil, nil, fmt.Errorf("empty graph")
	}

	// QR needs at least as many rows as columns; zero padding rows do not
	// change R
	cols := l.total + 1
	m := rows
	if m < cols {
		m = cols
	}
	aug := mat.NewDense(m, cols, nil)

	row := 0
	for _, f := range g.Factors() {
		switch f := f.(type) {
		case *Jacobian:
			blocks, b := f.whitened()
			for i, key := range f.Keys() {
				off := l.off[key]
				_, bc := blocks[i].Dims()
				aug.Slice(row, row+f.Rows(), off, off+bc).(*mat.Dense).Copy(blocks[i])
			}
			for i := 0; i < b.Len(); i++ {
				aug.Set(row+i, l.total, b.AtVec(i))
			}
			row += f.Rows()
		case *Hessian:
			r, b, err := hessianSqrt(f)
			if err != nil {
				return nil, nil, err
			}
			n := b.Len()
			foff := 0
			for _, key := range f.Keys() {
				dim := f.Dim(key)
				off := l.off[key]
				aug.Slice(row, row+n, off, off+dim).(*mat.Dense).Copy(r.Slice(0, n, foff, foff+dim))
				foff += dim
			}
			for i := 0; i < n; i++ {
				aug.Set(row+i, l.total, b.AtVec(i))
			}
			row += n
		}
	}

	var qr mat.QR
	qr.Factorize(aug)
	r := &mat.Dense{}
	qr.RTo(r)

	// normalize conditional rows so the R diagonal is nonnegative
	for i := 0; i < l.nf; i++ {
		if r.At(i, i) < 0 {
			for j := i; j < cols; j++ {
				r.Set(i, j, -r.At(i, j))
			}
		}
		if math.Abs(r.At(i, i)) < 1e-12 {
			return nil, nil, fmt.Errorf("singular system: frontal column %d unconstrained", i)
		}
	}

	cond, err := conditionalFromRows(l, r)
	if err != nil {
		return nil, nil, err
	}

	rem, err := remainderFromRows(l, r)
	if err != nil {
		return nil, nil, err
	}

	return cond, rem, nil
}

// conditionalFromRows packages rows [0, nf) of the triangular system.
func conditionalFromRows(l *layout, r *mat.Dense) (*Conditional, error) {
	nf := l.nf

	var frontals []smooth.Key
	var dims []int
	col := 0
	for i, key := range l.keys {
		if col < nf {
			frontals = append(frontals, key)
			dims = append(dims, l.dims[i])
		}
		col += l.dims[i]
	}

	rf := mat.DenseCopyOf(r.Slice(0, nf, 0, nf))

	sepKeys, sepDims := l.separator()
	parents := make([]Parent, 0, len(sepKeys))
	off := nf
	for i, key := range sepKeys {
		parents = append(parents, Parent{
			Key: key,
			A:   mat.DenseCopyOf(r.Slice(0, nf, off, off+sepDims[i])),
		})
		off += sepDims[i]
	}

	d := mat.NewVecDense(nf, nil)
	sigmas := mat.NewVecDense(nf, nil)
	for i := 0; i < nf; i++ {
		d.SetVec(i, r.At(i, l.total))
		sigmas.SetVec(i, 1.0)
	}

	return NewConditional(frontals, dims, rf, parents, d, sigmas)
}

// remainderFromRows packages the nonzero rows in [nf, total) as a unit
// noise Jacobian factor over the separator keys, nil if none remain.
func remainderFromRows(l *layout, r *mat.Dense) (Factor, error) {
	sepKeys, sepDims := l.separator()
	if len(sepKeys) == 0 {
		return nil, nil
	}

	var live []int
	for i := l.nf; i < l.total; i++ {
		for j := i; j <= l.total; j++ {
			if math.Abs(r.At(i, j)) > 1e-12 {
				live = append(live, i)
				break
			}
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	b := mat.NewVecDense(len(live), nil)
	blocks := make([]*mat.Dense, len(sepKeys))
	off := l.nf
	for k, dim := range sepDims {
		blk := mat.NewDense(len(live), dim, nil)
		for i, ri := range live {
			for j := 0; j < dim; j++ {
				blk.Set(i, j, r.At(ri, off+j))
			}
		}
		blocks[k] = blk
		off += dim
	}
	for i, ri := range live {
		b.SetVec(i, r.At(ri, l.total))
	}

	return NewJacobian(sepKeys, blocks, b, nil)
}

// hessianSqrt converts a Hessian factor to square root form: an upper
// triangular R with R'*R = G and rhs with R'*b = eta. The constant term
// is dropped; it does not affect elimination.
func hessianSqrt(h *Hessian) (*mat.Dense, *mat.VecDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(h.Info()); !ok {
		return nil, nil, fmt.Errorf("hessian factor not positive definite")
	}

	n := h.Eta().Len()
	var u mat.TriDense
	chol.UTo(&u)

	r := mat.NewDense(n, n, nil)
	r.Copy(&u)

	b, err := matrix.ForwardSubstituteUpperT(r, h.Eta())
	if err != nil {
		return nil, nil, err
	}

	return r, b, nil
}

// Cholesky is an elimination policy operating on the joint information
// matrix: it assembles the normal equations from all factors, takes a
// partial Cholesky factorization over the frontal block and leaves the
// remainder in Hessian form.
type Cholesky struct{}

// Eliminate implements the Eliminator interface.
func (Cholesky) Eliminate(g *Graph, frontals []smooth.Key) (*Conditional, Factor, error) {
	l, err := newLayout(g, frontals)
	if err != nil {
		return nil, nil, err
	}
	if g.Len() == 0 {
		return nil, nil, fmt.Errorf("empty graph")
	}

	lambda := mat.NewDense(l.total, l.total, nil)
	eta := mat.NewVecDense(l.total, nil)
	var c float64

	for _, f := range g.Factors() {
		switch f := f.(type) {
		case *Jacobian:
			blocks, b := f.whitened()
			a := mat.NewDense(f.Rows(), l.total, nil)
			for i, key := range f.Keys() {
				off := l.off[key]
				_, bc := blocks[i].Dims()
				a.Slice(0, f.Rows(), off, off+bc).(*mat.Dense).Copy(blocks[i])
			}

			ata := mat.NewDense(l.total, l.total, nil)
			ata.Mul(a.T(), a)
			lambda.Add(lambda, ata)

			atb := mat.NewVecDense(l.total, nil)
			atb.MulVec(a.T(), b)
			eta.AddVec(eta, atb)

			c += mat.Dot(b, b)
		case *Hessian:
			foffs := make([]int, len(f.Keys()))
			off := 0
			for i, key := range f.Keys() {
				foffs[i] = off
				off += f.Dim(key)
			}
			for i, ki := range f.Keys() {
				di := f.Dim(ki)
				for j, kj := range f.Keys() {
					dj := f.Dim(kj)
					for a := 0; a < di; a++ {
						for b := 0; b < dj; b++ {
							gi, gj := l.off[ki]+a, l.off[kj]+b
							lambda.Set(gi, gj, lambda.At(gi, gj)+f.Info().At(foffs[i]+a, foffs[j]+b))
						}
					}
				}
				for a := 0; a < di; a++ {
					gi := l.off[ki] + a
					eta.SetVec(gi, eta.AtVec(gi)+f.Eta().AtVec(foffs[i]+a))
				}
			}
			c += f.Constant()
		default:
			return nil, nil, fmt.Errorf("unsupported factor kind: %v", f.Kind())
		}
	}

	nf, ns := l.nf, l.total-l.nf

	lff := mat.NewSymDense(nf, nil)
	for i := 0; i < nf; i++ {
		for j := i; j < nf; j++ {
			lff.SetSym(i, j, lambda.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(lff); !ok {
		return nil, nil, fmt.Errorf("frontal information block not positive definite")
	}
	var u mat.TriDense
	chol.UTo(&u)
	r := mat.NewDense(nf, nf, nil)
	r.Copy(&u)

	etaf := mat.VecDenseCopyOf(eta.SliceVec(0, nf))
	d, err := matrix.ForwardSubstituteUpperT(r, etaf)
	if err != nil {
		return nil, nil, err
	}

	var s *mat.Dense
	if ns > 0 {
		s = mat.NewDense(nf, ns, nil)
		for j := 0; j < ns; j++ {
			col := mat.NewVecDense(nf, nil)
			for i := 0; i < nf; i++ {
				col.SetVec(i, lambda.At(i, nf+j))
			}
			sol, err := matrix.ForwardSubstituteUpperT(r, col)
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < nf; i++ {
				s.Set(i, j, sol.AtVec(i))
			}
		}
	}

	var frontKeys []smooth.Key
	var frontDims []int
	col := 0
	for i, key := range l.keys {
		if col < nf {
			frontKeys = append(frontKeys, key)
			frontDims = append(frontDims, l.dims[i])
		}
		col += l.dims[i]
	}

	sepKeys, sepDims := l.separator()
	parents := make([]Parent, 0, len(sepKeys))
	off := 0
	for i, key := range sepKeys {
		if s != nil {
			parents = append(parents, Parent{
				Key: key,
				A:   mat.DenseCopyOf(s.Slice(0, nf, off, off+sepDims[i])),
			})
		}
		off += sepDims[i]
	}

	sigmas := mat.NewVecDense(nf, nil)
	for i := 0; i < nf; i++ {
		sigmas.SetVec(i, 1.0)
	}

	cond, err := NewConditional(frontKeys, frontDims, r, parents, d, sigmas)
	if err != nil {
		return nil, nil, err
	}

	if ns == 0 {
		return cond, nil, nil
	}

	// remainder on the separator: G' = Lss - S'S, eta' = eta_s - S'd
	gss := mat.NewDense(ns, ns, nil)
	sts := mat.NewDense(ns, ns, nil)
	sts.Mul(s.T(), s)
	for i := 0; i < ns; i++ {
		for j := 0; j < ns; j++ {
			gss.Set(i, j, lambda.At(nf+i, nf+j)-sts.At(i, j))
		}
	}

	etas := mat.NewVecDense(ns, nil)
	std := mat.NewVecDense(ns, nil)
	std.MulVec(s.T(), d)
	for i := 0; i < ns; i++ {
		etas.SetVec(i, eta.AtVec(nf+i)-std.AtVec(i))
	}

	info := mat.NewSymDense(ns, nil)
	for i := 0; i < ns; i++ {
		for j := i; j < ns; j++ {
			info.SetSym(i, j, 0.5*(gss.At(i, j)+gss.At(j, i)))
		}
	}

	rem, err := NewHessian(sepKeys, sepDims, info, etas, c-mat.Dot(d, d))
	if err != nil {
		return nil, nil, err
	}

	return cond, rem, nil
}
