// Package linear implements the Gaussian layer of the smoother: linear
// factors in Jacobian and Hessian form, Gaussian conditionals produced by
// elimination and the pluggable elimination policies operating on them.
package linear

import (
	smooth "github.com/slamlab/go-smooth"
)

// Kind tags the form of a linear factor.
// The set of kinds is closed: a factor is either in Jacobian form
// (residual A*x - b under a noise model) or in Hessian form
// (quadratic information form). Conversions are never inferred silently;
// the elimination policies convert explicitly where they must.
type Kind int

const (
	// KindJacobian is a factor in residual form A*x = b
	KindJacobian Kind = iota
	// KindHessian is a factor in quadratic information form
	KindHessian
)

// String implements the Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindJacobian:
		return "Jacobian"
	case KindHessian:
		return "Hessian"
	default:
		return "Unknown"
	}
}

// Factor is a linear factor over a fixed set of variable keys.
type Factor interface {
	// Keys returns the factor variable keys in factor order
	Keys() []smooth.Key
	// Dim returns the block width of key, 0 if the factor does not touch it
	Dim(key smooth.Key) int
	// Kind returns the form of the factor
	Kind() Kind
	// Error returns the negative log likelihood at delta; missing keys are zero
	Error(delta *smooth.Values) float64
}

// Graph is an ordered collection of linear factors.
type Graph struct {
	factors []Factor
}

// NewGraph creates new empty Graph and returns it.
func NewGraph(factors ...Factor) *Graph {
	g := &Graph{}
	for _, f := range factors {
		g.Add(f)
	}
	return g
}

// Add appends factor f to the graph. Nil factors are ignored.
func (g *Graph) Add(f Factor) {
	if f == nil {
		return
	}
	g.factors = append(g.factors, f)
}

// Factors returns the graph factors in insertion order.
func (g *Graph) Factors() []Factor {
	return g.factors
}

// Len returns the number of factors in the graph.
func (g *Graph) Len() int {
	return len(g.factors)
}

// Keys returns the union of all factor keys in ascending order.
func (g *Graph) Keys() []smooth.Key {
	seen := make(map[smooth.Key]struct{})
	var keys []smooth.Key
	for _, f := range g.factors {
		for _, key := range f.Keys() {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
	}
	smooth.SortKeys(keys)
	return keys
}

// Dim returns the block width of key across the graph, 0 if untouched.
func (g *Graph) Dim(key smooth.Key) int {
	for _, f := range g.factors {
		if d := f.Dim(key); d > 0 {
			return d
		}
	}
	return 0
}

// Error returns the total error of the graph at delta.
func (g *Graph) Error(delta *smooth.Values) float64 {
	var sum float64
	for _, f := range g.factors {
		sum += f.Error(delta)
	}
	return sum
}
