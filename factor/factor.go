// Package factor implements the nonlinear layer of the smoother: the
// Factor interface, the nonlinear factor graph and the concrete factors
// the estimator ships with, including linear factors re-anchored at a
// linearization point so they can act as nonlinear factors.
package factor

import (
	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
)

// Factor is a constraint or likelihood term over a fixed set of variables.
type Factor interface {
	// Keys returns the factor variable keys
	Keys() []smooth.Key
	// Dim returns the residual dimension of the factor
	Dim() int
	// Error returns the negative log likelihood at vals
	Error(vals *smooth.Values) float64
	// Linearize returns the linear approximation of the factor at vals
	Linearize(vals *smooth.Values) (linear.Factor, error)
}

// Graph is an ordered collection of nonlinear factors.
type Graph struct {
	factors []Factor
}

// NewGraph creates new Graph holding the given factors and returns it.
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

// Error returns the total error of the graph at vals.
func (g *Graph) Error(vals *smooth.Values) float64 {
	var sum float64
	for _, f := range g.factors {
		sum += f.Error(vals)
	}
	return sum
}

// Linearize linearizes every factor at vals and returns the linear graph.
// It returns error if any factor fails to linearize.
func (g *Graph) Linearize(vals *smooth.Values) (*linear.Graph, error) {
	lg := linear.NewGraph()
	for _, f := range g.factors {
		lf, err := f.Linearize(vals)
		if err != nil {
			return nil, err
		}
		lg.Add(lf)
	}
	return lg, nil
}
