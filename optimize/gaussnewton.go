// Package optimize provides the nonlinear optimization step primitive the
// smoother iterates: one Gauss-Newton step obtained by linearizing the
// graph, eliminating it into a Bayes tree and back-substituting.
package optimize

import (
	"fmt"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/elimination"
	"github.com/slamlab/go-smooth/factor"
	"github.com/slamlab/go-smooth/linear"
	"github.com/slamlab/go-smooth/ordering"
)

// GaussNewton computes full Gauss-Newton steps.
// The zero value uses the MinDegree orderer and the QR elimination policy.
type GaussNewton struct {
	// Orderer computes the elimination ordering, MinDegree if nil
	Orderer ordering.Orderer
	// Policy is the elimination policy, QR if nil
	Policy linear.Eliminator
}

// NewGaussNewton creates new GaussNewton with the given collaborators.
// Nil arguments select the library defaults.
func NewGaussNewton(ord ordering.Orderer, policy linear.Eliminator) *GaussNewton {
	return &GaussNewton{Orderer: ord, Policy: policy}
}

func (gn *GaussNewton) orderer() ordering.Orderer {
	if gn.Orderer == nil {
		return ordering.MinDegree{}
	}
	return gn.Orderer
}

// Step linearizes g at theta, solves the full linear system and returns
// the improved estimate together with its nonlinear error.
// It returns error if linearization, ordering or elimination fails.
func (gn *GaussNewton) Step(g *factor.Graph, theta *smooth.Values) (*smooth.Values, float64, error) {
	lin, err := g.Linearize(theta)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to linearize graph: %v", err)
	}

	ord, err := gn.orderer().Order(g, theta, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compute ordering: %v", err)
	}

	tree, err := elimination.New(gn.Policy).Eliminate(lin, ord, nil)
	if err != nil {
		return nil, 0, err
	}

	delta, err := tree.Solve()
	if err != nil {
		return nil, 0, err
	}

	next := theta.Retract(delta)

	return next, g.Error(next), nil
}
