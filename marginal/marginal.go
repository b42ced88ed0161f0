// Package marginal reduces factors to linear factors over a requested key
// subset by linearizing, eliminating the discarded keys and packaging the
// remainder anchored at the linearization point.
package marginal

import (
	"errors"
	"fmt"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/factor"
	"github.com/slamlab/go-smooth/linear"
)

var (
	// ErrUnsupportedKind means a linear factor was neither Jacobian nor
	// Hessian form and cannot be packaged as a linearized factor.
	ErrUnsupportedKind = errors.New("unsupported linear factor kind")
	// ErrInternalConsistency means elimination left an unexpected number
	// of remainder factors, indicating an invalid ordering or policy.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// Engine marginalizes unwanted keys out of factors.
// The zero value uses the QR elimination policy.
type Engine struct {
	// Policy is the elimination policy, QR if nil
	Policy linear.Eliminator
}

// New creates new Engine with the given elimination policy.
// A nil policy defaults to QR.
func New(policy linear.Eliminator) *Engine {
	return &Engine{Policy: policy}
}

func (e *Engine) policy() linear.Eliminator {
	if e.Policy == nil {
		return linear.QR{}
	}
	return e.Policy
}

// Reduce marginalizes f onto the keys in keep at linearization point theta.
// Factors already inside keep are returned unchanged; factors entirely
// outside keep are fully absorbed and return nil. Otherwise the discarded
// keys are eliminated from the linearization of f at theta and the single
// remaining joint factor is returned wrapped as a linearized factor
// anchored at theta.
// It returns ErrInternalConsistency if elimination does not leave exactly
// one remainder and ErrUnsupportedKind if the remainder is not one of the
// two supported linear factor kinds.
func (e *Engine) Reduce(f factor.Factor, keep []smooth.Key, theta *smooth.Values) (factor.Factor, error) {
	keepSet := make(map[smooth.Key]struct{}, len(keep))
	for _, key := range keep {
		keepSet[key] = struct{}{}
	}

	var drop, kept []smooth.Key
	for _, key := range f.Keys() {
		if _, ok := keepSet[key]; ok {
			kept = append(kept, key)
		} else {
			drop = append(drop, key)
		}
	}

	if len(drop) == 0 {
		return f, nil
	}
	if len(kept) == 0 {
		return nil, nil
	}

	lf, err := f.Linearize(theta)
	if err != nil {
		return nil, fmt.Errorf("failed to linearize factor: %v", err)
	}

	_, rem, err := e.policy().Eliminate(linear.NewGraph(lf), drop)
	if err != nil {
		return nil, fmt.Errorf("failed to eliminate keys %v: %v", drop, err)
	}
	if rem == nil {
		return nil, fmt.Errorf("%w: no remainder left for keys %v", ErrInternalConsistency, kept)
	}

	return Wrap(rem, theta)
}

// Wrap packages a linear factor as a linearized nonlinear factor anchored
// at theta, matching on the factor kind.
// It returns ErrUnsupportedKind for any kind beyond Jacobian and Hessian.
func Wrap(lf linear.Factor, theta *smooth.Values) (factor.Factor, error) {
	switch lf := lf.(type) {
	case *linear.Jacobian:
		return factor.NewLinearizedJacobian(lf, theta)
	case *linear.Hessian:
		return factor.NewLinearizedHessian(lf, theta)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKind, lf.Kind())
	}
}
