// Package sim provides simulation and visualization helpers: a synthetic
// odometry chain generator for exercising the smoother, an Observer that
// records optimizer progress and gonum plot renderings of both.
package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/factor"
	"github.com/slamlab/go-smooth/noise"
)

// Chain generates a one dimensional odometry chain: poses x0..xN moving by
// a fixed step, a prior anchoring x0 and noisy between factors linking
// consecutive poses.
type Chain struct {
	// Steps is the number of between factors to generate
	Steps int
	// Step is the true increment per step
	Step float64
	// PriorSigma is the prior factor standard deviation
	PriorSigma float64
	// MeasurementSigma is the between factor standard deviation
	MeasurementSigma float64
}

// NewChain creates new Chain generator and returns it.
// It returns error if steps is not positive or a sigma is not positive.
func NewChain(steps int, step, priorSigma, measurementSigma float64) (*Chain, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("invalid step count: %d", steps)
	}
	if priorSigma <= 0 || measurementSigma <= 0 {
		return nil, fmt.Errorf("invalid sigmas: %v, %v", priorSigma, measurementSigma)
	}

	return &Chain{
		Steps:            steps,
		Step:             step,
		PriorSigma:       priorSigma,
		MeasurementSigma: measurementSigma,
	}, nil
}

// Trajectory is one generated chain realization.
type Trajectory struct {
	// Truth holds the noise free pose values
	Truth *smooth.Values
	// Initial holds a zero initial estimate for every pose
	Initial *smooth.Values
	// Factors holds the prior and the noisy between factors
	Factors []factor.Factor
}

// Generate produces a chain realization with measurement noise sampled
// from a zero mean Gaussian.
// It returns error if the noise source or a factor fails to build.
func (c *Chain) Generate() (*Trajectory, error) {
	g, err := noise.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{c.MeasurementSigma * c.MeasurementSigma}))
	if err != nil {
		return nil, err
	}

	truth := smooth.NewValues()
	initial := smooth.NewValues()
	for i := 0; i <= c.Steps; i++ {
		truth.Insert(smooth.Sym('x', uint64(i)), mat.NewVecDense(1, []float64{float64(i) * c.Step}))
		initial.Insert(smooth.Sym('x', uint64(i)), mat.NewVecDense(1, nil))
	}

	priorModel, err := noise.NewIsotropic(1, c.PriorSigma)
	if err != nil {
		return nil, err
	}
	prior, err := factor.NewPrior(smooth.Sym('x', 0), mat.NewVecDense(1, nil), priorModel)
	if err != nil {
		return nil, err
	}

	factors := []factor.Factor{prior}

	betweenModel, err := noise.NewIsotropic(1, c.MeasurementSigma)
	if err != nil {
		return nil, err
	}
	for i := 0; i < c.Steps; i++ {
		measured := c.Step + g.Sample().AtVec(0)
		between, err := factor.NewBetween(
			smooth.Sym('x', uint64(i)),
			smooth.Sym('x', uint64(i+1)),
			mat.NewVecDense(1, []float64{measured}),
			betweenModel,
		)
		if err != nil {
			return nil, err
		}
		factors = append(factors, between)
	}

	return &Trajectory{Truth: truth, Initial: initial, Factors: factors}, nil
}
