package smoother

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/factor"
	"github.com/slamlab/go-smooth/linear"
	"github.com/slamlab/go-smooth/store"
)

// recorder counts observer callbacks.
type recorder struct {
	iterations int
	summaries  []int
}

func (r *recorder) Iteration(iter int, err float64) { r.iterations++ }
func (r *recorder) Summary(size int)                { r.summaries = append(r.summaries, size) }

// overshooter always proposes the same fixed estimate.
type overshooter struct {
	proposal *smooth.Values
}

func (o overshooter) Step(g *factor.Graph, theta *smooth.Values) (*smooth.Values, float64, error) {
	next := o.proposal.Copy()
	return next, g.Error(next), nil
}

var (
	anchor   *factor.Prior
	odometry *factor.Between
	rootVals *smooth.Values
	initX0   *smooth.Values
)

func setup() {
	anchor, _ = factor.NewPrior(smooth.Sym('x', 0), mat.NewVecDense(1, nil), nil)
	odometry, _ = factor.NewBetween(smooth.Sym('x', 0), smooth.Sym('x', 1), mat.NewVecDense(1, []float64{5.0}), nil)
	rootVals = vals(map[uint64]float64{1: 5})
	initX0 = vals(map[uint64]float64{0: 0})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func vals(m map[uint64]float64) *smooth.Values {
	out := smooth.NewValues()
	for i, v := range m {
		out.Insert(smooth.Sym('x', i), mat.NewVecDense(1, []float64{v}))
	}
	return out
}

func chainFactors(t *testing.T, n int, step float64) []factor.Factor {
	prior, err := factor.NewPrior(smooth.Sym('x', 0), mat.NewVecDense(1, nil), nil)
	assert.NoError(t, err)

	factors := []factor.Factor{prior}
	for i := 0; i < n; i++ {
		between, err := factor.NewBetween(
			smooth.Sym('x', uint64(i)),
			smooth.Sym('x', uint64(i+1)),
			mat.NewVecDense(1, []float64{step}),
			nil)
		assert.NoError(t, err)
		factors = append(factors, between)
	}

	return factors
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig())
	assert.NoError(err)
	assert.NotNil(s)
	assert.Equal(0, s.Len())
	assert.Equal(0, s.Estimate().Len())
	assert.Equal(0, s.Roots().Len())

	// iteration cap must be positive
	s, err = New(Config{})
	assert.Nil(s)
	assert.Error(err)
}

func TestUpdateOptimizes(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig())
	assert.NoError(err)

	theta := vals(map[uint64]float64{0: 0, 1: 0, 2: 0})

	res, err := s.Update(chainFactors(t, 2, 1.0), theta)
	assert.NoError(err)
	assert.True(res.Iterations >= 1)
	assert.Equal(3, res.NonlinearVariables)
	assert.Equal(0, res.LinearVariables)
	assert.InDelta(0.0, res.Error, 1e-9)
	assert.Equal(3, s.Len())

	est := s.Estimate()
	for i := 0; i <= 2; i++ {
		v, ok := est.At(smooth.Sym('x', uint64(i)))
		assert.True(ok)
		assert.InDelta(float64(i), v.AtVec(0), 1e-9)
	}
}

func TestUpdateEmpty(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig())
	assert.NoError(err)

	res, err := s.Update(nil, nil)
	assert.NoError(err)
	assert.Equal(0, res.Iterations)
	assert.Equal(0, s.Len())
}

func TestUpdateRootPinning(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig())
	assert.NoError(err)

	// x1 belongs to the filter, pinned to 5
	assert.NoError(s.Synchronize(nil, nil, rootVals))

	res, err := s.Update([]factor.Factor{anchor, odometry}, initX0)
	assert.NoError(err)
	assert.Equal(1, res.NonlinearVariables)
	assert.Equal(1, res.LinearVariables)
	assert.InDelta(0.0, res.Error, 1e-9)

	// the committed estimate never contains root keys
	est := s.Estimate()
	assert.False(est.Has(smooth.Sym('x', 1)))
	x0, ok := est.At(smooth.Sym('x', 0))
	assert.True(ok)
	assert.InDelta(0.0, x0.AtVec(0), 1e-9)

	// the root values stay as supplied
	root, ok := s.Roots().At(smooth.Sym('x', 1))
	assert.True(ok)
	assert.Equal(5.0, root.AtVec(0))
}

func TestUpdateFactorlessSummary(t *testing.T) {
	assert := assert.New(t)

	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.Observer = rec

	s, err := New(cfg)
	assert.NoError(err)

	// root keys without a single factor summarize to nothing
	assert.NoError(s.Synchronize(nil, nil, rootVals))

	res, err := s.Update(nil, nil)
	assert.NoError(err)
	assert.Equal(0, res.Iterations)
	assert.Equal([]int{0}, rec.summaries)

	out := factor.NewGraph()
	s.GetSummarizedFactors(out)
	assert.Equal(0, out.Len())
}

func TestUpdateRejectsWorseStep(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Stepper = overshooter{proposal: vals(map[uint64]float64{0: 3})}

	s, err := New(cfg)
	assert.NoError(err)

	// the initial estimate already satisfies the prior exactly
	res, err := s.Update([]factor.Factor{anchor}, initX0)
	assert.NoError(err)
	assert.Equal(1, res.Iterations)
	assert.InDelta(0.0, res.Error, 1e-9)

	// the overshooting proposal is never committed
	x0, ok := s.Estimate().At(smooth.Sym('x', 0))
	assert.True(ok)
	assert.InDelta(0.0, x0.AtVec(0), 1e-9)
}

func TestUpdateSummary(t *testing.T) {
	assert := assert.New(t)

	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.Observer = rec

	s, err := New(cfg)
	assert.NoError(err)

	assert.NoError(s.Synchronize(nil, nil, rootVals))

	_, err = s.Update([]factor.Factor{anchor, odometry}, initX0)
	assert.NoError(err)
	assert.True(rec.iterations >= 1)
	assert.Equal([]int{1}, rec.summaries)

	// exactly one summarized factor over the root key
	out := factor.NewGraph()
	s.GetSummarizedFactors(out)
	assert.Equal(1, out.Len())
	assert.Equal([]smooth.Key{smooth.Sym('x', 1)}, out.Keys())

	// zero error at the root value, positive away from it
	assert.InDelta(0.0, out.Error(vals(map[uint64]float64{1: 5})), 1e-9)
	assert.InDelta(1.0, out.Error(vals(map[uint64]float64{1: 7})), 1e-9)

	// reading the buffer does not clear it
	again := factor.NewGraph()
	s.GetSummarizedFactors(again)
	assert.Equal(1, again.Len())
}

func TestUpdateSummaryCholesky(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Policy = linear.Cholesky{}

	s, err := New(cfg)
	assert.NoError(err)

	assert.NoError(s.Synchronize(nil, nil, vals(map[uint64]float64{2: 2})))

	_, err = s.Update(chainFactors(t, 2, 1.0), vals(map[uint64]float64{0: 0, 1: 0}))
	assert.NoError(err)

	out := factor.NewGraph()
	s.GetSummarizedFactors(out)
	assert.Equal(1, out.Len())
	assert.Equal([]smooth.Key{smooth.Sym('x', 2)}, out.Keys())
	assert.InDelta(0.0, out.Error(vals(map[uint64]float64{2: 2})), 1e-9)
}

func TestSynchronize(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig())
	assert.NoError(err)

	prior, _ := factor.NewPrior(smooth.Sym('x', 5), mat.NewVecDense(1, []float64{5.0}), nil)

	assert.NoError(s.Synchronize([]factor.Factor{prior}, vals(map[uint64]float64{5: 5}), vals(map[uint64]float64{6: 6})))
	assert.Equal(1, s.Len())
	assert.True(s.Estimate().Has(smooth.Sym('x', 5)))
	assert.True(s.Roots().Has(smooth.Sym('x', 6)))

	// a fresh summary replaces the previous one instead of piling up
	other, _ := factor.NewPrior(smooth.Sym('x', 7), mat.NewVecDense(1, []float64{7.0}), nil)
	assert.NoError(s.Synchronize([]factor.Factor{other}, vals(map[uint64]float64{7: 7}), vals(map[uint64]float64{8: 8})))
	assert.Equal(1, s.Len())

	// roots are replaced wholesale
	roots := s.Roots()
	assert.False(roots.Has(smooth.Sym('x', 6)))
	assert.True(roots.Has(smooth.Sym('x', 8)))

	// an empty synchronize clears the incoming summary
	assert.NoError(s.Synchronize(nil, nil, nil))
	assert.Equal(0, s.Len())
	assert.Equal(0, s.Roots().Len())
}

func TestSynchronizeIdempotent(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig())
	assert.NoError(err)

	prior, _ := factor.NewPrior(smooth.Sym('x', 5), mat.NewVecDense(1, []float64{5.0}), nil)
	summary := []factor.Factor{prior}
	values := vals(map[uint64]float64{5: 5})
	roots := vals(map[uint64]float64{6: 6})

	assert.NoError(s.Synchronize(summary, values, roots))
	occupied := slotIndices(s.store.Slots())

	// a repeated synchronize with identical arguments changes nothing
	assert.NoError(s.Synchronize(summary, values, roots))
	assert.Equal(occupied, slotIndices(s.store.Slots()))
	assert.Equal(1, s.Len())

	root, ok := s.Roots().At(smooth.Sym('x', 6))
	assert.True(ok)
	assert.Equal(6.0, root.AtVec(0))
	assert.Equal(1, s.Roots().Len())
}

func slotIndices(slots []store.Slot) []int {
	out := make([]int, len(slots))
	for i, slot := range slots {
		out[i] = slot.Index()
	}
	return out
}

func TestConverged(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()

	// tiny decrease
	assert.True(converged(cfg, 1.0, 1.0-1e-9))
	// large decrease
	assert.False(converged(cfg, 10.0, 1.0))
	// relative decrease below tolerance
	assert.True(converged(cfg, 1e8, 1e8-1.0))

	// total error bound
	cfg.ErrorTol = 1e-3
	assert.True(converged(cfg, 10.0, 1e-4))
}
