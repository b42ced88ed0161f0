// Package smoother implements a concurrent batch smoother: one half of a
// concurrent filtering and smoothing pair. It owns the smoother side factor
// graph and estimate, optimizes with the externally owned root variables
// pinned, and on every cycle computes a compact linear summary of everything
// it knows about root adjacent structure for exchange with the paired filter.
package smoother

import (
	"fmt"
	"sort"
	"sync"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/elimination"
	"github.com/slamlab/go-smooth/factor"
	"github.com/slamlab/go-smooth/linear"
	"github.com/slamlab/go-smooth/marginal"
	"github.com/slamlab/go-smooth/optimize"
	"github.com/slamlab/go-smooth/ordering"
	"github.com/slamlab/go-smooth/store"
)

// Stepper takes one nonlinear optimization step: given a graph and a
// linearization point it returns an improved estimate and its error.
type Stepper interface {
	Step(g *factor.Graph, theta *smooth.Values) (*smooth.Values, float64, error)
}

// Config configures a Smoother. Collaborator fields left nil select the
// library defaults.
type Config struct {
	// MaxIterations caps the optimizer iterations per update
	MaxIterations int
	// RelativeErrorTol stops iterating when the relative error decrease
	// drops below it
	RelativeErrorTol float64
	// AbsoluteErrorTol stops iterating when the absolute error decrease
	// drops below it
	AbsoluteErrorTol float64
	// ErrorTol stops iterating when the total error drops below it
	ErrorTol float64
	// Orderer computes elimination orderings, MinDegree if nil
	Orderer ordering.Orderer
	// Policy is the elimination policy, QR if nil
	Policy linear.Eliminator
	// Stepper takes optimizer steps, Gauss-Newton if nil
	Stepper Stepper
	// Observer receives diagnostics, may be nil
	Observer smooth.Observer
}

// DefaultConfig returns the default smoother configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    100,
		RelativeErrorTol: 1e-5,
		AbsoluteErrorTol: 1e-5,
	}
}

// Result reports the outcome of one update.
type Result struct {
	// Iterations is the number of optimizer iterations taken
	Iterations int
	// NonlinearVariables is the number of variables the smoother estimates
	NonlinearVariables int
	// LinearVariables is the number of externally owned root variables
	LinearVariables int
	// Error is the total graph error at the committed estimate
	Error float64
}

// Smoother is a batch smoother cooperating with an external filter.
// Update and Synchronize mutate the graph, estimate and root set and are
// serialized; GetSummarizedFactors may run concurrently with itself.
type Smoother struct {
	mu  sync.RWMutex
	cfg Config

	store *store.Store
	theta *smooth.Values
	roots *smooth.Values

	// summary is the outgoing summarization buffer, replaced wholesale
	summary []factor.Factor
	// syncSlots track the factors inserted by the previous incoming summary
	syncSlots []store.Slot

	stepper Stepper
	orderer ordering.Orderer
	engine  *elimination.Engine
	margin  *marginal.Engine
}

// New creates new Smoother from cfg and returns it.
// It returns error if the iteration cap is not positive.
func New(cfg Config) (*Smoother, error) {
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("invalid iteration cap: %d", cfg.MaxIterations)
	}

	orderer := cfg.Orderer
	if orderer == nil {
		orderer = ordering.MinDegree{}
	}

	stepper := cfg.Stepper
	if stepper == nil {
		stepper = optimize.NewGaussNewton(orderer, cfg.Policy)
	}

	return &Smoother{
		cfg:     cfg,
		store:   store.New(),
		theta:   smooth.NewValues(),
		roots:   smooth.NewValues(),
		stepper: stepper,
		orderer: orderer,
		engine:  elimination.New(cfg.Policy),
		margin:  marginal.New(cfg.Policy),
	}, nil
}

// Update adds new factors and estimates, optimizes the graph with the root
// variables pinned to their externally supplied values and recomputes the
// outgoing summary for the paired filter.
// It returns error if optimization or summary computation fails; a summary
// failure leaves the previously computed summary buffer valid.
func (s *Smoother) Update(newFactors []factor.Factor, newTheta *smooth.Values) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result Result

	for _, f := range newFactors {
		if _, err := s.store.Insert(f); err != nil {
			return result, err
		}
	}
	s.theta.Merge(newTheta)

	graph := s.store.Graph()

	if graph.Len() > 0 {
		if err := s.optimize(graph, &result); err != nil {
			return result, err
		}
	}

	if s.roots.Len() > 0 {
		if err := s.computeSummary(graph); err != nil {
			return result, err
		}
	}

	return result, nil
}

// optimize runs the pinned Gauss-Newton loop and commits the estimate.
func (s *Smoother) optimize(graph *factor.Graph, result *Result) error {
	linpoint := s.theta.Copy()
	linpoint.Merge(s.roots)

	currentError := graph.Error(linpoint)
	iterations := 0

	for iterations < s.cfg.MaxIterations {
		next, _, err := s.stepper.Step(graph, linpoint)
		if err != nil {
			return fmt.Errorf("optimizer step failed: %v", err)
		}

		// roots are pinned: force their externally supplied values back
		// and recompute the error
		next.Merge(s.roots)
		newError := graph.Error(next)
		iterations++

		if s.cfg.Observer != nil {
			s.cfg.Observer.Iteration(iterations, newError)
		}

		done := converged(s.cfg, currentError, newError)

		// never commit a step that made things worse
		if newError <= currentError {
			linpoint = next
			currentError = newError
		}

		if done {
			break
		}
	}

	// commit the estimate; root keys stay owned by the filter
	s.theta = linpoint
	for _, key := range s.roots.Keys() {
		s.theta.Delete(key)
	}

	result.Iterations = iterations
	result.NonlinearVariables = s.theta.Len()
	result.LinearVariables = s.roots.Len()
	result.Error = currentError

	return nil
}

// converged applies the relative/absolute/total error improvement test.
func converged(cfg Config, current, next float64) bool {
	if cfg.ErrorTol > 0 && next < cfg.ErrorTol {
		return true
	}
	decrease := current - next
	if decrease < cfg.AbsoluteErrorTol {
		return true
	}
	if current > 0 && decrease/current < cfg.RelativeErrorTol {
		return true
	}
	return false
}

// computeSummary extracts everything the smoother knows about root adjacent
// structure into the outgoing summary buffer. The graph is eliminated under
// a root constrained ordering; the cached factors of the direct non-root
// children of the root cliques are collected and any remaining non-root
// keys are marginalized away before packaging.
func (s *Smoother) computeSummary(graph *factor.Graph) error {
	// no factors means nothing summarizes the root variables
	if graph.Len() == 0 {
		s.summary = nil
		if s.cfg.Observer != nil {
			s.cfg.Observer.Summary(0)
		}
		return nil
	}

	linpoint := s.theta.Copy()
	linpoint.Merge(s.roots)
	rootKeys := s.roots.Keys()

	constraints := make(map[smooth.Key]int, len(rootKeys))
	for _, key := range rootKeys {
		constraints[key] = 1
	}

	ord, err := s.orderer.Order(graph, linpoint, constraints)
	if err != nil {
		return fmt.Errorf("failed to compute constrained ordering: %v", err)
	}

	lin, err := graph.Linearize(linpoint)
	if err != nil {
		return fmt.Errorf("failed to linearize graph: %v", err)
	}

	tree, err := s.engine.Eliminate(lin, ord, constraints)
	if err != nil {
		return err
	}

	// the smoother branches are the direct non-root children of all root
	// cliques; their cached factors summarize the whole smoother side
	rootCliques := make(map[int]struct{}, len(rootKeys))
	for _, key := range rootKeys {
		if ci, ok := tree.OwnerOf(key); ok {
			rootCliques[ci] = struct{}{}
		}
	}

	var branches []int
	for ci := range rootCliques {
		for _, child := range tree.Children(ci) {
			if _, ok := rootCliques[child]; !ok {
				branches = append(branches, child)
			}
		}
	}
	sort.Ints(branches)

	summary := make([]factor.Factor, 0, len(branches))
	for _, ci := range branches {
		cached := tree.Clique(ci).Cached
		if cached == nil {
			continue
		}

		wrapped, err := marginal.Wrap(cached, linpoint)
		if err != nil {
			return err
		}

		// strip any non-root keys the cached factor still references
		reduced, err := s.margin.Reduce(wrapped, rootKeys, linpoint)
		if err != nil {
			return err
		}
		if reduced != nil {
			summary = append(summary, reduced)
		}
	}

	s.summary = summary

	if s.cfg.Observer != nil {
		s.cfg.Observer.Summary(len(summary))
	}

	return nil
}

// GetSummarizedFactors appends the outgoing summary buffer to out.
// It is a pure read and does not clear the buffer.
func (s *Smoother) GetSummarizedFactors(out *factor.Graph) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.summary {
		out.Add(f)
	}
}

// Synchronize replaces the previous incoming filter summary with the new
// one, merges the incoming values into the estimate and replaces the root
// set wholesale. Stale and fresh summaries never coexist in the graph.
// It returns error if bookkeeping of the previous summary slots fails.
func (s *Smoother) Synchronize(incomingSummary []factor.Factor, incomingValues, newRoots *smooth.Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.syncSlots {
		if err := s.store.Remove(slot); err != nil {
			return fmt.Errorf("failed to remove stale summary factor: %v", err)
		}
	}
	s.syncSlots = s.syncSlots[:0]

	for _, f := range incomingSummary {
		slot, err := s.store.Insert(f)
		if err != nil {
			return err
		}
		s.syncSlots = append(s.syncSlots, slot)
	}

	s.theta.Merge(incomingValues)

	roots := smooth.NewValues()
	roots.Merge(newRoots)
	s.roots = roots

	return nil
}

// Estimate returns a copy of the smoother's committed estimate.
func (s *Smoother) Estimate() *smooth.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theta.Copy()
}

// Roots returns a copy of the current root values.
func (s *Smoother) Roots() *smooth.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roots.Copy()
}

// Len returns the number of live factors in the smoother's graph.
func (s *Smoother) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len()
}
