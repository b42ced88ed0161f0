package sim

// Iteration is one recorded optimizer iteration.
type Iteration struct {
	// Iter is the iteration number within its update
	Iter int
	// Error is the total graph error after the iteration
	Error float64
}

// Trace records smoother diagnostics. It implements the Observer interface
// of the root package and is handed to the smoother via its Config.
type Trace struct {
	// iterations records every optimizer iteration in call order
	iterations []Iteration
	// summaries records the factor count of every computed summary
	summaries []int
}

// NewTrace creates new empty Trace and returns it.
func NewTrace() *Trace {
	return &Trace{}
}

// Iteration records one optimizer iteration.
func (t *Trace) Iteration(iter int, err float64) {
	t.iterations = append(t.iterations, Iteration{Iter: iter, Error: err})
}

// Summary records the size of one computed summary.
func (t *Trace) Summary(size int) {
	t.summaries = append(t.summaries, size)
}

// Iterations returns the recorded optimizer iterations.
func (t *Trace) Iterations() []Iteration {
	return t.iterations
}

// Summaries returns the recorded summary sizes.
func (t *Trace) Summaries() []int {
	return t.summaries
}

// Errors returns the recorded per-iteration errors.
func (t *Trace) Errors() []float64 {
	errs := make([]float64, len(t.iterations))
	for i, it := range t.iterations {
		errs[i] = it.Error
	}
	return errs
}
