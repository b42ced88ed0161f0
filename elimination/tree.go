package elimination

import (
	"fmt"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
)

// Clique is one node of a Bayes tree: the conditional density over its
// frontal variables and the leftover factor on its separator cached when
// the clique was eliminated (nil at roots, whose separator is empty).
type Clique struct {
	// Conditional relates the clique frontals to its separator
	Conditional *linear.Conditional
	// Cached is the remainder factor produced by eliminating the frontals
	Cached linear.Factor
}

// Tree is a Bayes tree: a forest of cliques stored in an arena and linked
// by integer indices. Every variable is owned by exactly one clique as a
// frontal. Trees are rebuilt fresh each cycle and never mutated afterwards.
type Tree struct {
	cliques  []*Clique
	parent   []int
	children [][]int
	owner    map[smooth.Key]int
	roots    []int
}

// Len returns the number of cliques.
func (t *Tree) Len() int {
	return len(t.cliques)
}

// Clique returns the clique at index i.
func (t *Tree) Clique(i int) *Clique {
	return t.cliques[i]
}

// Parent returns the parent index of clique i, -1 for roots.
func (t *Tree) Parent(i int) int {
	return t.parent[i]
}

// Children returns the child indices of clique i.
func (t *Tree) Children(i int) []int {
	return t.children[i]
}

// Roots returns the indices of the root cliques.
func (t *Tree) Roots() []int {
	roots := make([]int, len(t.roots))
	copy(roots, t.roots)
	return roots
}

// OwnerOf returns the index of the clique owning key as a frontal.
func (t *Tree) OwnerOf(key smooth.Key) (int, bool) {
	i, ok := t.owner[key]
	return i, ok
}

// Solve back-substitutes through the tree from the roots down and returns
// the assignment of every variable.
// It returns error if any conditional fails to solve.
func (t *Tree) Solve() (*smooth.Values, error) {
	vals := smooth.NewValues()

	queue := t.Roots()
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]

		frontals, err := t.cliques[i].Conditional.Solve(vals)
		if err != nil {
			return nil, fmt.Errorf("failed to solve clique %d: %v", i, err)
		}
		vals.Merge(frontals)

		queue = append(queue, t.children[i]...)
	}

	return vals, nil
}
