// Package elimination turns a linear factor graph and an elimination
// ordering into a Bayes tree of Gaussian conditionals with cached
// separator factors, using an injected elimination policy.
package elimination

import (
	"fmt"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/linear"
	"github.com/slamlab/go-smooth/ordering"
)

// Engine eliminates linear factor graphs along a given ordering.
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

// symbolic node: one variable with the separator it had at elimination time.
type symNode struct {
	key smooth.Key
	sep map[smooth.Key]struct{}
}

// Eliminate processes the variables of g strictly in the order ord,
// grouping variables that became pairwise fully connected into
// multifrontal cliques, and returns the resulting Bayes tree.
// Groups optionally assigns keys to priority groups (as used for
// root-constrained orderings): cliques never span two groups, so
// constrained keys end up in dedicated root cliques. A nil groups map
// disables the barrier.
// Given the same graph, ordering and policy the output is identical;
// ties are broken by the ordering itself.
// It returns error if ord does not cover the graph variables exactly or
// the policy fails.
func (e *Engine) Eliminate(g *linear.Graph, ord ordering.Ordering, groups map[smooth.Key]int) (*Tree, error) {
	if g.Len() == 0 {
		return nil, fmt.Errorf("empty graph")
	}

	pos := ord.Positions()
	if len(pos) != len(ord) {
		return nil, fmt.Errorf("ordering contains duplicate keys")
	}
	keys := g.Keys()
	if len(keys) != len(ord) {
		return nil, fmt.Errorf("ordering covers %d keys, graph has %d", len(ord), len(keys))
	}
	for _, key := range keys {
		if _, ok := pos[key]; !ok {
			return nil, fmt.Errorf("ordering misses graph key %v", key)
		}
	}

	nodes, factorHome, err := e.symbolic(g, ord, pos)
	if err != nil {
		return nil, err
	}

	tree, cliqueOf, frontals := buildCliques(nodes, pos, groups)

	if err := e.numeric(g, tree, cliqueOf, frontals, factorHome, pos); err != nil {
		return nil, err
	}

	return tree, nil
}

// symbolic runs symbolic elimination: per variable, the set of still
// uneliminated neighbors at its elimination time. It also assigns every
// factor to the variable of its eliminated first.
func (e *Engine) symbolic(g *linear.Graph, ord ordering.Ordering, pos map[smooth.Key]int) ([]symNode, map[int]int, error) {
	n := len(ord)

	// factors assigned to the position of their earliest key
	buckets := make([][]int, n)
	factorHome := make(map[int]int, g.Len())
	for fi, f := range g.Factors() {
		home := -1
		for _, key := range f.Keys() {
			p, ok := pos[key]
			if !ok {
				return nil, nil, fmt.Errorf("ordering misses factor key %v", key)
			}
			if home < 0 || p < home {
				home = p
			}
		}
		buckets[home] = append(buckets[home], fi)
		factorHome[fi] = home
	}

	// symbolic remainders inherited from earlier eliminations
	inherited := make([][]map[smooth.Key]struct{}, n)

	nodes := make([]symNode, n)
	for i := 0; i < n; i++ {
		key := ord[i]
		sep := make(map[smooth.Key]struct{})

		for _, fi := range buckets[i] {
			for _, k := range g.Factors()[fi].Keys() {
				if k != key {
					sep[k] = struct{}{}
				}
			}
		}
		for _, rem := range inherited[i] {
			for k := range rem {
				if k != key {
					sep[k] = struct{}{}
				}
			}
		}

		nodes[i] = symNode{key: key, sep: sep}

		if len(sep) > 0 {
			home := -1
			for k := range sep {
				if p := pos[k]; home < 0 || p < home {
					home = p
				}
			}
			inherited[home] = append(inherited[home], sep)
		}
	}

	return nodes, factorHome, nil
}

// buildCliques groups symbolic nodes into multifrontal cliques and links
// them into a tree. A variable joins the clique of its elimination tree
// parent when its separator covers that clique exactly and both are in
// the same priority group; otherwise it seeds a new clique.
func buildCliques(nodes []symNode, pos map[smooth.Key]int, groups map[smooth.Key]int) (*Tree, map[smooth.Key]int, [][]smooth.Key) {
	group := func(key smooth.Key) int {
		if groups == nil {
			return 0
		}
		return groups[key]
	}

	cliqueOf := make(map[smooth.Key]int)
	var frontals [][]smooth.Key
	var seps []map[smooth.Key]struct{}

	// process in reverse elimination order so parents exist before children
	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]

		parentKey, ok := firstKey(node.sep, pos)
		if ok {
			ci := cliqueOf[parentKey]
			if frontals[ci][0] == parentKey &&
				group(parentKey) == group(node.key) &&
				coversClique(node.sep, frontals[ci], seps[ci]) {
				// merge: node becomes the new first frontal of the clique
				frontals[ci] = append([]smooth.Key{node.key}, frontals[ci]...)
				cliqueOf[node.key] = ci
				continue
			}
		}

		frontals = append(frontals, []smooth.Key{node.key})
		seps = append(seps, node.sep)
		cliqueOf[node.key] = len(frontals) - 1
	}

	nc := len(frontals)
	tree := &Tree{
		cliques:  make([]*Clique, nc),
		parent:   make([]int, nc),
		children: make([][]int, nc),
		owner:    make(map[smooth.Key]int, len(nodes)),
	}

	for ci := range frontals {
		tree.cliques[ci] = &Clique{}
		for _, key := range frontals[ci] {
			tree.owner[key] = ci
		}
	}
	for ci := range frontals {
		tree.parent[ci] = -1
		if parentKey, ok := firstKey(seps[ci], pos); ok {
			pi := cliqueOf[parentKey]
			tree.parent[ci] = pi
			tree.children[pi] = append(tree.children[pi], ci)
		} else {
			tree.roots = append(tree.roots, ci)
		}
	}

	return tree, cliqueOf, frontals
}

// numeric eliminates each clique through the policy, propagating remainder
// factors towards the roots and caching them on their producing cliques.
func (e *Engine) numeric(g *linear.Graph, tree *Tree, cliqueOf map[smooth.Key]int, frontals [][]smooth.Key, factorHome map[int]int, pos map[smooth.Key]int) error {
	nc := len(frontals)

	pools := make([][]linear.Factor, nc)
	for fi, f := range g.Factors() {
		ci := cliqueOf[ordKeyAt(g, f, factorHome[fi], pos)]
		pools[ci] = append(pools[ci], f)
	}

	// children before parents: ascending position of the last frontal
	order := make([]int, nc)
	for i := range order {
		order[i] = i
	}
	last := func(ci int) int {
		fs := frontals[ci]
		return pos[fs[len(fs)-1]]
	}
	for i := 0; i < nc; i++ {
		for j := i + 1; j < nc; j++ {
			if last(order[j]) < last(order[i]) {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	policy := e.policy()
	for _, ci := range order {
		sub := linear.NewGraph(pools[ci]...)
		cond, rem, err := policy.Eliminate(sub, frontals[ci])
		if err != nil {
			return fmt.Errorf("failed to eliminate clique over %v: %v", frontals[ci], err)
		}

		tree.cliques[ci].Conditional = cond
		tree.cliques[ci].Cached = rem

		if rem != nil && tree.parent[ci] >= 0 {
			pools[tree.parent[ci]] = append(pools[tree.parent[ci]], rem)
		}
	}

	return nil
}

// ordKeyAt returns the factor key eliminated at position home.
func ordKeyAt(g *linear.Graph, f linear.Factor, home int, pos map[smooth.Key]int) smooth.Key {
	for _, key := range f.Keys() {
		if pos[key] == home {
			return key
		}
	}
	// unreachable: home was derived from the factor keys
	return f.Keys()[0]
}

// firstKey returns the earliest eliminated key of a set.
func firstKey(set map[smooth.Key]struct{}, pos map[smooth.Key]int) (smooth.Key, bool) {
	var best smooth.Key
	bestPos, found := 0, false
	for key := range set {
		if p := pos[key]; !found || p < bestPos {
			best, bestPos, found = key, p, true
		}
	}
	return best, found
}

// coversClique reports whether sep equals the clique's frontal and
// separator keys combined.
func coversClique(sep map[smooth.Key]struct{}, frontals []smooth.Key, cliqueSep map[smooth.Key]struct{}) bool {
	if len(sep) != len(frontals)+len(cliqueSep) {
		return false
	}
	for _, key := range frontals {
		if _, ok := sep[key]; !ok {
			return false
		}
	}
	for key := range cliqueSep {
		if _, ok := sep[key]; !ok {
			return false
		}
	}
	return true
}
