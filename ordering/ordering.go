// Package ordering provides elimination orderings and the Orderer strategy
// interface. The built-in orderer is a constrained greedy minimum degree
// heuristic; callers with stronger heuristics inject their own Orderer.
package ordering

import (
	"fmt"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/factor"
)

// Ordering is a sequence fixing which variables are eliminated first.
type Ordering []smooth.Key

// Positions returns a key to position lookup for the ordering.
func (o Ordering) Positions() map[smooth.Key]int {
	pos := make(map[smooth.Key]int, len(o))
	for i, key := range o {
		pos[key] = i
	}
	return pos
}

// Contains returns true if key appears in the ordering.
func (o Ordering) Contains(key smooth.Key) bool {
	for _, k := range o {
		if k == key {
			return true
		}
	}
	return false
}

// Orderer computes a valid elimination ordering for a factor graph.
// Constraints assign keys to priority groups: keys of a higher group are
// eliminated strictly after keys of every lower group; unlisted keys are
// in group 0. A root-constrained ordering puts the root keys in group 1
// so they sort last.
type Orderer interface {
	Order(g *factor.Graph, theta *smooth.Values, constraints map[smooth.Key]int) (Ordering, error)
}

// MinDegree is a greedy constrained minimum degree orderer. At every step
// it eliminates the remaining variable with the lowest priority group,
// breaking ties by current degree and then by key, and connects the
// variable's neighbors to account for fill-in. The result is deterministic
// for a given graph and constraint map.
type MinDegree struct{}

// Order implements the Orderer interface.
// It returns error if the graph has no variables.
func (MinDegree) Order(g *factor.Graph, theta *smooth.Values, constraints map[smooth.Key]int) (Ordering, error) {
	keys := g.Keys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty graph")
	}

	adj := make(map[smooth.Key]map[smooth.Key]struct{}, len(keys))
	for _, key := range keys {
		adj[key] = make(map[smooth.Key]struct{})
	}
	for _, f := range g.Factors() {
		fk := f.Keys()
		for _, a := range fk {
			for _, b := range fk {
				if a != b {
					adj[a][b] = struct{}{}
				}
			}
		}
	}

	group := func(key smooth.Key) int {
		if constraints == nil {
			return 0
		}
		return constraints[key]
	}

	ord := make(Ordering, 0, len(keys))
	remaining := make(map[smooth.Key]struct{}, len(keys))
	for _, key := range keys {
		remaining[key] = struct{}{}
	}

	for len(remaining) > 0 {
		var best smooth.Key
		bestGroup, bestDeg := 0, 0
		found := false
		for key := range remaining {
			kg, kd := group(key), len(adj[key])
			if !found ||
				kg < bestGroup ||
				(kg == bestGroup && kd < bestDeg) ||
				(kg == bestGroup && kd == bestDeg && key < best) {
				best, bestGroup, bestDeg = key, kg, kd
				found = true
			}
		}

		ord = append(ord, best)
		delete(remaining, best)

		// connect the eliminated variable's neighbors (fill-in)
		neighbors := adj[best]
		for a := range neighbors {
			delete(adj[a], best)
			for b := range neighbors {
				if a != b {
					adj[a][b] = struct{}{}
				}
			}
		}
		delete(adj, best)
	}

	return ord, nil
}
