// Package store provides a slot addressed, insert/remove stable container
// for factors with a variable-to-slots index. Freed slots are reused FIFO
// before the table grows; every slot carries a generation counter so stale
// slot handles are rejected instead of silently aliasing a new factor.
package store

import (
	"errors"
	"fmt"
	"sort"

	smooth "github.com/slamlab/go-smooth"
	"github.com/slamlab/go-smooth/factor"
)

// ErrInvalidSlot means a slot reference is unoccupied, out of range or
// stale. This is a caller precondition violation.
var ErrInvalidSlot = errors.New("invalid slot reference")

// Slot is a generation checked handle to a stored factor.
type Slot struct {
	index int
	gen   uint64
}

// Index returns the slot table index of the handle.
func (s Slot) Index() int {
	return s.index
}

// String implements the Stringer interface.
func (s Slot) String() string {
	return fmt.Sprintf("slot(%d@%d)", s.index, s.gen)
}

type entry struct {
	f   factor.Factor
	gen uint64
}

// Store is a slot addressed factor container.
type Store struct {
	entries []entry
	// free holds reusable hole indices in FIFO order
	free []int
	// index maps every variable key to the slots referencing it
	index map[smooth.Key]map[int]struct{}
}

// New creates new empty Store and returns it.
func New() *Store {
	return &Store{index: make(map[smooth.Key]map[int]struct{})}
}

// Insert stores f in a reused free slot if one exists, else appends, and
// registers the factor keys in the variable index.
// It returns error if f is nil.
func (s *Store) Insert(f factor.Factor) (Slot, error) {
	if f == nil {
		return Slot{}, fmt.Errorf("nil factor")
	}

	var idx int
	if len(s.free) > 0 {
		idx = s.free[0]
		s.free = s.free[1:]
	} else {
		idx = len(s.entries)
		s.entries = append(s.entries, entry{})
	}

	s.entries[idx].f = f
	s.entries[idx].gen++

	for _, key := range f.Keys() {
		slots, ok := s.index[key]
		if !ok {
			slots = make(map[int]struct{})
			s.index[key] = slots
		}
		slots[idx] = struct{}{}
	}

	return Slot{index: idx, gen: s.entries[idx].gen}, nil
}

// Remove unregisters the factor keys of slot from the index and returns
// the slot to the free list.
// It returns ErrInvalidSlot if slot is unoccupied, stale or out of range.
func (s *Store) Remove(slot Slot) error {
	f, err := s.At(slot)
	if err != nil {
		return err
	}

	for _, key := range f.Keys() {
		if slots, ok := s.index[key]; ok {
			delete(slots, slot.index)
			if len(slots) == 0 {
				delete(s.index, key)
			}
		}
	}

	s.entries[slot.index].f = nil
	s.free = append(s.free, slot.index)

	return nil
}

// At returns the factor stored at slot.
// It returns ErrInvalidSlot if slot is unoccupied, stale or out of range.
func (s *Store) At(slot Slot) (factor.Factor, error) {
	if slot.index < 0 || slot.index >= len(s.entries) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidSlot, slot.index)
	}
	e := s.entries[slot.index]
	if e.f == nil {
		return nil, fmt.Errorf("%w: slot %d unoccupied", ErrInvalidSlot, slot.index)
	}
	if e.gen != slot.gen {
		return nil, fmt.Errorf("%w: stale slot %d generation %d != %d", ErrInvalidSlot, slot.index, slot.gen, e.gen)
	}
	return e.f, nil
}

// Len returns the number of live factors.
func (s *Store) Len() int {
	return len(s.entries) - len(s.free)
}

// Cap returns the full slot table size, holes included.
func (s *Store) Cap() int {
	return len(s.entries)
}

// Slots returns the handles of all occupied slots in index order.
func (s *Store) Slots() []Slot {
	var slots []Slot
	for i, e := range s.entries {
		if e.f != nil {
			slots = append(slots, Slot{index: i, gen: e.gen})
		}
	}
	return slots
}

// FindWithAny returns the slots of factors touching any of the given keys,
// in index order.
func (s *Store) FindWithAny(keys []smooth.Key) []Slot {
	seen := make(map[int]struct{})
	for _, key := range keys {
		for idx := range s.index[key] {
			seen[idx] = struct{}{}
		}
	}

	idxs := make([]int, 0, len(seen))
	for idx := range seen {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	slots := make([]Slot, 0, len(idxs))
	for _, idx := range idxs {
		slots = append(slots, Slot{index: idx, gen: s.entries[idx].gen})
	}
	return slots
}

// FindWithOnly returns the slots of factors whose key set is entirely
// contained in the given keys, in index order.
func (s *Store) FindWithOnly(keys []smooth.Key) []Slot {
	keySet := make(map[smooth.Key]struct{}, len(keys))
	for _, key := range keys {
		keySet[key] = struct{}{}
	}

	var slots []Slot
	for _, slot := range s.FindWithAny(keys) {
		inside := true
		for _, key := range s.entries[slot.index].f.Keys() {
			if _, ok := keySet[key]; !ok {
				inside = false
				break
			}
		}
		if inside {
			slots = append(slots, slot)
		}
	}
	return slots
}

// Graph returns a nonlinear factor graph over all live factors in slot order.
func (s *Store) Graph() *factor.Graph {
	g := factor.NewGraph()
	for _, e := range s.entries {
		if e.f != nil {
			g.Add(e.f)
		}
	}
	return g
}

// Keys returns all indexed variable keys in ascending order.
func (s *Store) Keys() []smooth.Key {
	keys := make([]smooth.Key, 0, len(s.index))
	for key := range s.index {
		keys = append(keys, key)
	}
	smooth.SortKeys(keys)
	return keys
}
