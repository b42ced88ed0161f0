package smooth

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Key is an opaque identifier of an unknown variable.
// Keys built with Sym carry a one character tag in the top byte
// so related variables print as x0, x1, l2 etc.
type Key uint64

// Sym creates a tagged Key from a character and an index.
func Sym(c byte, index uint64) Key {
	return Key(uint64(c)<<56 | (index & ((1 << 56) - 1)))
}

// String implements the Stringer interface.
func (k Key) String() string {
	c := byte(k >> 56)
	if c >= 'a' && c <= 'z' {
		return fmt.Sprintf("%c%d", c, uint64(k)&((1<<56)-1))
	}
	return fmt.Sprintf("%d", uint64(k))
}

// SortKeys sorts keys in ascending order in place.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}

// Values maps variable keys to their vector values.
// It serves both as a nonlinear estimate and as a set of linear deltas.
type Values struct {
	v map[Key]*mat.VecDense
}

// NewValues creates new empty Values and returns it.
func NewValues() *Values {
	return &Values{v: make(map[Key]*mat.VecDense)}
}

// Insert stores a copy of val under key, replacing any previous value.
func (vs *Values) Insert(key Key, val mat.Vector) {
	v := mat.NewVecDense(val.Len(), nil)
	v.CopyVec(val)
	vs.v[key] = v
}

// At returns the value stored under key.
func (vs *Values) At(key Key) (*mat.VecDense, bool) {
	v, ok := vs.v[key]
	return v, ok
}

// Has returns true if key has a value.
func (vs *Values) Has(key Key) bool {
	_, ok := vs.v[key]
	return ok
}

// Dim returns the dimension of the value stored under key, 0 if absent.
func (vs *Values) Dim(key Key) int {
	if v, ok := vs.v[key]; ok {
		return v.Len()
	}
	return 0
}

// Delete removes key and its value.
func (vs *Values) Delete(key Key) {
	delete(vs.v, key)
}

// Merge inserts every value of other, overwriting duplicates key-wise.
func (vs *Values) Merge(other *Values) {
	if other == nil {
		return
	}
	for key, v := range other.v {
		vs.Insert(key, v)
	}
}

// Keys returns all keys in ascending order.
func (vs *Values) Keys() []Key {
	keys := make([]Key, 0, len(vs.v))
	for key := range vs.v {
		keys = append(keys, key)
	}
	SortKeys(keys)
	return keys
}

// Len returns the number of stored values.
func (vs *Values) Len() int {
	return len(vs.v)
}

// Copy returns a deep copy of the values.
func (vs *Values) Copy() *Values {
	c := NewValues()
	c.Merge(vs)
	return c
}

// Retract returns a copy of the values moved by delta.
// Keys missing from delta keep their value; keys missing from vs are ignored.
func (vs *Values) Retract(delta *Values) *Values {
	c := vs.Copy()
	if delta == nil {
		return c
	}
	for key, d := range delta.v {
		v, ok := c.v[key]
		if !ok || v.Len() != d.Len() {
			continue
		}
		v.AddVec(v, d)
	}
	return c
}

// Observer receives diagnostic callbacks from the smoother.
// Implementations must not mutate smoother state.
type Observer interface {
	// Iteration reports the total error after one optimizer iteration
	Iteration(iter int, err float64)
	// Summary reports the number of factors in a freshly computed summary
	Summary(size int)
}
