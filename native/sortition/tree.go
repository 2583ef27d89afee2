package sortition

import (
	"errors"
	"math/big"
)

var (
	// ErrEmptyTree is returned by Draw when no leaf carries weight.
	ErrEmptyTree = errors.New("sortition: draw on empty tree")
	// ErrOutOfRange is returned when the draw value is negative or not below
	// the total weight.
	ErrOutOfRange = errors.New("sortition: draw value out of range")
	// ErrInvalidBranching is returned when constructing a tree with k < 2.
	ErrInvalidBranching = errors.New("sortition: branching factor must be at least 2")
	// ErrNegativeWeight is returned by Set for negative weights.
	ErrNegativeWeight = errors.New("sortition: weight must be non-negative")
)

// Key identifies a participant leaf. Twenty bytes, matching pool addresses.
type Key = [20]byte

// Tree is a k-ary weight-sum tree. Leaves hold per-participant weights and
// every internal node caches the sum of its subtree, giving O(log_k n)
// updates and weighted draws. A leaf set to zero weight is soft deleted: it
// keeps its slot but can never be drawn.
//
// levels[0] holds the leaves in slot order; each higher level holds the sums
// of groups of k nodes from the level below. Once at least one leaf exists
// the highest level has exactly one node, the total weight.
type Tree struct {
	branching int
	levels    [][]*big.Int
	slots     map[Key]int
	keys      []Key
	active    int
}

// New constructs an empty tree with the given branching factor.
func New(branching int) (*Tree, error) {
	if branching < 2 {
		return nil, ErrInvalidBranching
	}
	return &Tree{
		branching: branching,
		levels:    [][]*big.Int{nil},
		slots:     make(map[Key]int),
	}, nil
}

// MustNew is New for constant branching factors.
func MustNew(branching int) *Tree {
	t, err := New(branching)
	if err != nil {
		panic(err)
	}
	return t
}

// Branching returns the configured branching factor.
func (t *Tree) Branching() int { return t.branching }

// Set upserts the weight for a key. A zero weight removes the key from future
// draws while retaining its slot for reuse. Ancestor sums are updated along
// the leaf-to-root path only.
func (t *Tree) Set(key Key, weight *big.Int) error {
	if weight == nil {
		weight = big.NewInt(0)
	}
	if weight.Sign() < 0 {
		return ErrNegativeWeight
	}
	slot, ok := t.slots[key]
	if !ok {
		if weight.Sign() == 0 {
			return nil
		}
		slot = t.appendLeaf(key)
	}

	prev := t.levels[0][slot]
	if prev.Sign() == 0 && weight.Sign() > 0 {
		t.active++
	} else if prev.Sign() > 0 && weight.Sign() == 0 {
		t.active--
	}

	delta := new(big.Int).Sub(weight, prev)
	t.levels[0][slot] = new(big.Int).Set(weight)
	idx := slot
	for level := 1; level < len(t.levels); level++ {
		idx /= t.branching
		t.levels[level][idx].Add(t.levels[level][idx], delta)
	}
	return nil
}

// Weight returns the current weight for a key, zero when absent.
func (t *Tree) Weight(key Key) *big.Int {
	slot, ok := t.slots[key]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(t.levels[0][slot])
}

// TotalWeight returns the root's cached sum in O(1).
func (t *Tree) TotalWeight() *big.Int {
	root := t.root()
	if root == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(root)
}

// Len reports how many leaves currently hold non-zero weight.
func (t *Tree) Len() int { return t.active }

// Draw descends from the root with a value in [0, TotalWeight()) and returns
// the key of the leaf whose weight range contains it. The descent visits
// children in slot order, so identical tree state and value always yield the
// same key.
func (t *Tree) Draw(value *big.Int) (Key, error) {
	root := t.root()
	if root == nil || root.Sign() == 0 {
		return Key{}, ErrEmptyTree
	}
	if value == nil || value.Sign() < 0 || value.Cmp(root) >= 0 {
		return Key{}, ErrOutOfRange
	}

	remaining := new(big.Int).Set(value)
	idx := 0
	for level := len(t.levels) - 1; level > 0; level-- {
		children := t.levels[level-1]
		first := idx * t.branching
		for child := first; child < first+t.branching && child < len(children); child++ {
			w := children[child]
			if remaining.Cmp(w) < 0 {
				idx = child
				break
			}
			remaining.Sub(remaining, w)
		}
	}
	return t.keys[idx], nil
}

// Leaves returns every key that currently holds non-zero weight, in slot
// order. Intended for read-only accessors and tests.
func (t *Tree) Leaves() []Key {
	out := make([]Key, 0, t.active)
	for slot, w := range t.levels[0] {
		if w.Sign() > 0 {
			out = append(out, t.keys[slot])
		}
	}
	return out
}

func (t *Tree) root() *big.Int {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return nil
	}
	return top[0]
}

func (t *Tree) appendLeaf(key Key) int {
	slot := len(t.levels[0])
	t.levels[0] = append(t.levels[0], big.NewInt(0))
	t.keys = append(t.keys, key)
	t.slots[key] = slot

	// Grow upper levels so every leaf has a full ancestor path and the top
	// level ends in a single root. Leaves append one at a time, so a freshly
	// created internal node only ever covers the new zero-weight leaf and
	// starts at zero; a freshly created root covers the whole level below.
	for level := 1; ; level++ {
		below := t.levels[level-1]
		need := (len(below) + t.branching - 1) / t.branching
		if level == len(t.levels) {
			root := big.NewInt(0)
			for _, w := range below {
				root.Add(root, w)
			}
			t.levels = append(t.levels, []*big.Int{root})
		}
		for len(t.levels[level]) < need {
			t.levels[level] = append(t.levels[level], big.NewInt(0))
		}
		if need == 1 {
			break
		}
	}
	// A single leaf is its own root.
	for len(t.levels) > 1 && len(t.levels[len(t.levels)-1]) == 1 && len(t.levels[len(t.levels)-2]) == 1 {
		t.levels = t.levels[:len(t.levels)-1]
	}
	return slot
}
